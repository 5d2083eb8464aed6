package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/dyluth/burrow/internal/printer"
	"github.com/dyluth/burrow/pkg/ledger"
	"github.com/spf13/cobra"
)

const defaultRedisURL = "redis://localhost:6379"

// ledgerFlags are shared by the commands that read the run ledger.
type ledgerFlags struct {
	redisURL string
	instance string
}

func (f *ledgerFlags) register(cmd *cobra.Command) {
	url := os.Getenv("BURROW_REDIS_URL")
	if url == "" {
		url = defaultRedisURL
	}
	cmd.Flags().StringVar(&f.redisURL, "redis-url", url, "Ledger Redis URL (env BURROW_REDIS_URL)")
	cmd.Flags().StringVarP(&f.instance, "name", "n", "default", "Ledger instance name")
}

// connect opens and verifies the ledger connection.
func (f *ledgerFlags) connect(ctx context.Context) (*ledger.Client, error) {
	client, err := ledger.NewClientFromURL(f.redisURL, f.instance)
	if err != nil {
		return nil, printer.Error(
			"invalid ledger configuration",
			err.Error(),
			[]string{"Use a URL like redis://localhost:6379 and a non-empty --name"},
		)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to the ledger at %s", f.redisURL),
			map[string]string{"Error": err.Error()},
			[]string{"Check that Redis is running and --redis-url is correct"},
		)
	}
	return client, nil
}
