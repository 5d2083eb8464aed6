package runlist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dyluth/burrow/pkg/ledger"
	"github.com/google/uuid"
)

// MinShortIDLength is the shortest prefix accepted in place of a run ID.
const MinShortIDLength = 4

// NotFoundError indicates no run matched the prefix.
type NotFoundError struct {
	Prefix string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no runs found matching '%s'", e.Prefix)
}

// AmbiguousError indicates several runs matched the prefix.
type AmbiguousError struct {
	Prefix  string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	shown := e.Matches
	if len(shown) > 5 {
		shown = shown[:5]
	}
	msg := fmt.Sprintf("ambiguous run ID '%s' matches %d runs: %s", e.Prefix, len(e.Matches), strings.Join(shown, ", "))
	if len(e.Matches) > len(shown) {
		msg += fmt.Sprintf(" ...and %d more", len(e.Matches)-len(shown))
	}
	return msg
}

// ResolveRunID expands a run ID prefix, such as the 8 characters shown by
// the run table, to the full ID. Full IDs are returned as is.
func ResolveRunID(ctx context.Context, client *ledger.Client, id string) (string, error) {
	if _, err := uuid.Parse(id); err == nil {
		return id, nil
	}
	if len(id) < MinShortIDLength {
		return "", fmt.Errorf("run ID prefix must be at least %d characters (got %d)", MinShortIDLength, len(id))
	}

	runs, err := client.ListRuns(ctx, 0)
	if err != nil {
		return "", err
	}

	var matches []string
	for _, r := range runs {
		if strings.HasPrefix(r.ID, id) {
			matches = append(matches, r.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{Prefix: id}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{Prefix: id, Matches: matches}
	}
}

// IsAmbiguous reports whether err is an AmbiguousError.
func IsAmbiguous(err error) bool {
	var target *AmbiguousError
	return errors.As(err, &target)
}
