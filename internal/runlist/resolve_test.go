package runlist

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/burrow/pkg/ledger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRunID(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := ledger.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()

	ids := []string{
		"aaaa1111-0000-4000-8000-000000000001",
		"aaaa2222-0000-4000-8000-000000000002",
		"bbbb3333-0000-4000-8000-000000000003",
	}
	for i, id := range ids {
		require.NoError(t, client.CreateRun(ctx, &ledger.Run{
			ID: id, Engine: "lua", Status: ledger.RunStatusFinished, StartedAtMs: int64(i + 1),
		}))
	}

	testCases := []struct {
		name    string
		input   string
		want    string
		wantErr string
	}{
		{"full id", ids[0], ids[0], ""},
		{"full id not recorded", "cccc4444-0000-4000-8000-000000000004", "cccc4444-0000-4000-8000-000000000004", ""},
		{"unique prefix", "bbbb", ids[2], ""},
		{"longer prefix", "aaaa2", ids[1], ""},
		{"ambiguous", "aaaa", "", "ambiguous run ID 'aaaa' matches 2 runs"},
		{"no match", "ffff", "", "no runs found matching 'ffff'"},
		{"too short", "aa", "", "at least 4 characters"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveRunID(ctx, client, tc.input)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err = ResolveRunID(ctx, client, "aaaa")
	assert.True(t, IsAmbiguous(err))
}

func TestAmbiguousError_TruncatesList(t *testing.T) {
	err := &AmbiguousError{Prefix: "ab", Matches: []string{"1", "2", "3", "4", "5", "6", "7"}}
	assert.Equal(t, "ambiguous run ID 'ab' matches 7 runs: 1, 2, 3, 4, 5 ...and 2 more", err.Error())
}
