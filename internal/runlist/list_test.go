package runlist

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/burrow/pkg/ledger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRuns(t *testing.T) (*ledger.Client, []*ledger.Run) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := ledger.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	now := time.Now()
	runs := []*ledger.Run{
		{ID: ledger.NewRunID(), CaseID: "rename-imports", Engine: "lua", Status: ledger.RunStatusFinished, Processed: 4, Total: 4, StartedAtMs: now.Add(-3 * time.Hour).UnixMilli()},
		{ID: ledger.NewRunID(), CaseID: "upper", Engine: "lua", Status: ledger.RunStatusAborted, Processed: 1, Total: 9, StartedAtMs: now.Add(-30 * time.Minute).UnixMilli()},
		{ID: ledger.NewRunID(), CaseID: "rename-types", Engine: "replace", Status: ledger.RunStatusRunning, Total: 2, StartedAtMs: now.Add(-time.Minute).UnixMilli()},
	}
	for _, r := range runs {
		require.NoError(t, client.CreateRun(context.Background(), r))
	}
	return client, runs
}

func TestList(t *testing.T) {
	client, runs := seedRuns(t)
	ctx := context.Background()

	t.Run("table newest first", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, List(ctx, client, OutputFormatDefault, nil, 0, &buf))

		out := buf.String()
		assert.Contains(t, out, "Runs for instance 'test-instance'")
		assert.Contains(t, out, "3 runs found")
		assert.Less(t, strings.Index(out, runs[2].ID[:8]), strings.Index(out, runs[0].ID[:8]))
		assert.Contains(t, out, "1/9")
	})

	t.Run("jsonl", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, List(ctx, client, OutputFormatJSONL, nil, 0, &buf))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 3)
		var first ledger.Run
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
		assert.Equal(t, runs[2].ID, first.ID)
	})

	t.Run("filters", func(t *testing.T) {
		testCases := []struct {
			name   string
			filter *Filter
			want   []string
		}{
			{"since", &Filter{SinceMs: time.Now().Add(-time.Hour).UnixMilli()}, []string{runs[2].ID, runs[1].ID}},
			{"status", &Filter{Status: ledger.RunStatusAborted}, []string{runs[1].ID}},
			{"case glob", &Filter{CaseGlob: "rename-*"}, []string{runs[2].ID, runs[0].ID}},
			{"combined", &Filter{CaseGlob: "rename-*", Status: ledger.RunStatusFinished}, []string{runs[0].ID}},
			{"nothing", &Filter{Status: ledger.RunStatusFinished, CaseGlob: "upper"}, nil},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				var buf bytes.Buffer
				require.NoError(t, List(ctx, client, OutputFormatJSONL, tc.filter, 0, &buf))

				var got []string
				for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
					if line == "" {
						continue
					}
					var r ledger.Run
					require.NoError(t, json.Unmarshal([]byte(line), &r))
					got = append(got, r.ID)
				}
				assert.Equal(t, tc.want, got)
			})
		}
	})

	t.Run("limit applies after filtering", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, List(ctx, client, OutputFormatJSONL, &Filter{CaseGlob: "rename-*"}, 1, &buf))
		assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
		assert.Contains(t, buf.String(), runs[2].ID)
	})

	t.Run("invalid format", func(t *testing.T) {
		err := List(ctx, client, "yaml", nil, 0, &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid output format")
	})
}

func TestFormatTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	n := FormatTable(&buf, nil, "prod", time.Now())
	assert.Equal(t, 0, n)
	assert.Equal(t, "No runs found for instance 'prod'\n", buf.String())
}

func TestFormatTable_SingleRun(t *testing.T) {
	var buf bytes.Buffer
	run := &ledger.Run{ID: "0123456789abcdef", Engine: "lua", Status: ledger.RunStatusRunning}
	FormatTable(&buf, []*ledger.Run{run}, "prod", time.Now())

	out := buf.String()
	assert.Contains(t, out, "01234567 ")
	assert.NotContains(t, out, "89abcdef")
	assert.Contains(t, out, "1 run found")
}

func TestFormatAge(t *testing.T) {
	now := time.UnixMilli(10 * 24 * 3600 * 1000)
	testCases := []struct {
		ago  time.Duration
		want string
	}{
		{5 * time.Second, "5s ago"},
		{3 * time.Minute, "3m ago"},
		{5 * time.Hour, "5h ago"},
		{49 * time.Hour, "2d ago"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, formatAge(now.Add(-tc.ago).UnixMilli(), now))
	}
	assert.Equal(t, "-", formatAge(0, now))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "-", truncate("", 8))
	assert.Equal(t, "short", truncate("short", 8))
	assert.Equal(t, "rename...", truncate("rename-imports", 9))
}

func TestParseTime(t *testing.T) {
	now := time.Date(2025, 10, 29, 14, 0, 0, 0, time.UTC)

	t.Run("duration", func(t *testing.T) {
		ms, err := ParseTime("1h30m", now)
		require.NoError(t, err)
		assert.Equal(t, now.Add(-90*time.Minute).UnixMilli(), ms)
	})

	t.Run("rfc3339", func(t *testing.T) {
		ms, err := ParseTime("2025-10-29T13:00:00Z", now)
		require.NoError(t, err)
		assert.Equal(t, now.Add(-time.Hour).UnixMilli(), ms)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ParseTime("yesterday", now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid time specification")

		_, err = ParseTime("", now)
		assert.Error(t, err)
	})
}
