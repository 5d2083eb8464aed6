package ledger

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	client.now = func() time.Time { return time.UnixMilli(5000) }

	return client, mr
}

func newRun(startedAtMs int64) *Run {
	return &Run{
		ID:          NewRunID(),
		CaseID:      "upper",
		Engine:      "lua",
		Mode:        "direct",
		Workspace:   "/src",
		Workers:     4,
		Status:      RunStatusRunning,
		Total:       3,
		StartedAtMs: startedAtMs,
	}
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.Equal(t, "test-instance", client.InstanceName())
		assert.NoError(t, client.Ping(context.Background()))
	})

	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "instance name cannot be empty")
	})

	t.Run("from URL", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := NewClientFromURL("redis://"+mr.Addr(), "default")
		require.NoError(t, err)
		defer client.Close()
		assert.NoError(t, client.Ping(context.Background()))

		_, err = NewClientFromURL("http://nope", "default")
		assert.Error(t, err)
	})
}

func TestCreateAndGetRun(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	run := newRun(1000)
	require.NoError(t, client.CreateRun(ctx, run))

	got, err := client.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run, got)

	assert.True(t, mr.Exists(RunKey("test-instance", run.ID)))
	members, err := mr.ZMembers(RunsIndexKey("test-instance"))
	require.NoError(t, err)
	assert.Equal(t, []string{run.ID}, members)

	t.Run("missing run", func(t *testing.T) {
		_, err := client.GetRun(ctx, NewRunID())
		assert.True(t, IsNotFound(err))
	})

	t.Run("invalid run", func(t *testing.T) {
		bad := newRun(1)
		bad.ID = "not-a-uuid"
		err := client.CreateRun(ctx, bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid run")
	})
}

func TestListRuns(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	first, second, third := newRun(100), newRun(200), newRun(300)
	for _, r := range []*Run{second, first, third} {
		require.NoError(t, client.CreateRun(ctx, r))
	}

	all, err := client.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	limited, err := client.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
	assert.Equal(t, third.ID, limited[0].ID)
}

func TestAppendEvent(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	run := newRun(1000)
	require.NoError(t, client.CreateRun(ctx, run))

	events := []string{
		`{"kind":"progress","processed":0,"total":3}`,
		`{"kind":"change","filePath":"a.go","diff":"","caseId":"upper"}`,
		`{"kind":"progress","processed":3,"total":3}`,
		`{"kind":"finish"}`,
	}
	for _, e := range events {
		require.NoError(t, client.AppendEvent(ctx, run.ID, []byte(e)))
	}

	stored, err := client.GetEvents(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, stored, len(events))
	for i, e := range events {
		assert.Equal(t, int64(i+1), stored[i].Seq)
		assert.JSONEq(t, e, string(stored[i].Event))
	}

	got, err := client.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(3), got.Processed)
	assert.Equal(t, RunStatusFinished, got.Status)
	assert.Equal(t, int64(5000), got.FinishedAtMs)

	t.Run("unknown run", func(t *testing.T) {
		err := client.AppendEvent(ctx, NewRunID(), []byte(`{"kind":"finish"}`))
		assert.True(t, IsNotFound(err))
	})

	t.Run("malformed event", func(t *testing.T) {
		assert.Error(t, client.AppendEvent(ctx, run.ID, []byte(`nope`)))
		assert.Error(t, client.AppendEvent(ctx, run.ID, []byte(`{"processed":1}`)))
	})
}

func TestSetStatus(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	run := newRun(1000)
	require.NoError(t, client.CreateRun(ctx, run))

	require.NoError(t, client.SetStatus(ctx, run.ID, RunStatusAborted))
	got, err := client.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusAborted, got.Status)
	assert.Equal(t, int64(5000), got.FinishedAtMs)

	assert.Error(t, client.SetStatus(ctx, run.ID, "paused"))
	assert.True(t, IsNotFound(client.SetStatus(ctx, NewRunID(), RunStatusFinished)))
}

func TestSubscribeRunEvents(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	run := newRun(1000)
	require.NoError(t, client.CreateRun(ctx, run))

	sub, err := client.SubscribeRunEvents(ctx, run.ID)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, client.AppendEvent(ctx, run.ID, []byte(`{"kind":"progress","processed":1,"total":3}`)))
	require.NoError(t, client.AppendEvent(ctx, run.ID, []byte(`{"kind":"finish"}`)))

	for i, want := range []string{`{"kind":"progress","processed":1,"total":3}`, `{"kind":"finish"}`} {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, int64(i+1), ev.Seq)
			assert.JSONEq(t, want, string(ev.Event))
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for run event")
		}
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
}

func TestSubscriptionErrorChannel(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	runID := NewRunID()
	sub, err := client.SubscribeRunEvents(ctx, runID)
	require.NoError(t, err)
	defer sub.Close()

	mr.Publish(RunEventsChannel("test-instance", runID), "not json")

	select {
	case err := <-sub.Errors():
		assert.Contains(t, err.Error(), "failed to unmarshal run event")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for subscription error")
	}
}

func TestInstanceNamespacing(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	a, err := NewClient(&redis.Options{Addr: mr.Addr()}, "a")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewClient(&redis.Options{Addr: mr.Addr()}, "b")
	require.NoError(t, err)
	defer b.Close()

	run := newRun(1)
	require.NoError(t, a.CreateRun(ctx, run))

	_, err = b.GetRun(ctx, run.ID)
	assert.True(t, IsNotFound(err))

	runs, err := b.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(r *Run)
		wantErr string
	}{
		{"valid", func(r *Run) {}, ""},
		{"bad id", func(r *Run) { r.ID = "x" }, "invalid run ID"},
		{"no engine", func(r *Run) { r.Engine = "" }, "engine is required"},
		{"bad status", func(r *Run) { r.Status = "paused" }, "invalid run status"},
		{"processed over total", func(r *Run) { r.Processed = 4 }, "exceeds total"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRun(1)
			tc.mutate(r)
			err := r.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestHashRoundTrip(t *testing.T) {
	run := newRun(42)
	run.Processed = 2
	run.FinishedAtMs = 99

	hash := make(map[string]string)
	for k, v := range RunToHash(run) {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		var s string
		if json.Unmarshal(raw, &s) != nil {
			s = string(raw)
		}
		hash[k] = s
	}

	got, err := HashToRun(hash)
	require.NoError(t, err)
	assert.Equal(t, run, got)

	hash["total"] = "lots"
	_, err = HashToRun(hash)
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "burrow:prod:run:abc", RunKey("prod", "abc"))
	assert.Equal(t, "burrow:prod:run:abc:events", RunEventsKey("prod", "abc"))
	assert.Equal(t, "burrow:prod:run:abc:events", RunEventsChannel("prod", "abc"))
	assert.Equal(t, "burrow:prod:runs", RunsIndexKey("prod"))
}
