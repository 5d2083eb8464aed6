package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client provides instance-scoped Redis operations for the run ledger.
// It is safe for concurrent use.
type Client struct {
	rdb          *redis.Client
	instanceName string
	now          func() time.Time
}

// NewClient creates a ledger client for the specified instance.
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
		now:          time.Now,
	}, nil
}

// NewClientFromURL creates a client from a redis:// URL.
func NewClientFromURL(url, instanceName string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return NewClient(opts, instanceName)
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// InstanceName returns the namespace this client writes under.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// CreateRun writes a run and adds it to the instance's run index.
func (c *Client) CreateRun(ctx context.Context, r *Run) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, RunKey(c.instanceName, r.ID), RunToHash(r))
		pipe.ZAdd(ctx, RunsIndexKey(c.instanceName), redis.Z{
			Score:  float64(r.StartedAtMs),
			Member: r.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write run to Redis: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
// Returns (nil, redis.Nil) if the run doesn't exist; use IsNotFound.
func (c *Client) GetRun(ctx context.Context, runID string) (*Run, error) {
	hashData, err := c.rdb.HGetAll(ctx, RunKey(c.instanceName, runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run from Redis: %w", err)
	}
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	run, err := HashToRun(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. A limit of 0 returns all.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := c.rdb.ZRevRange(ctx, RunsIndexKey(c.instanceName), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run index: %w", err)
	}

	runs := make([]*Run, 0, len(ids))
	for _, id := range ids {
		run, err := c.GetRun(ctx, id)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load run %s: %w", id, err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// SetStatus records a run's terminal status and finish time.
func (c *Client) SetStatus(ctx context.Context, runID string, status RunStatus) error {
	if err := status.Validate(); err != nil {
		return err
	}
	if err := c.requireRun(ctx, runID); err != nil {
		return err
	}

	fields := map[string]interface{}{"status": string(status)}
	if status != RunStatusRunning {
		fields["finished_at_ms"] = c.now().UnixMilli()
	}
	if err := c.rdb.HSet(ctx, RunKey(c.instanceName, runID), fields).Err(); err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

// AppendEvent stores an event JSON object on the run and publishes it to
// followers. Progress events update the run's counters and a finish event
// marks it finished.
func (c *Client) AppendEvent(ctx context.Context, runID string, event []byte) error {
	var head eventHead
	if err := json.Unmarshal(event, &head); err != nil {
		return fmt.Errorf("failed to parse event: %w", err)
	}
	if head.Kind == "" {
		return fmt.Errorf("event has no kind")
	}
	if err := c.requireRun(ctx, runID); err != nil {
		return err
	}

	seq, err := c.rdb.RPush(ctx, RunEventsKey(c.instanceName, runID), event).Result()
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	fields := map[string]interface{}{}
	if head.Processed != nil {
		fields["processed"] = *head.Processed
	}
	if head.Total != nil {
		fields["total"] = *head.Total
	}
	if head.Kind == "finish" {
		fields["status"] = string(RunStatusFinished)
		fields["finished_at_ms"] = c.now().UnixMilli()
	}
	if len(fields) > 0 {
		if err := c.rdb.HSet(ctx, RunKey(c.instanceName, runID), fields).Err(); err != nil {
			return fmt.Errorf("failed to update run: %w", err)
		}
	}

	payload, err := json.Marshal(RunEvent{Seq: seq, Event: event})
	if err != nil {
		return fmt.Errorf("failed to marshal event for publish: %w", err)
	}
	if err := c.rdb.Publish(ctx, RunEventsChannel(c.instanceName, runID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// GetEvents returns every stored event of a run in order.
func (c *Client) GetEvents(ctx context.Context, runID string) ([]RunEvent, error) {
	raw, err := c.rdb.LRange(ctx, RunEventsKey(c.instanceName, runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	events := make([]RunEvent, len(raw))
	for i, e := range raw {
		events[i] = RunEvent{Seq: int64(i + 1), Event: json.RawMessage(e)}
	}
	return events, nil
}

func (c *Client) requireRun(ctx context.Context, runID string) error {
	exists, err := c.rdb.Exists(ctx, RunKey(c.instanceName, runID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check run existence: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("run %s: %w", runID, redis.Nil)
	}
	return nil
}

// Subscription is an active subscription to one run's events.
// Caller must call Close() when done.
type Subscription struct {
	events <-chan RunEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of live events. It is closed when the
// subscription ends.
func (s *Subscription) Events() <-chan RunEvent {
	return s.events
}

// Errors returns non-fatal subscription errors; malformed messages are
// skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeRunEvents subscribes to a run's live events. The subscription is
// confirmed by Redis before this returns, so events appended afterwards are
// not missed.
func (c *Client) SubscribeRunEvents(ctx context.Context, runID string) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, RunEventsChannel(c.instanceName, runID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to run events: %w", err)
	}

	eventsChan := make(chan RunEvent, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev RunEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal run event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
