// Package queue implements the Queue+PubSub collaborator on top of Redis:
// a blocking work list for ingestion jobs, a string key per document for
// cheap progress snapshots, and a pub/sub channel for live fan-out.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"ragservice/internal/apperr"
	"ragservice/internal/domain"
)

const progressTTL = time.Hour

// Store wraps a Redis client with the job-queue and progress operations.
type Store struct {
	client         *redis.Client
	queueKey       string
	progressChan   string
	progressPrefix string
}

// New dials Redis eagerly (PING) so misconfiguration surfaces at startup.
func New(ctx context.Context, addr, queueKey, progressChan string) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyTransient, "connect to redis", err)
	}
	return &Store{
		client:         client,
		queueKey:       queueKey,
		progressChan:   progressChan,
		progressPrefix: "progress:",
	}, nil
}

// Push enqueues a job by pushing its JSON encoding onto the work list.
func (s *Store) Push(ctx context.Context, job domain.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "marshal job", err)
	}
	if err := s.client.RPush(ctx, s.queueKey, raw).Err(); err != nil {
		return apperr.Wrap(apperr.KindDependencyTransient, "push job", err)
	}
	return nil
}

// BlockingPop waits up to timeout for a job to become available. A zero
// job and nil error is returned on timeout; callers should loop.
func (s *Store) BlockingPop(ctx context.Context, timeout time.Duration) (domain.Job, bool, error) {
	res, err := s.client.BLPop(ctx, timeout, s.queueKey).Result()
	if err == redis.Nil {
		return domain.Job{}, false, nil
	}
	if err != nil {
		return domain.Job{}, false, apperr.Wrap(apperr.KindDependencyTransient, "blocking pop", err)
	}
	if len(res) != 2 {
		return domain.Job{}, false, apperr.New(apperr.KindInternal, "unexpected BLPOP reply shape")
	}
	var job domain.Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return domain.Job{}, false, apperr.Wrap(apperr.KindMalformedUpstream, "unmarshal job", err)
	}
	return job, true, nil
}

func (s *Store) progressKey(docID string) string {
	return s.progressPrefix + docID
}

// SetProgress stores the latest ProgressEvent for docID with a TTL so
// stale snapshots expire even if a document is abandoned mid-ingestion.
func (s *Store) SetProgress(ctx context.Context, event domain.ProgressEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "marshal progress event", err)
	}
	if err := s.client.Set(ctx, s.progressKey(event.DocID), raw, progressTTL).Err(); err != nil {
		return apperr.Wrap(apperr.KindDependencyTransient, "set progress", err)
	}
	return nil
}

// GetProgress returns the last known ProgressEvent for docID, if any.
func (s *Store) GetProgress(ctx context.Context, docID string) (domain.ProgressEvent, bool, error) {
	raw, err := s.client.Get(ctx, s.progressKey(docID)).Bytes()
	if err == redis.Nil {
		return domain.ProgressEvent{}, false, nil
	}
	if err != nil {
		return domain.ProgressEvent{}, false, apperr.Wrap(apperr.KindDependencyTransient, "get progress", err)
	}
	var event domain.ProgressEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return domain.ProgressEvent{}, false, apperr.Wrap(apperr.KindMalformedUpstream, "unmarshal progress event", err)
	}
	return event, true, nil
}

// Publish broadcasts a ProgressEvent on the shared progress channel.
func (s *Store) Publish(ctx context.Context, event domain.ProgressEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "marshal progress event", err)
	}
	if err := s.client.Publish(ctx, s.progressChan, raw).Err(); err != nil {
		return apperr.Wrap(apperr.KindDependencyTransient, "publish progress", err)
	}
	return nil
}

// Subscribe returns a channel of ProgressEvents decoded from the shared
// channel. The returned close func must be called to release the
// subscription; malformed messages are dropped rather than closing the
// stream.
func (s *Store) Subscribe(ctx context.Context) (<-chan domain.ProgressEvent, func() error) {
	sub := s.client.Subscribe(ctx, s.progressChan)
	out := make(chan domain.ProgressEvent, 64)
	go func() {
		defer close(out)
		ch := sub.Channel()
		for msg := range ch {
			var event domain.ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			default:
				// slow consumer: drop rather than block the fan-out
			}
		}
	}()
	return out, sub.Close
}

// Close releases the underlying Redis connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping probes the Redis connection for health checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return apperr.Wrap(apperr.KindDependencyTransient, "ping redis", err)
	}
	return nil
}
