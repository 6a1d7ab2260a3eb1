package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConversionJob asks a worker to convert the AU object at SourceKey and store
// the result at DestinationKey.
type ConversionJob struct {
	ID             string
	SourceKey      string
	DestinationKey string
	EnqueuedAt     time.Time
}

func (j ConversionJob) logAttrs() []any {
	return []any{
		slog.String("jobID", j.ID),
		slog.String("sourceKey", j.SourceKey),
		slog.String("destinationKey", j.DestinationKey),
		slog.String("enqueuedAt", j.EnqueuedAt.Format(time.RFC3339)),
	}
}

func (j ConversionJob) values() map[string]any {
	return map[string]any{
		"jobID":          j.ID,
		"sourceKey":      j.SourceKey,
		"destinationKey": j.DestinationKey,
		"enqueuedAt":     j.EnqueuedAt.Format(time.RFC3339Nano),
	}
}

// JobFromValues parses the fields of a stream message into a job.
func JobFromValues(values map[string]any) (ConversionJob, error) {
	field := func(name string) (string, error) {
		raw, ok := values[name]
		if !ok {
			return "", fmt.Errorf("missing field %q", name)
		}
		s, ok := raw.(string)
		if !ok || s == "" {
			return "", fmt.Errorf("field %q must be a non-empty string, got %v", name, raw)
		}
		return s, nil
	}

	var job ConversionJob
	var err error
	if job.ID, err = field("jobID"); err != nil {
		return ConversionJob{}, err
	}
	if job.SourceKey, err = field("sourceKey"); err != nil {
		return ConversionJob{}, err
	}
	if job.DestinationKey, err = field("destinationKey"); err != nil {
		return ConversionJob{}, err
	}
	enqueuedAt, err := field("enqueuedAt")
	if err != nil {
		return ConversionJob{}, err
	}
	if job.EnqueuedAt, err = time.Parse(time.RFC3339Nano, enqueuedAt); err != nil {
		return ConversionJob{}, fmt.Errorf("field %q is not a timestamp: %w", "enqueuedAt", err)
	}
	return job, nil
}

type JobHandler interface {
	HandleJobs(ctx context.Context, jobs ...ConversionJob) error
}

type PrintingJobHandler struct{}

func (h *PrintingJobHandler) HandleJobs(ctx context.Context, jobs ...ConversionJob) error {
	for _, job := range jobs {
		slog.InfoContext(ctx, "Handling conversion job", job.logAttrs()...)
	}
	return nil
}

var _ JobHandler = (*PrintingJobHandler)(nil)

func ensureGroup(ctx context.Context, client *redis.Client, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s on %s: %w", group, stream, err)
	}
	return nil
}

// RedisJobHandler enqueues jobs on a Redis stream.
type RedisJobHandler struct {
	client *redis.Client
	stream string
}

// NewRedisJobHandler also creates the consumer group, so jobs added before
// any worker has started are still delivered.
func NewRedisJobHandler(ctx context.Context, client *redis.Client, stream, group string) (*RedisJobHandler, error) {
	if err := ensureGroup(ctx, client, stream, group); err != nil {
		return nil, err
	}
	return &RedisJobHandler{client: client, stream: stream}, nil
}

func (h *RedisJobHandler) HandleJobs(ctx context.Context, jobs ...ConversionJob) error {
	_, err := h.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, job := range jobs {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: h.stream,
				Values: job.values(),
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add %d jobs to %s: %w", len(jobs), h.stream, err)
	}
	return nil
}

var _ JobHandler = (*RedisJobHandler)(nil)

// ReceivedJob is a job read from the stream together with the id of the
// message that carried it.
type ReceivedJob struct {
	MessageID string
	Job       ConversionJob
}

type JobReceiver interface {
	ReceiveJobs(ctx context.Context) ([]ReceivedJob, error)
	Ack(ctx context.Context, messageIDs ...string) error
}

// RedisJobReceiver reads jobs from a Redis stream as one consumer of a
// consumer group.
type RedisJobReceiver struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	count    int64
	block    time.Duration
}

type RedisJobReceiverOptions struct {
	Stream   string
	Group    string
	Consumer string
	// Count bounds the number of jobs returned by one ReceiveJobs call.
	Count int64
	// Block is how long ReceiveJobs waits for new jobs.
	Block time.Duration
}

func NewRedisJobReceiver(ctx context.Context, client *redis.Client, opts RedisJobReceiverOptions) (*RedisJobReceiver, error) {
	if opts.Count < 1 {
		return nil, fmt.Errorf("count must be positive, got %d", opts.Count)
	}
	if err := ensureGroup(ctx, client, opts.Stream, opts.Group); err != nil {
		return nil, err
	}
	return &RedisJobReceiver{
		client:   client,
		stream:   opts.Stream,
		group:    opts.Group,
		consumer: opts.Consumer,
		count:    opts.Count,
		block:    opts.Block,
	}, nil
}

// ReceiveJobs returns the next undelivered jobs, or none if nothing arrived
// within the block duration. Messages that do not describe a job are
// acknowledged and dropped.
func (r *RedisJobReceiver) ReceiveJobs(ctx context.Context) ([]ReceivedJob, error) {
	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, ">"},
		Count:    r.count,
		Block:    r.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from %s: %w", r.stream, err)
	}

	var jobs []ReceivedJob
	var malformed []string
	for _, s := range streams {
		for _, msg := range s.Messages {
			job, err := JobFromValues(msg.Values)
			if err != nil {
				slog.WarnContext(
					ctx,
					"Dropping malformed job message",
					slog.String("messageID", msg.ID),
					slog.Any("error", err),
				)
				malformed = append(malformed, msg.ID)
				continue
			}
			jobs = append(jobs, ReceivedJob{MessageID: msg.ID, Job: job})
		}
	}

	if len(malformed) > 0 {
		if err := r.Ack(ctx, malformed...); err != nil {
			return jobs, err
		}
	}
	return jobs, nil
}

func (r *RedisJobReceiver) Ack(ctx context.Context, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if err := r.client.XAck(ctx, r.stream, r.group, messageIDs...).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge %d messages: %w", len(messageIDs), err)
	}
	return nil
}

var _ JobReceiver = (*RedisJobReceiver)(nil)
