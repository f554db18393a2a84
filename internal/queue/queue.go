// Package queue is the NATS JetStream-backed job queue plus a core-NATS
// progress pub/sub channel per job, modeled on the Message/acker wrapper
// shape used throughout this codebase's pubsub layer.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/vclip/vclip/internal/types"
)

const streamName = "VCLIP_JOBS"

func subjectForKind(kind types.JobKind) string { return "vclip.jobs." + string(kind) }

func progressSubject(jobID string) string { return "vclip.progress." + jobID }

// Message wraps a claimed job with its underlying JetStream ack handle,
// mirroring the acker interface used by the pubsub wrapper this package is
// grounded on.
type Message struct {
	Job  types.Job
	raw  jetstream.Msg
}

func (m *Message) Ack() error { return m.raw.Ack() }

func (m *Message) NackWithDelay(delay time.Duration) error {
	return m.raw.NakWithDelay(delay)
}

// Queue is the job queue plus per-job progress pub/sub.
type Queue struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
}

// Connect dials NATS, ensures the durable job stream exists, and returns a Queue.
func Connect(ctx context.Context, url string, replicas int) (*Queue, error) {
	nc, err := nats.Connect(url, nats.Name("vclip"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("init jetstream: %w", err)
	}

	subjects := make([]string, 0, 4)
	for _, k := range []types.JobKind{types.JobAnalyze, types.JobDownloadSource, types.JobReprocess, types.JobRenderSceneStyle} {
		subjects = append(subjects, subjectForKind(k))
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  subjects,
		Replicas:  replicas,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create job stream: %w", err)
	}

	return &Queue{nc: nc, js: js, stream: stream}, nil
}

func (q *Queue) Close() { q.nc.Close() }

// Enqueue publishes a new job and returns its generated job id.
func (q *Queue) Enqueue(ctx context.Context, kind types.JobKind, payload any) (string, error) {
	jobID := uuid.NewString()
	job := types.Job{JobID: jobID, Kind: kind, CreatedAt: time.Now(), Payload: payload}
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	if _, err := q.js.Publish(ctx, subjectForKind(kind), data); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	log.Debug().Str("job_id", jobID).Str("kind", string(kind)).Msg("job enqueued")
	return jobID, nil
}

// Consumer claims jobs for one (kind, consumer_group) pair.
type Consumer struct {
	consumer jetstream.Consumer
}

// NewConsumer binds a durable pull consumer for one job kind and consumer group.
func (q *Queue) NewConsumer(ctx context.Context, kind types.JobKind, consumerGroup string, ackWait time.Duration, maxDeliver int) (*Consumer, error) {
	c, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Durable:       consumerGroup,
		FilterSubject: subjectForKind(kind),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxDeliver:    maxDeliver,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}
	return &Consumer{consumer: c}, nil
}

// Claim waits up to `timeout` for a single job; returns (nil, nil) on idle timeout.
func (c *Consumer) Claim(ctx context.Context, timeout time.Duration) (*Message, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msgs, err := c.consumer.Fetch(1, jetstream.FetchMaxWait(timeout))
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	select {
	case raw, ok := <-msgs.Messages():
		if !ok {
			return nil, msgs.Error()
		}
		var job types.Job
		if err := json.Unmarshal(raw.Data(), &job); err != nil {
			_ = raw.Nak()
			return nil, fmt.Errorf("claim: unmarshal job: %w", err)
		}
		return &Message{Job: job, raw: raw}, nil
	case <-cctx.Done():
		return nil, nil
	}
}

// Publish emits one progress event on a job's best-effort pub/sub channel.
func (q *Queue) Publish(ctx context.Context, jobID string, event types.ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	if err := q.nc.Publish(progressSubject(jobID), data); err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	return nil
}

// Subscribe streams progress events for a job to handler until ctx is canceled
// or the subscription is closed. Best-effort: a reconnecting subscriber may
// miss events published during the gap; callers recover by
// reading terminal state from the document store.
func (q *Queue) Subscribe(ctx context.Context, jobID string, handler func(types.ProgressEvent)) (func() error, error) {
	sub, err := q.nc.Subscribe(progressSubject(jobID), func(msg *nats.Msg) {
		var event types.ProgressEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Error().Err(err).Str("job_id", jobID).Msg("failed to unmarshal progress event")
			return
		}
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe progress: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return sub.Unsubscribe, nil
}
