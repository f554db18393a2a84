package queue

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/require"

	"github.com/vclip/vclip/internal/types"
)

func startEmbeddedNATS(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := test.DefaultTestOptions
	opts.Port = -1 // random free port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	srv := test.RunServer(&opts)
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestEnqueueAndClaim(t *testing.T) {
	srv := startEmbeddedNATS(t)
	ctx := context.Background()

	q, err := Connect(ctx, srv.ClientURL(), 1)
	require.NoError(t, err)
	defer q.Close()

	jobID, err := q.Enqueue(ctx, types.JobAnalyze, types.AnalyzeJob{UserID: "u1", VideoID: "v1"})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	consumer, err := q.NewConsumer(ctx, types.JobAnalyze, "test-group", 30*time.Second, 3)
	require.NoError(t, err)

	msg, err := consumer.Claim(ctx, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, jobID, msg.Job.JobID)
	require.NoError(t, msg.Ack())
}

func TestClaimIdleTimeout(t *testing.T) {
	srv := startEmbeddedNATS(t)
	ctx := context.Background()

	q, err := Connect(ctx, srv.ClientURL(), 1)
	require.NoError(t, err)
	defer q.Close()

	consumer, err := q.NewConsumer(ctx, types.JobReprocess, "idle-group", 30*time.Second, 3)
	require.NoError(t, err)

	msg, err := consumer.Claim(ctx, 200*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, msg)
}
