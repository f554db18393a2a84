// Package wsgateway implements the gateway-side WebSocket session state
// machine: Connected → Authenticated → Validated → Enqueued →
// Streaming → Terminal, one goroutine pair per connection in the shape the
// teacher's terminal-relay handler uses (reader goroutine feeding a PTY,
// writer goroutine draining a channel to the socket), generalized here to a
// job-progress relay instead of a PTY.
package wsgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/vclip/vclip/internal/quota"
	"github.com/vclip/vclip/internal/store"
	"github.com/vclip/vclip/internal/types"
)

// Queue is the subset of *queue.Queue the gateway needs.
type Queue interface {
	Enqueue(ctx context.Context, kind types.JobKind, payload any) (string, error)
	Publish(ctx context.Context, jobID string, event types.ProgressEvent) error
	Subscribe(ctx context.Context, jobID string, handler func(types.ProgressEvent)) (func() error, error)
}

// Store is the subset of *store.Store the gateway needs.
type Store interface {
	GetOrCreateUser(ctx context.Context, uid string) (*store.User, error)
	GetPlanLimits(ctx context.Context, planID string) (*store.PlanLimits, error)
	GetVideo(ctx context.Context, videoID string) (*store.Video, error)
}

// Config holds the timing and admission-control knobs.
type Config struct {
	JWTSecret             string
	ClientTimeout         time.Duration
	HeartbeatInterval     time.Duration
	SendBufferSize        int
	MaxConnectionsPerUser int
	MinJobInterval        time.Duration
}

// Gateway upgrades HTTP connections to WebSocket sessions and drives each
// one through the state machine.
type Gateway struct {
	cfg     Config
	store   Store
	quota   *quota.Manager
	queue   Queue
	tracker *UserConnectionTracker
	upgrader websocket.Upgrader
}

func New(cfg Config, s Store, q *quota.Manager, queue Queue) *Gateway {
	return &Gateway{
		cfg:     cfg,
		store:   s,
		quota:   q,
		queue:   queue,
		tracker: NewUserConnectionTracker(cfg.MaxConnectionsPerUser, cfg.MinJobInterval),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs one session to completion.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("wsgateway: upgrade failed")
		return
	}
	defer conn.Close()

	s := &session{gateway: g, conn: conn, ctx: r.Context()}
	s.run()
}

// session carries one connection's state machine through to Terminal.
type session struct {
	gateway *Gateway
	conn    *websocket.Conn
	ctx     context.Context
	userID  string
	release func()
}

func (s *session) run() {
	defer func() {
		if s.release != nil {
			s.release()
		}
	}()

	req, err := s.readConnectRequest()
	if err != nil {
		s.sendError(fmt.Sprintf("connect: %v", err))
		return
	}

	// Connected -> Authenticated
	uid, err := verifyBearerToken(req.Token, s.gateway.cfg.JWTSecret)
	if err != nil {
		s.sendError(fmt.Sprintf("authentication failed: %v", err))
		return
	}
	s.userID = uid

	release, err := s.gateway.tracker.Acquire(uid)
	if err != nil {
		s.sendError(err.Error())
		return
	}
	s.release = release

	if req.Reconnect && req.JobID != "" {
		s.streamExistingJob(req.JobID, req.VideoID)
		return
	}

	// Authenticated -> Validated
	kind, payload, err := s.validate(req)
	if err != nil {
		s.sendError(err.Error())
		return
	}

	// Validated -> Enqueued
	jobID, err := s.gateway.queue.Enqueue(s.ctx, kind, payload)
	if err != nil {
		s.sendError(fmt.Sprintf("enqueue failed: %v", err))
		return
	}
	s.gateway.tracker.RecordJob(uid)
	if err := s.gateway.queue.Publish(s.ctx, jobID, types.LogEvent("job enqueued")); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("wsgateway: failed to publish enqueue log")
	}

	// Enqueued -> Streaming -> Terminal
	s.stream(jobID)
}

func (s *session) readConnectRequest() (clientRequest, error) {
	deadline := time.Now().Add(s.gateway.cfg.ClientTimeout)
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return clientRequest{}, fmt.Errorf("set read deadline: %w", err)
	}
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return clientRequest{}, fmt.Errorf("read initial message: %w", err)
	}
	var req clientRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return clientRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func (s *session) sendError(text string) {
	data, err := json.Marshal(types.ErrorEvent(text))
	if err != nil {
		return
	}
	_ = s.conn.WriteMessage(websocket.TextMessage, data)
}
