package wsgateway

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/vclip/vclip/internal/store"
	"github.com/vclip/vclip/internal/types"
)

// stream drives Enqueued -> Streaming -> Terminal: it subscribes to the
// job's progress channel and relays every event to the socket through a
// bounded, backpressure-propagating buffer.
func (s *session) stream(jobID string) {
	send := make(chan []byte, s.gateway.cfg.SendBufferSize)
	done := make(chan struct{})
	var stopOnce sync.Once
	stop := func() { stopOnce.Do(func() { close(done) }) }

	unsubscribe, err := s.gateway.queue.Subscribe(s.ctx, jobID, func(event types.ProgressEvent) {
		data, err := json.Marshal(event)
		if err != nil {
			log.Error().Err(err).Msg("wsgateway: failed to marshal progress event")
			return
		}
		// Try a non-blocking send first; on overflow block, propagating
		// backpressure to the progress stream.
		select {
		case send <- data:
		default:
			select {
			case send <- data:
			case <-done:
				return
			}
		}
		if event.Type == types.EventDone || event.Type == types.EventError {
			stop()
		}
	})
	if err != nil {
		s.sendError(fmt.Sprintf("subscribe failed: %v", err))
		return
	}
	defer unsubscribe()

	s.runRelay(send, done, stop)
}

// streamExistingJob resumes Streaming for a reconnecting client without
// re-running admission or enqueueing anything.
func (s *session) streamExistingJob(jobID, videoID string) {
	send := make(chan []byte, s.gateway.cfg.SendBufferSize)
	done := make(chan struct{})
	var stopOnce sync.Once
	stop := func() { stopOnce.Do(func() { close(done) }) }

	unsubscribe, err := s.gateway.queue.Subscribe(s.ctx, jobID, func(event types.ProgressEvent) {
		data, err := json.Marshal(event)
		if err != nil {
			log.Error().Err(err).Msg("wsgateway: failed to marshal progress event")
			return
		}
		select {
		case send <- data:
		default:
			select {
			case send <- data:
			case <-done:
				return
			}
		}
		if event.Type == types.EventDone || event.Type == types.EventError {
			stop()
		}
	})
	if err != nil {
		s.sendError(fmt.Sprintf("subscribe failed: %v", err))
		return
	}
	defer unsubscribe()

	// Pub/sub is best-effort: a terminal event published while this client
	// was disconnected was already lost. Synthesize one from the video
	// document's current status if it already reached a terminal state.
	if videoID != "" {
		if v, err := s.gateway.store.GetVideo(s.ctx, videoID); err == nil {
			if synthetic, ok := terminalEventFor(v); ok {
				data, _ := json.Marshal(synthetic)
				select {
				case send <- data:
				default:
				}
				stop()
			}
		}
	}

	s.runRelay(send, done, stop)
}

func terminalEventFor(v *store.Video) (types.ProgressEvent, bool) {
	switch types.VideoStatus(v.Status) {
	case types.VideoCompleted:
		return types.DoneEvent(v.VideoID), true
	case types.VideoFailed:
		return types.ErrorEvent(v.FailureReason), true
	default:
		return types.ProgressEvent{}, false
	}
}

// runRelay runs the writer and reader goroutine pair for one session: one
// goroutine drains outbound traffic from a buffered channel to the socket,
// the other pumps the socket's read side purely to detect disconnects and
// process control frames.
func (s *session) runRelay(send chan []byte, done chan struct{}, stop func()) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		s.readLoop(done)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop(send, done)
	}()

	wg.Wait()
}

// readLoop's only job is to keep reading so gorilla's pong handler fires and
// a client-initiated close or dead connection is detected; the gateway's
// protocol has nothing more for a client to say after the initial request.
func (s *session) readLoop(done chan struct{}) {
	heartbeat := s.gateway.cfg.HeartbeatInterval
	s.conn.SetReadDeadline(time.Now().Add(heartbeat * 2))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(heartbeat * 2))
	})
	for {
		select {
		case <-done:
			return
		default:
		}
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop drains send to the socket and ticks the heartbeat: a ping is
// sent only if no outbound traffic occurred in the last half-interval.
func (s *session) writeLoop(send chan []byte, done chan struct{}) {
	interval := s.gateway.cfg.HeartbeatInterval
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	lastSent := time.Now()
	for {
		select {
		case data := <-send:
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Msg("wsgateway: write failed")
				return
			}
			lastSent = time.Now()
		case <-ticker.C:
			if time.Since(lastSent) >= interval/2 {
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					log.Debug().Err(err).Msg("wsgateway: ping failed")
					return
				}
				lastSent = time.Now()
			}
		case <-done:
			s.drain(send)
			// Force the blocked reader goroutine to unblock so the
			// session can terminate even if the client never closes
			// its side of the socket.
			_ = s.conn.SetReadDeadline(time.Now())
			return
		}
	}
}

// drain flushes any already-buffered outbound messages (notably a terminal
// event) before the session ends.
func (s *session) drain(send chan []byte) {
	for {
		select {
		case data := <-send:
			_ = s.conn.WriteMessage(websocket.TextMessage, data)
		default:
			return
		}
	}
}
