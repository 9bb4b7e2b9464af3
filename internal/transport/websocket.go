// ABOUTME: WebSocket transport adapter: server push of the agent queue plus
// ABOUTME: inbound event injection, mirroring the HTTP adapter's contract.

package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/openagents/openagents/internal/agent"
	"github.com/openagents/openagents/internal/auth"
	"github.com/openagents/openagents/internal/event"
	"github.com/openagents/openagents/internal/gateway"
)

// pushPollInterval is the blocking Poll window of the server push loop.
const pushPollInterval = 15 * time.Second

// pushBatchSize bounds how many events one push frame carries out of Poll.
const pushBatchSize = 32

// Envelope is the WebSocket frame format, both directions. Inbound frames
// carry type "event"; outbound frames carry "event" (queue push), "response"
// (result of an inbound event), or "error".
type Envelope struct {
	Type     string          `json:"type"`
	Event    *event.Event    `json:"event,omitempty"`
	EventID  string          `json:"event_id,omitempty"`
	Response *event.Response `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// WS is the WebSocket transport adapter.
type WS struct {
	core            Core
	creds           *auth.Credentials
	responseTimeout time.Duration
	logger          *slog.Logger
}

// NewWS creates the WebSocket adapter. creds may be nil to disable
// authentication.
func NewWS(core Core, creds *auth.Credentials, responseTimeout time.Duration, logger *slog.Logger) *WS {
	if responseTimeout <= 0 {
		responseTimeout = DefaultResponseTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WS{
		core:            core,
		creds:           creds,
		responseTimeout: responseTimeout,
		logger:          logger.With("component", "ws-transport"),
	}
}

// RegisterRoutes attaches the WebSocket endpoint to the mux.
func (s *WS) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWS)
}

func (s *WS) handleWS(w http.ResponseWriter, r *http.Request) {
	agentID, err := authenticateAgent(r, s.creds)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "agent_id", agentID, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection torn down")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.logger.Info("websocket connected", "agent_id", agentID)

	// One writer goroutine owns all outbound frames.
	outbound := make(chan Envelope, pushBatchSize)
	go func() {
		for {
			select {
			case env := <-outbound:
				if err := wsjson.Write(ctx, conn, env); err != nil {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go s.pushLoop(ctx, cancel, agentID, outbound)
	s.readLoop(ctx, conn, agentID, outbound)

	s.logger.Info("websocket disconnected", "agent_id", agentID)
}

// pushLoop drains the agent's queue and pushes each event to the socket.
func (s *WS) pushLoop(ctx context.Context, cancel context.CancelFunc, agentID string, outbound chan<- Envelope) {
	defer cancel()
	for {
		events, err := s.core.Poll(ctx, agentID, pushBatchSize, pushPollInterval)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, agent.ErrAgentNotFound) {
				s.logger.Warn("push poll failed", "agent_id", agentID, "error", err)
			}
			return
		}
		for _, ev := range events {
			select {
			case outbound <- Envelope{Type: "event", Event: ev}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// readLoop consumes inbound frames and injects their events into the core.
func (s *WS) readLoop(ctx context.Context, conn *websocket.Conn, agentID string, outbound chan<- Envelope) {
	for {
		var env Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				s.logger.Debug("websocket read ended", "agent_id", agentID, "error", err)
			}
			return
		}
		if env.Type != "event" || env.Event == nil {
			s.send(ctx, outbound, Envelope{Type: "error", Error: "expected frame type \"event\""})
			continue
		}

		ev := env.Event
		if ev.SourceID == "" {
			ev.SourceID = agentID
		}
		if ev.SourceID != agentID {
			s.send(ctx, outbound, Envelope{Type: "error", EventID: ev.ID,
				Error: "source_id does not match authenticated agent"})
			continue
		}
		ev.Finalize()

		resp, err := s.core.ProcessEvent(ctx, ev)
		if err != nil {
			s.send(ctx, outbound, Envelope{Type: "error", EventID: ev.ID, Error: err.Error()})
			continue
		}
		if ev.RequiresResponse {
			awaited, err := s.core.ResponseFor(ctx, ev.ID, s.responseTimeout)
			switch {
			case err == nil:
				resp = awaited
			case errors.Is(err, gateway.ErrResponseTimeout):
				resp = event.Fail("response timeout")
			default:
				s.send(ctx, outbound, Envelope{Type: "error", EventID: ev.ID, Error: err.Error()})
				continue
			}
		}
		s.send(ctx, outbound, Envelope{Type: "response", EventID: ev.ID, Response: resp})
	}
}

func (s *WS) send(ctx context.Context, outbound chan<- Envelope, env Envelope) {
	select {
	case outbound <- env:
	case <-ctx.Done():
	}
}
