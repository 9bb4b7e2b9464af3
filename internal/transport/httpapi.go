// ABOUTME: HTTP JSON transport adapter: register, emit, poll, subscriptions.
// ABOUTME: Bearer credentials pin source_id to the authenticated agent.

package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openagents/openagents/internal/agent"
	"github.com/openagents/openagents/internal/auth"
	"github.com/openagents/openagents/internal/event"
	"github.com/openagents/openagents/internal/gateway"
	"github.com/openagents/openagents/internal/subscription"
)

// DefaultResponseTimeout bounds how long an emit with requires_response waits.
const DefaultResponseTimeout = 30 * time.Second

// maxPollTimeout caps long-poll duration so handlers always return.
const maxPollTimeout = 30 * time.Second

// maxPollBatch caps the per-poll batch size; the query parameter is
// caller-controlled and must not size an allocation.
const maxPollBatch = 1000

const maxBodyBytes = 1 << 20 // 1 MiB

// API is the HTTP transport adapter. With credentials configured every
// agent-scoped route requires a bearer token and events may only carry the
// authenticated agent as source_id; without credentials the declared agent ID
// is trusted (development mode).
type API struct {
	core            Core
	creds           *auth.Credentials
	responseTimeout time.Duration
	logger          *slog.Logger
}

// NewAPI creates the HTTP adapter. creds may be nil to disable authentication.
func NewAPI(core Core, creds *auth.Credentials, responseTimeout time.Duration, logger *slog.Logger) *API {
	if responseTimeout <= 0 {
		responseTimeout = DefaultResponseTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		core:            core,
		creds:           creds,
		responseTimeout: responseTimeout,
		logger:          logger.With("component", "http-api"),
	}
}

// RegisterRoutes attaches all API endpoints to the mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/agents/register", a.handleRegister)
	mux.HandleFunc("POST /api/agents/unregister", a.requireAgent(a.handleUnregister))
	mux.HandleFunc("POST /api/events", a.requireAgent(a.handleEmit))
	mux.HandleFunc("GET /api/events/poll", a.requireAgent(a.handlePoll))
	mux.HandleFunc("POST /api/subscriptions", a.requireAgent(a.handleSubscribe))
	mux.HandleFunc("DELETE /api/subscriptions/{id}", a.requireAgent(a.handleUnsubscribe))
	mux.HandleFunc("GET /api/channels", a.handleChannels)
	mux.HandleFunc("GET /api/agents", a.handleAgents)
}

type agentHandler func(w http.ResponseWriter, r *http.Request, agentID string)

// requireAgent resolves the calling agent. With credentials configured the
// bearer token is authoritative; otherwise the X-Agent-ID header (or agent_id
// query parameter) is trusted.
func (a *API) requireAgent(next agentHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := a.callerAgent(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next(w, r, agentID)
	}
}

func (a *API) callerAgent(r *http.Request) (string, error) {
	return authenticateAgent(r, a.creds)
}

// authenticateAgent resolves the calling agent for any adapter. With
// credentials configured the bearer token is authoritative; otherwise the
// declared identity is trusted.
func authenticateAgent(r *http.Request, creds *auth.Credentials) (string, error) {
	if creds != nil {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			// Browser WebSocket clients cannot set headers.
			token = r.URL.Query().Get("credential")
		}
		if token == "" {
			return "", errors.New("missing bearer credential")
		}
		agentID, err := creds.Verify(token)
		if err != nil {
			return "", fmt.Errorf("invalid credential: %w", err)
		}
		return agentID, nil
	}

	if id := r.Header.Get("X-Agent-ID"); id != "" {
		return id, nil
	}
	if id := r.URL.Query().Get("agent_id"); id != "" {
		return id, nil
	}
	return "", errors.New("agent identity required")
}

type registerRequest struct {
	AgentID        string         `json:"agent_id"`
	Metadata       map[string]any `json:"metadata"`
	Credential     string         `json:"credential"`
	ForceReconnect bool           `json:"force_reconnect"`
}

type registerResponse struct {
	AgentID     string `json:"agent_id"`
	NetworkName string `json:"network_name"`
	NetworkID   string `json:"network_id"`
	Credential  string `json:"credential,omitempty"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, errors.New("agent_id is required"))
		return
	}

	result, err := a.core.RegisterAgent(r.Context(), req.AgentID, req.Metadata, req.Credential, req.ForceReconnect)
	if err != nil {
		if errors.Is(err, agent.ErrAgentAlreadyRegistered) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{
		AgentID:     req.AgentID,
		NetworkName: result.NetworkName,
		NetworkID:   result.NetworkID,
		Credential:  result.Credential,
	})
}

func (a *API) handleUnregister(w http.ResponseWriter, r *http.Request, agentID string) {
	if !a.core.UnregisterAgent(r.Context(), agentID) {
		writeError(w, http.StatusNotFound, fmt.Errorf("agent %q is not registered", agentID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type emitResponse struct {
	EventID  string          `json:"event_id"`
	Response *event.Response `json:"response"`
}

func (a *API) handleEmit(w http.ResponseWriter, r *http.Request, agentID string) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ev, err := event.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if ev.SourceID == "" {
		ev.SourceID = agentID
	}
	if ev.SourceID != agentID {
		writeError(w, http.StatusForbidden,
			fmt.Errorf("source_id %q does not match authenticated agent %q", ev.SourceID, agentID))
		return
	}
	ev.Finalize()

	resp, err := a.core.ProcessEvent(r.Context(), ev)
	if err != nil {
		if errors.Is(err, event.ErrValidation) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if ev.RequiresResponse {
		awaited, err := a.core.ResponseFor(r.Context(), ev.ID, a.responseTimeout)
		switch {
		case err == nil:
			resp = awaited
		case errors.Is(err, gateway.ErrResponseTimeout):
			writeJSON(w, http.StatusGatewayTimeout, emitResponse{
				EventID:  ev.ID,
				Response: event.Fail("response timeout"),
			})
			return
		default:
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, emitResponse{EventID: ev.ID, Response: resp})
}

func (a *API) handlePoll(w http.ResponseWriter, r *http.Request, agentID string) {
	max := 100
	if v := r.URL.Query().Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid max %q", v))
			return
		}
		max = min(n, maxPollBatch)
	}
	var timeout time.Duration
	if v := r.URL.Query().Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid timeout %q", v))
			return
		}
		timeout = min(d, maxPollTimeout)
	}

	events, err := a.core.Poll(r.Context(), agentID, max, timeout)
	if err != nil {
		if errors.Is(err, agent.ErrAgentNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if events == nil {
		events = []*event.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

type subscribeRequest struct {
	Patterns      []string `json:"patterns"`
	ModFilter     string   `json:"mod_filter"`
	ChannelFilter string   `json:"channel_filter"`
	AgentFilter   []string `json:"agent_filter"`
}

func (a *API) handleSubscribe(w http.ResponseWriter, r *http.Request, agentID string) {
	var req subscribeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := a.core.Subscribe(&subscription.Subscription{
		AgentID:       agentID,
		Patterns:      req.Patterns,
		ModFilter:     req.ModFilter,
		ChannelFilter: req.ChannelFilter,
		AgentFilter:   req.AgentFilter,
	})
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrVisibility):
			writeError(w, http.StatusForbidden, err)
		case errors.Is(err, agent.ErrAgentNotFound):
			writeError(w, http.StatusNotFound, err)
		default:
			writeError(w, http.StatusBadRequest, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscription_id": id})
}

func (a *API) handleUnsubscribe(w http.ResponseWriter, r *http.Request, agentID string) {
	id := r.PathValue("id")
	if !a.core.Unsubscribe(id) {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown subscription %q", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"channels": a.core.Channels()})
}

func (a *API) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": a.core.Agents()})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
