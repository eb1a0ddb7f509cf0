// Package httpapi exposes a read-only operations API over a vault.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"

	"github.com/R3E-Network/shield_vault/internal/events"
	"github.com/R3E-Network/shield_vault/internal/identity"
	"github.com/R3E-Network/shield_vault/internal/metrics"
	"github.com/R3E-Network/shield_vault/internal/vault"
	"github.com/R3E-Network/shield_vault/pkg/logger"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// VaultReader is the read surface of a vault served by the API.
type VaultReader interface {
	Snapshot(ctx context.Context) (vault.Snapshot, error)
	SharesOf(ctx context.Context, user identity.Principal) (sdkmath.Int, error)
	ConvertToAssets(ctx context.Context, shares sdkmath.Int) (sdkmath.Int, error)
	Strategies(ctx context.Context) ([]identity.Principal, error)
	StrategyHealth(ctx context.Context, addr identity.Principal) (vault.StrategyHealth, bool, error)
	Allocations(ctx context.Context) ([]vault.Allocation, error)
	Proposal(ctx context.Context, id uint64) (vault.Proposal, error)
	QueuedWithdrawals(ctx context.Context) ([]vault.QueuedWithdrawal, error)
}

// EventSource returns recently published events, newest first.
type EventSource interface {
	Recent(n int) []events.Event
	RecentByType(t events.EventType, n int) []events.Event
}

// Deps wires the API to the vault and its observability.
type Deps struct {
	Vault   VaultReader
	Events  EventSource
	Metrics metrics.Recorder
	// MetricsHandler serves /metrics; omitted when nil.
	MetricsHandler http.Handler
	Limiter        *RateLimiter
	Logger         *logger.Logger
}

type handler struct {
	vault  VaultReader
	events EventSource
}

// NewRouter returns the ops API routes.
func NewRouter(d Deps) *mux.Router {
	if d.Logger == nil {
		d.Logger = logger.Discard()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewNoOpCollector()
	}
	h := &handler{vault: d.Vault, events: d.Events}

	r := mux.NewRouter()
	r.Use(loggingMiddleware(d.Logger), metricsMiddleware(d.Metrics))
	if d.Limiter != nil {
		r.Use(d.Limiter.Handler)
	}

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	if d.MetricsHandler != nil {
		r.Handle("/metrics", d.MetricsHandler).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/vault", h.snapshot).Methods(http.MethodGet)
	v1.HandleFunc("/positions/{principal}", h.position).Methods(http.MethodGet)
	v1.HandleFunc("/strategies", h.strategies).Methods(http.MethodGet)
	v1.HandleFunc("/proposals/{id:[0-9]+}", h.proposal).Methods(http.MethodGet)
	v1.HandleFunc("/queue", h.queue).Methods(http.MethodGet)
	v1.HandleFunc("/events", h.recentEvents).Methods(http.MethodGet)
	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	snap, err := h.vault.Snapshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	status := "ok"
	if snap.Paused {
		status = "paused"
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "version": snap.Version})
}

func (h *handler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.vault.Snapshot(r.Context())
	if err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type positionView struct {
	Principal identity.Principal `json:"principal"`
	Shares    sdkmath.Int        `json:"shares"`
	Assets    sdkmath.Int        `json:"assets"`
}

func (h *handler) position(w http.ResponseWriter, r *http.Request) {
	p := identity.Principal(mux.Vars(r)["principal"])
	if err := identity.AnyNonEmpty(p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	shares, err := h.vault.SharesOf(r.Context(), p)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	assets, err := h.vault.ConvertToAssets(r.Context(), shares)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionView{Principal: p, Shares: shares, Assets: assets})
}

type strategyView struct {
	Address identity.Principal    `json:"address"`
	Target  *sdkmath.Int          `json:"target,omitempty"`
	Health  *vault.StrategyHealth `json:"health,omitempty"`
}

func (h *handler) strategies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.vault.Strategies(ctx)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	allocs, err := h.vault.Allocations(ctx)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	targets := make(map[identity.Principal]sdkmath.Int, len(allocs))
	for _, a := range allocs {
		targets[a.Strategy] = a.Target
	}

	out := make([]strategyView, 0, len(list))
	for _, addr := range list {
		view := strategyView{Address: addr}
		if t, ok := targets[addr]; ok {
			view.Target = &t
		}
		health, found, err := h.vault.StrategyHealth(ctx, addr)
		if err != nil {
			writeVaultError(w, err)
			return
		}
		if found {
			view.Health = &health
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) proposal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := h.vault.Proposal(r.Context(), id)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) queue(w http.ResponseWriter, r *http.Request) {
	q, err := h.vault.QueuedWithdrawals(r.Context())
	if err != nil {
		writeVaultError(w, err)
		return
	}
	if q == nil {
		q = []vault.QueuedWithdrawal{}
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *handler) recentEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeJSON(w, http.StatusOK, []events.Event{})
		return
	}
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxEventLimit)
	}

	var list []events.Event
	if t := r.URL.Query().Get("type"); t != "" {
		list = h.events.RecentByType(events.EventType(t), limit)
	} else {
		list = h.events.Recent(limit)
	}
	if list == nil {
		list = []events.Event{}
	}
	writeJSON(w, http.StatusOK, list)
}

type errorBody struct {
	Error string `json:"error"`
	Code  uint32 `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// writeVaultError maps a vault error code onto an HTTP status.
func writeVaultError(w http.ResponseWriter, err error) {
	code := vault.Code(err)
	writeJSON(w, statusFor(code), errorBody{Error: err.Error(), Code: code})
}

func statusFor(code uint32) int {
	switch code {
	case vault.Code(vault.ErrProposalNotFound), vault.Code(vault.ErrStrategyNotFound),
		vault.Code(vault.ErrWithdrawalNotFound):
		return http.StatusNotFound
	case vault.Code(vault.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case vault.Code(vault.ErrVersionMismatch):
		return http.StatusConflict
	case vault.Code(vault.ErrNegativeAmount), vault.Code(vault.ErrInvalidAmount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Server runs the ops API over HTTP.
type Server struct {
	srv *http.Server
	log *logger.Logger
}

// NewServer binds handler to addr.
func NewServer(addr string, handler http.Handler, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: log,
	}
}

// Start serves in the background. Listen errors are passed to errc.
func (s *Server) Start(errc chan<- error) {
	go func() {
		s.log.WithField("addr", s.srv.Addr).Info("ops api listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
