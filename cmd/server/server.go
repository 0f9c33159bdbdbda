package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"solana-dispatch/internal/app"
	"solana-dispatch/internal/config"
	"solana-dispatch/internal/dispatch"
	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/observability"
	"solana-dispatch/internal/storage"
)

// Engine is the controller surface exposed over HTTP.
type Engine interface {
	SubmitOperation(ctx context.Context, req dispatch.OperationRequest) (*domain.ExecutionSummary, error)
	GetEndpointHealth() []domain.EndpointHealth
	SwitchEndpoint(id string) error
	ActivateKillSwitch(reason string) dispatch.KillSwitchStatus
	DeactivateKillSwitch()
	KillSwitchStatus() dispatch.KillSwitchStatus
}

// ServerOptions configures a Server.
type ServerOptions struct {
	Engine    Engine
	Summaries storage.SummaryStore
	Wallets   []domain.Signer
	Config    *config.Config
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

// Server serves the dispatch control API.
type Server struct {
	engine    Engine
	summaries storage.SummaryStore
	wallets   []domain.Signer
	cfg       *config.Config
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	started   time.Time

	mu         sync.Mutex
	operations int
	running    int
}

// NewServer creates a Server.
func NewServer(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		engine:    opts.Engine,
		summaries: opts.Summaries,
		wallets:   opts.Wallets,
		cfg:       opts.Config,
		gatherer:  gatherer,
		logger:    logger.With(slog.String("component", "http")),
		started:   time.Now(),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /endpoints", s.handleEndpoints)
	mux.HandleFunc("POST /endpoints/{id}/switch", s.handleSwitch)
	mux.HandleFunc("GET /killswitch", s.handleKillSwitchStatus)
	mux.HandleFunc("POST /killswitch", s.handleKillSwitchActivate)
	mux.HandleFunc("DELETE /killswitch", s.handleKillSwitchDeactivate)
	mux.HandleFunc("POST /operations", s.handleSubmitOperation)
	mux.HandleFunc("GET /operations", s.handleListOperations)
	mux.HandleFunc("GET /operations/{id}", s.handleGetOperation)
	mux.Handle("GET /metrics", observability.Handler(s.gatherer))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status            string                    `json:"status"`
	Uptime            string                    `json:"uptime"`
	Wallets           int                       `json:"wallets"`
	Operations        int                       `json:"operations"`
	RunningOperations int                       `json:"running_operations"`
	KillSwitch        dispatch.KillSwitchStatus `json:"kill_switch"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:            "running",
		Uptime:            time.Since(s.started).Round(time.Second).String(),
		Wallets:           len(s.wallets),
		Operations:        s.operations,
		RunningOperations: s.running,
	}
	s.mu.Unlock()
	resp.KillSwitch = s.engine.KillSwitchStatus()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.NewEndpointViews(s.engine.GetEndpointHealth()))
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.SwitchEndpoint(id); err != nil {
		if errors.Is(err, domain.ErrUnknownEndpoint) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("endpoint switched via api", slog.String("endpoint", id))
	writeJSON(w, http.StatusOK, app.NewEndpointViews(s.engine.GetEndpointHealth()))
}

func (s *Server) handleKillSwitchStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.KillSwitchStatus())
}

type killSwitchRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleKillSwitchActivate(w http.ResponseWriter, r *http.Request) {
	var req killSwitchRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.engine.ActivateKillSwitch(req.Reason))
}

func (s *Server) handleKillSwitchDeactivate(w http.ResponseWriter, r *http.Request) {
	s.engine.DeactivateKillSwitch()
	writeJSON(w, http.StatusOK, s.engine.KillSwitchStatus())
}

// OperationRequest is the JSON body of POST /operations. Zero fields take
// their value from the [operation] and [stealth] configuration.
type OperationRequest struct {
	TotalSOL    float64 `json:"total_sol"`
	WalletCount int     `json:"wallet_count"`
	Shape       string  `json:"shape"`
	StealthMode string  `json:"stealth_mode"`
	Seed        *int64  `json:"seed"`
}

func (s *Server) handleSubmitOperation(w http.ResponseWriter, r *http.Request) {
	var body OperationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := s.buildRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	s.operations++
	s.running++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running--
		s.mu.Unlock()
	}()

	sum, err := s.engine.SubmitOperation(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if dispatch.IsConfigError(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, app.NewSummaryView(sum))
}

// buildRequest resolves body against configuration and the loaded wallets.
func (s *Server) buildRequest(body OperationRequest) (dispatch.OperationRequest, error) {
	stealth, err := s.cfg.StealthParams()
	if err != nil {
		return dispatch.OperationRequest{}, err
	}
	if body.StealthMode != "" {
		if stealth.Mode, err = domain.ParseStealthMode(body.StealthMode); err != nil {
			return dispatch.OperationRequest{}, err
		}
	}

	shapeName := body.Shape
	if shapeName == "" {
		shapeName = s.cfg.Operation.Shape
	}
	shape, err := domain.ParseDistributionShape(shapeName)
	if err != nil {
		return dispatch.OperationRequest{}, err
	}

	total := body.TotalSOL
	if total == 0 {
		total = s.cfg.Operation.TotalSOL
	}

	n := body.WalletCount
	if n == 0 {
		n = len(s.wallets)
	}
	if n < 0 || n > len(s.wallets) {
		return dispatch.OperationRequest{}, &domain.ConfigError{
			Field:  "walletCount",
			Reason: "requested " + strconv.Itoa(n) + " wallets, " + strconv.Itoa(len(s.wallets)) + " loaded",
		}
	}

	seed := body.Seed
	if seed == nil && s.cfg.Operation.Seed != 0 {
		v := s.cfg.Operation.Seed
		seed = &v
	}

	return dispatch.OperationRequest{
		TotalAmount: domain.LamportsFromSOL(total),
		Wallets:     s.wallets[:n],
		Shape:       shape,
		Stealth:     stealth,
		Seed:        seed,
	}, nil
}

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	if s.summaries == nil {
		writeJSON(w, http.StatusOK, []app.SummaryView{})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	sums, err := s.summaries.ListSummaries(r.Context(), time.Time{}, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]app.SummaryView, 0, len(sums))
	for _, sum := range sums {
		out = append(out, app.NewSummaryView(sum))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	if s.summaries == nil {
		writeError(w, http.StatusNotFound, storage.ErrNotFound)
		return
	}
	sum, err := s.summaries.GetSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, app.NewSummaryView(sum))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
