// Package api exposes the orchestration engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fabfab/contract-agent/contract"
	"github.com/fabfab/contract-agent/llm"
	"github.com/fabfab/contract-agent/orchestrator"
	"github.com/fabfab/contract-agent/suggest"
)

const requestTimeout = 3 * time.Minute

// Engine is the orchestration surface the API serves.
type Engine interface {
	Orchestrate(ctx context.Context, req orchestrator.Request) (*contract.SynthesizedResponse, error)
	AgentAvailability() contract.Availability
	ResolveEffectiveClause(ctx context.Context, contractID, clause string) (*contract.EffectiveClauseView, error)
}

// Suggester proposes follow-up questions.
type Suggester interface {
	Suggest(ctx context.Context, history []llm.Message) suggest.Result
	Cancel() bool
}

// Server exposes HTTP handlers for the contract question workflows.
type Server struct {
	engine    Engine
	suggester Suggester
	logger    *zap.Logger
	handler   http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type askRequest struct {
	Query   string        `json:"query"`
	History []llm.Message `json:"history"`
}

type suggestRequest struct {
	History []llm.Message `json:"history"`
}

type agentResponse struct {
	Agent      string              `json:"agent"`
	Domain     contract.Domain     `json:"domain"`
	Analysis   string              `json:"analysis"`
	Confidence float64             `json:"confidence"`
	Sources    []contract.Citation `json:"sources"`
	Conflicts  []string            `json:"conflicts,omitempty"`
	Error      string              `json:"error,omitempty"`
}

type askResponse struct {
	RequestID       string                       `json:"requestId"`
	FinalAnswer     string                       `json:"finalAnswer"`
	Documents       *agentResponse               `json:"documentsResponse"`
	Conditions      *agentResponse               `json:"conditionsResponse"`
	CrossReferences []contract.CrossReference    `json:"crossReferences"`
	AgentsUsed      []contract.Domain            `json:"agentsUsed"`
	Rationale       string                       `json:"synthesisRationale"`
	Conflicts       []string                     `json:"conflicts,omitempty"`
	Classification  contract.QueryClassification `json:"classification"`
}

// New constructs a Server. suggester may be nil, in which case the
// suggestions endpoint answers 501.
func New(engine Engine, suggester Suggester, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{engine: engine, suggester: suggester, logger: logger}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/agents", s.handleAgents)
		r.Post("/contracts/{contractID}/ask", s.handleAsk)
		r.Get("/contracts/{contractID}/clauses/{clause}", s.handleClause)
		r.Post("/contracts/{contractID}/suggestions", s.handleSuggestions)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.AgentAvailability())
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}

	// A new question makes any pending suggestion call stale.
	if s.suggester != nil {
		s.suggester.Cancel()
	}

	contractID := chi.URLParam(r, "contractID")
	s.logger.Debug("ask request", zap.String("contract_id", contractID), zap.Int("history", len(req.History)))
	resp, err := s.engine.Orchestrate(r.Context(), orchestrator.Request{
		Query:      req.Query,
		ContractID: contractID,
		History:    req.History,
	})
	if err != nil {
		s.writeError(w, statusFor(err), fmt.Errorf("orchestrate: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, transformResponse(resp))
}

func (s *Server) handleClause(w http.ResponseWriter, r *http.Request) {
	contractID := chi.URLParam(r, "contractID")
	clause := chi.URLParam(r, "clause")
	view, err := s.engine.ResolveEffectiveClause(r.Context(), contractID, clause)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	if s.suggester == nil {
		s.writeError(w, http.StatusNotImplemented, fmt.Errorf("suggestions are not enabled"))
		return
	}
	var req suggestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, s.suggester.Suggest(r.Context(), req.History))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, contract.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, contract.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("api error", zap.Int("status", status), zap.Error(err))
	} else {
		s.logger.Debug("api error", zap.Int("status", status), zap.Error(err))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}

func transformResponse(resp *contract.SynthesizedResponse) askResponse {
	if resp == nil {
		return askResponse{}
	}
	return askResponse{
		RequestID:       resp.RequestID,
		FinalAnswer:     resp.FinalAnswer,
		Documents:       transformAgent(resp.Documents),
		Conditions:      transformAgent(resp.Conditions),
		CrossReferences: resp.CrossReferences,
		AgentsUsed:      resp.AgentsUsed,
		Rationale:       resp.Rationale,
		Conflicts:       resp.Conflicts,
		Classification:  resp.Classification,
	}
}

func transformAgent(resp *contract.AgentResponse) *agentResponse {
	if resp == nil {
		return nil
	}
	return &agentResponse{
		Agent:      resp.Agent,
		Domain:     resp.Domain,
		Analysis:   resp.Analysis,
		Confidence: resp.Confidence,
		Sources:    resp.Sources,
		Conflicts:  resp.Conflicts,
		Error:      resp.ErrorMessage(),
	}
}
