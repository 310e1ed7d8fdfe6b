package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/contract-agent/contract"
	"github.com/fabfab/contract-agent/llm"
	"github.com/fabfab/contract-agent/orchestrator"
	"github.com/fabfab/contract-agent/suggest"
)

type stubEngine struct {
	lastReq orchestrator.Request
	resp    *contract.SynthesizedResponse
	err     error
	view    *contract.EffectiveClauseView
	viewErr error
}

func (s *stubEngine) Orchestrate(ctx context.Context, req orchestrator.Request) (*contract.SynthesizedResponse, error) {
	s.lastReq = req
	return s.resp, s.err
}

func (s *stubEngine) AgentAvailability() contract.Availability {
	return contract.Availability{DocumentsAgentReady: true}
}

func (s *stubEngine) ResolveEffectiveClause(ctx context.Context, contractID, clause string) (*contract.EffectiveClauseView, error) {
	return s.view, s.viewErr
}

type stubSuggester struct {
	cancels int
	history []llm.Message
}

func (s *stubSuggester) Suggest(ctx context.Context, history []llm.Message) suggest.Result {
	s.history = history
	return suggest.Result{Suggestions: []string{"What is the retention?"}}
}

func (s *stubSuggester) Cancel() bool {
	s.cancels++
	return false
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndAgents(t *testing.T) {
	srv := New(&stubEngine{}, nil, nil)

	rec := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/v1/agents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got contract.Availability
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.DocumentsAgentReady)
	assert.False(t, got.ConditionsAgentReady)
}

func TestAsk(t *testing.T) {
	engine := &stubEngine{resp: &contract.SynthesizedResponse{
		RequestID:   "req-1",
		FinalAnswer: "Payment is due within 28 days.",
		AgentsUsed:  []contract.Domain{contract.DomainDocuments},
		Documents:   &contract.AgentResponse{Agent: "documents", Domain: contract.DomainDocuments, Confidence: 0.52},
		Conditions:  &contract.AgentResponse{Agent: "conditions", Domain: contract.DomainConditions, Err: errors.New("upstream timeout")},
	}}
	sugg := &stubSuggester{}
	srv := New(engine, sugg, nil)

	rec := do(t, srv, http.MethodPost, "/v1/contracts/tower-block/ask",
		`{"query":" What are the payment terms? ","history":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "tower-block", engine.lastReq.ContractID)
	assert.Equal(t, "What are the payment terms?", engine.lastReq.Query)
	assert.Len(t, engine.lastReq.History, 1)
	assert.Equal(t, 1, sugg.cancels)

	var got askResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Payment is due within 28 days.", got.FinalAnswer)
	assert.Equal(t, []contract.Domain{contract.DomainDocuments}, got.AgentsUsed)
	require.NotNil(t, got.Conditions)
	assert.Equal(t, "upstream timeout", got.Conditions.Error)
	assert.Empty(t, got.Documents.Error)
}

func TestAskRejectsBadInput(t *testing.T) {
	srv := New(&stubEngine{}, nil, nil)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/v1/contracts/c1/ask", `{"query":"  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/v1/contracts/c1/ask", `{"question":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/v1/contracts/c1/ask", `{"query":"a"}{"query":"b"}`).Code)
}

func TestAskMapsEngineErrors(t *testing.T) {
	engine := &stubEngine{err: context.DeadlineExceeded}
	srv := New(engine, nil, nil)
	assert.Equal(t, http.StatusGatewayTimeout, do(t, srv, http.MethodPost, "/v1/contracts/c1/ask", `{"query":"a"}`).Code)

	engine.err = errors.New("boom")
	rec := do(t, srv, http.MethodPost, "/v1/contracts/c1/ask", `{"query":"a"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "orchestrate: boom")
}

func TestClause(t *testing.T) {
	engine := &stubEngine{view: &contract.EffectiveClauseView{ContractID: "c1", ClauseNumber: "14.1"}}
	srv := New(engine, nil, nil)

	rec := do(t, srv, http.MethodGet, "/v1/contracts/c1/clauses/14.1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"clauseNumber":"14.1"`)

	engine.view, engine.viewErr = nil, &contract.NotFoundError{ContractID: "c1", ClauseNumber: "99.9"}
	rec = do(t, srv, http.MethodGet, "/v1/contracts/c1/clauses/99.9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "clause 99.9 not found in contract c1")
}

func TestSuggestions(t *testing.T) {
	assert.Equal(t, http.StatusNotImplemented,
		do(t, New(&stubEngine{}, nil, nil), http.MethodPost, "/v1/contracts/c1/suggestions", `{}`).Code)

	sugg := &stubSuggester{}
	rec := do(t, New(&stubEngine{}, sugg, nil), http.MethodPost, "/v1/contracts/c1/suggestions",
		`{"history":[{"role":"assistant","content":"Payment is monthly."}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, sugg.history, 1)

	var got suggest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []string{"What is the retention?"}, got.Suggestions)
}
