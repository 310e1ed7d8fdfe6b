package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/fabfab/contract-agent/llm"
)

const defaultCount = 3

// DefaultSuggestions are returned whenever a model call is skipped or fails.
var DefaultSuggestions = []string{
	"What are the payment terms?",
	"Which documents take precedence over the General Conditions?",
	"What is the time for completion?",
	"How are variations valued?",
}

// Reason explains why fallback suggestions were returned.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonInFlight  Reason = "in_flight"
	ReasonCooldown  Reason = "cooldown"
	ReasonCancelled Reason = "cancelled"
	ReasonFailed    Reason = "failed"
	ReasonNoClient  Reason = "no_client"
)

type Result struct {
	Suggestions []string `json:"suggestions"`
	Fallback    bool     `json:"fallback"`
	Reason      Reason   `json:"reason,omitempty"`
}

type Suggester struct {
	gate   *Gate
	llm    llm.Client
	count  int
	logger *zap.Logger
}

func NewSuggester(client llm.Client, gate *Gate, count int, logger *zap.Logger) *Suggester {
	if logger == nil {
		logger = zap.NewNop()
	}
	if count <= 0 {
		count = defaultCount
	}
	return &Suggester{gate: gate, llm: client, count: count, logger: logger}
}

// Suggest proposes follow-up questions for the conversation. It never blocks
// on another caller and never returns an error: skipped or failed calls yield
// fallback suggestions.
func (s *Suggester) Suggest(ctx context.Context, history []llm.Message) Result {
	if s.llm == nil {
		return s.fallback(ReasonNoClient)
	}
	if !s.gate.TryAcquire() {
		if s.gate.InFlight() {
			return s.fallback(ReasonInFlight)
		}
		return s.fallback(ReasonCooldown)
	}
	defer s.gate.Release()

	ctx, cancel := s.gate.bind(ctx)
	defer cancel()

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt(s.count)})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("Suggest %d follow-up questions.", s.count)})

	answer, err := s.llm.Generate(ctx, messages)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return s.fallback(ReasonCancelled)
		}
		s.logger.Warn("suggestion generation failed", zap.Error(err))
		return s.fallback(ReasonFailed)
	}

	suggestions := ParseSuggestions(answer, s.count)
	if len(suggestions) == 0 {
		return s.fallback(ReasonFailed)
	}
	return Result{Suggestions: suggestions}
}

// Cancel aborts the in-flight suggestion call, typically because the user
// sent a new message that makes it stale.
func (s *Suggester) Cancel() bool {
	return s.gate.Cancel()
}

func (s *Suggester) fallback(reason Reason) Result {
	n := s.count
	if n > len(DefaultSuggestions) {
		n = len(DefaultSuggestions)
	}
	return Result{
		Suggestions: append([]string(nil), DefaultSuggestions[:n]...),
		Fallback:    true,
		Reason:      reason,
	}
}

// ParseSuggestions extracts up to limit questions from a model answer with one
// question per line, stripping list markers.
func ParseSuggestions(answer string, limit int) []string {
	var out []string
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimLeftFunc(strings.TrimSpace(line), func(r rune) bool {
			return unicode.IsDigit(r) || r == '-' || r == '*' || r == '.' || r == ')' || unicode.IsSpace(r)
		})
		if line == "" {
			continue
		}
		out = append(out, line)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func systemPrompt(count int) string {
	return fmt.Sprintf("You help users explore a construction contract. Based on the conversation, propose %d short follow-up questions about the contract documents or the conditions of contract. Reply with one question per line and nothing else.", count)
}
