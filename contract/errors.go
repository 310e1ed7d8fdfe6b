package contract

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors. Agent-local failures are carried on AgentResponse.Err and
// never abort a request on their own.
var (
	// ErrNotFound indicates no passage references the requested clause.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or empty input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrClassification is never expected; the classifier is total.
	ErrClassification = errors.New("classification failed")

	// ErrAgentUnavailable indicates a missing credential or client.
	ErrAgentUnavailable = errors.New("agent unavailable")

	// ErrRetrievalEmpty indicates no grounding passages were found.
	ErrRetrievalEmpty = errors.New("no passages retrieved")

	// ErrPrecedenceConflict indicates contradictory override records.
	ErrPrecedenceConflict = errors.New("precedence conflict")

	// ErrUpstreamTimeout indicates the model provider did not answer in time.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrUpstreamProvider indicates the model provider returned an error.
	ErrUpstreamProvider = errors.New("upstream provider error")
)

// NotFoundError reports a clause number no passage references.
type NotFoundError struct {
	ContractID   string
	ClauseNumber string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("clause %s not found in contract %s", e.ClauseNumber, e.ContractID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// PrecedenceConflict describes documents that override each other for the
// same clause. It is surfaced as view metadata, never resolved silently.
type PrecedenceConflict struct {
	ClauseNumber string   `json:"clauseNumber"`
	DocumentIDs  []string `json:"documentIds"`
	Documents    []string `json:"documents"`
}

func (c *PrecedenceConflict) Error() string {
	return fmt.Sprintf("clause %s is contested between %s", c.ClauseNumber, strings.Join(c.Documents, " and "))
}

func (c *PrecedenceConflict) Unwrap() error { return ErrPrecedenceConflict }
