package shared

import (
	"time"
)

// TokenUsage tracks the tokens consumed by a generation request.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// Outcome labels how a generation request ended.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailed   Outcome = "failed"
	OutcomeRejected Outcome = "rejected"
)

// AgentMeta holds operational metadata for one generation request.
type AgentMeta struct {
	AgentName string
	RequestID string
	Usage     TokenUsage
	Latency   time.Duration
	Outcome   Outcome
	// ErrorKind is a short taxonomy label, empty on success.
	ErrorKind string
}
