package generation

import (
	"context"
	"errors"

	"github.com/zhouzirui/z-invoice/backend/internal/model/invoice"
)

// Stage tells the model whether it may still ask clarifying questions.
type Stage string

const (
	StageTurn     Stage = "turn"
	StageFinalize Stage = "finalize"
)

// Kind discriminates a Result.
type Kind string

const (
	KindQuestions Kind = "questions"
	KindInvoice   Kind = "invoice"
)

var (
	// ErrContractViolation marks model output that does not match the response contract.
	ErrContractViolation = errors.New("generation contract violation")
	// ErrUpstreamUnavailable marks failures reaching the model backend.
	ErrUpstreamUnavailable = errors.New("generation backend unavailable")
)

// ContractError describes why a model response was rejected.
type ContractError struct {
	Reason string
	Raw    string
}

func (e *ContractError) Error() string {
	return "generation contract violation: " + e.Reason
}

func (e *ContractError) Unwrap() error {
	return ErrContractViolation
}

// Request is one call to the model.
type Request struct {
	// Context is the transcript text the model works from.
	Context string
	Stamp   invoice.Stamp
	Stage   Stage
}

// Result is exactly one of a question list or a finished invoice.
type Result struct {
	Kind            Kind
	Questions       []string
	CurrentQuestion string
	Invoice         *invoice.Invoice
}

// Client turns a dialog context into a typed outcome.
type Client interface {
	Generate(ctx context.Context, req *Request) (*Result, error)
}
