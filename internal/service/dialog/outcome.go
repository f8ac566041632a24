package dialog

import "github.com/zhouzirui/z-invoice/backend/internal/model/invoice"

// FailureKind classifies a failed turn.
type FailureKind string

const (
	FailureInvalidInput        FailureKind = "invalid_input"
	FailureContractViolation   FailureKind = "upstream_contract_violation"
	FailureUpstreamUnavailable FailureKind = "upstream_unavailable"
	FailureUpstreamTimeout     FailureKind = "upstream_timeout"
	FailureFinalization        FailureKind = "finalization_failed"
	FailureSessionBusy         FailureKind = "session_busy"
	FailureInternal            FailureKind = "internal_error"
)

// Outcome is the result of one turn: *NeedsInput, *InvoiceReady or *Failed.
type Outcome interface {
	outcome() string
}

// NeedsInput asks the caller to answer Question next.
type NeedsInput struct {
	SessionKey     string
	Question       string
	QuestionNumber int
	TotalQuestions int
	Questions      []string
}

// InvoiceReady carries the finished invoice. The session no longer exists.
type InvoiceReady struct {
	SessionKey string
	Invoice    *invoice.Invoice
}

// Failed reports a turn that produced nothing. SessionKey is set only when
// the session is still live and the turn can be retried.
type Failed struct {
	Kind       FailureKind
	Reason     string
	SessionKey string
}

func (*NeedsInput) outcome() string   { return "needs_input" }
func (*InvoiceReady) outcome() string { return "invoice_ready" }
func (*Failed) outcome() string       { return "failed" }

func (f *Failed) Error() string {
	return string(f.Kind) + ": " + f.Reason
}
