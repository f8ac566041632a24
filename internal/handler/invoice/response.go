package invoice

import (
	"net/http"

	invoicemodel "github.com/zhouzirui/z-invoice/backend/internal/model/invoice"
	"github.com/zhouzirui/z-invoice/backend/internal/service/dialog"
)

const (
	statusWaiting = "waiting_for_input"
	statusReady   = "invoice_ready"
	statusFailed  = "failed"
)

type turnRequest struct {
	Transcript string `json:"transcript"`
	SessionID  string `json:"sessionId"`
}

type waitingResponse struct {
	Status          string   `json:"status"`
	SessionID       string   `json:"sessionId"`
	CurrentQuestion string   `json:"currentQuestion"`
	QuestionNumber  int      `json:"questionNumber"`
	TotalQuestions  int      `json:"totalQuestions"`
	Questions       []string `json:"questions"`
}

// readyResponse 保持发票字段在顶层，仅追加 status 标识
type readyResponse struct {
	Status string `json:"status"`
	*invoicemodel.Invoice
}

type failedResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Details   string `json:"details"`
	SessionID string `json:"sessionId,omitempty"`
}

// renderOutcome 将对话结果映射为 HTTP 状态码与响应体
func renderOutcome(out dialog.Outcome) (int, any) {
	switch o := out.(type) {
	case *dialog.NeedsInput:
		return http.StatusOK, waitingResponse{
			Status:          statusWaiting,
			SessionID:       o.SessionKey,
			CurrentQuestion: o.Question,
			QuestionNumber:  o.QuestionNumber,
			TotalQuestions:  o.TotalQuestions,
			Questions:       o.Questions,
		}
	case *dialog.InvoiceReady:
		return http.StatusOK, readyResponse{Status: statusReady, Invoice: o.Invoice}
	case *dialog.Failed:
		return failureStatus(o.Kind), failedResponse{
			Status:    statusFailed,
			Error:     "Failed to generate invoice",
			Kind:      string(o.Kind),
			Details:   o.Reason,
			SessionID: o.SessionKey,
		}
	default:
		return http.StatusInternalServerError, failedResponse{
			Status:  statusFailed,
			Error:   "Failed to generate invoice",
			Kind:    string(dialog.FailureInternal),
			Details: "unknown outcome",
		}
	}
}

func failureStatus(kind dialog.FailureKind) int {
	switch kind {
	case dialog.FailureInvalidInput:
		return http.StatusBadRequest
	case dialog.FailureContractViolation, dialog.FailureFinalization:
		return http.StatusBadGateway
	case dialog.FailureUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case dialog.FailureUpstreamTimeout:
		return http.StatusGatewayTimeout
	case dialog.FailureSessionBusy:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
