package invoice

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-invoice/backend/internal/logging"
	dialogmodel "github.com/zhouzirui/z-invoice/backend/internal/model/dialog"
	"github.com/zhouzirui/z-invoice/backend/internal/service/dialog"
	"github.com/zhouzirui/z-invoice/backend/pkg/utils"
)

const maxRequestBytes = 1 << 20

// DialogService 对话控制器需要暴露给 HTTP 层的能力
type DialogService interface {
	ProcessTurn(ctx context.Context, sessionKey, transcript string) dialog.Outcome
	Inspect(sessionKey string) (dialogmodel.Snapshot, bool)
	Abandon(ctx context.Context, sessionKey string) (bool, error)
}

// Handler 发票对话的 HTTP / WebSocket 处理器
type Handler struct {
	dialog   DialogService
	log      *logging.Logger
	upgrader websocket.Upgrader
}

// New 创建发票处理器
func New(svc DialogService, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{
		dialog: svc,
		log:    log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes 注册发票相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/invoice", h.handleTurn)
	r.Get("/invoice/ws", h.handleWebSocket)
	r.Get("/invoice/session/{sessionID}", h.handleGetSession)
	r.Delete("/invoice/session/{sessionID}", h.handleDeleteSession)
}

// handleTurn 处理一次语音转写提交
func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	var payload turnRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&payload); err != nil {
		status, body := renderOutcome(&dialog.Failed{
			Kind:   dialog.FailureInvalidInput,
			Reason: "invalid request body",
		})
		utils.RespondJSON(w, status, body)
		return
	}

	out := h.dialog.ProcessTurn(r.Context(), payload.SessionID, payload.Transcript)
	status, body := renderOutcome(out)
	utils.RespondJSON(w, status, body)
}

// handleGetSession 查询会话进度
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	snap, ok := h.dialog.Inspect(sessionID)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}

// handleDeleteSession 主动放弃会话
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	removed, err := h.dialog.Abandon(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusConflict, err.Error())
		return
	}
	if !removed {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
