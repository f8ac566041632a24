package invoice

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-invoice/backend/internal/service/dialog"
)

const (
	wsReadLimit = 1 << 20
	wsIdleLimit = 10 * time.Minute
)

// handleWebSocket 每个文本帧是一次对话轮次，连接记住最近一次仍然有效的 sessionId
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsReadLimit)
	ctx := r.Context()
	var sessionID string

	for {
		conn.SetReadDeadline(time.Now().Add(wsIdleLimit))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("session", sessionID).Msg("websocket read error")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var req turnRequest
		var out dialog.Outcome
		if err := json.Unmarshal(data, &req); err != nil {
			out = &dialog.Failed{Kind: dialog.FailureInvalidInput, Reason: "invalid message payload", SessionKey: sessionID}
		} else {
			key := req.SessionID
			if key == "" {
				key = sessionID
			}
			out = h.dialog.ProcessTurn(ctx, key, req.Transcript)
		}

		switch o := out.(type) {
		case *dialog.NeedsInput:
			sessionID = o.SessionKey
		case *dialog.InvoiceReady:
			sessionID = ""
		case *dialog.Failed:
			sessionID = o.SessionKey
		}

		_, body := renderOutcome(out)
		if err := conn.WriteJSON(body); err != nil {
			h.log.Debug().Err(err).Str("session", sessionID).Msg("websocket write failed")
			return
		}
	}
}
