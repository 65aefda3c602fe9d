package handlers

import (
	"errors"
	"net/http"

	"github.com/Gouthamsurepally/gemini-backend-clone/internal/api/middleware"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/chat"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/models"
)

// SendMessageRequest represents the message ingestion request. When a
// send returns 503 the message is already saved; the client retries
// with MessageID set (from the 503 body) and only the generation
// hand-off is re-run, never a second message.
type SendMessageRequest struct {
	Content   string `json:"content,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// SendMessage handles POST /chatroom/{id}/message: the synchronous half
// of the pipeline. The response carries the accepted user message and
// job ID; the AI reply arrives in the chatroom asynchronously.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	roomID, ok := h.chatroomID(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var (
		res *chat.SendResult
		err error
	)
	if req.MessageID != "" {
		res, err = h.chat.RetryEnqueue(r.Context(), userID, roomID, req.MessageID)
	} else {
		res, err = h.chat.SendMessage(r.Context(), userID, roomID, req.Content)
	}
	switch {
	case err == nil:
		h.JSON(w, http.StatusAccepted, res)
	case errors.Is(err, models.ErrQuotaExceeded):
		// The rejection body carries the usage snapshot so clients can
		// show the limit without a second request.
		var data any
		if usage, uerr := h.chat.Usage(r.Context(), userID); uerr == nil {
			data = usage
		}
		h.write(w, http.StatusTooManyRequests, envelope{Success: false, Message: err.Error(), Data: data})
	case errors.Is(err, models.ErrQueueUnavailable) && res != nil:
		// The message is saved; only the generation hand-off failed.
		h.write(w, http.StatusServiceUnavailable, envelope{
			Success: false,
			Message: "message saved but generation is temporarily unavailable; retry with the returned message ID",
			Data:    res,
		})
	default:
		h.fail(w, err)
	}
}
