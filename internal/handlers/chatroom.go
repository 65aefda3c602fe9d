package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Gouthamsurepally/gemini-backend-clone/internal/api/middleware"
)

// CreateChatroomRequest represents the chatroom creation request.
type CreateChatroomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateChatroomRequest represents the chatroom update request. Nil
// fields are left unchanged.
type UpdateChatroomRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// CreateChatroom handles POST /chatroom.
func (h *Handler) CreateChatroom(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req CreateChatroomRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	room, err := h.chat.CreateChatroom(r.Context(), userID, req.Name, req.Description)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, room)
}

// ListChatrooms handles GET /chatroom.
func (h *Handler) ListChatrooms(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	rooms, err := h.chat.ListChatrooms(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]any{
		"chatrooms": rooms,
		"count":     len(rooms),
	})
}

// GetChatroom handles GET /chatroom/{id}.
func (h *Handler) GetChatroom(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	roomID, ok := h.chatroomID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	detail, err := h.chat.GetChatroom(r.Context(), userID, roomID, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, detail)
}

// UpdateChatroom handles PATCH /chatroom/{id}.
func (h *Handler) UpdateChatroom(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	roomID, ok := h.chatroomID(w, r)
	if !ok {
		return
	}

	var req UpdateChatroomRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	room, err := h.chat.UpdateChatroom(r.Context(), userID, roomID, req.Name, req.Description)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, room)
}

// DeleteChatroom handles DELETE /chatroom/{id}.
func (h *Handler) DeleteChatroom(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	roomID, ok := h.chatroomID(w, r)
	if !ok {
		return
	}

	if err := h.chat.DeleteChatroom(r.Context(), userID, roomID); err != nil {
		h.fail(w, err)
		return
	}
	h.write(w, http.StatusOK, envelope{Success: true, Message: "chatroom deleted"})
}

// chatroomID parses the {id} route parameter, writing a 400 on failure.
func (h *Handler) chatroomID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid chatroom ID format")
		return uuid.Nil, false
	}
	return id, true
}
