package handlers

import (
	"net/http"
)

// QueueStats handles GET /queue/stats: live counts of the generation
// queue, in the same shape operators saw on the old dashboard.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("reading queue stats failed")
		h.Error(w, http.StatusServiceUnavailable, "queue stats unavailable")
		return
	}
	h.JSON(w, http.StatusOK, stats)
}
