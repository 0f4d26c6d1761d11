package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type PaginationParams struct {
	Limit int
}

// parsePaginationParams парсит limit из query, с дефолтом и ограничением
func parsePaginationParams(r *http.Request) PaginationParams {
	params := PaginationParams{Limit: 20} // дефолт

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			params.Limit = l
		}
	}
	return params
}

func parseItemID(r *http.Request) (int64, bool) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemId"), 10, 64)
	if err != nil || itemID <= 0 {
		return 0, false
	}
	return itemID, true
}

// GetItemRankingHandler показывает, как лот будет переранжирован,
// ничего не записывая
func (h *Handler) GetItemRankingHandler(w http.ResponseWriter, r *http.Request) {
	itemID, ok := parseItemID(r)
	if !ok {
		http.Error(w, "Invalid itemId", http.StatusBadRequest)
		return
	}

	item := h.Runner.PreviewItem(r.Context(), itemID)
	if item.Error != "" {
		writeJSON(w, http.StatusUnprocessableEntity, item)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// GetItemEventsHandler возвращает последние события ранжирования лота
func (h *Handler) GetItemEventsHandler(w http.ResponseWriter, r *http.Request) {
	params := parsePaginationParams(r)

	itemID, ok := parseItemID(r)
	if !ok {
		http.Error(w, "Invalid itemId", http.StatusBadRequest)
		return
	}

	events, err := h.Events.RecentEvents(r.Context(), itemID, params.Limit)
	if err != nil {
		h.log.WithError(err).WithField("item_id", itemID).Error("failed to load rank events")
		http.Error(w, "Failed to get rank events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
