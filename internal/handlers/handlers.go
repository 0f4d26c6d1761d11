package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"reservations/internal/ranking"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Handler операционный HTTP-интерфейс движка ранжирования
type Handler struct {
	Runner RunnerInterface
	Events EventStoreInterface
	log    logrus.FieldLogger
}

// NewHandler создает новый Handler
func NewHandler(runner RunnerInterface, events EventStoreInterface, log logrus.FieldLogger) *Handler {
	return &Handler{Runner: runner, Events: events, log: log}
}

// NewRouter регистрирует маршруты; metrics может быть nil
func NewRouter(h *Handler, logger middleware.LoggerInterface, metrics http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logger, NoColor: true}))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)
		r.Post("/ranking/run", h.RunCycleHandler)
		r.Get("/ranking/last", h.LastReportHandler)
		r.Get("/items/{itemId}/ranking", h.GetItemRankingHandler)
		r.Get("/items/{itemId}/events", h.GetItemEventsHandler)
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	return r
}

// PingHandler отвечает "ok" для проверки сервера
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// RunCycleHandler запускает цикл вручную. По умолчанию dry-run,
// для записи нужно явно передать dryRun=false.
func (h *Handler) RunCycleHandler(w http.ResponseWriter, r *http.Request) {
	dryRun := true
	if v := r.URL.Query().Get("dryRun"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "Invalid dryRun value", http.StatusBadRequest)
			return
		}
		dryRun = parsed
	}

	var itemIDs []int64
	for _, v := range r.URL.Query()["itemId"] {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "Invalid itemId", http.StatusBadRequest)
			return
		}
		itemIDs = append(itemIDs, id)
	}

	h.log.WithFields(logrus.Fields{"dry_run": dryRun, "items": itemIDs}).Info("manual ranking cycle requested")
	report := h.Runner.RunCycle(r.Context(), ranking.Options{ItemIDs: itemIDs, DryRun: dryRun})

	writeJSON(w, http.StatusOK, report)
}

// LastReportHandler возвращает отчёт последнего цикла
func (h *Handler) LastReportHandler(w http.ResponseWriter, r *http.Request) {
	report, ok := h.Runner.LastReport()
	if !ok {
		http.Error(w, "No cycle has completed yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
