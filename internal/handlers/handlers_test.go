package handlers_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"reservations/internal/handlers"
	"reservations/internal/handlers/testutils"
	"reservations/internal/ranking"
	"reservations/models"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// MockRunner реализует RunnerInterface
type MockRunner struct {
	lastOpts        ranking.Options
	previewed       []int64
	last            *models.BatchReport
	RunCycleFunc    func(ctx context.Context, opts ranking.Options) models.BatchReport
	PreviewItemFunc func(ctx context.Context, itemID int64) models.ItemResult
}

func (m *MockRunner) RunCycle(ctx context.Context, opts ranking.Options) models.BatchReport {
	m.lastOpts = opts
	if m.RunCycleFunc != nil {
		return m.RunCycleFunc(ctx, opts)
	}
	return models.BatchReport{RunID: "run-1", DryRun: opts.DryRun, ItemsProcessed: len(opts.ItemIDs)}
}

func (m *MockRunner) LastReport() (models.BatchReport, bool) {
	if m.last == nil {
		return models.BatchReport{}, false
	}
	return *m.last, true
}

func (m *MockRunner) PreviewItem(ctx context.Context, itemID int64) models.ItemResult {
	m.previewed = append(m.previewed, itemID)
	if m.PreviewItemFunc != nil {
		return m.PreviewItemFunc(ctx, itemID)
	}
	return models.ItemResult{ItemID: itemID, State: models.ItemRankingComputed}
}

// MockEvents реализует EventStoreInterface
type MockEvents struct {
	limit            int
	RecentEventsFunc func(ctx context.Context, itemID int64, limit int) ([]models.RankEvent, error)
}

func (m *MockEvents) RecentEvents(ctx context.Context, itemID int64, limit int) ([]models.RankEvent, error) {
	m.limit = limit
	if m.RecentEventsFunc != nil {
		return m.RecentEventsFunc(ctx, itemID, limit)
	}
	return []models.RankEvent{{Kind: models.EventNewLeader, ItemID: itemID, OfferID: 1, NewRank: 1}}, nil
}

func newHandler(runner *MockRunner, events *MockEvents) *handlers.Handler {
	logger, _ := logtest.NewNullLogger()
	return handlers.NewHandler(runner, events, logger)
}

func TestPingHandler(t *testing.T) {
	handler := newHandler(&MockRunner{}, &MockEvents{})

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	w := httptest.NewRecorder()
	handler.PingHandler(w, req)

	body, err := io.ReadAll(w.Result().Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", string(body))
}

func TestRunCycleHandlerDefaultsToDryRun(t *testing.T) {
	runner := &MockRunner{}
	handler := newHandler(runner, &MockEvents{})

	req := httptest.NewRequest(http.MethodPost, "/api/ranking/run?itemId=3&itemId=5", nil)
	w := httptest.NewRecorder()
	handler.RunCycleHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, runner.lastOpts.DryRun)
	require.Equal(t, []int64{3, 5}, runner.lastOpts.ItemIDs)

	var report models.BatchReport
	testutils.DecodeJSON(t, w, &report)
	require.Equal(t, "run-1", report.RunID)
	require.Equal(t, 2, report.ItemsProcessed)
}

func TestRunCycleHandlerWrites(t *testing.T) {
	runner := &MockRunner{}
	handler := newHandler(runner, &MockEvents{})

	req := httptest.NewRequest(http.MethodPost, "/api/ranking/run?dryRun=false", nil)
	w := httptest.NewRecorder()
	handler.RunCycleHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, runner.lastOpts.DryRun)
	require.Empty(t, runner.lastOpts.ItemIDs)
}

func TestRunCycleHandlerBadParams(t *testing.T) {
	handler := newHandler(&MockRunner{}, &MockEvents{})

	for _, url := range []string{
		"/api/ranking/run?dryRun=perhaps",
		"/api/ranking/run?itemId=abc",
		"/api/ranking/run?itemId=-1",
	} {
		req := httptest.NewRequest(http.MethodPost, url, nil)
		w := httptest.NewRecorder()
		handler.RunCycleHandler(w, req)
		require.Equal(t, http.StatusBadRequest, w.Code, url)
	}
}

func TestLastReportHandler(t *testing.T) {
	runner := &MockRunner{}
	handler := newHandler(runner, &MockEvents{})

	w := httptest.NewRecorder()
	handler.LastReportHandler(w, httptest.NewRequest(http.MethodGet, "/api/ranking/last", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	runner.last = &models.BatchReport{RunID: "run-9", ItemsProcessed: 4}
	w = httptest.NewRecorder()
	handler.LastReportHandler(w, httptest.NewRequest(http.MethodGet, "/api/ranking/last", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var report models.BatchReport
	testutils.DecodeJSON(t, w, &report)
	require.Equal(t, "run-9", report.RunID)
}

func TestGetItemRankingHandler(t *testing.T) {
	runner := &MockRunner{PreviewItemFunc: func(ctx context.Context, itemID int64) models.ItemResult {
		return models.ItemResult{
			ItemID:        itemID,
			State:         models.ItemRankingComputed,
			OffersUpdated: 2,
			Events:        []models.RankEvent{{Kind: models.EventNewLeader, OfferID: 2, NewRank: 1}},
		}
	}}
	handler := newHandler(runner, &MockEvents{})

	req := httptest.NewRequest(http.MethodGet, "/api/items/7/ranking", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"itemId": "7"})
	w := httptest.NewRecorder()
	handler.GetItemRankingHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []int64{7}, runner.previewed)
	require.Empty(t, runner.lastOpts.ItemIDs)

	var item models.ItemResult
	testutils.DecodeJSON(t, w, &item)
	require.Equal(t, int64(7), item.ItemID)
	require.Len(t, item.Events, 1)
}

func TestGetItemRankingHandlerFailure(t *testing.T) {
	runner := &MockRunner{PreviewItemFunc: func(ctx context.Context, itemID int64) models.ItemResult {
		return models.ItemResult{ItemID: itemID, State: models.ItemFailed, Error: "invariant"}
	}}
	handler := newHandler(runner, &MockEvents{})

	req := httptest.NewRequest(http.MethodGet, "/api/items/7/ranking", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"itemId": "7"})
	w := httptest.NewRecorder()
	handler.GetItemRankingHandler(w, req)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/items/x/ranking", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"itemId": "x"})
	w = httptest.NewRecorder()
	handler.GetItemRankingHandler(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetItemEventsHandler(t *testing.T) {
	events := &MockEvents{}
	handler := newHandler(&MockRunner{}, events)

	req := httptest.NewRequest(http.MethodGet, "/api/items/7/events?limit=5", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"itemId": "7"})
	w := httptest.NewRecorder()
	handler.GetItemEventsHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 5, events.limit)

	var got []models.RankEvent
	testutils.DecodeJSON(t, w, &got)
	require.Len(t, got, 1)
	require.Equal(t, int64(7), got[0].ItemID)
}

func TestGetItemEventsHandlerStoreError(t *testing.T) {
	events := &MockEvents{RecentEventsFunc: func(ctx context.Context, itemID int64, limit int) ([]models.RankEvent, error) {
		return nil, errors.New("db down")
	}}
	handler := newHandler(&MockRunner{}, events)

	req := httptest.NewRequest(http.MethodGet, "/api/items/7/events?limit=500", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"itemId": "7"})
	w := httptest.NewRecorder()
	handler.GetItemEventsHandler(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, 20, events.limit)
}

func TestRouter(t *testing.T) {
	runner := &MockRunner{}
	logger, _ := logtest.NewNullLogger()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("metrics"))
	})
	router := handlers.NewRouter(newHandler(runner, &MockEvents{}), logger, metrics)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/items/11/events", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/ranking/run?dryRun=false&itemId=11", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []int64{11}, runner.lastOpts.ItemIDs)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, "metrics", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ranking/run", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
