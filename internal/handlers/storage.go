package handlers

import (
	"context"

	"reservations/internal/ranking"
	"reservations/models"
)

type RunnerInterface interface {
	RunCycle(ctx context.Context, opts ranking.Options) models.BatchReport
	LastReport() (models.BatchReport, bool)
	PreviewItem(ctx context.Context, itemID int64) models.ItemResult
}

type EventStoreInterface interface {
	RecentEvents(ctx context.Context, itemID int64, limit int) ([]models.RankEvent, error)
}
