package ranking

import (
	"context"

	"reservations/models"
)

// OfferStore источник предложений. Begin захватывает блокировку лота,
// которая держится до Commit или Rollback.
type OfferStore interface {
	LoadActiveItemIDs(ctx context.Context) ([]int64, error)
	Begin(ctx context.Context, itemID int64) (UnitOfWork, error)
}

// UnitOfWork транзакция над предложениями одного лота.
// SaveUpdatedOffers пишет только поля ранга, вместе с событиями.
// Rollback после Commit ничего не делает.
type UnitOfWork interface {
	LoadActiveOffers(ctx context.Context) ([]models.Offer, error)
	SaveUpdatedOffers(ctx context.Context, offers []models.Offer, events []models.RankEvent) error
	Commit() error
	Rollback() error
}

// Dispatcher передаёт события во внешний сервис уведомлений
type Dispatcher interface {
	Emit(ctx context.Context, event models.RankEvent) error
}
