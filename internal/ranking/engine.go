package ranking

import (
	"slices"

	"reservations/models"

	"github.com/pkg/errors"
)

// ComputeRanking ранжирует активные предложения одного лота:
// сумма по убыванию, затем более раннее created_at, затем меньший id.
// Входной срез не изменяется.
func ComputeRanking(offers []models.Offer) ([]models.RankedOffer, error) {
	if len(offers) == 0 {
		return []models.RankedOffer{}, nil
	}

	itemID := offers[0].ItemID
	for i := range offers {
		o := &offers[i]
		if o.ItemID != itemID {
			return nil, errors.Wrapf(ErrMixedItems, "offer %d has item %d, expected %d", o.ID, o.ItemID, itemID)
		}
		if !o.IsActive() {
			return nil, errors.Wrapf(ErrInactiveOffer, "offer %d has status %q", o.ID, o.Status)
		}
		if o.Amount.IsNegative() {
			return nil, errors.Wrapf(ErrInvalidAmount, "offer %d amount %s", o.ID, o.Amount)
		}
	}

	ranked := make([]models.RankedOffer, len(offers))
	for i := range offers {
		ranked[i] = models.RankedOffer{Offer: offers[i]}
	}

	slices.SortFunc(ranked, func(a, b models.RankedOffer) int {
		return compareOffers(&a.Offer, &b.Offer)
	})

	for i := range ranked {
		ranked[i].NewRank = i + 1
		ranked[i].Leader = i == 0
	}
	return ranked, nil
}

// compareOffers возвращает отрицательное число, если a стоит выше b
func compareOffers(a, b *models.Offer) int {
	if c := b.Amount.Cmp(a.Amount); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// VerifyRanking проверяет, что позиции образуют перестановку 1..N
// и лидер ровно один.
func VerifyRanking(ranked []models.RankedOffer) error {
	seen := make([]bool, len(ranked)+1)
	leaders := 0
	for _, r := range ranked {
		if r.NewRank < 1 || r.NewRank > len(ranked) {
			return errors.Wrapf(ErrInvariantViolation, "offer %d has rank %d outside 1..%d", r.ID, r.NewRank, len(ranked))
		}
		if seen[r.NewRank] {
			return errors.Wrapf(ErrInvariantViolation, "rank %d assigned twice", r.NewRank)
		}
		seen[r.NewRank] = true
		if r.Leader != (r.NewRank == 1) {
			return errors.Wrapf(ErrInvariantViolation, "offer %d leader flag %v at rank %d", r.ID, r.Leader, r.NewRank)
		}
		if r.Leader {
			leaders++
		}
	}
	if len(ranked) > 0 && leaders != 1 {
		return errors.Wrapf(ErrInvariantViolation, "%d leaders among %d offers", leaders, len(ranked))
	}
	return nil
}
