package ranking

import (
	"time"

	"reservations/models"

	"github.com/pkg/errors"
)

// DefaultRankChangeThreshold минимальный сдвиг позиции для события RankChanged
const DefaultRankChangeThreshold = 2

type Transition string

const (
	TransitionUnchanged      Transition = "unchanged"
	TransitionRanked         Transition = "ranked"
	TransitionPromoted       Transition = "promoted"
	TransitionDemoted        Transition = "demoted"
	TransitionBecameLeader   Transition = "became_leader"
	TransitionLostLeadership Transition = "lost_leadership"
)

// Change переход одного предложения между прогонами
type Change struct {
	OfferID    int64
	OldRank    *int
	NewRank    int
	Transition Transition
}

// Outcome результат применения ранжирования к лоту
type Outcome struct {
	ItemID  int64
	Updated []models.Offer
	Events  []models.RankEvent
	Changes []Change
}

// Coordinator сравнивает прежние позиции с новыми, обновляет поля
// лидерства и формирует события.
type Coordinator struct {
	threshold int
}

func NewCoordinator(threshold int) *Coordinator {
	if threshold < 1 {
		threshold = DefaultRankChangeThreshold
	}
	return &Coordinator{threshold: threshold}
}

func (c *Coordinator) Threshold() int {
	return c.threshold
}

// Apply применяет newRanking к previous. Возвращаются только предложения
// с изменившейся позицией; now становится superseded_at.
func (c *Coordinator) Apply(itemID int64, previous []models.Offer, newRanking []models.RankedOffer, now time.Time) (Outcome, error) {
	out := Outcome{ItemID: itemID}
	if len(newRanking) == 0 {
		return out, nil
	}

	prevByID := make(map[int64]models.Offer, len(previous))
	for _, p := range previous {
		prevByID[p.ID] = p
	}

	var leader *models.RankedOffer
	for i := range newRanking {
		r := &newRanking[i]
		if r.ItemID != itemID {
			return Outcome{}, errors.Wrapf(ErrMixedItems, "offer %d has item %d, expected %d", r.ID, r.ItemID, itemID)
		}
		if r.NewRank == 1 {
			leader = r
		}
	}
	if leader == nil {
		return Outcome{}, errors.Wrap(ErrInvariantViolation, "ranking has no leader")
	}

	for _, r := range newRanking {
		offer, ok := prevByID[r.ID]
		if !ok {
			offer = r.Offer
		}
		oldRank := offer.RankPosition
		newRank := r.NewRank

		if oldRank != nil && *oldRank == newRank {
			out.Changes = append(out.Changes, Change{OfferID: offer.ID, OldRank: oldRank, NewRank: newRank, Transition: TransitionUnchanged})
			continue
		}

		updated := offer
		updated.PreviousRankPosition = copyInt(oldRank)
		updated.RankPosition = models.IntPtr(newRank)
		updated.IsLeader = newRank == 1

		var transition Transition
		switch {
		case newRank == 1:
			transition = TransitionBecameLeader
			updated.SubStatus = models.SubStatusLeader
			updated.SupersededByID = nil
			updated.SupersededAt = nil
			out.Events = append(out.Events, newEvent(models.EventNewLeader, &updated, oldRank, now))

		case oldRank != nil && *oldRank == 1:
			transition = TransitionLostLeadership
			leaderID := leader.ID
			at := now
			updated.SupersededByID = &leaderID
			updated.SupersededAt = &at
			updated.SubStatus = models.SubStatusSuperseded
			ev := newEvent(models.EventSuperseded, &updated, oldRank, now)
			ev.SupersededByID = &leaderID
			out.Events = append(out.Events, ev)

		case oldRank == nil:
			transition = TransitionRanked

		default:
			transition = TransitionDemoted
			direction := models.DirectionDropped
			if newRank < *oldRank {
				transition = TransitionPromoted
				direction = models.DirectionImproved
			}
			if abs(newRank-*oldRank) >= c.threshold {
				ev := newEvent(models.EventRankChanged, &updated, oldRank, now)
				ev.Direction = direction
				out.Events = append(out.Events, ev)
			}
		}

		out.Updated = append(out.Updated, updated)
		out.Changes = append(out.Changes, Change{OfferID: offer.ID, OldRank: oldRank, NewRank: newRank, Transition: transition})
	}

	if err := verifyLeaders(previous, out.Updated); err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// verifyLeaders проверяет единственность лидера после применения
func verifyLeaders(previous, updated []models.Offer) error {
	state := make(map[int64]bool, len(previous))
	for _, p := range previous {
		state[p.ID] = p.IsLeader
	}
	for _, u := range updated {
		state[u.ID] = u.IsLeader
	}
	leaders := 0
	for _, isLeader := range state {
		if isLeader {
			leaders++
		}
	}
	if leaders > 1 {
		return errors.Wrapf(ErrInvariantViolation, "%d offers flagged as leader after apply", leaders)
	}
	return nil
}

func newEvent(kind models.EventKind, o *models.Offer, oldRank *int, now time.Time) models.RankEvent {
	return models.RankEvent{
		Kind:       kind,
		ItemID:     o.ItemID,
		OfferID:    o.ID,
		BidderID:   o.BidderID,
		Amount:     o.Amount,
		OldRank:    copyInt(oldRank),
		NewRank:    *o.RankPosition,
		OccurredAt: now,
	}
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
