package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Статус резервации. Управляется внешним сервисом жизненного цикла,
// ранжирование его только читает.
type OfferStatus string

const (
	StatusActive    OfferStatus = "active"
	StatusCancelled OfferStatus = "cancelled"
	StatusCompleted OfferStatus = "completed"
)

// Вторичный статус: история лидерства
type SubStatus string

const (
	SubStatusNone       SubStatus = "none"
	SubStatusLeader     SubStatus = "leader"
	SubStatusSuperseded SubStatus = "superseded"
)

// Сущность Предложения (резервации) на лот
type Offer struct {
	ID                   int64           `db:"id" json:"id"`
	ItemID               int64           `db:"item_id" json:"itemId"`
	BidderID             int64           `db:"bidder_id" json:"bidderId"`
	Amount               decimal.Decimal `db:"amount" json:"amount"`
	Status               OfferStatus     `db:"status" json:"status"`
	SubStatus            SubStatus       `db:"sub_status" json:"subStatus"`
	RankPosition         *int            `db:"rank_position" json:"rankPosition"`
	PreviousRankPosition *int            `db:"previous_rank_position" json:"previousRankPosition"`
	IsLeader             bool            `db:"is_leader" json:"isLeader"`
	SupersededByID       *int64          `db:"superseded_by_id" json:"supersededById"`
	SupersededAt         *time.Time      `db:"superseded_at" json:"supersededAt"`
	CreatedAt            time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time       `db:"updated_at" json:"-"`
}

// IsActive сообщает, участвует ли предложение в ранжировании
func (o *Offer) IsActive() bool {
	return o.Status == StatusActive
}

// Предложение со свежевычисленной позицией
type RankedOffer struct {
	Offer
	NewRank int  `json:"newRank"`
	Leader  bool `json:"leader"`
}

type EventKind string

const (
	EventNewLeader   EventKind = "new_leader"
	EventSuperseded  EventKind = "superseded"
	EventRankChanged EventKind = "rank_changed"
)

type Direction string

const (
	DirectionImproved Direction = "improved"
	DirectionDropped  Direction = "dropped"
)

// Намерение уведомления; доставкой занимается внешний сервис
type RankEvent struct {
	Kind           EventKind       `json:"kind"`
	ItemID         int64           `json:"itemId"`
	OfferID        int64           `json:"offerId"`
	BidderID       int64           `json:"bidderId"`
	Amount         decimal.Decimal `json:"amount"`
	OldRank        *int            `json:"oldRank,omitempty"`
	NewRank        int             `json:"newRank"`
	Direction      Direction       `json:"direction,omitempty"`
	SupersededByID *int64          `json:"supersededById,omitempty"`
	OccurredAt     time.Time       `json:"occurredAt"`
}

// Состояние обработки лота внутри цикла
type ItemState string

const (
	ItemPending         ItemState = "pending"
	ItemRankingComputed ItemState = "ranking_computed"
	ItemApplied         ItemState = "applied"
	ItemEventsEmitted   ItemState = "events_emitted"
	ItemFailed          ItemState = "failed"
)

// ItemFailure ошибка по лоту в отчёте цикла
type ItemFailure struct {
	ItemID  int64  `json:"itemId"`
	Message string `json:"message"`
}

type ItemResult struct {
	ItemID        int64       `json:"itemId"`
	State         ItemState   `json:"state"`
	OffersUpdated int         `json:"offersUpdated"`
	Events        []RankEvent `json:"events,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// Итог одного цикла ранжирования
type BatchReport struct {
	RunID                string        `json:"runId"`
	DryRun               bool          `json:"dryRun"`
	Cancelled            bool          `json:"cancelled"`
	ItemsProcessed       int           `json:"itemsProcessed"`
	OffersUpdated        int           `json:"offersUpdated"`
	NewLeaderCount       int           `json:"newLeaderCount"`
	SupersededCount      int           `json:"supersededCount"`
	RankChangedCount     int           `json:"rankChangedCount"`
	NotificationFailures int           `json:"notificationFailures"`
	Errors               []ItemFailure `json:"errors"`
	Items                []ItemResult  `json:"items"`
	StartedAt            time.Time     `json:"startedAt"`
	FinishedAt           time.Time     `json:"finishedAt"`
}

// Failed сообщает, есть ли в отчёте ошибки по лотам
func (r *BatchReport) Failed() bool {
	return len(r.Errors) > 0
}

// IntPtr вспомогательная функция для nullable позиций
func IntPtr(v int) *int {
	return &v
}
