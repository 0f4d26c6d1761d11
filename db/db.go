package db

import (
	"context"
	"encoding/json"
	"time"

	"reservations/internal/ranking"
	"reservations/models"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// Open подключается к Postgres и проверяет соединение
func Open(ctx context.Context, connString string) (*sqlx.DB, error) {
	dbConn, err := sqlx.ConnectContext(ctx, "postgres", connString)
	if err != nil {
		return nil, errors.Wrap(err, "connect to postgres")
	}
	dbConn.SetMaxOpenConns(20)
	dbConn.SetConnMaxIdleTime(5 * time.Minute)
	return dbConn, nil
}

const offerColumns = `id, item_id, bidder_id, amount, status, sub_status,
        rank_position, previous_rank_position, is_leader,
        superseded_by_id, superseded_at, created_at, updated_at`

// LoadActiveItemIDs возвращает лоты, у которых есть активные резервации
func (s *Storage) LoadActiveItemIDs(ctx context.Context) ([]int64, error) {
	query := `
        SELECT DISTINCT item_id
        FROM reservations
        WHERE status = 'active'
        ORDER BY item_id ASC`
	ids := []int64{}
	if err := s.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, errors.Wrap(err, "select active item ids")
	}
	return ids, nil
}

// Begin открывает транзакцию и берёт advisory-блокировку лота.
// Блокировка освобождается при COMMIT или ROLLBACK.
func (s *Storage) Begin(ctx context.Context, itemID int64) (ranking.UnitOfWork, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, itemID); err != nil {
		_ = tx.Rollback()
		return nil, errors.Wrapf(err, "lock item %d", itemID)
	}
	return &Tx{tx: tx, itemID: itemID}, nil
}

// Tx единица работы над одним лотом
type Tx struct {
	tx     *sqlx.Tx
	itemID int64
	done   bool
}

func (t *Tx) LoadActiveOffers(ctx context.Context) ([]models.Offer, error) {
	query := `
        SELECT ` + offerColumns + `
        FROM reservations
        WHERE item_id = $1 AND status = 'active'
        ORDER BY id ASC
        FOR UPDATE`
	offers := []models.Offer{}
	if err := t.tx.SelectContext(ctx, &offers, query, t.itemID); err != nil {
		return nil, errors.Wrapf(err, "select active offers for item %d", t.itemID)
	}
	return offers, nil
}

// SaveUpdatedOffers обновляет только поля ранга. Статус, сумма и
// участник не трогаются. События пишутся в rank_events в той же транзакции.
func (t *Tx) SaveUpdatedOffers(ctx context.Context, offers []models.Offer, events []models.RankEvent) error {
	update := `
        UPDATE reservations
        SET rank_position = $1,
            previous_rank_position = $2,
            is_leader = $3,
            sub_status = $4,
            superseded_by_id = $5,
            superseded_at = $6,
            updated_at = NOW()
        WHERE id = $7 AND item_id = $8`
	for _, o := range offers {
		res, err := t.tx.ExecContext(ctx, update,
			o.RankPosition, o.PreviousRankPosition, o.IsLeader, o.SubStatus,
			o.SupersededByID, o.SupersededAt, o.ID, t.itemID)
		if err != nil {
			return errors.Wrapf(err, "update offer %d", o.ID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrapf(err, "update offer %d", o.ID)
		}
		if n != 1 {
			return errors.Errorf("update offer %d: %d rows affected", o.ID, n)
		}
	}

	insert := `
        INSERT INTO rank_events
            (item_id, kind, offer_id, related_offer_id, payload, created_at)
        VALUES
            ($1, $2, $3, $4, $5, $6)`
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return errors.Wrap(err, "marshal rank event")
		}
		if _, err := t.tx.ExecContext(ctx, insert,
			t.itemID, ev.Kind, ev.OfferID, ev.SupersededByID, string(payload), ev.OccurredAt); err != nil {
			return errors.Wrapf(err, "insert %s event for offer %d", ev.Kind, ev.OfferID)
		}
	}
	return nil
}

func (t *Tx) Commit() error {
	if t.done {
		return errors.New("transaction already finished")
	}
	t.done = true
	return errors.Wrap(t.tx.Commit(), "commit")
}

func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

// RecentEvents возвращает последние события лота из rank_events
func (s *Storage) RecentEvents(ctx context.Context, itemID int64, limit int) ([]models.RankEvent, error) {
	query := `
        SELECT payload
        FROM rank_events
        WHERE item_id = $1
        ORDER BY id DESC
        LIMIT $2`
	var payloads []string
	if err := s.db.SelectContext(ctx, &payloads, query, itemID, limit); err != nil {
		return nil, errors.Wrapf(err, "select events for item %d", itemID)
	}
	events := make([]models.RankEvent, 0, len(payloads))
	for _, p := range payloads {
		var ev models.RankEvent
		if err := json.Unmarshal([]byte(p), &ev); err != nil {
			return nil, errors.Wrap(err, "unmarshal rank event")
		}
		events = append(events, ev)
	}
	return events, nil
}
