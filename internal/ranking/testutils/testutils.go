package testutils

import (
	"context"
	"sort"
	"sync"
	"time"

	"reservations/internal/ranking"
	"reservations/models"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// MemStore хранит предложения в памяти и реализует ranking.OfferStore.
// Записи лота видны только после Commit.
type MemStore struct {
	mu        sync.Mutex
	offers    map[int64]models.Offer
	itemLocks map[int64]*sync.Mutex

	// Переопределяемое поведение для тестов
	LoadItemIDsFunc func(ctx context.Context) ([]int64, error)
	LoadFunc        func(itemID int64) error
	SaveFunc        func(itemID int64, offers []models.Offer) error

	Writes    int
	Commits   int
	Persisted []models.RankEvent
}

func NewMemStore(offers ...models.Offer) *MemStore {
	s := &MemStore{
		offers:    make(map[int64]models.Offer),
		itemLocks: make(map[int64]*sync.Mutex),
	}
	for _, o := range offers {
		s.offers[o.ID] = o
	}
	return s
}

// Add добавляет предложение, имитируя внешний сервис ставок
func (s *MemStore) Add(o models.Offer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers[o.ID] = o
}

func (s *MemStore) Offer(id int64) models.Offer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offers[id]
}

func (s *MemStore) SetStatus(id int64, status models.OfferStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.offers[id]
	o.Status = status
	s.offers[id] = o
}

func (s *MemStore) LoadActiveItemIDs(ctx context.Context) ([]int64, error) {
	if s.LoadItemIDsFunc != nil {
		return s.LoadItemIDsFunc(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[int64]bool{}
	var ids []int64
	for _, o := range s.offers {
		if o.IsActive() && !seen[o.ItemID] {
			seen[o.ItemID] = true
			ids = append(ids, o.ItemID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemStore) Begin(ctx context.Context, itemID int64) (ranking.UnitOfWork, error) {
	s.mu.Lock()
	l, ok := s.itemLocks[itemID]
	if !ok {
		l = &sync.Mutex{}
		s.itemLocks[itemID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return &memTx{store: s, itemID: itemID, lock: l}, nil
}

type memTx struct {
	store  *MemStore
	itemID int64
	lock   *sync.Mutex
	staged []models.Offer
	events []models.RankEvent
	done   bool
}

func (t *memTx) LoadActiveOffers(ctx context.Context) ([]models.Offer, error) {
	if t.store.LoadFunc != nil {
		if err := t.store.LoadFunc(t.itemID); err != nil {
			return nil, err
		}
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var out []models.Offer
	for _, o := range t.store.offers {
		if o.ItemID == t.itemID && o.IsActive() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) SaveUpdatedOffers(ctx context.Context, offers []models.Offer, events []models.RankEvent) error {
	if t.store.SaveFunc != nil {
		if err := t.store.SaveFunc(t.itemID, offers); err != nil {
			return err
		}
	}
	for _, o := range offers {
		if o.ItemID != t.itemID {
			return errors.Errorf("offer %d does not belong to item %d", o.ID, t.itemID)
		}
	}
	t.staged = append(t.staged, offers...)
	t.events = append(t.events, events...)
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return errors.New("transaction already finished")
	}
	t.done = true
	defer t.lock.Unlock()

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, o := range t.staged {
		cur := t.store.offers[o.ID]
		cur.RankPosition = o.RankPosition
		cur.PreviousRankPosition = o.PreviousRankPosition
		cur.IsLeader = o.IsLeader
		cur.SubStatus = o.SubStatus
		cur.SupersededByID = o.SupersededByID
		cur.SupersededAt = o.SupersededAt
		t.store.offers[o.ID] = cur
	}
	t.store.Writes += len(t.staged)
	t.store.Persisted = append(t.store.Persisted, t.events...)
	t.store.Commits++
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.lock.Unlock()
	return nil
}

// RecordingDispatcher запоминает отправленные события
type RecordingDispatcher struct {
	mu       sync.Mutex
	Events   []models.RankEvent
	EmitFunc func(event models.RankEvent) error
}

func (d *RecordingDispatcher) Emit(ctx context.Context, event models.RankEvent) error {
	if d.EmitFunc != nil {
		if err := d.EmitFunc(event); err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Events = append(d.Events, event)
	return nil
}

func (d *RecordingDispatcher) Kinds() []models.EventKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	kinds := make([]models.EventKind, 0, len(d.Events))
	for _, e := range d.Events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// NewOffer собирает активное предложение; t задаёт created_at в секундах
func NewOffer(id, itemID int64, amount string, t int) models.Offer {
	return models.Offer{
		ID:        id,
		ItemID:    itemID,
		BidderID:  id * 10,
		Amount:    decimal.RequireFromString(amount),
		Status:    models.StatusActive,
		SubStatus: models.SubStatusNone,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(t) * time.Second),
	}
}
