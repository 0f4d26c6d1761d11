package ranking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reservations/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Options параметры одного цикла. Пустой ItemIDs означает
// все лоты с активными предложениями.
type Options struct {
	ItemIDs []int64
	DryRun  bool
}

type Config struct {
	Workers             int
	RankChangeThreshold int
	Now                 func() time.Time

	// OnReport вызывается после каждого завершённого цикла
	OnReport func(models.BatchReport)
}

// Orchestrator проходит по лотам и для каждого выполняет
// чтение, ранжирование, запись и отправку событий.
type Orchestrator struct {
	store       OfferStore
	dispatcher  Dispatcher
	coordinator *Coordinator
	log         logrus.FieldLogger
	locks       *itemLocks
	workers     int
	now         func() time.Time
	onReport    func(models.BatchReport)

	mu   sync.RWMutex
	last *models.BatchReport
}

func NewOrchestrator(store OfferStore, dispatcher Dispatcher, log logrus.FieldLogger, cfg Config) *Orchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{
		store:       store,
		dispatcher:  dispatcher,
		coordinator: NewCoordinator(cfg.RankChangeThreshold),
		log:         log,
		locks:       newItemLocks(),
		workers:     cfg.Workers,
		now:         cfg.Now,
		onReport:    cfg.OnReport,
	}
}

// LastReport возвращает отчёт последнего завершённого цикла
func (o *Orchestrator) LastReport() (models.BatchReport, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return models.BatchReport{}, false
	}
	return *o.last, true
}

// itemStats счётчики одного лота, сливаются в отчёт после g.Wait
type itemStats struct {
	result               models.ItemResult
	newLeader            int
	superseded           int
	rankChanged          int
	notificationFailures int
}

// RunCycle выполняет один цикл ранжирования. Ошибки по лотам
// не прерывают цикл и возвращаются только в отчёте.
func (o *Orchestrator) RunCycle(ctx context.Context, opts Options) models.BatchReport {
	report := models.BatchReport{
		RunID:     uuid.NewString(),
		DryRun:    opts.DryRun,
		StartedAt: o.now(),
		Errors:    []models.ItemFailure{},
		Items:     []models.ItemResult{},
	}
	log := o.log.WithFields(logrus.Fields{"run_id": report.RunID, "dry_run": opts.DryRun})

	itemIDs, err := o.workingSet(ctx, opts.ItemIDs)
	if err != nil {
		log.WithError(err).Error("failed to load active item ids")
		report.Errors = append(report.Errors, models.ItemFailure{Message: err.Error()})
		return o.finish(report)
	}
	log.WithField("items", len(itemIDs)).Info("ranking cycle started")

	results := make([]*itemStats, len(itemIDs))
	var g errgroup.Group
	g.SetLimit(o.workers)

	for i, itemID := range itemIDs {
		i, itemID := i, itemID
		// отмена проверяется только между лотами
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = o.processItem(context.WithoutCancel(ctx), log, itemID, opts.DryRun, report.StartedAt)
			return nil
		})
	}
	_ = g.Wait()

	// каждый воркер пишет только свой элемент results
	for _, st := range results {
		if st == nil {
			if ctx.Err() != nil {
				report.Cancelled = true
			}
			continue
		}
		report.ItemsProcessed++
		report.OffersUpdated += st.result.OffersUpdated
		report.NewLeaderCount += st.newLeader
		report.SupersededCount += st.superseded
		report.RankChangedCount += st.rankChanged
		report.NotificationFailures += st.notificationFailures
		if st.result.State == models.ItemFailed {
			report.Errors = append(report.Errors, models.ItemFailure{ItemID: st.result.ItemID, Message: st.result.Error})
		}
		report.Items = append(report.Items, st.result)
	}

	report = o.finish(report)
	log.WithFields(logrus.Fields{
		"processed":      report.ItemsProcessed,
		"offers_updated": report.OffersUpdated,
		"new_leader":     report.NewLeaderCount,
		"superseded":     report.SupersededCount,
		"rank_changed":   report.RankChangedCount,
		"errors":         len(report.Errors),
		"cancelled":      report.Cancelled,
	}).Info("ranking cycle finished")
	return report
}

func (o *Orchestrator) finish(report models.BatchReport) models.BatchReport {
	report.FinishedAt = o.now()

	o.mu.Lock()
	last := report
	o.last = &last
	o.mu.Unlock()

	if o.onReport != nil {
		o.onReport(report)
	}
	return report
}

// PreviewItem ранжирует один лот без записи и отправки событий.
// Отчёт последнего цикла и OnReport не затрагиваются.
func (o *Orchestrator) PreviewItem(ctx context.Context, itemID int64) models.ItemResult {
	log := o.log.WithField("preview", true)
	return o.processItem(ctx, log, itemID, true, o.now()).result
}

// workingSet возвращает уникальные id лотов в исходном порядке
func (o *Orchestrator) workingSet(ctx context.Context, explicit []int64) ([]int64, error) {
	ids := explicit
	if len(ids) == 0 {
		loaded, err := o.store.LoadActiveItemIDs(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "load active item ids")
		}
		ids = loaded
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// processItem держит блокировку лота от чтения до отправки последнего
// события, чтобы события одного лота не обгоняли друг друга.
func (o *Orchestrator) processItem(ctx context.Context, log logrus.FieldLogger, itemID int64, dryRun bool, runAt time.Time) (st *itemStats) {
	st = &itemStats{result: models.ItemResult{ItemID: itemID, State: models.ItemPending}}
	log = log.WithField("item_id", itemID)

	unlock := o.locks.lock(itemID)
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			st.result.State = models.ItemFailed
			st.result.Error = fmt.Sprintf("panic: %v", r)
			log.WithField("panic", r).Error("item processing panicked")
		}
	}()

	outcome, err := o.applyItem(ctx, log, itemID, dryRun, runAt, &st.result)
	if err != nil {
		st.result.State = models.ItemFailed
		st.result.Error = err.Error()
		log.WithError(err).Error("item processing failed")
		return st
	}

	st.result.OffersUpdated = len(outcome.Updated)
	st.result.Events = outcome.Events

	if dryRun {
		for _, ev := range outcome.Events {
			st.count(ev.Kind)
		}
		return st
	}

	for _, ev := range outcome.Events {
		if o.dispatcher == nil {
			break
		}
		if err := o.emit(ctx, ev); err != nil {
			st.notificationFailures++
			log.WithError(err).
				WithFields(logrus.Fields{"offer_id": ev.OfferID, "kind": ev.Kind}).
				Warn("notification emit failed")
			continue
		}
		st.count(ev.Kind)
	}
	st.result.State = models.ItemEventsEmitted
	return st
}

// emit превращает панику диспетчера в ошибку: ранги к этому моменту
// уже зафиксированы, и лот не должен считаться упавшим.
func (o *Orchestrator) emit(ctx context.Context, ev models.RankEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = itemErr(ev.ItemID, StageEmit, errors.Errorf("dispatcher panic: %v", r))
		}
	}()
	if err := o.dispatcher.Emit(ctx, ev); err != nil {
		return itemErr(ev.ItemID, StageEmit, err)
	}
	return nil
}

func (st *itemStats) count(kind models.EventKind) {
	switch kind {
	case models.EventNewLeader:
		st.newLeader++
	case models.EventSuperseded:
		st.superseded++
	case models.EventRankChanged:
		st.rankChanged++
	}
}

// applyItem читает, ранжирует и записывает один лот в одной транзакции
func (o *Orchestrator) applyItem(ctx context.Context, log logrus.FieldLogger, itemID int64, dryRun bool, runAt time.Time, res *models.ItemResult) (Outcome, error) {
	uow, err := o.store.Begin(ctx, itemID)
	if err != nil {
		return Outcome{}, itemErr(itemID, StageLoad, err)
	}
	defer uow.Rollback()

	offers, err := uow.LoadActiveOffers(ctx)
	if err != nil {
		return Outcome{}, itemErr(itemID, StageLoad, err)
	}

	ranked, err := ComputeRanking(offers)
	if err == nil {
		err = VerifyRanking(ranked)
	}
	if err != nil {
		if errors.Is(err, ErrInvariantViolation) {
			log.WithField("offers", offers).Error("ranking invariant violated")
		}
		return Outcome{}, itemErr(itemID, StageCompute, err)
	}
	res.State = models.ItemRankingComputed

	outcome, err := o.coordinator.Apply(itemID, offers, ranked, runAt)
	if err != nil {
		if errors.Is(err, ErrInvariantViolation) {
			log.WithField("offers", offers).Error("ranking invariant violated")
		}
		return Outcome{}, itemErr(itemID, StageApply, err)
	}

	if dryRun {
		return outcome, nil
	}

	if len(outcome.Updated) > 0 {
		if err := uow.SaveUpdatedOffers(ctx, outcome.Updated, outcome.Events); err != nil {
			return Outcome{}, itemErr(itemID, StagePersist, errors.Wrap(err, "save updated offers"))
		}
	}
	if err := uow.Commit(); err != nil {
		return Outcome{}, itemErr(itemID, StagePersist, errors.Wrap(err, "commit"))
	}
	res.State = models.ItemApplied
	return outcome, nil
}
