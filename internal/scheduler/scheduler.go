package scheduler

import (
	"context"
	"sync"

	"reservations/internal/ranking"
	"reservations/models"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Runner то, что умеет выполнить цикл ранжирования
type Runner interface {
	RunCycle(ctx context.Context, opts ranking.Options) models.BatchReport
}

// Scheduler периодически запускает RunCycle. Циклы внутри процесса
// не перекрываются; Stop отменяет контекст текущего цикла и ждёт его.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	dryRun bool
	log    logrus.FieldLogger

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func New(runner Runner, spec string, dryRun bool, log logrus.FieldLogger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		runner: runner,
		dryRun: dryRun,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}

	cronLog := cron.PrintfLogger(log)
	s.cron = cron.New(cron.WithChain(
		cron.Recover(cronLog),
		cron.SkipIfStillRunning(cronLog),
	))
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		cancel()
		return nil, errors.Wrapf(err, "invalid schedule %q", spec)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.log.Info("ranking scheduler started")
	s.cron.Start()
}

// Stop останавливает расписание и дожидается текущего цикла.
// После Stop новые циклы не запускаются.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.log.Info("ranking scheduler stopped")
}

// RunNow запускает цикл вне расписания, например при старте сервиса.
// false означает, что планировщик уже остановлен.
func (s *Scheduler) RunNow() (models.BatchReport, bool) {
	return s.run()
}

func (s *Scheduler) tick() {
	s.run()
}

func (s *Scheduler) run() (models.BatchReport, bool) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return models.BatchReport{}, false
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	report := s.runner.RunCycle(s.ctx, ranking.Options{DryRun: s.dryRun})
	if report.Failed() {
		s.log.WithFields(logrus.Fields{
			"run_id": report.RunID,
			"errors": len(report.Errors),
		}).Warn("ranking cycle finished with errors")
	}
	return report, true
}
