package ranking

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvariantViolation = errors.New("ranking invariant violated")
	ErrMixedItems         = errors.New("offers span more than one item")
	ErrInactiveOffer      = errors.New("inactive offer passed to ranking")
	ErrInvalidAmount      = errors.New("offer amount is negative")
	ErrPersistence        = errors.New("offer store write failed")
	ErrNotification       = errors.New("notification emit failed")
)

// Stage этап обработки лота, на котором произошла ошибка
type Stage string

const (
	StageLoad    Stage = "load"
	StageCompute Stage = "compute"
	StageApply   Stage = "apply"
	StagePersist Stage = "persist"
	StageEmit    Stage = "emit"
)

// ItemError ошибка обработки одного лота. Не выходит за пределы RunCycle,
// попадает только в BatchReport.
type ItemError struct {
	ItemID int64
	Stage  Stage
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %s: %v", e.ItemID, e.Stage, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Is сопоставляет этап с ErrPersistence и ErrNotification,
// цепочка Err при этом сохраняется
func (e *ItemError) Is(target error) bool {
	switch target {
	case ErrPersistence:
		return e.Stage == StagePersist
	case ErrNotification:
		return e.Stage == StageEmit
	}
	return false
}

func itemErr(itemID int64, stage Stage, err error) *ItemError {
	return &ItemError{ItemID: itemID, Stage: stage, Err: err}
}
