package ranking_test

import (
	"testing"

	"reservations/internal/ranking"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestItemErrorMatchesStageSentinels(t *testing.T) {
	cause := errors.New("connection reset")

	persist := &ranking.ItemError{ItemID: 2, Stage: ranking.StagePersist, Err: errors.Wrap(cause, "commit")}
	require.True(t, errors.Is(persist, ranking.ErrPersistence))
	require.False(t, errors.Is(persist, ranking.ErrNotification))
	require.True(t, errors.Is(persist, cause))
	require.Equal(t, "item 2: persist: commit: connection reset", persist.Error())

	emit := &ranking.ItemError{ItemID: 2, Stage: ranking.StageEmit, Err: cause}
	require.True(t, errors.Is(emit, ranking.ErrNotification))
	require.False(t, errors.Is(emit, ranking.ErrPersistence))

	compute := &ranking.ItemError{ItemID: 2, Stage: ranking.StageCompute, Err: ranking.ErrInvariantViolation}
	require.True(t, errors.Is(compute, ranking.ErrInvariantViolation))
	require.False(t, errors.Is(compute, ranking.ErrPersistence))
}
