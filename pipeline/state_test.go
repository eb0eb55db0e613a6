package pipeline

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
)

func TestMachine_HappyPath(t *testing.T) {
	m := NewMachine()
	clock := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	m.now = func() time.Time { return clock }

	for _, s := range []domain.PipelineState{
		domain.StateCloned,
		domain.StateBuilt,
		domain.StatePushed,
		domain.StateResourcesAttached,
		domain.StateReleased,
		domain.StateDone,
	} {
		require.NoError(t, m.To(s))
	}
	assert.Equal(t, domain.StateDone, m.State())

	h := m.History()
	require.Len(t, h, 6)
	assert.Equal(t, domain.StatePending, h[0].From)
	assert.Equal(t, domain.StateCloned, h[0].To)
	assert.Equal(t, clock, h[5].At)
}

func TestMachine_IllegalTransitions(t *testing.T) {
	m := NewMachine()
	err := m.To(domain.StateBuilt)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeIllegalTransition))
	assert.Equal(t, domain.StatePending, m.State())

	require.NoError(t, m.To(domain.StateCloned))
	assert.Error(t, m.To(domain.StateCloned))
	assert.Error(t, m.To(domain.StateFailed))
}

func TestMachine_Fail(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.To(domain.StateCloned))
	require.NoError(t, m.Fail(stderrors.New("charmcraft exited with code 1")))
	assert.Equal(t, domain.StateFailed, m.State())

	h := m.History()
	assert.Equal(t, domain.StateCloned, h[1].From)
	assert.Equal(t, "charmcraft exited with code 1", h[1].Error)

	assert.Error(t, m.Fail(nil))
	assert.Error(t, m.To(domain.StateBuilt))
}
