package dialog

import (
	"testing"
	"time"

	"image-compressor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerStartTake(t *testing.T) {
	m := NewManager(0)
	m.Start(State{UserID: 1, ChatID: 10, Stage: StageAwaitingFile, Format: models.FormatWebP})

	st, ok := m.Get(1)
	require.True(t, ok)
	assert.Equal(t, models.FormatWebP, st.Format)
	assert.False(t, st.StartedAt.IsZero())

	st, ok = m.Take(1)
	require.True(t, ok)
	assert.Equal(t, StageAwaitingFile, st.Stage)

	_, ok = m.Get(1)
	assert.False(t, ok)
	assert.False(t, m.Cancel(1))
}

func TestManagerReplacesDialog(t *testing.T) {
	m := NewManager(0)
	m.Start(State{UserID: 1, Stage: StageAwaitingKey})
	m.Start(State{UserID: 1, Stage: StageAwaitingFile, Format: models.FormatPNG})

	st, ok := m.Get(1)
	require.True(t, ok)
	assert.Equal(t, StageAwaitingFile, st.Stage)
	assert.Equal(t, 1, m.Active())
}

func TestManagerTimeout(t *testing.T) {
	m := NewManager(20 * time.Millisecond)
	expired := make(chan State, 1)
	m.OnTimeout(func(s State) { expired <- s })

	m.Start(State{UserID: 7, Stage: StageAwaitingKey})

	select {
	case s := <-expired:
		assert.Equal(t, int64(7), s.UserID)
	case <-time.After(time.Second):
		t.Fatal("dialog did not expire")
	}
	_, ok := m.Get(7)
	assert.False(t, ok)
}

func TestManagerTakeStopsTimeout(t *testing.T) {
	m := NewManager(20 * time.Millisecond)
	expired := make(chan State, 1)
	m.OnTimeout(func(s State) { expired <- s })

	m.Start(State{UserID: 7, Stage: StageAwaitingKey})
	m.Cancel(7)

	select {
	case <-expired:
		t.Fatal("cancelled dialog expired")
	case <-time.After(60 * time.Millisecond):
	}
}
