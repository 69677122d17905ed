package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_UnknownJobDefault(t *testing.T) {
	tracker := NewTracker()

	snapshot := tracker.Get("nope")
	assert.Equal(t, "Starting...", snapshot.Message)
	require.NotNil(t, snapshot.Percent)
	assert.Equal(t, 0, *snapshot.Percent)
}

func TestTracker_SetGetClear(t *testing.T) {
	tracker := NewTracker()

	tracker.SetPercent("42", "Composing video...", 55)
	snapshot := tracker.Get("42")
	assert.Equal(t, "Composing video...", snapshot.Message)
	require.NotNil(t, snapshot.Percent)
	assert.Equal(t, 55, *snapshot.Percent)
	assert.False(t, snapshot.Timestamp.IsZero())

	tracker.Clear("42")
	snapshot = tracker.Get("42")
	assert.Equal(t, "Starting...", snapshot.Message)
}

func TestTracker_NilPercentSignalsError(t *testing.T) {
	tracker := NewTracker()

	tracker.Set("42", "Error: encoder exploded", nil)
	snapshot := tracker.Get("42")
	assert.Nil(t, snapshot.Percent)
	assert.Equal(t, "Error: encoder exploded", snapshot.Message)
}

func TestTracker_LastWriterWins(t *testing.T) {
	tracker := NewTracker()

	tracker.SetPercent("42", "first", 10)
	tracker.SetPercent("42", "second", 20)

	snapshot := tracker.Get("42")
	assert.Equal(t, "second", snapshot.Message)
	assert.Equal(t, 20, *snapshot.Percent)
}

func TestTracker_SnapshotIsCopy(t *testing.T) {
	tracker := NewTracker()
	tracker.SetPercent("42", "running", 10)

	snapshot := tracker.Get("42")
	*snapshot.Percent = 99

	again := tracker.Get("42")
	assert.Equal(t, 10, *again.Percent)
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	tracker := NewTracker()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j <= 100; j++ {
				tracker.SetPercent("shared", "working", j)
				tracker.Get("shared")
			}
		}(i)
	}
	wg.Wait()

	snapshot := tracker.Get("shared")
	require.NotNil(t, snapshot.Percent)
	assert.Equal(t, 100, *snapshot.Percent)
}
