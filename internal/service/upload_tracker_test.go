package service

import (
	"sync"
	"testing"
	"time"

	"secretary-backend/internal/config"
	"secretary-backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests jump task elapsed time without waiting.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestTracker(clock *fakeClock) *UploadTracker {
	tr := NewUploadTracker(&config.UploadConfig{
		TickInterval:      2 * time.Millisecond,
		AutoCompleteAfter: 150 * time.Second,
	})
	tr.now = clock.Now
	return tr
}

func TestStartAdvancesAlongFakeCurve(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)
	defer tr.Close()

	id := tr.Start(model.UploadTask{Name: "report.pdf"})
	require.NotEmpty(t, id)

	task, ok := tr.Get(id)
	require.True(t, ok)
	assert.Equal(t, model.StageOCR, task.Stage)
	assert.Equal(t, 0.0, task.Progress)

	clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool {
		task, _ := tr.Get(id)
		return task.Progress > 0.34 && task.Progress < 0.36
	}, time.Second, 5*time.Millisecond)

	task, _ = tr.Get(id)
	assert.Equal(t, model.StageOCR, task.Stage)

	clock.Advance(35 * time.Second)
	require.Eventually(t, func() bool {
		task, _ := tr.Get(id)
		return task.Stage == model.StageIndex
	}, time.Second, 5*time.Millisecond)
}

func TestAutoPromotionToDone(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)
	defer tr.Close()

	id := tr.Start(model.UploadTask{Name: "slow.pdf"})
	clock.Advance(151 * time.Second)

	require.Eventually(t, func() bool {
		task, _ := tr.Get(id)
		return task.Stage == model.StageDone
	}, time.Second, 5*time.Millisecond)

	task, _ := tr.Get(id)
	assert.Equal(t, 1.0, task.Progress)
	assert.True(t, task.Done)

	// The loop was cleared at promotion; further ticks change nothing.
	clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	again, _ := tr.Get(id)
	assert.Equal(t, task, again)
}

func TestExternalTerminalStageFreezesTask(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)
	defer tr.Close()

	id := tr.Start(model.UploadTask{Name: "bad.pdf"})

	failed := model.StageError
	msg := "bad file"
	tr.UpdateByID(id, model.TaskUpdate{Stage: &failed, Error: &msg})

	snapshot, ok := tr.Get(id)
	require.True(t, ok)
	assert.Equal(t, model.StageError, snapshot.Stage)
	assert.Equal(t, "bad file", snapshot.Error)
	assert.False(t, snapshot.Done)

	// Ticks after a terminal stage must not resurrect fake progress.
	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	after, _ := tr.Get(id)
	assert.Equal(t, snapshot, after)
}

func TestExternalProgressStopsFakeCurve(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)
	defer tr.Close()

	id := tr.Start(model.UploadTask{Name: "doc.pdf"})

	p := 0.5
	tr.UpdateByID(id, model.TaskUpdate{Progress: &p})

	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)

	task, _ := tr.Get(id)
	assert.Equal(t, 0.5, task.Progress, "authoritative progress must not be overwritten by the fake curve")
}

func TestUpdateByIDClampsProgress(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)
	defer tr.Close()

	id := tr.Start(model.UploadTask{Name: "doc.pdf"})

	high := 1.5
	tr.UpdateByID(id, model.TaskUpdate{Progress: &high})
	task, _ := tr.Get(id)
	assert.Equal(t, 1.0, task.Progress)

	low := -0.2
	tr.UpdateByID(id, model.TaskUpdate{Progress: &low})
	task, _ = tr.Get(id)
	assert.Equal(t, 0.0, task.Progress)
}

func TestUpdateByIDUnknownIDIsNoOp(t *testing.T) {
	tr := newTestTracker(newFakeClock())
	defer tr.Close()

	done := model.StageDone
	tr.UpdateByID("missing", model.TaskUpdate{Stage: &done})
	assert.Zero(t, tr.Count())
}

func TestCompleteByID(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)
	defer tr.Close()

	id := tr.Start(model.UploadTask{Name: "doc.pdf"})
	tr.CompleteByID(id)

	task, _ := tr.Get(id)
	assert.Equal(t, model.StageDone, task.Stage)
	assert.Equal(t, 1.0, task.Progress)
	assert.True(t, task.Done)
}

func TestCancelIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)
	defer tr.Close()

	id := tr.Start(model.UploadTask{Name: "doc.pdf"})
	require.Equal(t, 1, tr.Count())

	tr.Cancel(id)
	assert.Equal(t, 0, tr.Count())

	// Repeat cancel and unknown-id cancel are both safe no-ops.
	tr.Cancel(id)
	tr.Cancel("never-existed")
	assert.Equal(t, 0, tr.Count())
}

func TestListenerReceivesSnapshots(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)
	defer tr.Close()

	var mu sync.Mutex
	var lastCount int
	tr.SetListener(func(tasks []model.UploadTask) {
		mu.Lock()
		lastCount = len(tasks)
		mu.Unlock()
	})

	id := tr.Start(model.UploadTask{Name: "doc.pdf"})
	mu.Lock()
	assert.Equal(t, 1, lastCount)
	mu.Unlock()

	tr.Cancel(id)
	mu.Lock()
	assert.Equal(t, 0, lastCount)
	mu.Unlock()
}

func TestTasksAreSnapshotsOrderedByStart(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)
	defer tr.Close()

	first := tr.Start(model.UploadTask{Name: "a.pdf"})
	clock.Advance(time.Second)
	second := tr.Start(model.UploadTask{Name: "b.pdf"})

	tasks := tr.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, first, tasks[0].ID)
	assert.Equal(t, second, tasks[1].ID)

	// Mutating the snapshot must not leak back into the tracker.
	tasks[0].Name = "mutated"
	task, _ := tr.Get(first)
	assert.Equal(t, "a.pdf", task.Name)
}

func TestCloseStopsEverythingOnce(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)

	id := tr.Start(model.UploadTask{Name: "doc.pdf"})

	tr.Close()
	tr.Close() // second close must be a no-op, not a double channel close

	before, _ := tr.Get(id)
	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	after, _ := tr.Get(id)
	assert.Equal(t, before, after, "tasks must stop advancing after close")

	ignored := tr.Start(model.UploadTask{ID: "late", Name: "late.pdf"})
	assert.Equal(t, "late", ignored)
	_, ok := tr.Get("late")
	assert.False(t, ok, "starts after close are ignored")
}
