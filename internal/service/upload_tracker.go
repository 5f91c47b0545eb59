package service

import (
	"sort"
	"sync"
	"time"

	"secretary-backend/internal/config"
	"secretary-backend/internal/model"
	"secretary-backend/pkg/logger"

	"github.com/google/uuid"
)

// trackedTask pairs a task with its tick-loop handle. stop is non-nil exactly
// while the fake-progress loop is alive; it is closed at most once and nilled
// immediately after.
type trackedTask struct {
	task model.UploadTask
	stop chan struct{}
	// external is set once the backend has reported authoritative stage or
	// progress; from then on the fake curve stops touching the task.
	external bool
}

// UploadTracker maintains the set of in-flight file processing jobs. Until
// the backend reports an authoritative stage, each task advances along the
// fabricated progress curve on a fixed tick. Tasks reaching a terminal stage
// have their tick loop cleared, and disposal clears every remaining loop
// exactly once.
type UploadTracker struct {
	mu       sync.RWMutex
	tasks    map[string]*trackedTask
	interval time.Duration
	maxFake  time.Duration
	now      func() time.Time // injectable clock
	listener func([]model.UploadTask)
	closed   bool
}

func NewUploadTracker(cfg *config.UploadConfig) *UploadTracker {
	return &UploadTracker{
		tasks:    make(map[string]*trackedTask),
		interval: cfg.TickInterval,
		maxFake:  cfg.AutoCompleteAfter,
		now:      time.Now,
	}
}

// SetListener registers the observer that receives a structural-copy snapshot
// of the task list after every mutation. The UI uses the task count to drive
// scroll-into-view behavior.
func (t *UploadTracker) SetListener(fn func([]model.UploadTask)) {
	t.mu.Lock()
	t.listener = fn
	t.mu.Unlock()
}

// Start registers a task and begins its fake-progress tick. A missing id is
// assigned. Returns the task id.
func (t *UploadTracker) Start(task model.UploadTask) string {
	t.mu.Lock()

	if t.closed {
		t.mu.Unlock()
		logger.Warnf("Upload tracker is closed, ignoring task %q", task.Name)
		return task.ID
	}

	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	task.Stage = model.StageOCR
	task.Progress = 0
	task.Done = false
	task.StartAt = t.now()

	stop := make(chan struct{})
	t.tasks[task.ID] = &trackedTask{task: task, stop: stop}
	t.mu.Unlock()

	go t.run(task.ID, stop)

	t.notify()
	return task.ID
}

func (t *UploadTracker) run(id string, stop chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.tick(id)
		}
	}
}

// tick recomputes the fabricated progress from elapsed wall-clock time. At
// the fake-progress ceiling the task is auto-promoted to done and its loop
// cleared.
func (t *UploadTracker) tick(id string) {
	t.mu.Lock()
	tt, ok := t.tasks[id]
	if !ok || tt.task.Stage.Terminal() || tt.external {
		t.mu.Unlock()
		return
	}

	elapsed := t.now().Sub(tt.task.StartAt)
	if elapsed >= t.maxFake {
		tt.task.Stage = model.StageDone
		tt.task.Progress = 1
		tt.task.Done = true
		clearTimerLocked(tt)
	} else {
		p := FakeProgress(elapsed)
		tt.task.Progress = p
		tt.task.Stage = StageForProgress(p)
	}
	t.mu.Unlock()

	t.notify()
}

// UpdateByID merges an authoritative external update into a task. A supplied
// stage derives the done flag; a terminal stage clears the tick loop. A
// supplied progress is clamped into [0,1] regardless of caller input.
// Unknown ids are ignored.
func (t *UploadTracker) UpdateByID(id string, patch model.TaskUpdate) {
	t.mu.Lock()
	tt, ok := t.tasks[id]
	if !ok {
		t.mu.Unlock()
		return
	}

	if patch.Stage != nil {
		tt.task.Stage = *patch.Stage
		tt.task.Done = *patch.Stage == model.StageDone
		tt.external = true
		if tt.task.Stage.Terminal() {
			clearTimerLocked(tt)
		}
	}
	if patch.Progress != nil {
		tt.task.Progress = clamp01(*patch.Progress)
		tt.external = true
	}
	if patch.Name != nil {
		tt.task.Name = *patch.Name
	}
	if patch.CMSLink != nil {
		tt.task.CMSLink = *patch.CMSLink
	}
	if patch.UUID != nil {
		tt.task.UUID = *patch.UUID
	}
	if patch.Error != nil {
		tt.task.Error = *patch.Error
	}
	t.mu.Unlock()

	t.notify()
}

// CompleteByID forces a task to done with full progress and clears its loop.
func (t *UploadTracker) CompleteByID(id string) {
	t.mu.Lock()
	tt, ok := t.tasks[id]
	if !ok {
		t.mu.Unlock()
		return
	}

	tt.task.Stage = model.StageDone
	tt.task.Progress = 1
	tt.task.Done = true
	clearTimerLocked(tt)
	t.mu.Unlock()

	t.notify()
}

// Cancel clears any live loop and removes the task. Safe on ids that are
// unknown, already terminal, or already removed.
func (t *UploadTracker) Cancel(id string) {
	t.mu.Lock()
	tt, ok := t.tasks[id]
	if !ok {
		t.mu.Unlock()
		return
	}

	clearTimerLocked(tt)
	delete(t.tasks, id)
	t.mu.Unlock()

	t.notify()
}

// Tasks returns a snapshot of all tracked tasks ordered by start time.
func (t *UploadTracker) Tasks() []model.UploadTask {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.snapshotLocked()
}

// Count returns the number of tracked tasks.
func (t *UploadTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.tasks)
}

// Get returns a tracked task by id.
func (t *UploadTracker) Get(id string) (model.UploadTask, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tt, ok := t.tasks[id]
	if !ok {
		return model.UploadTask{}, false
	}
	return tt.task, true
}

// Close clears every still-live tick loop exactly once. Tasks remain visible
// but stop advancing; further Start calls are ignored.
func (t *UploadTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true

	for _, tt := range t.tasks {
		clearTimerLocked(tt)
	}
}

func (t *UploadTracker) notify() {
	t.mu.RLock()
	listener := t.listener
	var snapshot []model.UploadTask
	if listener != nil {
		snapshot = t.snapshotLocked()
	}
	t.mu.RUnlock()

	if listener != nil {
		listener(snapshot)
	}
}

// snapshotLocked copies the task list so observers never see a partial
// update. Caller holds the mutex.
func (t *UploadTracker) snapshotLocked() []model.UploadTask {
	tasks := make([]model.UploadTask, 0, len(t.tasks))
	for _, tt := range t.tasks {
		tasks = append(tasks, tt.task)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].StartAt.Equal(tasks[j].StartAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].StartAt.Before(tasks[j].StartAt)
	})
	return tasks
}

func clearTimerLocked(tt *trackedTask) {
	if tt.stop != nil {
		close(tt.stop)
		tt.stop = nil
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
