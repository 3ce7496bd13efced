package workflow

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// nominalStageDuration is the per-stage estimate used for the remaining-time
// display, matching the backend's ~30s-per-layer figure.
const nominalStageDuration = 30 * time.Second

// Config tunes a Ledger. Zero values fall back to defaults.
type Config struct {
	// Seed is the initial stage snapshot. Nil means DefaultStages().
	Seed []Stage
	// MaxStep is the largest random progress increment per Tick (default 15).
	MaxStep int
	// Rand drives the tick increments. Nil means a time-seeded source.
	Rand *rand.Rand
}

// Ledger owns the ordered stage set. It is the single writer for stage
// state; readers get copies. Safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	stages  []Stage
	seed    []Stage
	running bool
	maxStep int
	rand    *rand.Rand
	logger  *slog.Logger
}

// NewLedger creates a stage ledger from the given config.
func NewLedger(cfg Config, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	seed := cfg.Seed
	if seed == nil {
		seed = DefaultStages()
	}
	maxStep := cfg.MaxStep
	if maxStep <= 0 {
		maxStep = 15
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Ledger{
		stages:  cloneStages(seed),
		seed:    cloneStages(seed),
		maxStep: maxStep,
		rand:    rnd,
		logger:  logger,
	}
}

// Start enables periodic advancement. If no stage is in progress, the first
// pending stage (ascending ID order) becomes in progress. No-op when a stage
// is already running.
func (l *Ledger) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.running = true
	if l.currentLocked() >= 0 {
		return
	}
	if i := l.firstPendingLocked(); i >= 0 {
		l.stages[i].Status = StatusInProgress
		l.stages[i].Progress = 0
		l.logger.Info("stage started", "stage", l.stages[i].ID, "title", l.stages[i].Title)
	}
}

// Pause disables periodic advancement without touching stage state.
func (l *Ledger) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = false
}

// Running reports whether advancement is enabled.
func (l *Ledger) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Reset restores the ledger to its seed snapshot and disables advancement.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stages = cloneStages(l.seed)
	l.running = false
	l.logger.Info("pipeline reset")
}

// Tick advances the current stage by a random increment in [1, MaxStep].
// No-op while advancement is disabled.
func (l *Ledger) Tick() {
	l.mu.Lock()
	step := 1 + l.rand.Intn(l.maxStep)
	l.mu.Unlock()
	l.TickBy(step)
}

// TickBy advances the current in-progress stage by the given number of
// points, clamped at 100. On reaching 100 the stage completes and the next
// pending stage becomes in progress atomically. If no stage is in progress
// but pending stages remain (an errored stage was skipped), the first
// pending stage is promoted instead.
func (l *Ledger) TickBy(step int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running || step <= 0 {
		return
	}

	cur := l.currentLocked()
	if cur < 0 {
		if i := l.firstPendingLocked(); i >= 0 {
			l.stages[i].Status = StatusInProgress
			l.stages[i].Progress = 0
		}
		return
	}

	l.stages[cur].Progress += step
	if l.stages[cur].Progress < 100 {
		return
	}
	l.completeLocked(cur)
}

// Fail forces a stage into the terminal error state. Errored stages are
// skipped by advancement and never resumed. Returns an error for unknown
// stage IDs.
func (l *Ledger) Fail(id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.stages {
		if l.stages[i].ID != id {
			continue
		}
		wasCurrent := l.stages[i].Status == StatusInProgress
		l.stages[i].Status = StatusError
		l.stages[i].Progress = 0
		l.logger.Warn("stage failed", "stage", id, "title", l.stages[i].Title)
		if wasCurrent {
			if n := l.firstPendingLocked(); n >= 0 {
				l.stages[n].Status = StatusInProgress
				l.stages[n].Progress = 0
			}
		}
		return nil
	}
	return fmt.Errorf("unknown stage %d", id)
}

// Stages returns a copy of the current stage set in pipeline order.
func (l *Ledger) Stages() []Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneStages(l.stages)
}

// Current returns the stage currently in progress, if any.
func (l *Ledger) Current() (Stage, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.currentLocked(); i >= 0 {
		return l.stages[i], true
	}
	return Stage{}, false
}

// Done reports whether every stage reached a terminal state.
func (l *Ledger) Done() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.stages {
		switch l.stages[i].Status {
		case StatusCompleted, StatusError:
		default:
			return false
		}
	}
	return true
}

// OverallProgress derives the 0-100 completion percentage as the mean of
// each stage's effective completion fraction. It is recomputed from the
// ledger on every call, never tracked separately.
func (l *Ledger) OverallProgress() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.stages) == 0 {
		return 0
	}
	var sum float64
	for i := range l.stages {
		switch l.stages[i].Status {
		case StatusCompleted:
			sum += 1
		case StatusInProgress:
			sum += float64(l.stages[i].Progress) / 100
		}
	}
	return sum / float64(len(l.stages)) * 100
}

// EstimatedTimeRemaining derives a display string from the work left in the
// pipeline. It is non-increasing as stages complete.
func (l *Ledger) EstimatedTimeRemaining() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var remaining time.Duration
	for i := range l.stages {
		switch l.stages[i].Status {
		case StatusPending:
			remaining += nominalStageDuration
		case StatusInProgress:
			left := 100 - l.stages[i].Progress
			remaining += nominalStageDuration * time.Duration(left) / 100
		}
	}
	if remaining == 0 {
		return "done"
	}
	return "~" + remaining.Round(time.Second).String()
}

// Apply folds an external stage event into the ledger, pinning progress per
// status. Used by the live stage feed; errored stages stay terminal. The
// feed tolerates dropped frames, so a promotion settles any other stage
// still in progress before it lands: an earlier stage is counted completed
// (its completion frame was lost), a later one reverts to pending.
func (l *Ledger) Apply(ev StageEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch ev.Status {
	case StatusPending, StatusInProgress, StatusCompleted, StatusError:
	default:
		l.logger.Warn("stage event with unknown status", "stage", ev.StageID, "status", ev.Status)
		return
	}

	for i := range l.stages {
		if l.stages[i].ID != ev.StageID {
			continue
		}
		if l.stages[i].Status == StatusError {
			return
		}
		if ev.Status == StatusInProgress {
			l.settleCurrentLocked(i)
		}
		l.stages[i].Status = ev.Status
		switch ev.Status {
		case StatusCompleted:
			l.stages[i].Progress = 100
		case StatusInProgress:
			p := ev.Progress
			if p < 0 {
				p = 0
			}
			if p > 100 {
				p = 100
			}
			l.stages[i].Progress = p
		default:
			l.stages[i].Progress = 0
		}
		return
	}
	l.logger.Warn("stage event for unknown stage", "stage", ev.StageID)
}

// settleCurrentLocked closes out any in-progress stage other than the one
// at index next, which is about to take over.
func (l *Ledger) settleCurrentLocked(next int) {
	cur := l.currentLocked()
	if cur < 0 || cur == next {
		return
	}
	if l.stages[cur].ID < l.stages[next].ID {
		l.stages[cur].Status = StatusCompleted
		l.stages[cur].Progress = 100
	} else {
		l.stages[cur].Status = StatusPending
		l.stages[cur].Progress = 0
	}
}

// currentLocked returns the index of the in-progress stage, or -1.
func (l *Ledger) currentLocked() int {
	for i := range l.stages {
		if l.stages[i].Status == StatusInProgress {
			return i
		}
	}
	return -1
}

// firstPendingLocked returns the index of the first pending stage in
// ascending ID order, or -1. Errored stages are skipped.
func (l *Ledger) firstPendingLocked() int {
	for i := range l.stages {
		if l.stages[i].Status == StatusPending {
			return i
		}
	}
	return -1
}

// completeLocked finishes the stage at index i and promotes the next
// pending stage, if one exists.
func (l *Ledger) completeLocked(i int) {
	l.stages[i].Status = StatusCompleted
	l.stages[i].Progress = 100
	l.logger.Info("stage completed", "stage", l.stages[i].ID, "title", l.stages[i].Title)

	if n := l.firstPendingLocked(); n >= 0 {
		l.stages[n].Status = StatusInProgress
		l.stages[n].Progress = 0
	}
}
