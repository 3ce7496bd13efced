package workflow

import (
	"log/slog"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLedger(t *testing.T, cfg Config) *Ledger {
	t.Helper()
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(1))
	}
	return NewLedger(cfg, slog.Default())
}

// seedMidRun returns a pipeline with stage 1 completed and stage 2 at 65%.
func seedMidRun() []Stage {
	seed := DefaultStages()
	seed[0].Status = StatusCompleted
	seed[0].Progress = 100
	seed[1].Status = StatusInProgress
	seed[1].Progress = 65
	return seed
}

func countInProgress(stages []Stage) int {
	n := 0
	for _, s := range stages {
		if s.Status == StatusInProgress {
			n++
		}
	}
	return n
}

func TestStartPromotesFirstPending(t *testing.T) {
	l := testLedger(t, Config{})

	_, ok := l.Current()
	assert.False(t, ok, "fresh ledger has no stage in progress")

	l.Start()
	cur, ok := l.Current()
	require.True(t, ok)
	assert.Equal(t, 1, cur.ID)
	assert.Equal(t, 0, cur.Progress)
	assert.True(t, l.Running())

	// Start again is a no-op on stage state
	l.Start()
	cur2, _ := l.Current()
	assert.Equal(t, cur, cur2)
}

func TestPauseKeepsStageState(t *testing.T) {
	l := testLedger(t, Config{})
	l.Start()
	l.TickBy(30)

	before, _ := l.Current()
	l.Pause()
	assert.False(t, l.Running())

	after, _ := l.Current()
	assert.Equal(t, before, after)

	// Ticks are ignored while paused
	l.TickBy(30)
	still, _ := l.Current()
	assert.Equal(t, before, still)
}

func TestStageCompletionPromotesNext(t *testing.T) {
	l := testLedger(t, Config{Seed: seedMidRun()})
	l.Start()

	l.TickBy(40)

	stages := l.Stages()
	assert.Equal(t, StatusCompleted, stages[1].Status)
	assert.Equal(t, 100, stages[1].Progress)
	assert.Equal(t, StatusInProgress, stages[2].Status)
	assert.Equal(t, 0, stages[2].Progress)
}

func TestAtMostOneStageInProgress(t *testing.T) {
	l := testLedger(t, Config{Rand: rand.New(rand.NewSource(42))})
	l.Start()

	for i := 0; i < 500; i++ {
		l.Tick()
		require.LessOrEqual(t, countInProgress(l.Stages()), 1, "tick %d", i)
	}
}

func TestOverallProgressMonotone(t *testing.T) {
	l := testLedger(t, Config{Rand: rand.New(rand.NewSource(7))})
	l.Start()

	prev := l.OverallProgress()
	for i := 0; i < 400; i++ {
		l.Tick()
		cur := l.OverallProgress()
		require.GreaterOrEqual(t, cur, prev, "tick %d", i)
		prev = cur
	}

	require.True(t, l.Done(), "400 ticks must finish six stages")
	assert.InDelta(t, 100.0, l.OverallProgress(), 1e-9)

	for _, s := range l.Stages() {
		assert.Equal(t, StatusCompleted, s.Status)
	}
}

func TestOverallProgressHundredOnlyWhenAllCompleted(t *testing.T) {
	seed := DefaultStages()
	for i := range seed {
		seed[i].Status = StatusCompleted
		seed[i].Progress = 100
	}
	seed[5].Status = StatusInProgress
	seed[5].Progress = 99

	l := testLedger(t, Config{Seed: seed})
	assert.Less(t, l.OverallProgress(), 100.0)

	l.Start()
	l.TickBy(1)
	assert.InDelta(t, 100.0, l.OverallProgress(), 1e-9)
}

func TestResetRestoresSeedSnapshot(t *testing.T) {
	l := testLedger(t, Config{})
	want := l.Stages()

	l.Start()
	for i := 0; i < 50; i++ {
		l.Tick()
	}
	require.NotEqual(t, want, l.Stages())

	l.Reset()
	assert.Equal(t, want, l.Stages())
	assert.False(t, l.Running())
}

func TestFailSkipsStage(t *testing.T) {
	l := testLedger(t, Config{})
	l.Start()

	require.NoError(t, l.Fail(1))
	stages := l.Stages()
	assert.Equal(t, StatusError, stages[0].Status)
	assert.Equal(t, StatusInProgress, stages[1].Status, "advancement moves past the failed stage")

	// Errored stage never resumes
	for i := 0; i < 400; i++ {
		l.Tick()
	}
	assert.Equal(t, StatusError, l.Stages()[0].Status)
	assert.True(t, l.Done())

	assert.Error(t, l.Fail(99))
}

func TestFailPendingStageIsSkippedLater(t *testing.T) {
	l := testLedger(t, Config{})
	l.Start()
	require.NoError(t, l.Fail(3))

	for i := 0; i < 400; i++ {
		l.Tick()
	}
	stages := l.Stages()
	assert.Equal(t, StatusError, stages[2].Status)
	assert.Equal(t, StatusCompleted, stages[3].Status)
	assert.Equal(t, StatusCompleted, stages[5].Status)
}

func parseETA(t *testing.T, s string) time.Duration {
	t.Helper()
	if s == "done" {
		return 0
	}
	d, err := time.ParseDuration(strings.TrimPrefix(s, "~"))
	require.NoError(t, err, "eta %q", s)
	return d
}

func TestEstimatedTimeRemainingNonIncreasing(t *testing.T) {
	l := testLedger(t, Config{Rand: rand.New(rand.NewSource(3))})
	l.Start()

	prev := parseETA(t, l.EstimatedTimeRemaining())
	for i := 0; i < 400; i++ {
		l.Tick()
		cur := parseETA(t, l.EstimatedTimeRemaining())
		require.LessOrEqual(t, cur, prev, "tick %d", i)
		prev = cur
	}
	assert.Equal(t, "done", l.EstimatedTimeRemaining())
}

func TestApplyEvent(t *testing.T) {
	l := testLedger(t, Config{})

	l.Apply(StageEvent{StageID: 1, Status: StatusInProgress, Progress: 140})
	assert.Equal(t, 100, l.Stages()[0].Progress, "progress clamped")

	l.Apply(StageEvent{StageID: 1, Status: StatusCompleted})
	assert.Equal(t, StatusCompleted, l.Stages()[0].Status)
	assert.Equal(t, 100, l.Stages()[0].Progress)

	l.Apply(StageEvent{StageID: 2, Status: StatusError})
	l.Apply(StageEvent{StageID: 2, Status: StatusInProgress, Progress: 50})
	assert.Equal(t, StatusError, l.Stages()[1].Status, "errored stage stays terminal")

	// Unknown stage is ignored
	l.Apply(StageEvent{StageID: 42, Status: StatusCompleted})
	assert.Len(t, l.Stages(), 6)
}

func TestApplyPromotionSettlesPreviousStage(t *testing.T) {
	l := testLedger(t, Config{})

	// The stage-1 completion frame is lost; stage 2's promotion arrives next.
	l.Apply(StageEvent{StageID: 1, Status: StatusInProgress, Progress: 40})
	l.Apply(StageEvent{StageID: 2, Status: StatusInProgress, Progress: 10})

	stages := l.Stages()
	require.LessOrEqual(t, countInProgress(stages), 1)
	assert.Equal(t, StatusCompleted, stages[0].Status, "lost completion frame is inferred")
	assert.Equal(t, 100, stages[0].Progress)
	assert.Equal(t, StatusInProgress, stages[1].Status)
	assert.Equal(t, 10, stages[1].Progress)

	// An out-of-order frame for an earlier stage reverts the later one.
	l.Apply(StageEvent{StageID: 1, Status: StatusInProgress, Progress: 50})
	stages = l.Stages()
	require.LessOrEqual(t, countInProgress(stages), 1)
	assert.Equal(t, StatusInProgress, stages[0].Status)
	assert.Equal(t, StatusPending, stages[1].Status)
	assert.Equal(t, 0, stages[1].Progress)
}

func TestApplyRejectsUnknownStatus(t *testing.T) {
	l := testLedger(t, Config{})

	l.Apply(StageEvent{StageID: 1, Status: Status("exploded"), Progress: 50})
	assert.Equal(t, StatusPending, l.Stages()[0].Status)
	assert.Equal(t, 0, l.Stages()[0].Progress)
}

func TestStagesReturnsCopy(t *testing.T) {
	l := testLedger(t, Config{})
	got := l.Stages()
	got[0].Status = StatusError
	got[0].DataSources[0] = "mutated"

	fresh := l.Stages()
	assert.Equal(t, StatusPending, fresh[0].Status)
	assert.Equal(t, "MindsDB", fresh[0].DataSources[0])
}
