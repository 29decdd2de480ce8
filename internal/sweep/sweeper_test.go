// File: internal/sweep/sweeper_test.go
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/JuliusBairaktaris/photosweep/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testSweepConfig() config.SweepConfig {
	return config.SweepConfig{
		TargetURL:     "https://photos.example.com/",
		PollInterval:  5 * time.Millisecond,
		WaitTimeout:   400 * time.Millisecond,
		VerifyTimeout: 50 * time.Millisecond,
		ActionDelay:   time.Millisecond,
		StallLimit:    3,
		MaxBatches:    0,
		BatchRate:     1000,
		VerifyRemoval: true,
		Selectors: config.SelectorConfig{
			Container:    `div[role="main"]`,
			Checkbox:     `div[role="checkbox"]`,
			DeleteButton: `button[aria-label="Delete"]`,
			ConfirmText:  "Move to trash",
			ConfirmScope: "button",
		},
	}
}

// fakeUI simulates a lazily-loading photo grid: up to pageSize items are
// rendered at a time, deletion empties the view, and the next page of items
// appears only after refillDelay (modelling the re-render latency a real
// page shows after a bulk removal).
type fakeUI struct {
	mu sync.Mutex

	sel config.SelectorConfig

	remaining int // items left in the library
	pageSize  int // items the grid renders at once
	loaded    int // items currently visible
	selected  int // items currently checked

	refillDelay time.Duration
	refillAt    time.Time

	deleteClicked bool
	// confirmMissing makes the confirmation control never appear.
	confirmMissing bool
	// deleteNoop makes the confirm click remove nothing (throttled backend).
	deleteNoop bool
	// failNextClicks fails this many selection clicks, once.
	failNextClicks int
	// containerMissing hides the whole grid container.
	containerMissing bool
}

func newFakeUI(items, pageSize int, sel config.SelectorConfig) *fakeUI {
	return &fakeUI{
		remaining:   items,
		pageSize:    pageSize,
		sel:         sel,
		refillDelay: 150 * time.Millisecond,
	}
}

var _ Executor = (*fakeUI)(nil)

func (f *fakeUI) Count(_ context.Context, selector string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch selector {
	case f.sel.Container:
		if f.containerMissing {
			return 0, nil
		}
		return 1, nil
	case f.sel.Checkbox:
		f.maybeRefill()
		return f.loaded, nil
	case f.sel.DeleteButton:
		if f.selected > 0 {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unknown selector %q", selector)
	}
}

// maybeRefill renders the next page once the refill latency has passed.
// Caller holds the lock.
func (f *fakeUI) maybeRefill() {
	if f.loaded == 0 && f.remaining > 0 && time.Now().After(f.refillAt) {
		f.loaded = min(f.pageSize, f.remaining)
		f.selected = 0
	}
}

func (f *fakeUI) ClickAll(_ context.Context, selector string) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if selector != f.sel.Checkbox {
		return 0, 0, fmt.Errorf("unexpected ClickAll selector %q", selector)
	}
	failed := min(f.failNextClicks, f.loaded)
	f.failNextClicks = 0
	f.selected = f.loaded - failed
	return f.selected, failed, nil
}

func (f *fakeUI) Click(_ context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if selector != f.sel.DeleteButton {
		return fmt.Errorf("unexpected Click selector %q", selector)
	}
	if f.selected == 0 {
		return errors.New("delete control not present without a selection")
	}
	f.deleteClicked = true
	return nil
}

func (f *fakeUI) CountText(_ context.Context, scope, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if scope != f.sel.ConfirmScope || text != f.sel.ConfirmText {
		return 0, nil
	}
	if f.deleteClicked && !f.confirmMissing {
		return 1, nil
	}
	return 0, nil
}

func (f *fakeUI) ClickText(_ context.Context, scope, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.deleteClicked {
		return errors.New("confirmation dialog is not open")
	}
	f.deleteClicked = false
	if f.deleteNoop {
		// The backend silently drops the deletion; the view keeps its items.
		f.selected = 0
		return nil
	}
	f.remaining -= f.selected
	f.loaded -= f.selected
	f.selected = 0
	f.refillAt = time.Now().Add(f.refillDelay)
	return nil
}

func (f *fakeUI) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func TestSweeper_DeletesEverythingAcrossBatches(t *testing.T) {
	cfg := testSweepConfig()
	ui := newFakeUI(100, 40, cfg.Selectors)
	s := New(cfg, ui, zap.NewNop())

	rep, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateDone, rep.State)
	assert.Equal(t, 100, rep.Deleted)
	assert.Equal(t, 3, rep.Batches) // 40 + 40 + 20
	assert.Equal(t, 0, rep.Stalls)
	assert.Equal(t, "verified", rep.Policy)
	assert.NotEmpty(t, rep.RunID)
}

func TestSweeper_EmptyLibraryEndsInDone(t *testing.T) {
	cfg := testSweepConfig()
	ui := newFakeUI(0, 40, cfg.Selectors)
	s := New(cfg, ui, zap.NewNop())

	rep, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateDone, rep.State)
	assert.Equal(t, 0, rep.Deleted)
	assert.Equal(t, 0, rep.Batches)
	assert.Empty(t, rep.Error)
}

func TestSweeper_MissingContainerEndsInDone(t *testing.T) {
	cfg := testSweepConfig()
	ui := newFakeUI(50, 40, cfg.Selectors)
	ui.containerMissing = true
	s := New(cfg, ui, zap.NewNop())

	rep, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateDone, rep.State)
	assert.Equal(t, 0, rep.Deleted)
}

func TestSweeper_HaltsAfterStallLimit(t *testing.T) {
	cfg := testSweepConfig()
	ui := newFakeUI(40, 40, cfg.Selectors)
	ui.deleteNoop = true
	s := New(cfg, ui, zap.NewNop())

	rep, err := s.Run(context.Background())

	require.Error(t, err)
	require.ErrorIs(t, err, ErrStalled)
	assert.Equal(t, StateHalted, rep.State)
	assert.Equal(t, 0, rep.Deleted)
	// Exactly StallLimit retries, never more.
	assert.Equal(t, cfg.StallLimit, rep.Stalls)
	assert.Equal(t, cfg.StallLimit, rep.Batches)
	assert.Contains(t, rep.Error, "no longer decreasing")
}

func TestSweeper_ToleratesIndividualClickFailures(t *testing.T) {
	cfg := testSweepConfig()
	ui := newFakeUI(10, 10, cfg.Selectors)
	ui.failNextClicks = 2
	s := New(cfg, ui, zap.NewNop())

	rep, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateDone, rep.State)
	assert.Equal(t, 10, rep.Deleted, "items whose selection click failed are picked up by a later batch")
	assert.Equal(t, 2, rep.FailedClicks)
	assert.Equal(t, 2, rep.Batches)
}

func TestSweeper_ConfirmationNeverAppearsHalts(t *testing.T) {
	cfg := testSweepConfig()
	cfg.WaitTimeout = 60 * time.Millisecond
	ui := newFakeUI(20, 40, cfg.Selectors)
	ui.confirmMissing = true
	s := New(cfg, ui, zap.NewNop())

	rep, err := s.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, StateHalted, rep.State)
	assert.Contains(t, err.Error(), "confirmation")
	assert.Equal(t, 0, rep.Deleted)
}

func TestSweeper_MaxBatchesCapsTheRun(t *testing.T) {
	cfg := testSweepConfig()
	cfg.MaxBatches = 1
	ui := newFakeUI(100, 40, cfg.Selectors)
	s := New(cfg, ui, zap.NewNop())

	rep, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateDone, rep.State)
	assert.Equal(t, 1, rep.Batches)
	assert.Equal(t, 40, rep.Deleted)
}

func TestSweeper_OptimisticPolicySumsPreDeletionCounts(t *testing.T) {
	cfg := testSweepConfig()
	cfg.VerifyRemoval = false
	ui := newFakeUI(30, 40, cfg.Selectors)
	s := New(cfg, ui, zap.NewNop())

	rep, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateDone, rep.State)
	assert.Equal(t, "optimistic", rep.Policy)
	assert.Equal(t, 30, rep.Deleted)
	assert.Equal(t, 0, rep.Stalls)
}

func TestSweeper_DryRunClicksNothing(t *testing.T) {
	cfg := testSweepConfig()
	cfg.DryRun = true
	ui := newFakeUI(100, 40, cfg.Selectors)
	s := New(cfg, ui, zap.NewNop())

	rep, err := s.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateDone, rep.State)
	assert.Equal(t, "dry-run", rep.Policy)
	assert.Equal(t, 40, rep.Candidates)
	assert.Equal(t, 0, rep.Deleted)
	assert.Equal(t, 100, ui.remaining, "dry run must not delete anything")
}

func TestSweeper_FreshCountersAfterHalt(t *testing.T) {
	cfg := testSweepConfig()
	ui := newFakeUI(40, 40, cfg.Selectors)
	ui.deleteNoop = true
	s := New(cfg, ui, zap.NewNop())

	rep1, err := s.Run(context.Background())
	require.ErrorIs(t, err, ErrStalled)
	require.Equal(t, cfg.StallLimit, rep1.Stalls)

	// The operator "reloads the page": the backend accepts deletions again.
	ui.mu.Lock()
	ui.deleteNoop = false
	ui.mu.Unlock()

	rep2, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, rep1.RunID, rep2.RunID)
	assert.Equal(t, StateDone, rep2.State)
	assert.Equal(t, 40, rep2.Deleted)
	assert.Equal(t, 0, rep2.Stalls, "stall counters must not carry over between runs")
}

func TestSweeper_ContextCancellationStopsTheLoop(t *testing.T) {
	cfg := testSweepConfig()
	ui := newFakeUI(1_000_000, 40, cfg.Selectors)
	s := New(cfg, ui, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	rep, err := s.Run(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateHalted, rep.State)
}
