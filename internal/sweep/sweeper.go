// File: internal/sweep/sweeper.go

// Package sweep implements the batch deletion loop: select everything
// visible, delete, confirm, observe, repeat until the page runs out of
// items or stops making progress.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/JuliusBairaktaris/photosweep/internal/config"
	"github.com/JuliusBairaktaris/photosweep/internal/poll"
)

// State identifies where the loop is, or how it ended.
type State string

const (
	StateSeeking   State = "seeking"
	StateSelecting State = "selecting"
	StateDeleting  State = "deleting"
	StateVerifying State = "verifying"
	StateDone      State = "done"
	StateHalted    State = "halted"
)

// ErrStalled is returned when the visible item count stops decreasing for
// the configured number of consecutive iterations. The usual cause is the
// backing service throttling deletions; the only recovery is reloading the
// page and starting over.
var ErrStalled = errors.New("item count is no longer decreasing; the service appears to be throttling deletions. Reload the page and re-run")

// Report is the outcome of one sweep invocation. Counters start from zero
// on every Run; nothing carries over between invocations.
type Report struct {
	RunID        string        `json:"run_id"`
	TargetURL    string        `json:"target_url"`
	Policy       string        `json:"policy"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`
	Deleted      int           `json:"deleted"`
	Batches      int           `json:"batches"`
	Stalls       int           `json:"stalls"`
	FailedClicks int           `json:"failed_clicks"`
	// Candidates is only populated in dry-run mode: the number of items the
	// first batch would have selected.
	Candidates int    `json:"candidates,omitempty"`
	State      State  `json:"state"`
	Error      string `json:"error,omitempty"`
}

// Sweeper owns one batch deletion run over an Executor.
type Sweeper struct {
	cfg     config.SweepConfig
	exec    Executor
	logger  *zap.Logger
	limiter *rate.Limiter

	// deleted mirrors the report total for the heartbeat goroutine.
	deleted atomic.Int64
}

const heartbeatInterval = 15 * time.Second

// New creates a Sweeper. The config is assumed validated.
func New(cfg config.SweepConfig, exec Executor, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		cfg:     cfg,
		exec:    exec,
		logger:  logger.Named("sweeper"),
		limiter: rate.NewLimiter(rate.Limit(cfg.BatchRate), 1),
	}
}

// Run executes the batch deletion loop until the page is exhausted, the
// loop halts, or ctx is canceled. The returned Report is always non-nil and
// carries whatever total was reached; err is non-nil only when the run
// ended in StateHalted.
func (s *Sweeper) Run(ctx context.Context) (*Report, error) {
	rep := &Report{
		RunID:     uuid.New().String(),
		TargetURL: s.cfg.TargetURL,
		Policy:    s.policy(),
		StartedAt: time.Now(),
	}
	s.deleted.Store(0)

	s.logger.Info("Sweep starting",
		zap.String("run_id", rep.RunID),
		zap.String("policy", rep.Policy),
		zap.Int("stall_limit", s.cfg.StallLimit),
		zap.Int("max_batches", s.cfg.MaxBatches),
	)

	g, gctx := errgroup.WithContext(ctx)
	loopDone := make(chan struct{})

	g.Go(func() error {
		s.heartbeat(gctx, loopDone)
		return nil
	})

	var runErr error
	g.Go(func() error {
		defer close(loopDone)
		runErr = s.loop(gctx, rep)
		return nil
	})

	_ = g.Wait()

	rep.Duration = time.Since(rep.StartedAt)
	if runErr != nil {
		rep.State = StateHalted
		rep.Error = runErr.Error()
		s.logger.Error("Sweep halted; manual intervention required. Reload the page and re-run to resume.",
			zap.String("run_id", rep.RunID),
			zap.Int("deleted", rep.Deleted),
			zap.Int("batches", rep.Batches),
			zap.Error(runErr),
		)
		return rep, runErr
	}

	rep.State = StateDone
	s.logger.Info("Sweep complete",
		zap.String("run_id", rep.RunID),
		zap.Int("deleted", rep.Deleted),
		zap.Int("batches", rep.Batches),
		zap.Duration("duration", rep.Duration),
	)
	return rep, nil
}

func (s *Sweeper) policy() string {
	switch {
	case s.cfg.DryRun:
		return "dry-run"
	case s.cfg.VerifyRemoval:
		return "verified"
	default:
		return "optimistic"
	}
}

// loop is the state machine. It returns nil when the run ends normally
// (StateDone) and an error when it must halt.
func (s *Sweeper) loop(ctx context.Context, rep *Report) error {
	sel := s.cfg.Selectors
	stallStreak := 0

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		// -- Seeking --
		// A timeout on either wait means the page has nothing (more) to
		// offer: the run ends normally.
		_, err := s.waitFor(ctx, s.cfg.WaitTimeout, fmt.Sprintf("content container %q", sel.Container), sel.Container)
		if err != nil {
			if poll.IsTimeout(err) {
				s.logger.Info("Content container never appeared; treating as empty page.")
				return nil
			}
			return err
		}

		count, err := s.waitFor(ctx, s.cfg.WaitTimeout, fmt.Sprintf("selectable items %q", sel.Checkbox), sel.Checkbox)
		if err != nil {
			if poll.IsTimeout(err) {
				s.logger.Info("No selectable items left.", zap.Int("total_deleted", rep.Deleted))
				return nil
			}
			return err
		}
		s.logger.Info("Batch found", zap.Int("batch", rep.Batches+1), zap.Int("items", count))

		if s.cfg.DryRun {
			rep.Candidates = count
			rep.Batches++
			s.logger.Info("Dry run: stopping before any clicks.", zap.Int("candidates", count))
			return nil
		}

		// -- Selecting --
		// Individual activation failures are tolerated; the batch proceeds
		// with whatever was selected.
		clicked, failed, err := s.exec.ClickAll(ctx, sel.Checkbox)
		if err != nil {
			return fmt.Errorf("selecting batch: %w", err)
		}
		rep.FailedClicks += failed
		if failed > 0 {
			s.logger.Warn("Some selection clicks failed; continuing with partial batch.",
				zap.Int("clicked", clicked), zap.Int("failed", failed))
		}

		// -- Deleting --
		// At this point a missing delete or confirm control is not a benign
		// "no items" signal, so any failure halts the run.
		if err := s.deleteSelected(ctx); err != nil {
			return fmt.Errorf("delete sequence: %w", err)
		}
		rep.Batches++

		if !s.cfg.VerifyRemoval {
			// Optimistic accounting: trust the pre-deletion count.
			rep.Deleted += count
			s.deleted.Store(int64(rep.Deleted))
			if done := s.batchCapReached(rep); done {
				return nil
			}
			continue
		}

		// -- Verifying --
		after, err := s.waitFor(ctx, s.cfg.VerifyTimeout, "post-deletion item recount", sel.Checkbox)
		if err != nil {
			if poll.IsTimeout(err) {
				// Nothing reappeared within the short window: the whole
				// batch is gone. The next Seeking pass decides if the run
				// is over.
				rep.Deleted += count
				s.deleted.Store(int64(rep.Deleted))
				stallStreak = 0
				if done := s.batchCapReached(rep); done {
					return nil
				}
				continue
			}
			return err
		}

		if after < count {
			rep.Deleted += count - after
			s.deleted.Store(int64(rep.Deleted))
			stallStreak = 0
		} else {
			stallStreak++
			rep.Stalls++
			s.logger.Warn("Deletion made no progress",
				zap.Int("before", count), zap.Int("after", after),
				zap.Int("stall_streak", stallStreak), zap.Int("stall_limit", s.cfg.StallLimit))
			if stallStreak >= s.cfg.StallLimit {
				return fmt.Errorf("%d consecutive no-progress batches: %w", stallStreak, ErrStalled)
			}
		}

		if done := s.batchCapReached(rep); done {
			return nil
		}
	}
}

// waitFor polls the element count for selector until at least one match
// exists, returning the count seen.
func (s *Sweeper) waitFor(ctx context.Context, timeout time.Duration, desc, selector string) (int, error) {
	return poll.Until(ctx, poll.Options{
		Interval:    s.cfg.PollInterval,
		Timeout:     timeout,
		Description: desc,
	}, func(ctx context.Context) (int, bool, error) {
		n, err := s.exec.Count(ctx, selector)
		return n, n > 0, err
	})
}

func (s *Sweeper) batchCapReached(rep *Report) bool {
	if s.cfg.MaxBatches > 0 && rep.Batches >= s.cfg.MaxBatches {
		s.logger.Info("Batch cap reached, stopping.", zap.Int("max_batches", s.cfg.MaxBatches))
		return true
	}
	return false
}

// heartbeat periodically logs progress while the loop runs. It reads only
// the atomic counter, never the report.
func (s *Sweeper) heartbeat(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logger.Info("Sweep in progress", zap.Int64("deleted_so_far", s.deleted.Load()))
		}
	}
}
