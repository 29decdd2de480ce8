// File: internal/sweep/actions.go
package sweep

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JuliusBairaktaris/photosweep/internal/poll"
)

// deleteSelected drives the two-step delete interaction: wait for the
// primary delete control, click it, wait for the confirmation control
// identified by its exact visible text, click that, then pause for the UI
// to settle. Either wait failing is an error; the caller decides whether it
// is fatal.
func (s *Sweeper) deleteSelected(ctx context.Context) error {
	sel := s.cfg.Selectors

	_, err := poll.Until(ctx, poll.Options{
		Interval:    s.cfg.PollInterval,
		Timeout:     s.cfg.WaitTimeout,
		Description: fmt.Sprintf("delete control %q", sel.DeleteButton),
	}, func(ctx context.Context) (int, bool, error) {
		n, err := s.exec.Count(ctx, sel.DeleteButton)
		return n, n > 0, err
	})
	if err != nil {
		return err
	}
	if err := s.exec.Click(ctx, sel.DeleteButton); err != nil {
		return fmt.Errorf("clicking delete control: %w", err)
	}
	s.logger.Debug("Delete control clicked, waiting for confirmation dialog.")

	_, err = poll.Until(ctx, poll.Options{
		Interval:    s.cfg.PollInterval,
		Timeout:     s.cfg.WaitTimeout,
		Description: fmt.Sprintf("confirmation %s %q", sel.ConfirmScope, sel.ConfirmText),
	}, func(ctx context.Context) (int, bool, error) {
		n, err := s.exec.CountText(ctx, sel.ConfirmScope, sel.ConfirmText)
		return n, n > 0, err
	})
	if err != nil {
		return err
	}
	if err := s.exec.ClickText(ctx, sel.ConfirmScope, sel.ConfirmText); err != nil {
		return fmt.Errorf("clicking confirmation control: %w", err)
	}
	s.logger.Debug("Confirmation clicked.", zap.Duration("settle", s.cfg.ActionDelay))

	// Brief settle pause so the UI can commit the removal before the next
	// observation.
	return s.exec.Sleep(ctx, s.cfg.ActionDelay)
}
