package service

import (
	"context"

	"familypoints/internal/metrics"

	log "github.com/sirupsen/logrus"
)

// sagaStep is one forward action and the action that undoes it.
// A nil compensate means the step has nothing to undo.
type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// saga runs dependent store writes in order. When a step fails, the completed
// steps are undone in reverse order and the step's error is returned unchanged.
// If an undo fails too, a *CompensationError carrying both errors is returned.
type saga struct {
	name  string
	steps []sagaStep
}

func newSaga(name string, steps ...sagaStep) *saga {
	return &saga{name: name, steps: steps}
}

func (s *saga) run(ctx context.Context) error {
	for i, step := range s.steps {
		err := step.run(ctx)
		if err == nil {
			continue
		}

		logger := log.WithFields(log.Fields{"saga": s.name, "step": step.name, "error": err})
		if i == 0 {
			logger.Debug("Saga failed on first step")
			return err
		}

		logger.Warn("Saga step failed, compensating")
		rollbackErr := s.compensate(ctx, i)
		metrics.RecordCompensation(s.name, rollbackErr)
		if rollbackErr != nil {
			log.WithFields(log.Fields{"saga": s.name, "error": rollbackErr}).Error("Saga compensation failed")
			return &CompensationError{Saga: s.name, Cause: err, RollbackErr: rollbackErr}
		}
		return err
	}
	return nil
}

// compensate undoes steps [0, failed) newest first, stopping at the first undo that fails
func (s *saga) compensate(ctx context.Context, failed int) error {
	for j := failed - 1; j >= 0; j-- {
		step := s.steps[j]
		if step.compensate == nil {
			continue
		}
		if err := step.compensate(ctx); err != nil {
			return err
		}
	}
	return nil
}
