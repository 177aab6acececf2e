package job

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"sheetsight/internal/store"
)

// Refiner creates follow-up jobs that carry a completed analysis
// forward: same workbook, prior dashboard as context, new instructions.
// The refinement is a fully independent record with its own id, never
// a mutation of the prior job, which keeps the single-writer invariant
// and gives the user a navigable history of iterations.
type Refiner struct {
	supervisor *Supervisor
	log        *slog.Logger
}

// NewRefiner wires the refinement coordinator.
func NewRefiner(supervisor *Supervisor, log *slog.Logger) *Refiner {
	return &Refiner{supervisor: supervisor, log: log}
}

// CreateRefinement validates the prior job and delegates to the
// supervisor's creation path with refinement context attached.
//
// The prior job must belong to the caller and be in a terminal success
// state (completed or partial); a job that is still running or ended
// in error fails with ErrInvalidState and no new job is created.
func (r *Refiner) CreateRefinement(ctx context.Context, priorJobID, instructions, ownerID string, notify store.NotificationPrefs) (string, error) {
	if ownerID == "" {
		ownerID = GuestOwner
	}
	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		return "", fmt.Errorf("refinement instructions are required: %w", ErrInvalidState)
	}

	prior, err := r.supervisor.lookup(ctx, priorJobID)
	if err != nil {
		return "", err
	}
	if prior.OwnerID != ownerID {
		// Do not leak other owners' job ids.
		return "", ErrNotFound
	}
	if prior.Status != store.StatusCompleted && prior.Status != store.StatusPartial {
		return "", fmt.Errorf("job %s is %s, refinement requires a finished analysis: %w",
			priorJobID, prior.Status, ErrInvalidState)
	}

	id, err := r.supervisor.Create(ctx, CreateParams{
		OwnerID: ownerID,
		Mode:    store.ModeRefinement,
		Input: store.InputRef{
			FilePath:     prior.Input.FilePath,
			Filename:     prior.Input.Filename,
			Instructions: instructions,
		},
		Refinement: &store.RefinementContext{
			PriorJobID:        priorJobID,
			PriorResult:       prior.ResultRef,
			PriorInstructions: prior.Input.Instructions,
		},
		Notify: notify,
	})
	if err != nil {
		return "", err
	}

	r.log.Info("refinement created", "job_id", id, "prior_job_id", priorJobID, "owner_id", ownerID)
	return id, nil
}
