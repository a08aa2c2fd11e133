// Package workflow drives the spec phase state machine. The orchestrator
// persists the new phase and publishes a phase-changed event; all side
// effects (document commits, branch creation, issue sync, PR automation)
// live in the registered event bus handlers.
package workflow

import (
	"context"
	"fmt"

	"github.com/sddkit/specsync/internal/eventbus"
	"github.com/sddkit/specsync/internal/storage"
	"github.com/sddkit/specsync/internal/types"
)

// Orchestrator moves specs through the phase state machine.
type Orchestrator struct {
	store storage.Store
	bus   *eventbus.Bus
}

// New creates an orchestrator. The bus and store are explicit dependencies;
// only the outermost entry point wires in the process-wide defaults.
func New(store storage.Store, bus *eventbus.Bus) *Orchestrator {
	return &Orchestrator{store: store, bus: bus}
}

// AdvanceResult reports the outcome of a phase transition.
type AdvanceResult struct {
	OldPhase types.Phase
	NewPhase types.Phase
	Branch   string // branch created or checked out by the branch handler
	PRURL    string // pull request opened by the completion handler
	Warnings []string
}

// Advance moves a spec to newPhase.
//
// The phase is persisted before the event is published. Handler failures are
// normally warnings, with one exception: the branch handler's failure on
// tasks→implementation has already rolled the persisted phase back by the
// time Advance inspects the result, and Advance surfaces it as a fatal
// error — phase and branch state never diverge.
func (o *Orchestrator) Advance(ctx context.Context, specID string, newPhase types.Phase) (*AdvanceResult, error) {
	if !newPhase.IsValid() {
		return nil, fmt.Errorf("unknown phase %q", string(newPhase))
	}

	spec, err := o.store.GetSpec(ctx, specID)
	if err != nil {
		return nil, fmt.Errorf("load spec %s: %w", specID, err)
	}
	oldPhase := spec.Phase
	if oldPhase.IsTerminal() {
		return nil, fmt.Errorf("spec %s is %s; no further transitions", specID, oldPhase)
	}
	if newPhase == oldPhase {
		return nil, fmt.Errorf("spec %s is already in phase %s", specID, oldPhase)
	}

	if err := o.store.UpdateSpecPhase(ctx, specID, newPhase); err != nil {
		return nil, fmt.Errorf("persist phase: %w", err)
	}

	event := eventbus.NewPhaseChanged(specID, oldPhase, newPhase)
	result, err := o.bus.Publish(ctx, event)
	if err != nil {
		return nil, err
	}

	advance := &AdvanceResult{OldPhase: oldPhase, NewPhase: newPhase}
	advance.Branch, _ = result.Branch()
	advance.PRURL = result.PRURL()
	advance.Warnings = result.Warnings()

	// The branch handler rolls the phase back itself before failing; its
	// recorded error is the one handler failure that fails the transition.
	if err := result.ErrorFor(HandlerBranch); err != nil {
		return advance, fmt.Errorf("branch creation failed, phase rolled back to %s: %w", oldPhase, err)
	}
	return advance, nil
}
