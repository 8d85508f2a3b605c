package engine

import "underwriting-service/internal/models"

// reentrancyGuard rejects nested re-entry into a value-moving entry point
// while an invocation is still in flight. State mutations are applied
// before any external collaborator call, and the guard is held across the
// call so a callback cannot slip back in mid-operation.
type reentrancyGuard struct {
	inProgress bool
}

func (g *reentrancyGuard) enter(op Operation) error {
	if g.inProgress {
		return models.NewStateError("reentrant call rejected for %s", op)
	}
	g.inProgress = true
	return nil
}

func (g *reentrancyGuard) exit() {
	g.inProgress = false
}
