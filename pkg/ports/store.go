package ports

import (
	"context"

	"github.com/aretw0/relay/pkg/domain"
)

// CheckpointStore persists conversation state between turns.
type CheckpointStore interface {
	// Save persists the state under the given checkpoint ID.
	Save(ctx context.Context, checkpointID string, state *domain.ConversationState) error

	// Load retrieves the state for a checkpoint ID.
	// Returns domain.ErrCheckpointNotFound if it does not exist.
	Load(ctx context.Context, checkpointID string) (*domain.ConversationState, error)

	// Delete removes the checkpoint. Deleting a missing checkpoint is not an error.
	Delete(ctx context.Context, checkpointID string) error

	// List returns the IDs of all stored checkpoints.
	List(ctx context.Context) ([]string, error)
}
