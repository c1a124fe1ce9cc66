package watch

import "context"

// Store persists watches for restart recovery.
type Store interface {
	LoadWatches(ctx context.Context) ([]*Watch, error)
	UpsertWatch(ctx context.Context, w *Watch) error
	DeleteWatch(ctx context.Context, id string) error
}
