package core

import "context"

// UserDirectory resolves user IDs to display names in batch.
// IDs with no matching user are simply absent from the result.
type UserDirectory interface {
	DisplayNames(ctx context.Context, ids []string) (map[string]string, error)
}
