package types

import "context"

// Remote is the write contract consumed from the hosted backend. Every call
// may fail with a transient or permanent error; callers that replay queued
// mutations treat both the same way.
type Remote interface {
	Insert(ctx context.Context, table string, record Record) error
	Update(ctx context.Context, table string, key Key, fields Record) error
	Delete(ctx context.Context, table string, key Key) error
}

// RemoteReader fetches whole tables for the offline cache.
type RemoteReader interface {
	Select(ctx context.Context, table string) ([]Record, error)
}
