// Package types defines the Store and Remote interfaces, the mutation
// variants replayed by the sync queue, the scoring and baseline entities,
// and the standard error values shared by every caretrack package.
package types
