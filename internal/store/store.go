// Package store provides the key-path document tree the conversation
// state lives in. Nodes are addressed by slash-separated paths; the last
// segment is the node key, everything before it the parent collection.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrNotFound is returned when no node exists at the requested path.
	ErrNotFound = errors.New("node not found")

	// ErrSkipUpdate can be returned by an AtomicUpdate function to leave
	// the node untouched. The update reports committed=false and no error.
	ErrSkipUpdate = errors.New("skip update")
)

// Node is one child of a collection path.
type Node struct {
	Key   string
	Value json.RawMessage
}

// UpdateFunc computes the next value of a node from its current one.
// current is nil when the node does not exist yet.
type UpdateFunc func(current json.RawMessage) (next interface{}, err error)

// Tree is the document store abstraction. AtomicUpdate is the sole
// mutual-exclusion primitive: every read-modify-write of shared state
// must go through it.
type Tree interface {
	// Get unmarshals the node at path into out.
	Get(ctx context.Context, path string, out interface{}) error

	// Set stores value at path, replacing any existing node.
	Set(ctx context.Context, path string, value interface{}) error

	// Update merges fields into the node at path, creating it if absent.
	// Existing fields not named in fields are preserved.
	Update(ctx context.Context, path string, fields map[string]interface{}) error

	// Remove deletes the node at path and its entire subtree.
	Remove(ctx context.Context, path string) error

	// PushKey generates a chronologically ordered unique child key.
	PushKey() string

	// AtomicUpdate applies fn to the node at path under mutual exclusion
	// and returns the resulting value. committed is false when fn opted
	// out via ErrSkipUpdate.
	AtomicUpdate(ctx context.Context, path string, fn UpdateFunc) (value json.RawMessage, committed bool, err error)

	// RangeQuery returns the last n children of path when ordered
	// ascending by the numeric field orderBy. Results come back in
	// ascending order.
	RangeQuery(ctx context.Context, path string, orderBy string, limitLast int) ([]Node, error)
}
