// Package runtime defines the numerical runtime the s2v driver trains on. A
// Context owns one graph and one session; it is created, reset and closed
// explicitly by its owner.
package runtime

import (
	"github.com/neurlang/s2v/tensor"
)

// Options configures a fresh session.
type Options struct {
	// Seed is the graph level random seed.
	Seed int64
	// AllowSoftPlacement falls back to an available device when the
	// preferred one is missing.
	AllowSoftPlacement bool
	// LogDevicePlacement logs the device of every op.
	LogDevicePlacement bool
	// Threads sizes the intra and inter op thread pools. 0 lets the runtime decide.
	Threads int
	// GPUs caps the number of GPUs the session may use. Negative lets the
	// runtime decide.
	GPUs int
}

// Context is the runtime state of exactly one network.
type Context interface {
	// Reset discards any previous graph and session.
	Reset(opts Options) error
	// Load imports the graph definition at path and opens a session on it.
	Load(graphPath string) error
	// Initialize runs the variable initializers with feeds bound.
	Initialize(feeds map[string]*tensor.Tensor, targets []string) error
	// Run binds feeds, runs targets and returns the fetched ops by name.
	Run(feeds map[string]*tensor.Tensor, fetches, targets []string) (map[string]*tensor.Tensor, error)
	// Save writes every variable to the checkpoint prefix.
	Save(prefix string) error
	// Restore loads every variable from the checkpoint prefix.
	Restore(prefix string) error
	// Close releases the session. Closing without a session is a no-op.
	Close() error
}
