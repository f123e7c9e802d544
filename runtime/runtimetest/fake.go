// Package runtimetest provides an in-memory runtime.Context for tests.
package runtimetest

import (
	"github.com/pkg/errors"

	"github.com/neurlang/s2v/runtime"
	"github.com/neurlang/s2v/tensor"
)

// RunFunc computes the fetches of one Run call.
type RunFunc func(feeds map[string]*tensor.Tensor, fetches, targets []string) (map[string]*tensor.Tensor, error)

// Fake records every call. Run is delegated to OnRun.
type Fake struct {
	OnRun RunFunc

	Resets      []runtime.Options
	Loaded      []string
	InitFeeds   []map[string]*tensor.Tensor
	InitTargets [][]string
	Runs        int
	Saved       []string
	Restored    []string
	Closes      int

	open bool
}

var _ runtime.Context = (*Fake)(nil)

// Reset implements runtime.Context.
func (f *Fake) Reset(opts runtime.Options) error {
	f.Resets = append(f.Resets, opts)
	f.open = false
	return nil
}

// Load implements runtime.Context.
func (f *Fake) Load(graphPath string) error {
	if f.open {
		return errors.New("session already loaded, Reset first")
	}
	f.Loaded = append(f.Loaded, graphPath)
	f.open = true
	return nil
}

// Initialize implements runtime.Context. The recorded feeds include the seed
// bound the way every runtime binds it.
func (f *Fake) Initialize(feeds map[string]*tensor.Tensor, targets []string) error {
	if !f.open {
		return errors.New("no session")
	}
	var opts runtime.Options
	if len(f.Resets) > 0 {
		opts = f.Resets[len(f.Resets)-1]
	}
	f.InitFeeds = append(f.InitFeeds, opts.InitFeeds(feeds))
	f.InitTargets = append(f.InitTargets, targets)
	return nil
}

// Run implements runtime.Context.
func (f *Fake) Run(feeds map[string]*tensor.Tensor, fetches, targets []string) (map[string]*tensor.Tensor, error) {
	if !f.open {
		return nil, errors.New("no session")
	}
	f.Runs++
	if f.OnRun == nil {
		return nil, errors.New("unexpected Run")
	}
	return f.OnRun(feeds, fetches, targets)
}

// Save implements runtime.Context.
func (f *Fake) Save(prefix string) error {
	if !f.open {
		return errors.New("no session")
	}
	f.Saved = append(f.Saved, prefix)
	return nil
}

// Restore implements runtime.Context.
func (f *Fake) Restore(prefix string) error {
	if !f.open {
		return errors.New("no session")
	}
	f.Restored = append(f.Restored, prefix)
	return nil
}

// Close implements runtime.Context.
func (f *Fake) Close() error {
	if f.open {
		f.Closes++
	}
	f.open = false
	return nil
}

// Open reports whether a session is loaded.
func (f *Fake) Open() bool {
	return f.open
}
