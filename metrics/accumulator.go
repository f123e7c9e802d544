// Package metrics accumulates per batch training metrics and computes the
// pair AUC used for model selection.
package metrics

import (
	"fmt"
	"strings"

	"github.com/montanaflynn/stats"
)

// Accumulator collects per batch values by metric name, keeping the order in
// which names were first seen.
type Accumulator struct {
	names  []string
	values map[string][]float64
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{values: map[string][]float64{}}
}

// Add appends v to the values of name.
func (a *Accumulator) Add(name string, v float64) {
	if _, ok := a.values[name]; !ok {
		a.names = append(a.names, name)
	}
	a.values[name] = append(a.values[name], v)
}

// Len is the number of values collected for name.
func (a *Accumulator) Len(name string) int {
	return len(a.values[name])
}

// Empty reports whether nothing was collected since the last reset.
func (a *Accumulator) Empty() bool {
	return len(a.names) == 0
}

// Mean is a named average.
type Mean struct {
	Name  string
	Value float64
}

// Means averages every metric, in first seen order.
func (a *Accumulator) Means() []Mean {
	out := make([]Mean, 0, len(a.names))
	for _, name := range a.names {
		m, err := stats.Mean(a.values[name])
		if err != nil {
			continue
		}
		out = append(out, Mean{Name: name, Value: m})
	}
	return out
}

// String formats the means as " name 0.1234,  other 0.5678".
func (a *Accumulator) String() string {
	parts := make([]string, 0, len(a.names))
	for _, m := range a.Means() {
		parts = append(parts, fmt.Sprintf(" %s %.4f", m.Name, m.Value))
	}
	return strings.Join(parts, ", ")
}

// Reset drops everything collected.
func (a *Accumulator) Reset() {
	a.names = nil
	a.values = map[string][]float64{}
}
