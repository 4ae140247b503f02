// Package passes holds the checks run over the IR before any generator
// sees it.
package passes

import (
	"fmt"
	"log/slog"

	"atomgo/internal/ir"
)

// Pass is one analysis over a program.
type Pass interface {
	Name() string
	Run(prog *ir.Program) error
}

// Manager runs passes in registration order and stops at the first
// failure.
type Manager struct {
	passes []Pass
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Add appends p to the pipeline.
func (m *Manager) Add(p Pass) {
	m.passes = append(m.passes, p)
}

// Run executes every pass over prog.
func (m *Manager) Run(prog *ir.Program) error {
	if prog == nil {
		return fmt.Errorf("passes: nil program")
	}
	for _, p := range m.passes {
		slog.Debug("running pass", "pass", p.Name())
		if err := p.Run(prog); err != nil {
			return fmt.Errorf("passes: %s: %w", p.Name(), err)
		}
	}
	return nil
}
