package passes

import (
	"fmt"
	"go/token"

	"atomgo/internal/diag"
	"atomgo/internal/ir"
)

// ShapeCheck rejects IR the generators cannot lower: blocks without a
// final terminator, phis that disagree with the block's predecessors,
// volatile memory access, address chains with run-time indices and
// methods whose receiver is not a pointer to the owning struct.
type ShapeCheck struct {
	reporter *diag.Reporter
	failed   bool
}

// NewShapeCheck constructs the pass.
func NewShapeCheck(reporter *diag.Reporter) *ShapeCheck {
	return &ShapeCheck{reporter: reporter}
}

// Name implements the Pass interface.
func (s *ShapeCheck) Name() string {
	return "shape-check"
}

// Run executes the pass over the entire program.
func (s *ShapeCheck) Run(prog *ir.Program) error {
	s.failed = false
	for _, m := range prog.Methods {
		fn := m.Func
		if len(fn.Params) == 0 {
			s.report(fn.Pos, fmt.Sprintf("%s: method has no receiver", fn.Name))
			continue
		}
		if recv := ir.Deref(fn.Params[0].Type()); recv != m.Owner {
			s.report(fn.Pos, fmt.Sprintf("%s: receiver is %s, expected a pointer to %s", fn.Name, fn.Params[0].Type(), m.Owner))
		}
	}
	for _, fn := range prog.Functions {
		for _, b := range fn.Blocks {
			s.block(fn, b)
		}
	}
	if s.failed {
		return fmt.Errorf("shape check reported errors")
	}
	return nil
}

func (s *ShapeCheck) block(fn *ir.Function, b *ir.Block) {
	if b.Terminator() == nil {
		s.report(fn.Pos, fmt.Sprintf("%s: block %s does not end in a terminator", fn.Name, b))
	}
	leading := true
	for i, inst := range b.Instrs {
		if inst.Op.IsTerminator() && i != len(b.Instrs)-1 {
			s.report(inst.Pos, fmt.Sprintf("%s: %s in the middle of block %s", fn.Name, inst.Op, b))
		}
		if inst.Op != ir.OpPhi {
			leading = false
		}
		switch inst.Op {
		case ir.OpPhi:
			if !leading {
				s.report(inst.Pos, fmt.Sprintf("%s: phi after other instructions in block %s", fn.Name, b))
			}
			s.phi(fn, b, inst)
		case ir.OpLoad, ir.OpStore:
			if inst.Volatile {
				s.report(inst.Pos, fmt.Sprintf("%s: volatile %s", fn.Name, inst.Op))
			}
		case ir.OpGEP:
			for _, idx := range inst.Operands[1:] {
				if _, ok := idx.(*ir.Const); !ok {
					s.report(inst.Pos, fmt.Sprintf("%s: address index %s is not a constant", fn.Name, idx.Name()))
				}
			}
		}
	}
}

func (s *ShapeCheck) phi(fn *ir.Function, b *ir.Block, inst *ir.Instruction) {
	if len(inst.Operands) != len(inst.Incoming) {
		s.report(inst.Pos, fmt.Sprintf("%s: phi has %d values for %d edges", fn.Name, len(inst.Operands), len(inst.Incoming)))
		return
	}
	preds := make(map[*ir.Block]bool, len(b.Preds))
	for _, p := range b.Preds {
		preds[p] = true
	}
	for _, in := range inst.Incoming {
		if !preds[in] {
			s.report(inst.Pos, fmt.Sprintf("%s: phi in %s names %s, which is not a predecessor", fn.Name, b, in))
		}
	}
	if len(inst.Incoming) != len(b.Preds) {
		s.report(inst.Pos, fmt.Sprintf("%s: phi in %s covers %d of %d predecessors", fn.Name, b, len(inst.Incoming), len(b.Preds)))
	}
}

func (s *ShapeCheck) report(pos token.Pos, msg string) {
	s.failed = true
	if s.reporter == nil {
		return
	}
	s.reporter.Error(pos, msg)
}
