package passes

import (
	"fmt"
	"go/token"

	"atomgo/internal/diag"
	"atomgo/internal/ir"
)

// WidthCheck verifies that operand and result widths agree across every
// instruction and that every integer has a usable width. Nothing is
// converted implicitly downstream, so a mismatch here would otherwise
// surface as a silently truncated signal.
type WidthCheck struct {
	reporter *diag.Reporter
	failed   bool
}

// NewWidthCheck constructs the pass. reporter is optional but recommended
// so the pass can surface precise diagnostics.
func NewWidthCheck(reporter *diag.Reporter) *WidthCheck {
	return &WidthCheck{reporter: reporter}
}

// Name implements the Pass interface.
func (w *WidthCheck) Name() string {
	return "width-check"
}

// Run executes the pass over the entire program.
func (w *WidthCheck) Run(prog *ir.Program) error {
	w.failed = false
	for _, st := range prog.Structs {
		for i, elem := range st.Elems {
			if !validWidths(elem) {
				w.report(token.NoPos, fmt.Sprintf("element %d of %s has a zero-width integer", i, st))
			}
		}
	}
	for _, fn := range prog.Functions {
		for _, b := range fn.Blocks {
			for _, inst := range b.Instrs {
				w.visit(fn, inst)
			}
		}
	}
	if w.failed {
		return fmt.Errorf("width check reported errors")
	}
	return nil
}

func validWidths(t ir.Type) bool {
	switch tt := t.(type) {
	case *ir.IntType:
		return tt.Width > 0
	case *ir.ArrayType:
		return validWidths(tt.Elem)
	case *ir.VectorType:
		return validWidths(tt.Elem)
	}
	return true
}

func (w *WidthCheck) visit(fn *ir.Function, inst *ir.Instruction) {
	ops := inst.Operands
	switch {
	case inst.Op.IsBinary():
		if !ir.Equal(ops[0].Type(), ops[1].Type()) {
			w.report(inst.Pos, fmt.Sprintf("%s: %s operands have mismatched types (%s vs %s)", fn.Name, inst.Op, ops[0].Type(), ops[1].Type()))
		} else if !ir.Equal(inst.Typ, ops[0].Type()) {
			w.report(inst.Pos, fmt.Sprintf("%s: %s produces %s from %s operands", fn.Name, inst.Op, inst.Typ, ops[0].Type()))
		}
	case inst.Op == ir.OpTrunc || inst.Op == ir.OpZExt || inst.Op == ir.OpSExt:
		from, to := ir.BitWidth(ops[0].Type()), ir.BitWidth(inst.Typ)
		if inst.Op == ir.OpTrunc && to >= from || inst.Op != ir.OpTrunc && to <= from {
			w.report(inst.Pos, fmt.Sprintf("%s: %s from %d to %d bits", fn.Name, inst.Op, from, to))
		}
	case inst.Op == ir.OpICmp || inst.Op == ir.OpFCmp:
		if !ir.Equal(ops[0].Type(), ops[1].Type()) {
			w.report(inst.Pos, fmt.Sprintf("%s: compare operands have mismatched types (%s vs %s)", fn.Name, ops[0].Type(), ops[1].Type()))
		}
	case inst.Op == ir.OpSelect:
		if ir.BitWidth(ops[0].Type()) != 1 {
			w.report(inst.Pos, fmt.Sprintf("%s: select condition is %s, not a boolean", fn.Name, ops[0].Type()))
		}
		if !ir.Equal(ops[1].Type(), ops[2].Type()) {
			w.report(inst.Pos, fmt.Sprintf("%s: select arms have mismatched types (%s vs %s)", fn.Name, ops[1].Type(), ops[2].Type()))
		}
	case inst.Op == ir.OpPhi:
		for i, v := range ops {
			if !ir.Equal(v.Type(), inst.Typ) {
				w.report(inst.Pos, fmt.Sprintf("%s: phi input %d is %s, result is %s", fn.Name, i, v.Type(), inst.Typ))
			}
		}
	case inst.Op == ir.OpStore:
		if dest := ir.Deref(ops[1].Type()); dest != nil && !ir.Equal(ops[0].Type(), dest) {
			w.report(inst.Pos, fmt.Sprintf("%s: store of %s into %s", fn.Name, ops[0].Type(), dest))
		}
	case inst.Op == ir.OpRet:
		if len(ops) == 1 && !ir.Equal(ops[0].Type(), fn.Sig.Ret) {
			w.report(inst.Pos, fmt.Sprintf("%s: returns %s, declared %s", fn.Name, ops[0].Type(), fn.Sig.Ret))
		}
	}
}

func (w *WidthCheck) report(pos token.Pos, msg string) {
	w.failed = true
	if w.reporter == nil {
		return
	}
	w.reporter.Error(pos, msg)
}
