package render

import (
	"fmt"
	"strings"

	"atomgo/internal/class"
	"atomgo/internal/diag"
	"atomgo/internal/ir"
)

func (r *Reconstructor) gep(inst *ir.Instruction) string {
	if _, ok := r.layout.Offset(inst); !ok {
		diag.Fail(diag.Unsupported, r.subject(), "non-constant index in address chain")
	}
	types := ir.GEPTypes(inst)
	idx := make([]int, 0, len(inst.Operands)-1)
	for _, op := range inst.Operands[1:] {
		idx = append(idx, int(op.(*ir.Const).SExt()))
	}
	if r.mode == Hardware {
		return r.signalPath(inst.Operands[0], types, idx)
	}
	return r.memberPath(inst.Operands[0], types, idx)
}

// vectored returns the repeat count of element n of st.
func (r *Reconstructor) vectored(st *ir.StructType, n int) int {
	c := r.res.Class(r.res.ClassOf(st))
	if n < len(c.Fields) {
		return c.Fields[n].Count
	}
	return 0
}

// memberPath renders a software address: "&base.b.c" for named storage,
// "&this->b.c" through a pointer.
func (r *Reconstructor) memberPath(base ir.Value, types []ir.Type, idx []int) string {
	expr := r.Value(base)
	object := strings.HasPrefix(expr, "&")
	expr = strings.TrimPrefix(expr, "&")

	k := 1
	switch {
	case idx[0] != 0:
		if object {
			expr = "(&" + expr + ")"
		}
		expr = paren(expr) + fmt.Sprintf("[%d]", idx[0])
		object = true
	case !object && len(idx) > 1 && isSequence(types[1]):
		expr = paren(expr) + fmt.Sprintf("[%d]", idx[1])
		object = true
		k = 2
	}
	for j := k; j < len(idx); j++ {
		n := idx[j]
		switch ct := types[j].(type) {
		case *ir.StructType:
			name, named := class.FieldName(ct, n)
			if !named {
				continue
			}
			if r.vectored(ct, n) > 0 && j+1 < len(idx) && isSequence(types[j+1]) {
				j++
				name += fmt.Sprint(idx[j])
			}
			if object {
				expr += "." + name
			} else {
				expr += "->" + name
			}
		default:
			if !object {
				expr = "(*" + expr + ")"
			}
			expr += fmt.Sprintf("[%d]", n)
		}
		object = true
	}
	if !object {
		return expr
	}
	return "&" + expr
}

// signalPath renders a hardware location: instance signals joined with the
// separator, register arrays indexed, bit-vector members sliced.
func (r *Reconstructor) signalPath(base ir.Value, types []ir.Type, idx []int) string {
	if idx[0] != 0 {
		diag.Fail(diag.Unsupported, r.subject(), "pointer offset %d in hardware address", idx[0])
	}
	var expr string
	if a, ok := base.(*ir.Argument); !ok || a.Index != 0 {
		expr = r.Value(base)
	}
	packed, bit := isBitVector(types[1]), 0
	for j := 1; j < len(idx); j++ {
		n := idx[j]
		switch ct := types[j].(type) {
		case *ir.StructType:
			if packed {
				bit += bitOffset(ct, n)
				continue
			}
			name, named := class.FieldName(ct, n)
			if !named {
				continue
			}
			if r.vectored(ct, n) > 0 && j+1 < len(idx) && isSequence(types[j+1]) {
				j++
				name += fmt.Sprint(idx[j])
			}
			if expr == "" {
				expr = name
			} else {
				expr += class.Separator + name
			}
		default:
			if packed {
				bit += n * ir.BitWidth(elemOf(ct))
				continue
			}
			expr += fmt.Sprintf("[%d]", n)
		}
		if !packed && j+1 < len(types) && isBitVector(types[j+1]) {
			packed, bit = true, 0
			if j+1 == len(idx) {
				break
			}
		}
	}
	if packed && bitVectorDepth(types, idx) {
		expr += slice(bit, ir.BitWidth(types[len(types)-1]))
	}
	return expr
}

// bitVectorDepth reports whether the chain descends below the outermost
// bit-vector struct it enters.
func bitVectorDepth(types []ir.Type, idx []int) bool {
	for j := 1; j < len(idx); j++ {
		if isBitVector(types[j]) {
			return true
		}
	}
	return false
}

func isSequence(t ir.Type) bool {
	switch t.(type) {
	case *ir.ArrayType, *ir.VectorType:
		return true
	}
	return false
}

func isBitVector(t ir.Type) bool {
	st, ok := t.(*ir.StructType)
	return ok && st.Kind == ir.StructBitVector
}

func elemOf(t ir.Type) ir.Type {
	switch tt := t.(type) {
	case *ir.ArrayType:
		return tt.Elem
	case *ir.VectorType:
		return tt.Elem
	}
	return t
}
