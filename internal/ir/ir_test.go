package ir_test

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"atomgo/internal/ir"
	"atomgo/internal/ir/irtest"
)

func TestDumpCounter(t *testing.T) {
	var buf bytes.Buffer
	ir.Dump(irtest.Counter(), &buf)
	want := `%Counter = class { i8 } fields="counter"
  method incr -> @Counter.incr
  method read -> @Counter.read

define void @Counter.incr(%Counter* %this) {
entry:
  %0 = getelementptr %this, 0, 0
  %1 = load i8, %0
  %2 = add i8 %1, 1
  store %2, %0
  ret void
}

define i8 @Counter.read(%Counter* %this) {
entry:
  %0 = getelementptr %this, 0, 0
  %1 = load i8, %0
  ret %1
}

`
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("dump mismatch (-want +got):\n%s", diff)
	}
}

func TestDumpNilProgram(t *testing.T) {
	var buf bytes.Buffer
	ir.Dump(nil, &buf)
	if buf.String() != "<nil program>\n" {
		t.Fatalf("expected nil marker, got %q", buf.String())
	}
}

func TestConditionsDiamond(t *testing.T) {
	prog := ir.NewProgram()
	st := prog.AddStruct(&ir.StructType{Name: "Pick", Elems: []ir.Type{ir.I32}, FieldMap: "v"})
	fn, _ := irtest.Method(prog, st, "pick", ir.I32, ir.Param("c", ir.I1))
	entry := fn.NewBlock("entry")
	then := fn.NewBlock("then")
	els := fn.NewBlock("else")
	join := fn.NewBlock("join")
	c := fn.Params[1]
	entry.CondBr(c, then, els)
	then.Br(join)
	els.Br(join)
	phi := join.Phi(ir.I32)
	phi.AddIncoming(ir.ConstInt(ir.I32, 1), then)
	phi.AddIncoming(ir.ConstInt(ir.I32, 2), els)
	join.Ret(phi)

	m := ir.Conditions(fn)
	if m.Primary(entry) != nil {
		t.Fatalf("expected entry to be unconditional")
	}
	if m.Primary(then) != c {
		t.Fatalf("expected then to be guarded by the branch condition, got %v", m.Primary(then))
	}
	neg, ok := m.Primary(els).(*ir.Instruction)
	if !ok || neg.Op != ir.OpICmp || neg.Pred != ir.PredEQ || neg.Operands[0] != c {
		t.Fatalf("expected else to be guarded by c == false, got %v", m.Primary(els))
	}
	if m.Alternate(els) != c {
		t.Fatalf("expected else to carry the then condition as alternate")
	}
	if m.Primary(join) != nil {
		t.Fatalf("expected join to inherit the unconditional entry guard, got %v", m.Primary(join))
	}
	if m.Idom(join) != entry {
		t.Fatalf("expected entry to dominate join, got %v", m.Idom(join))
	}
	if got := m.Edge(then, join).Primary; got != c {
		t.Fatalf("expected edge then->join to be guarded by c, got %v", got)
	}
}

func TestConditionsSwitch(t *testing.T) {
	prog := ir.NewProgram()
	st := prog.AddStruct(&ir.StructType{Name: "Sel", Elems: []ir.Type{ir.I32}, FieldMap: "v"})
	fn, _ := irtest.Method(prog, st, "sel", ir.Void, ir.Param("s", ir.I8))
	entry := fn.NewBlock("entry")
	one := fn.NewBlock("one")
	def := fn.NewBlock("default")
	s := fn.Params[1]
	k := ir.ConstUint(ir.I8, 1)
	entry.Switch(s, def, ir.SwitchCase{Value: k, Target: one})
	one.Ret(nil)
	def.Ret(nil)

	m := ir.Conditions(fn)
	hit, ok := m.Primary(one).(*ir.Instruction)
	if !ok || hit.Pred != ir.PredEQ || hit.Operands[1] != k {
		t.Fatalf("expected case block guarded by s == 1, got %v", m.Primary(one))
	}
	miss, ok := m.Primary(def).(*ir.Instruction)
	if !ok || miss.Pred != ir.PredNE {
		t.Fatalf("expected default guarded by s != 1, got %v", m.Primary(def))
	}
}

func TestLayoutOffset(t *testing.T) {
	prog, gep := irtest.Nested()
	off, ok := prog.Layout.Offset(gep)
	if !ok {
		t.Fatalf("expected a constant offset")
	}
	if off != 4 {
		t.Fatalf("expected offset 4, got %d", off)
	}
}

func TestLayoutSizes(t *testing.T) {
	l := ir.DefaultLayout()
	padded := &ir.StructType{Name: "P", Elems: []ir.Type{ir.I8, ir.I32, ir.I1}}
	tests := []struct {
		typ  ir.Type
		want int
	}{
		{ir.I1, 1},
		{ir.Int(12), 2},
		{ir.I64, 8},
		{ir.Ptr(ir.I8), 8},
		{&ir.ArrayType{Elem: ir.I16, Len: 3}, 6},
		{padded, 12},
	}
	for _, tt := range tests {
		if got := l.SizeOf(tt.typ); got != tt.want {
			t.Fatalf("SizeOf(%s): expected %d, got %d", tt.typ, tt.want, got)
		}
	}
	if got := l.ElementOffset(padded, 2); got != 8 {
		t.Fatalf("expected third element at 8, got %d", got)
	}
}

func TestBitWidthAndEqual(t *testing.T) {
	bits := &ir.StructType{Name: "Flags", Elems: []ir.Type{ir.I1, ir.Int(7)}, Kind: ir.StructBitVector}
	if got := ir.BitWidth(bits); got != 8 {
		t.Fatalf("expected 8 bits, got %d", got)
	}
	if got := ir.BitWidth(&ir.ArrayType{Elem: ir.I8, Len: 4}); got != 32 {
		t.Fatalf("expected 32 bits, got %d", got)
	}
	if got := ir.BitWidth(ir.Ptr(ir.I32)); got != 0 {
		t.Fatalf("expected pointers to have no width, got %d", got)
	}
	if !ir.Equal(ir.Ptr(ir.Int(32)), ir.Ptr(ir.I32)) {
		t.Fatalf("expected structurally equal pointers to compare equal")
	}
	other := &ir.StructType{Name: "Flags", Elems: []ir.Type{ir.I1, ir.Int(7)}}
	if ir.Equal(bits, other) {
		t.Fatalf("expected distinct named structs to differ")
	}
}

func TestGEPTypes(t *testing.T) {
	_, gep := irtest.Nested()
	types := ir.GEPTypes(gep)
	if len(types) != 4 {
		t.Fatalf("expected 4 indexed types, got %d", len(types))
	}
	if !ir.Equal(types[3], ir.I32) {
		t.Fatalf("expected the chain to end at i32, got %s", types[3])
	}
	if !ir.Equal(gep.Type(), ir.Ptr(ir.I32)) {
		t.Fatalf("expected GEP result i32*, got %s", gep.Type())
	}
}
