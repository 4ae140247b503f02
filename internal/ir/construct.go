package ir

import (
	"fmt"

	"atomgo/internal/diag"
)

// NewBlock appends an empty block to f.
func (f *Function) NewBlock(label string) *Block {
	b := &Block{Index: len(f.Blocks), Label: label, Parent: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

func (b *Block) add(inst *Instruction) *Instruction {
	inst.Block = b
	for _, op := range inst.Operands {
		addReferrer(op, inst)
	}
	b.Instrs = append(b.Instrs, inst)
	return inst
}

func addReferrer(v Value, user *Instruction) {
	if def, ok := v.(*Instruction); ok {
		def.referrers = append(def.referrers, user)
	}
}

func link(from, to *Block) {
	from.Succs = append(from.Succs, to)
	to.Preds = append(to.Preds, from)
}

// Binary appends x op y.
func (b *Block) Binary(op Opcode, x, y Value) *Instruction {
	if !op.IsBinary() {
		panic(fmt.Sprintf("ir: %s is not a binary operator", op))
	}
	return b.add(&Instruction{Op: op, Typ: x.Type(), Operands: []Value{x, y}})
}

// ICmp appends an integer comparison.
func (b *Block) ICmp(pred Predicate, x, y Value) *Instruction {
	return b.add(&Instruction{Op: OpICmp, Typ: I1, Pred: pred, Operands: []Value{x, y}})
}

// FCmp appends a floating point comparison.
func (b *Block) FCmp(pred Predicate, x, y Value) *Instruction {
	return b.add(&Instruction{Op: OpFCmp, Typ: I1, Pred: pred, Operands: []Value{x, y}})
}

// Cast appends a conversion of x to type to.
func (b *Block) Cast(op Opcode, x Value, to Type) *Instruction {
	if !op.IsCast() {
		panic(fmt.Sprintf("ir: %s is not a conversion", op))
	}
	return b.add(&Instruction{Op: op, Typ: to, Operands: []Value{x}})
}

// Load appends a read through addr.
func (b *Block) Load(addr Value) *Instruction {
	return b.add(&Instruction{Op: OpLoad, Typ: Deref(addr.Type()), Operands: []Value{addr}})
}

// Store appends a write of val through addr.
func (b *Block) Store(val, addr Value) *Instruction {
	return b.add(&Instruction{Op: OpStore, Typ: Void, Operands: []Value{val, addr}})
}

// GEP appends an address computation over base.
func (b *Block) GEP(base Value, indices ...Value) *Instruction {
	ops := append([]Value{base}, indices...)
	inst := &Instruction{Op: OpGEP, Operands: ops}
	types := GEPTypes(inst)
	inst.Typ = Ptr(types[len(types)-1])
	return b.add(inst)
}

// Alloca appends a stack slot of type t.
func (b *Block) Alloca(name string, t Type) *Instruction {
	inst := &Instruction{Op: OpAlloca, Typ: Ptr(t), Allocated: t, name: name}
	return b.add(inst)
}

// Call appends a call of callee with args (receiver first for methods).
func (b *Block) Call(callee *Function, args ...Value) *Instruction {
	return b.add(&Instruction{Op: OpCall, Typ: callee.Sig.Ret, Callee: callee, Operands: args})
}

// Phi appends a merge node of type t. Incoming edges are added with AddIncoming.
func (b *Block) Phi(t Type) *Instruction {
	return b.add(&Instruction{Op: OpPhi, Typ: t})
}

// AddIncoming records that v flows into the phi from block from.
func (i *Instruction) AddIncoming(v Value, from *Block) *Instruction {
	i.Operands = append(i.Operands, v)
	i.Incoming = append(i.Incoming, from)
	addReferrer(v, i)
	return i
}

// Select appends c ? x : y.
func (b *Block) Select(c, x, y Value) *Instruction {
	return b.add(&Instruction{Op: OpSelect, Typ: x.Type(), Operands: []Value{c, x, y}})
}

// ExtractValue appends a read of a struct/array element of an aggregate value.
func (b *Block) ExtractValue(agg Value, indices ...int) *Instruction {
	t := agg.Type()
	for _, idx := range indices {
		switch tt := t.(type) {
		case *StructType:
			t = tt.Elems[idx]
		case *ArrayType:
			t = tt.Elem
		default:
			diag.Fail(diag.Encoding, fmt.Sprint(agg.Type()), "extractvalue into non-aggregate")
		}
	}
	return b.add(&Instruction{Op: OpExtractValue, Typ: t, Operands: []Value{agg}, Indices: indices})
}

// ExtractElement appends vec[idx].
func (b *Block) ExtractElement(vec, idx Value) *Instruction {
	var elem Type = I32
	if vt, ok := vec.Type().(*VectorType); ok {
		elem = vt.Elem
	}
	return b.add(&Instruction{Op: OpExtractElement, Typ: elem, Operands: []Value{vec, idx}})
}

// Br appends an unconditional branch.
func (b *Block) Br(target *Block) *Instruction {
	inst := b.add(&Instruction{Op: OpBr, Typ: Void, Targets: []*Block{target}})
	link(b, target)
	return inst
}

// CondBr appends a two-way branch on c.
func (b *Block) CondBr(c Value, t, f *Block) *Instruction {
	inst := b.add(&Instruction{Op: OpBr, Typ: Void, Operands: []Value{c}, Targets: []*Block{t, f}})
	link(b, t)
	if f != t {
		link(b, f)
	}
	return inst
}

// SwitchCase is one arm of a Switch.
type SwitchCase struct {
	Value  *Const
	Target *Block
}

// Switch appends a multi-way branch on v.
func (b *Block) Switch(v Value, def *Block, cases ...SwitchCase) *Instruction {
	inst := &Instruction{Op: OpSwitch, Typ: Void, Operands: []Value{v}, Targets: []*Block{def}}
	for _, c := range cases {
		inst.Operands = append(inst.Operands, c.Value)
		inst.Targets = append(inst.Targets, c.Target)
	}
	b.add(inst)
	seen := make(map[*Block]bool)
	for _, t := range inst.Targets {
		if !seen[t] {
			seen[t] = true
			link(b, t)
		}
	}
	return inst
}

// Ret appends a return; v is nil for void functions.
func (b *Block) Ret(v Value) *Instruction {
	inst := &Instruction{Op: OpRet, Typ: Void}
	if v != nil {
		inst.Operands = []Value{v}
	}
	return b.add(inst)
}

// GEPTypes returns, for a GEP instruction, the type indexed by each operand:
// element 0 is the pointer type of the base, element k (k >= 1) the type that
// index k selects into. The final element is the pointee of the result.
func GEPTypes(gep *Instruction) []Type {
	base := gep.Operands[0]
	types := []Type{base.Type()}
	cur := Deref(base.Type())
	if cur == nil {
		diag.Fail(diag.Encoding, base.Name(), "getelementptr base is not a pointer")
	}
	for k, idx := range gep.Operands[1:] {
		if k == 0 {
			types = append(types, cur)
			continue
		}
		switch tt := cur.(type) {
		case *StructType:
			c, ok := idx.(*Const)
			if !ok {
				diag.Fail(diag.Unsupported, tt.Name, "non-constant struct index")
			}
			if int(c.ZExt()) >= len(tt.Elems) {
				diag.Fail(diag.Encoding, tt.Name, "struct index %d out of range", c.ZExt())
			}
			cur = tt.Elems[c.ZExt()]
		case *ArrayType:
			cur = tt.Elem
		case *VectorType:
			cur = tt.Elem
		default:
			diag.Fail(diag.Encoding, fmt.Sprint(cur), "getelementptr into scalar type")
		}
		types = append(types, cur)
	}
	return types
}
