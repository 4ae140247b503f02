package ir

import (
	"fmt"
	"go/token"
)

// Program is a compilation unit handed to the generators: struct types, the
// functions implementing their methods, globals and the data layout used for
// static offset computation.
type Program struct {
	Structs   []*StructType
	Functions []*Function
	Globals   []*Global
	Methods   []MethodDecl
	Layout    *DataLayout
}

// MethodDecl binds a function to a struct type under a method name.
type MethodDecl struct {
	Owner *StructType
	Name  string
	Func  *Function
}

// NewProgram returns an empty program using the default data layout.
func NewProgram() *Program {
	return &Program{Layout: DefaultLayout()}
}

// AddStruct registers st with the program and returns it.
func (p *Program) AddStruct(st *StructType) *StructType {
	p.Structs = append(p.Structs, st)
	return st
}

// AddMethod registers fn as method name of owner.
func (p *Program) AddMethod(owner *StructType, name string, fn *Function) {
	p.Methods = append(p.Methods, MethodDecl{Owner: owner, Name: name, Func: fn})
	for _, f := range p.Functions {
		if f == fn {
			return
		}
	}
	p.Functions = append(p.Functions, fn)
}

// MethodsOf returns the method declarations of st in registration order.
func (p *Program) MethodsOf(st *StructType) []MethodDecl {
	var out []MethodDecl
	for _, m := range p.Methods {
		if m.Owner == st {
			out = append(out, m)
		}
	}
	return out
}

// Value is implemented by constants, arguments, globals and instructions.
type Value interface {
	Type() Type
	Name() string
}

// Const is an integer (or null pointer) constant. Bits holds the raw two's
// complement pattern; Signed records the declared signedness used when the
// constant is printed.
type Const struct {
	Typ    Type
	Bits   uint64
	Signed bool
	Null   bool
}

func (c *Const) Type() Type   { return c.Typ }
func (c *Const) Name() string { return "" }

// ConstInt returns a constant of integer type t holding v.
func ConstInt(t *IntType, v int64) *Const {
	return &Const{Typ: t, Bits: uint64(v) & mask(t.Width), Signed: true}
}

// ConstUint returns an unsigned constant of integer type t holding v.
func ConstUint(t *IntType, v uint64) *Const {
	return &Const{Typ: t, Bits: v & mask(t.Width)}
}

// ConstBool returns an i1 constant.
func ConstBool(v bool) *Const {
	if v {
		return &Const{Typ: I1, Bits: 1}
	}
	return &Const{Typ: I1}
}

// NullPtr returns a null constant of pointer type t.
func NullPtr(t Type) *Const {
	return &Const{Typ: t, Null: true}
}

// IsZero reports whether the constant is an all-zero pattern or null.
func (c *Const) IsZero() bool {
	return c.Null || c.Bits == 0
}

// ZExt returns the constant zero-extended to 64 bits.
func (c *Const) ZExt() uint64 {
	if it, ok := c.Typ.(*IntType); ok {
		return c.Bits & mask(it.Width)
	}
	return c.Bits
}

// SExt returns the constant sign-extended to 64 bits.
func (c *Const) SExt() int64 {
	it, ok := c.Typ.(*IntType)
	if !ok || it.Width >= 64 {
		return int64(c.Bits)
	}
	shift := 64 - uint(it.Width)
	return int64(c.Bits<<shift) >> shift
}

func mask(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(width)) - 1
}

// Argument is a formal parameter of a Function.
type Argument struct {
	name   string
	Typ    Type
	Index  int
	Parent *Function
}

func (a *Argument) Type() Type   { return a.Typ }
func (a *Argument) Name() string { return a.name }

// Param returns a detached argument used to build a Function signature.
func Param(name string, t Type) *Argument {
	return &Argument{name: name, Typ: t}
}

// Global is a module-level variable. Its value is the variable's address.
type Global struct {
	name string
	Elem Type
}

func (g *Global) Type() Type   { return Ptr(g.Elem) }
func (g *Global) Name() string { return g.name }

// NewGlobal declares a global of element type elem.
func (p *Program) NewGlobal(name string, elem Type) *Global {
	g := &Global{name: name, Elem: elem}
	p.Globals = append(p.Globals, g)
	return g
}

// Function is a method body in SSA form. A function without blocks is a
// declaration (an interface method or an externally implemented one).
type Function struct {
	Name   string
	Sig    *FunctionType
	Params []*Argument
	Blocks []*Block
	Pos    token.Pos
}

// NewFunction creates a function returning ret with the given parameters.
// The first parameter of a method is its receiver.
func NewFunction(name string, ret Type, params ...*Argument) *Function {
	fn := &Function{Name: name, Sig: &FunctionType{Ret: ret}}
	for i, p := range params {
		p.Index = i
		p.Parent = fn
		fn.Params = append(fn.Params, p)
		fn.Sig.Params = append(fn.Sig.Params, p.Typ)
	}
	return fn
}

// IsDecl reports whether the function has no body.
func (f *Function) IsDecl() bool {
	return len(f.Blocks) == 0
}

// Entry returns the entry block.
func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

func (f *Function) String() string {
	return f.Name
}

// Block is a basic block: a straight-line instruction sequence ending in a
// terminator.
type Block struct {
	Index  int
	Label  string
	Instrs []*Instruction
	Parent *Function
	Preds  []*Block
	Succs  []*Block
}

// Terminator returns the last instruction when it is a terminator.
func (b *Block) Terminator() *Instruction {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	if last.Op.IsTerminator() {
		return last
	}
	return nil
}

func (b *Block) String() string {
	if b.Label != "" {
		return b.Label
	}
	return fmt.Sprintf("bb%d", b.Index)
}
