package ir

import (
	"fmt"
	"strings"
)

// Type is implemented by every IR type.
type Type interface {
	String() string
	isType()
}

// VoidType is the result type of actions and effect-only calls.
type VoidType struct{}

// IntType is a fixed-width integer. Width 1 doubles as the boolean type.
type IntType struct {
	Width int
}

// FloatType is an IEEE float of the given bit size (32, 64, 80 or 128).
type FloatType struct {
	Bits int
}

// PointerType references a value of type Elem.
type PointerType struct {
	Elem Type
}

// ArrayType is a fixed-length aggregate of identical elements.
type ArrayType struct {
	Elem Type
	Len  int
}

// VectorType is a fixed-length SIMD-style aggregate.
type VectorType struct {
	Elem Type
	Len  int
}

// StructKind tags how a struct participates in code generation.
type StructKind int

const (
	// StructClass is an ordinary class: fields plus methods.
	StructClass StructKind = iota
	// StructInterface is an abstract bundle of methods.
	StructInterface
	// StructBitVector is a plain data record flattened into a single value.
	StructBitVector
)

func (k StructKind) String() string {
	switch k {
	case StructInterface:
		return "interface"
	case StructBitVector:
		return "bitvector"
	default:
		return "class"
	}
}

// StructType is a (possibly named) aggregate. FieldMap is the side channel
// carrying element names: comma separated, one slot per element, a slot
// ending in '/' marks an anonymous (inherited) base.
type StructType struct {
	Name     string
	Elems    []Type
	FieldMap string
	Kind     StructKind
}

// FunctionType is the signature of a Function.
type FunctionType struct {
	Ret      Type
	Params   []Type
	Variadic bool
}

func (*VoidType) isType()     {}
func (*IntType) isType()      {}
func (*FloatType) isType()    {}
func (*PointerType) isType()  {}
func (*ArrayType) isType()    {}
func (*VectorType) isType()   {}
func (*StructType) isType()   {}
func (*FunctionType) isType() {}

func (*VoidType) String() string    { return "void" }
func (t *IntType) String() string   { return fmt.Sprintf("i%d", t.Width) }
func (t *FloatType) String() string { return fmt.Sprintf("f%d", t.Bits) }
func (t *PointerType) String() string {
	return t.Elem.String() + "*"
}
func (t *ArrayType) String() string {
	return fmt.Sprintf("[%d x %s]", t.Len, t.Elem)
}
func (t *VectorType) String() string {
	return fmt.Sprintf("<%d x %s>", t.Len, t.Elem)
}
func (t *StructType) String() string {
	if t.Name != "" {
		return "%" + t.Name
	}
	parts := make([]string, 0, len(t.Elems))
	for _, e := range t.Elems {
		parts = append(parts, e.String())
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}
func (t *FunctionType) String() string {
	parts := make([]string, 0, len(t.Params))
	for _, p := range t.Params {
		parts = append(parts, p.String())
	}
	if t.Variadic {
		parts = append(parts, "...")
	}
	return fmt.Sprintf("%s (%s)", t.Ret, strings.Join(parts, ", "))
}

// Literal reports whether the struct has no name.
func (t *StructType) Literal() bool {
	return t.Name == ""
}

var (
	Void = &VoidType{}
	I1   = &IntType{Width: 1}
	I8   = &IntType{Width: 8}
	I16  = &IntType{Width: 16}
	I32  = &IntType{Width: 32}
	I64  = &IntType{Width: 64}
	F32  = &FloatType{Bits: 32}
	F64  = &FloatType{Bits: 64}
)

// Int returns an integer type of the given width, sharing the predeclared
// instances for the common widths.
func Int(width int) *IntType {
	switch width {
	case 1:
		return I1
	case 8:
		return I8
	case 16:
		return I16
	case 32:
		return I32
	case 64:
		return I64
	}
	return &IntType{Width: width}
}

// Ptr returns a pointer to elem.
func Ptr(elem Type) *PointerType {
	return &PointerType{Elem: elem}
}

// Equal reports structural type identity. Named structs compare by identity.
func Equal(a, b Type) bool {
	if a == b {
		return true
	}
	switch x := a.(type) {
	case *VoidType:
		_, ok := b.(*VoidType)
		return ok
	case *IntType:
		y, ok := b.(*IntType)
		return ok && x.Width == y.Width
	case *FloatType:
		y, ok := b.(*FloatType)
		return ok && x.Bits == y.Bits
	case *PointerType:
		y, ok := b.(*PointerType)
		return ok && Equal(x.Elem, y.Elem)
	case *ArrayType:
		y, ok := b.(*ArrayType)
		return ok && x.Len == y.Len && Equal(x.Elem, y.Elem)
	case *VectorType:
		y, ok := b.(*VectorType)
		return ok && x.Len == y.Len && Equal(x.Elem, y.Elem)
	case *StructType:
		y, ok := b.(*StructType)
		if !ok || x.Name != "" || y.Name != "" || len(x.Elems) != len(y.Elems) {
			return false
		}
		for i := range x.Elems {
			if !Equal(x.Elems[i], y.Elems[i]) {
				return false
			}
		}
		return true
	case *FunctionType:
		y, ok := b.(*FunctionType)
		if !ok || x.Variadic != y.Variadic || len(x.Params) != len(y.Params) || !Equal(x.Ret, y.Ret) {
			return false
		}
		for i := range x.Params {
			if !Equal(x.Params[i], y.Params[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// IsVoid reports whether t is the void type.
func IsVoid(t Type) bool {
	_, ok := t.(*VoidType)
	return ok
}

// IsPointer reports whether t is a pointer type.
func IsPointer(t Type) bool {
	_, ok := t.(*PointerType)
	return ok
}

// Deref returns the element type of a pointer, or nil.
func Deref(t Type) Type {
	if p, ok := t.(*PointerType); ok {
		return p.Elem
	}
	return nil
}

// BitWidth returns the number of bits a value of type t occupies when
// flattened into a hardware signal. Pointers, functions and interfaces have
// no width.
func BitWidth(t Type) int {
	switch tt := t.(type) {
	case *IntType:
		return tt.Width
	case *FloatType:
		return tt.Bits
	case *ArrayType:
		return tt.Len * BitWidth(tt.Elem)
	case *VectorType:
		return tt.Len * BitWidth(tt.Elem)
	case *StructType:
		if tt.Kind == StructInterface {
			return 0
		}
		total := 0
		for _, e := range tt.Elems {
			total += BitWidth(e)
		}
		return total
	default:
		return 0
	}
}
