// Package class resolves IR struct types into Class records: ordered
// fields, classified methods, discovered interfaces and the scheduling hints
// attached to each class.
package class

import (
	"strconv"
	"strings"

	"atomgo/internal/ir"
)

// Separator joins instance, field and method names in hardware signal names.
const Separator = "$"

// Signal suffixes of the method-level handshake.
const (
	ReadySuffix      = "__RDY"
	ValueReadySuffix = "__READY"
	EnableSuffix     = "__ENA"
)

// ID indexes a Class in the resolver arena.
type ID int

// NoClass marks a field without a resolved nested class.
const NoClass ID = -1

// FieldKind distinguishes named fields from inherited bases.
type FieldKind int

const (
	// Named is an ordinary field.
	Named FieldKind = iota
	// AnonymousBase is inherited state; lookups recurse into its fields.
	AnonymousBase
)

// Field is one element of a class.
type Field struct {
	Kind  FieldKind
	Name  string
	Index int
	Type  ir.Type
	// Count is the repeat count of a vectored field, 0 otherwise.
	Count int
	Ptr   bool
	Class ID
}

// Names expands a vectored field into its element names (name0..nameN-1).
func (f Field) Names() []string {
	if f.Count <= 0 {
		return []string{f.Name}
	}
	out := make([]string, 0, f.Count)
	for i := 0; i < f.Count; i++ {
		out = append(out, f.Name+strconv.Itoa(i))
	}
	return out
}

// MethodKind classifies a method once, when its class is populated.
type MethodKind int

const (
	// Action is a void method that changes state when enabled.
	Action MethodKind = iota
	// ValueMethod is a combinational read returning a value.
	ValueMethod
	// Guard is the ready condition of an action or value method.
	Guard
)

func (k MethodKind) String() string {
	switch k {
	case ValueMethod:
		return "value"
	case Guard:
		return "guard"
	default:
		return "action"
	}
}

// Param is a declared method parameter (the receiver is not included).
type Param struct {
	Name string
	Type ir.Type
}

// Method is a classified method of a class.
type Method struct {
	Name   string
	Kind   MethodKind
	Func   *ir.Function
	Params []Param
	// Rule marks actions (and their guards) fired by the scheduler rather
	// than through a port.
	Rule bool
	// GuardOf names the guarded method; ValueGuard is set for the
	// value-method flavour of guard.
	GuardOf    string
	ValueGuard bool
	Owner      ID
}

// Signal is the hardware name of the method's main port.
func (m *Method) Signal() string {
	if m.Kind == Action {
		return m.Name + EnableSuffix
	}
	return m.Name
}

// ParamSignal is the hardware name of parameter p of m.
func (m *Method) ParamSignal(p string) string {
	return m.Name + Separator + p
}

// Width is the bit width of the value produced by m (1 for action enables).
func (m *Method) Width() int {
	if m.Kind == Action {
		return 1
	}
	return ir.BitWidth(m.Func.Sig.Ret)
}

// InterfaceRef records a field whose type is an interface-kind struct.
type InterfaceRef struct {
	Field string
	Class ID
}

// Connect wires every method of Interface from Source to Target.
type Connect struct {
	Target    string
	Source    string
	Interface ID
}

// Priority attaches a scheduling level to a rule.
type Priority struct {
	Rule  string
	Level string
}

// Class is the record built for one struct type.
type Class struct {
	ID         ID
	Name       string
	Type       *ir.StructType
	Fields     []Field
	Methods    []*Method
	Interfaces []InterfaceRef
	Connects   []Connect
	Priority   []Priority
	Rules      []string
	Software   []string

	byName map[string]*Method
}

// Kind reports the struct kind of the class.
func (c *Class) Kind() ir.StructKind {
	return c.Type.Kind
}

// Method returns the method called name, matching either the declared
// name or the port signal name.
func (c *Class) Method(name string) *Method {
	if m, ok := c.byName[name]; ok {
		return m
	}
	if strings.HasSuffix(name, EnableSuffix) {
		if m, ok := c.byName[strings.TrimSuffix(name, EnableSuffix)]; ok && m.Kind == Action {
			return m
		}
	}
	return nil
}

func (c *Class) addMethod(m *Method) {
	if c.byName == nil {
		c.byName = make(map[string]*Method)
	}
	c.Methods = append(c.Methods, m)
	c.byName[m.Name] = m
}
