package verilog

import (
	"fmt"

	"atomgo/internal/class"
	"atomgo/internal/ir"
)

// Direction of a module port.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

func (d Direction) flip() Direction {
	if d == Output {
		return Input
	}
	return Output
}

// Port is one module port.
type Port struct {
	Name  string
	Dir   Direction
	Width int
}

// methodPorts lists the ports of m as seen by the module implementing it:
// the enable or result signal, then one input per parameter.
func methodPorts(m *class.Method, prefix string) []Port {
	ports := []Port{{Name: prefix + m.Signal(), Dir: Input, Width: 1}}
	if m.Kind != class.Action {
		ports[0] = Port{Name: prefix + m.Name, Dir: Output, Width: m.Width()}
	}
	for _, p := range m.Params {
		ports = append(ports, Port{Name: prefix + m.ParamSignal(p.Name), Dir: Input, Width: ir.BitWidth(p.Type)})
	}
	return ports
}

func (e *emitter) instance(f class.Field) bool {
	if f.Class == class.NoClass || f.Ptr {
		return false
	}
	c := e.res.Class(f.Class)
	return c.Kind() == ir.StructClass && len(c.Methods) > 0
}

func (e *emitter) external(f class.Field) bool {
	if f.Class == class.NoClass {
		return false
	}
	c := e.res.Class(f.Class)
	if len(c.Methods) == 0 {
		return false
	}
	return c.Kind() == ir.StructInterface || (f.Ptr && c.Kind() == ir.StructClass)
}

// Ports returns the port list of the module generated for class id: every
// non-rule method, then the flipped method ports of each outgoing reference.
func (e *emitter) Ports(id class.ID) []Port {
	var ports []Port
	for _, m := range e.res.Class(id).Methods {
		if !m.Rule {
			ports = append(ports, methodPorts(m, "")...)
		}
	}
	for _, f := range e.res.AllFields(id) {
		if !e.external(f) {
			continue
		}
		for _, name := range f.Names() {
			for _, m := range e.res.Class(f.Class).Methods {
				if m.Rule {
					continue
				}
				for _, p := range methodPorts(m, name+class.Separator) {
					p.Dir = p.Dir.flip()
					ports = append(ports, p)
				}
			}
		}
	}
	return ports
}

func widthDecl(w int) string {
	if w <= 1 {
		return ""
	}
	return fmt.Sprintf("[%d:0] ", w-1)
}
