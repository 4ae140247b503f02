// Package verilog emits one clocked Verilog module per class from the
// hardware-mode method bodies.
package verilog

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"atomgo/internal/class"
	"atomgo/internal/config"
	"atomgo/internal/diag"
	"atomgo/internal/extract"
	"atomgo/internal/ir"
	"atomgo/internal/render"
)

// Options controls module emission.
type Options struct {
	Inline config.InlineMode
}

type wire struct {
	name  string
	width int
}

type register struct {
	name   string
	width  int
	length int
}

type instance struct {
	typeName string
	name     string
	ports    []string
	first    int
}

type emitter struct {
	res  *class.Resolver
	cls  *class.Class
	cb   *extract.ClassBodies
	opts Options

	ports     []Port
	outputs   map[string]bool
	regs      []register
	wires     []wire
	fixed     []wire
	instances []instance
	inlinable map[string]bool
	in        inliner
}

// Emit writes the module of cb's class to w. Nothing is written when the
// class cannot be expressed.
func Emit(w io.Writer, res *class.Resolver, cb *extract.ClassBodies, opts Options) (err error) {
	defer diag.Recover(&err)
	e := &emitter{
		res:       res,
		cls:       cb.Class,
		cb:        cb,
		opts:      opts,
		outputs:   make(map[string]bool),
		inlinable: make(map[string]bool),
		in:        inliner{wires: make(map[string]bool)},
	}
	e.collect()
	e.in.run(opts.Inline)

	var buf bytes.Buffer
	e.print(&buf)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("verilog: write %s: %w", e.cls.Name, err)
	}
	return nil
}

// PortsOf returns the port list of the module generated for class id.
func PortsOf(res *class.Resolver, id class.ID) []Port {
	e := &emitter{res: res}
	return e.Ports(id)
}

func (e *emitter) addWire(name string, width int, inlinable bool) {
	e.wires = append(e.wires, wire{name: name, width: width})
	if inlinable {
		e.inlinable[name] = true
		e.in.wires[name] = true
	}
}

func (e *emitter) collect() {
	e.ports = e.Ports(e.cls.ID)
	for _, p := range e.ports {
		if p.Dir == Output {
			e.outputs[p.Name] = true
		}
	}
	e.fields()
	e.rules()

	enables := make(map[string][]string)
	muxes := make(map[string][]render.Arm)
	for _, body := range e.cb.Bodies {
		e.method(body, enables, muxes)
	}
	for _, target := range sortedKeys(enables) {
		conds := enables[target]
		rhs := conds[0]
		if len(conds) > 1 {
			parts := make([]string, 0, len(conds))
			for _, c := range conds {
				parts = append(parts, parenthesize(c))
			}
			rhs = strings.Join(parts, " || ")
		}
		e.in.assigns = append(e.in.assigns, assign{lhs: target, rhs: rhs})
	}
	for _, key := range sortedKeys(muxes) {
		e.in.assigns = append(e.in.assigns, assign{lhs: key, rhs: priorityMux(muxes[key])})
	}
	for _, conn := range e.cls.Connects {
		for _, m := range e.res.Class(conn.Interface).Methods {
			for _, p := range methodPorts(m, "") {
				e.in.assigns = append(e.in.assigns, assign{
					lhs: conn.Target + class.Separator + p.Name,
					rhs: conn.Source + class.Separator + p.Name,
				})
			}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fields declares registers and submodule instances.
func (e *emitter) fields() {
	for _, f := range e.res.AllFields(e.cls.ID) {
		switch {
		case e.instance(f):
			nested := e.res.Class(f.Class)
			nports := e.Ports(f.Class)
			for _, name := range f.Names() {
				inst := instance{typeName: nested.Name, name: name, first: len(e.in.conns)}
				for _, p := range nports {
					w := name + class.Separator + p.Name
					e.addWire(w, p.Width, p.Dir == Input)
					inst.ports = append(inst.ports, p.Name)
					e.in.conns = append(e.in.conns, w)
				}
				e.instances = append(e.instances, inst)
			}
		case e.external(f), f.Ptr:
		default:
			width := ir.BitWidth(f.Type)
			if width == 0 {
				continue
			}
			arr, isArray := f.Type.(*ir.ArrayType)
			for _, name := range f.Names() {
				switch {
				case isArray && f.Count == 0:
					e.regs = append(e.regs, register{name: name, width: ir.BitWidth(arr.Elem), length: arr.Len})
				case isArray:
					e.regs = append(e.regs, register{name: name, width: ir.BitWidth(arr.Elem)})
				default:
					e.regs = append(e.regs, register{name: name, width: width})
				}
			}
		}
	}
}

// rules drives the enable of every rule from its guard.
func (e *emitter) rules() {
	for _, m := range e.cls.Methods {
		if !m.Rule {
			continue
		}
		e.fixed = append(e.fixed, wire{name: m.Signal(), width: m.Width()})
		if m.Kind != class.Action {
			continue
		}
		rhs := "1"
		if g := e.cls.Method(m.Name + class.ReadySuffix); g != nil {
			rhs = g.Name
		}
		e.in.assigns = append(e.in.assigns, assign{lhs: m.Signal(), rhs: rhs})
	}
}

// priorityMux chains the call sites in order; the last site is the default
// whatever its own condition.
func priorityMux(arms []render.Arm) string {
	var b strings.Builder
	last := len(arms) - 1
	for _, a := range arms[:last] {
		b.WriteString(a.Cond + " ? " + a.Val + " : ")
	}
	b.WriteString(arms[last].Val)
	return b.String()
}

// localValue folds the stores into one local wire. Stores after the last
// unconditional one take priority over it, later stores first.
func localValue(stores []extract.Store) string {
	start := 0
	for i, s := range stores {
		if s.Cond == "" {
			start = i
		}
	}
	value := stores[start].Value
	for _, s := range stores[start+1:] {
		value = s.Cond + " ? " + s.Value + " : " + value
	}
	return value
}

func joinCond(enable, cond string) string {
	switch {
	case enable == "":
		return cond
	case cond == "":
		return enable
	}
	return enable + " & " + parenthesize(cond)
}

func (e *emitter) method(body *extract.Body, enables map[string][]string, muxes map[string][]render.Arm) {
	m := body.Method
	enable := m.Signal()
	if m.Kind != class.Action {
		e.in.assigns = append(e.in.assigns, assign{lhs: m.Name, rhs: body.Guard})
	}
	for _, d := range body.Declares {
		e.addWire(d.Name, ir.BitWidth(d.Type), true)
	}

	var lines, locals []string
	localStores := make(map[string][]extract.Store)
	for _, s := range body.Stores {
		switch {
		case s.Local:
			if _, ok := localStores[s.Dest]; !ok {
				locals = append(locals, s.Dest)
			}
			localStores[s.Dest] = append(localStores[s.Dest], s)
		case m.Kind != class.Action:
			diag.Fail(diag.Unsupported, m.Func.Name, "state write to %s in a %s method", s.Dest, m.Kind)
		case s.Cond == "":
			lines = append(lines, fmt.Sprintf("    %s <= %s;", s.Dest, s.Value))
		default:
			lines = append(lines, fmt.Sprintf("    if (%s) %s <= %s;", s.Cond, s.Dest, s.Value))
		}
	}
	for _, dest := range locals {
		e.in.assigns = append(e.in.assigns, assign{lhs: dest, rhs: localValue(localStores[dest])})
	}
	if len(lines) > 0 {
		e.in.always = append(e.in.always, fmt.Sprintf("if (%s) begin", enable))
		e.in.always = append(e.in.always, lines...)
		e.in.always = append(e.in.always, fmt.Sprintf("end // End of %s", enable))
	}

	for _, c := range body.Calls {
		e.res.LookupQualName(e.cls.ID, c.Target)
		cond := joinCond(enable, c.Cond)
		base := c.Target
		if c.Action {
			enables[c.Target] = append(enables[c.Target], cond)
			base = strings.TrimSuffix(base, class.EnableSuffix)
		}
		for i, p := range c.Method.Params {
			if i >= len(c.Args) {
				diag.Fail(diag.Encoding, c.Target, "call passes %d arguments, %d declared", len(c.Args), len(c.Method.Params))
			}
			key := base + class.Separator + p.Name
			muxes[key] = append(muxes[key], render.Arm{Cond: cond, Val: c.Args[i]})
		}
	}
	slog.Debug("module method", "class", e.cls.Name, "method", m.Name, "stores", len(body.Stores), "calls", len(body.Calls))
}

func parenthesize(text string) string {
	if bareSignal(text) {
		return text
	}
	return "(" + text + ")"
}

func (e *emitter) print(w io.Writer) {
	fmt.Fprintf(w, "module %s (input wire CLK, input wire nRST", e.cls.Name)
	for _, p := range e.ports {
		fmt.Fprintf(w, ",\n    %s wire %s%s", p.Dir, widthDecl(p.Width), p.Name)
	}
	fmt.Fprintln(w, ");")
	for _, name := range e.cls.Software {
		fmt.Fprintf(w, "    // software: %s\n", name)
	}
	for _, r := range e.regs {
		if r.length > 0 {
			fmt.Fprintf(w, "    reg %s%s [0:%d];\n", widthDecl(r.width), r.name, r.length-1)
		} else {
			fmt.Fprintf(w, "    reg %s%s;\n", widthDecl(r.width), r.name)
		}
	}
	for _, wr := range e.fixed {
		fmt.Fprintf(w, "    wire %s%s;\n", widthDecl(wr.width), wr.name)
	}
	for _, wr := range e.wires {
		if e.inlinable[wr.name] && !e.in.wires[wr.name] {
			continue
		}
		fmt.Fprintf(w, "    wire %s%s;\n", widthDecl(wr.width), wr.name)
	}
	for _, inst := range e.instances {
		fmt.Fprintf(w, "    %s %s (.CLK(CLK), .nRST(nRST)", inst.typeName, inst.name)
		for i, port := range inst.ports {
			fmt.Fprintf(w, ",\n        .%s(%s)", port, e.in.conns[inst.first+i])
		}
		fmt.Fprintln(w, ");")
	}

	var extra []assign
	for _, a := range e.in.assigns {
		if e.outputs[a.lhs] {
			fmt.Fprintf(w, "    assign %s = %s;\n", a.lhs, a.rhs)
		} else {
			extra = append(extra, a)
		}
	}
	if len(extra) > 0 {
		fmt.Fprintln(w, "    // Extra assignments, not to output wires")
		for _, a := range extra {
			fmt.Fprintf(w, "    assign %s = %s;\n", a.lhs, a.rhs)
		}
	}

	if len(e.regs) > 0 || len(e.in.always) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "    always @( posedge CLK) begin")
		fmt.Fprintln(w, "      if (!nRST) begin")
		for _, r := range e.regs {
			if r.length == 0 {
				fmt.Fprintf(w, "        %s <= 0;\n", r.name)
				continue
			}
			for i := 0; i < r.length; i++ {
				fmt.Fprintf(w, "        %s[%d] <= 0;\n", r.name, i)
			}
		}
		fmt.Fprintln(w, "      end // nRST")
		fmt.Fprintln(w, "      else begin")
		for _, line := range e.in.always {
			fmt.Fprintf(w, "        %s\n", line)
		}
		fmt.Fprintln(w, "      end")
		fmt.Fprintln(w, "    end // always @ (posedge CLK)")
	}
	fmt.Fprintln(w, "endmodule")
}
