// Package cpp writes the software form of a class: a declaration header
// and a definition file built from the software-mode method bodies.
package cpp

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"atomgo/internal/class"
	"atomgo/internal/diag"
	"atomgo/internal/extract"
	"atomgo/internal/ir"
)

// scalar returns the C spelling of a scalar type.
func scalar(res *class.Resolver, t ir.Type) string {
	switch tt := t.(type) {
	case *ir.VoidType:
		return "void"
	case *ir.IntType:
		switch {
		case tt.Width == 1:
			return "bool"
		case tt.Width <= 8:
			return "unsigned char"
		case tt.Width <= 16:
			return "unsigned short"
		case tt.Width <= 32:
			return "unsigned int"
		case tt.Width <= 64:
			return "unsigned long long"
		}
		diag.Fail(diag.Unsupported, t.String(), "no software type wider than 64 bits")
	case *ir.FloatType:
		switch tt.Bits {
		case 32:
			return "float"
		case 64:
			return "double"
		}
		return "long double"
	case *ir.StructType:
		return res.Name(tt)
	case *ir.PointerType:
		return scalar(res, tt.Elem) + " *"
	}
	diag.Fail(diag.Unsupported, t.String(), "no software type")
	return ""
}

// declare renders a declaration of name with type t.
func declare(res *class.Resolver, t ir.Type, name string) string {
	var dims string
	for {
		switch tt := t.(type) {
		case *ir.ArrayType:
			dims += fmt.Sprintf("[%d]", tt.Len)
			t = tt.Elem
			continue
		case *ir.VectorType:
			dims += fmt.Sprintf("[%d]", tt.Len)
			t = tt.Elem
			continue
		}
		break
	}
	typ := scalar(res, t)
	if strings.HasSuffix(typ, "*") {
		return typ + name + dims
	}
	return typ + " " + name + dims
}

func (e *emitter) prototype(m *class.Method, qualified bool) string {
	params := make([]string, 0, len(m.Params))
	for _, p := range m.Params {
		params = append(params, declare(e.res, p.Type, p.Name))
	}
	list := "void"
	if len(params) > 0 {
		list = strings.Join(params, ", ")
	}
	name := m.Name
	if qualified {
		name = e.cls.Name + "::" + name
	}
	return declare(e.res, m.Func.Sig.Ret, name) + "(" + list + ")"
}

type emitter struct {
	res *class.Resolver
	cls *class.Class
}

// Emit writes the declaration of cb's class to h and its method definitions
// to src. Nothing is written when the class cannot be expressed.
func Emit(h, src io.Writer, res *class.Resolver, cb *extract.ClassBodies) (err error) {
	defer diag.Recover(&err)
	e := &emitter{res: res, cls: cb.Class}
	var hbuf, sbuf bytes.Buffer
	e.header(&hbuf)
	for _, body := range cb.Bodies {
		e.definition(&sbuf, body)
	}
	if _, err := h.Write(hbuf.Bytes()); err != nil {
		return fmt.Errorf("cpp: write %s header: %w", e.cls.Name, err)
	}
	if _, err := src.Write(sbuf.Bytes()); err != nil {
		return fmt.Errorf("cpp: write %s source: %w", e.cls.Name, err)
	}
	return nil
}

func (e *emitter) header(w io.Writer) {
	var bases []string
	for _, f := range e.cls.Fields {
		if f.Kind == class.AnonymousBase {
			bases = append(bases, "public "+scalar(e.res, f.Type))
		}
	}
	fmt.Fprintf(w, "class %s", e.cls.Name)
	if len(bases) > 0 {
		fmt.Fprintf(w, " : %s", strings.Join(bases, ", "))
	}
	fmt.Fprintln(w, " {")
	fmt.Fprintln(w, "public:")
	for _, f := range e.cls.Fields {
		if f.Kind == class.AnonymousBase {
			continue
		}
		if p, ok := f.Type.(*ir.PointerType); ok {
			if _, ok := p.Elem.(*ir.FunctionType); ok {
				continue
			}
		}
		for _, name := range f.Names() {
			fmt.Fprintf(w, "  %s;\n", declare(e.res, f.Type, name))
		}
	}
	abstract := e.cls.Kind() == ir.StructInterface
	for _, m := range e.cls.Methods {
		if abstract {
			fmt.Fprintf(w, "  virtual %s = 0;\n", e.prototype(m, false))
			continue
		}
		fmt.Fprintf(w, "  %s;\n", e.prototype(m, false))
	}
	for _, iface := range e.cls.Interfaces {
		fmt.Fprintf(w, "  // interface %s: %s\n", iface.Field, e.res.Class(iface.Class).Name)
	}
	fmt.Fprintln(w, "};")
}

type statement struct {
	seq   int
	lines []string
}

func guarded(cond, text string) string {
	if cond == "" {
		return text + ";"
	}
	return fmt.Sprintf("if (%s) %s;", cond, text)
}

func (e *emitter) definition(w io.Writer, body *extract.Body) {
	var stmts []statement
	for _, s := range body.Stores {
		stmts = append(stmts, statement{seq: s.Seq, lines: []string{guarded(s.Cond, s.Dest+" = "+s.Value)}})
	}
	for _, t := range body.Temps {
		if t.Cond == "" {
			stmts = append(stmts, statement{seq: t.Seq, lines: []string{declare(e.res, t.Type, t.Name) + " = " + t.Value + ";"}})
			continue
		}
		stmts = append(stmts, statement{seq: t.Seq, lines: []string{
			declare(e.res, t.Type, t.Name) + ";",
			guarded(t.Cond, t.Name+" = "+t.Value),
		}})
	}
	for _, c := range body.Calls {
		if c.Used || c.Text == "" {
			continue
		}
		stmts = append(stmts, statement{seq: c.Seq, lines: []string{guarded(c.Cond, c.Text)}})
	}
	sort.SliceStable(stmts, func(i, j int) bool { return stmts[i].seq < stmts[j].seq })

	fmt.Fprintf(w, "%s {\n", e.prototype(body.Method, true))
	for _, d := range body.Declares {
		fmt.Fprintf(w, "  %s;\n", declare(e.res, d.Type, d.Name))
	}
	for _, s := range stmts {
		for _, line := range s.lines {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	if body.Method.Kind != class.Action {
		fmt.Fprintf(w, "  return %s;\n", body.Guard)
	}
	fmt.Fprintln(w, "}")
}
