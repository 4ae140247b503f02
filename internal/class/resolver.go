package class

import (
	"fmt"
	"log/slog"
	"strings"

	"atomgo/internal/config"
	"atomgo/internal/diag"
	"atomgo/internal/ir"
)

// Resolver owns the arena of Class records for one compilation unit and the
// side table from struct type to arena index. Callers hold IDs, never
// pointers into another unit's arena.
type Resolver struct {
	prog  *ir.Program
	hints config.Config

	arena   []*Class
	index   map[*ir.StructType]ID
	unnamed map[*ir.StructType]int
	nextID  int
	funcs   map[*ir.Function]*Method
}

// NewResolver creates an empty resolver for prog. Class hints from cfg are
// merged into classes as they are populated.
func NewResolver(prog *ir.Program, cfg config.Config) *Resolver {
	return &Resolver{
		prog:    prog,
		hints:   cfg,
		index:   make(map[*ir.StructType]ID),
		unnamed: make(map[*ir.StructType]int),
		funcs:   make(map[*ir.Function]*Method),
	}
}

// Program returns the program the resolver reads from.
func (r *Resolver) Program() *ir.Program {
	return r.prog
}

// Populate resolves every struct registered with the program, in
// registration order, and returns the classes in arena order.
func (r *Resolver) Populate() (classes []*Class, err error) {
	defer diag.Recover(&err)
	for _, st := range r.prog.Structs {
		r.ClassOf(st)
	}
	return r.arena, nil
}

// Classes returns the classes created so far in arena order.
func (r *Resolver) Classes() []*Class {
	return r.arena
}

// Class returns the arena entry for id.
func (r *Resolver) Class(id ID) *Class {
	if id < 0 || int(id) >= len(r.arena) {
		diag.Fail(diag.Internal, fmt.Sprint(id), "class id out of range")
	}
	return r.arena[id]
}

// Name returns the stable output name of st. Literal structs get a
// synthetic number on first resolution.
func (r *Resolver) Name(st *ir.StructType) string {
	if !st.Literal() {
		return sanitize(st.Name)
	}
	n, ok := r.unnamed[st]
	if !ok {
		r.nextID++
		n = r.nextID
		r.unnamed[st] = n
	}
	return fmt.Sprintf("unnamed_%d", n)
}

func sanitize(name string) string {
	var b strings.Builder
	for _, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '_', ch == '$':
			b.WriteRune(ch)
		default:
			fmt.Fprintf(&b, "_%x_", ch)
		}
	}
	return b.String()
}

// FieldName decodes the field-name side channel of st for element idx. The
// boolean is false for an anonymous (inherited) element: its slot ends in
// '/' or lies beyond the encoded list. A malformed slot fails with an
// encoding violation.
func FieldName(st *ir.StructType, idx int) (string, bool) {
	if st.FieldMap == "" {
		return "", false
	}
	slots := strings.Split(st.FieldMap, ",")
	if idx < 0 || idx >= len(slots) {
		return "", false
	}
	slot := slots[idx]
	if strings.HasSuffix(slot, "/") {
		if strings.Contains(strings.TrimSuffix(slot, "/"), "/") {
			diag.Fail(diag.Encoding, st.String(), "slot %d %q has more than one '/'", idx, slot)
		}
		return "", false
	}
	if slot == "" || strings.Contains(slot, "/") || strings.ContainsAny(slot, " \t;") {
		diag.Fail(diag.Encoding, st.String(), "malformed field slot %d %q", idx, slot)
	}
	return slot, true
}

// ClassOf returns the class of st, creating it on first use.
func (r *Resolver) ClassOf(st *ir.StructType) ID {
	if id, ok := r.index[st]; ok {
		return id
	}
	id := ID(len(r.arena))
	c := &Class{ID: id, Name: r.Name(st), Type: st}
	r.arena = append(r.arena, c)
	r.index[st] = id

	hints := r.hints.Hints(c.Name)
	counts := make(map[string]int)
	for _, o := range hints.Overrides {
		counts[o.Field] = o.Count
	}
	for i, elem := range st.Elems {
		f := Field{Index: i, Type: elem, Class: NoClass}
		if name, named := FieldName(st, i); named {
			f.Name = name
			f.Count = counts[name]
		} else {
			f.Kind = AnonymousBase
		}
		target := elem
		if p, ok := elem.(*ir.PointerType); ok {
			f.Ptr = true
			target = p.Elem
		}
		if sst, ok := target.(*ir.StructType); ok {
			f.Class = r.ClassOf(sst)
		} else if f.Kind == AnonymousBase && st.Kind != ir.StructInterface {
			diag.Fail(diag.Encoding, c.Name, "anonymous element %d is not a struct", i)
		}
		c.Fields = append(c.Fields, f)
	}
	r.checkClass(c, c)

	for _, decl := range r.prog.MethodsOf(st) {
		m := r.newMethod(id, decl)
		c.addMethod(m)
		r.funcs[decl.Func] = m
	}
	r.applyHints(c, hints)
	slog.Debug("class populated", "class", c.Name, "kind", st.Kind, "fields", len(c.Fields), "methods", len(c.Methods))
	return id
}

// checkClass registers interface-typed fields of c, and of the bases it
// inherits, against owner.
func (r *Resolver) checkClass(c, owner *Class) {
	for _, f := range c.Fields {
		if f.Class == NoClass {
			continue
		}
		nested := r.arena[f.Class]
		switch {
		case f.Kind == AnonymousBase:
			r.checkClass(nested, owner)
		case nested.Kind() == ir.StructInterface:
			owner.Interfaces = append(owner.Interfaces, InterfaceRef{Field: f.Name, Class: f.Class})
		}
	}
}

func (r *Resolver) newMethod(owner ID, decl ir.MethodDecl) *Method {
	fn := decl.Func
	m := &Method{Name: decl.Name, Func: fn, Owner: owner}
	ret := fn.Sig.Ret
	switch {
	case strings.HasSuffix(m.Name, ValueReadySuffix):
		m.Kind, m.ValueGuard = Guard, true
		m.GuardOf = strings.TrimSuffix(m.Name, ValueReadySuffix)
	case strings.HasSuffix(m.Name, ReadySuffix):
		m.Kind = Guard
		m.GuardOf = strings.TrimSuffix(m.Name, ReadySuffix)
	case ir.IsVoid(ret):
		m.Kind = Action
	default:
		m.Kind = ValueMethod
	}
	if m.Kind == Guard && ir.BitWidth(ret) != 1 {
		diag.Fail(diag.Unsupported, m.Name, "guard must return a boolean, got %s", ret)
	}
	for i, p := range fn.Params {
		if i == 0 {
			continue
		}
		m.Params = append(m.Params, Param{Name: p.Name(), Type: p.Typ})
	}
	return m
}

func (r *Resolver) applyHints(c *Class, hints config.ClassHints) {
	for _, rule := range hints.Rules {
		m := c.Method(rule)
		if m == nil {
			diag.Fail(diag.Encoding, c.Name, "rule %s is not a method", rule)
		}
		m.Rule = true
		if g := c.Method(rule + ReadySuffix); g != nil {
			g.Rule = true
		}
		c.Rules = append(c.Rules, rule)
	}
	for _, p := range hints.Priority {
		c.Priority = append(c.Priority, Priority{Rule: p.Rule, Level: p.Level})
	}
	for _, conn := range hints.Connect {
		var iface *ir.StructType
		for _, st := range r.prog.Structs {
			if st.Name == conn.Interface && st.Kind == ir.StructInterface {
				iface = st
				break
			}
		}
		if iface == nil {
			diag.Fail(diag.Encoding, c.Name, "connect names unknown interface %s", conn.Interface)
		}
		c.Connects = append(c.Connects, Connect{
			Target:    strings.ReplaceAll(conn.Target, ".", Separator),
			Source:    strings.ReplaceAll(conn.Source, ".", Separator),
			Interface: r.ClassOf(iface),
		})
	}
	c.Software = append(c.Software, hints.Software...)
}

// MethodOf returns the method implemented by fn, or nil.
func (r *Resolver) MethodOf(fn *ir.Function) *Method {
	return r.funcs[fn]
}

// AllFields returns the fields of id with anonymous bases flattened in place.
func (r *Resolver) AllFields(id ID) []Field {
	var out []Field
	for _, f := range r.Class(id).Fields {
		if f.Kind == AnonymousBase && f.Class != NoClass {
			out = append(out, r.AllFields(f.Class)...)
			continue
		}
		out = append(out, f)
	}
	return out
}

// FindMethod looks name up in id and then in its anonymous bases.
func (r *Resolver) FindMethod(id ID, name string) *Method {
	c := r.Class(id)
	if m := c.Method(name); m != nil {
		return m
	}
	for _, f := range c.Fields {
		if f.Kind == AnonymousBase && f.Class != NoClass {
			if m := r.FindMethod(f.Class, name); m != nil {
				return m
			}
		}
	}
	return nil
}

// LookupQualName resolves a Separator-joined path such as "fifo$in$enq"
// by walking field names (vectored fields match name0..nameN-1) from id and
// returns the method at its end. A missing method is an encoding violation.
func (r *Resolver) LookupQualName(id ID, path string) *Method {
	search := path
	cur := id
	for {
		i := strings.Index(search, Separator)
		if i < 0 {
			break
		}
		next, ok := r.fieldClass(cur, search[:i])
		if !ok {
			break
		}
		cur = next
		search = search[i+len(Separator):]
	}
	m := r.FindMethod(cur, search)
	if m == nil {
		diag.Fail(diag.Encoding, r.Class(cur).Name, "method %s not found (looking up %s)", search, path)
	}
	return m
}

func (r *Resolver) fieldClass(id ID, name string) (ID, bool) {
	for _, f := range r.AllFields(id) {
		for _, n := range f.Names() {
			if n == name && f.Class != NoClass {
				return f.Class, true
			}
		}
	}
	return NoClass, false
}
