// Package extract walks each method body once and records its conditional
// state writes, its calls, its local declarations and its guard text,
// together with the read/write/invoke lists used by the conflict analysis.
package extract

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"atomgo/internal/class"
	"atomgo/internal/diag"
	"atomgo/internal/ir"
	"atomgo/internal/render"
)

// Store is one state (or local) write.
type Store struct {
	Dest  string
	Cond  string
	Value string
	Local bool
	Type  ir.Type
	Seq   int
}

// Call is one rendered call site.
type Call struct {
	Cond   string
	Target string
	Method *class.Method
	Action bool
	Args   []string
	// Text is the complete software call expression.
	Text string
	// Used marks value calls consumed by other expressions; they are not
	// emitted as statements.
	Used bool
	Seq  int
}

// Decl is a method-local variable.
type Decl struct {
	Name string
	Type ir.Type
}

// Temp is a named software temporary, defined in body order. Cond is set
// for call results, which are only evaluated when their block runs.
type Temp struct {
	Name  string
	Value string
	Type  ir.Type
	Cond  string
	Seq   int
}

// Entry is one element of a bookkeeping list: the rendered condition under
// which the item is touched ("" when unconditional).
type Entry struct {
	Cond string
}

// Lists holds, per item, the conditions under which it is read, written or
// invoked.
type Lists struct {
	Read   map[string][]Entry
	Write  map[string][]Entry
	Invoke map[string][]Entry
}

func newLists() Lists {
	return Lists{
		Read:   make(map[string][]Entry),
		Write:  make(map[string][]Entry),
		Invoke: make(map[string][]Entry),
	}
}

// Keys returns the items of list in sorted order.
func Keys(list map[string][]Entry) []string {
	keys := make([]string, 0, len(list))
	for k := range list {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// appendList adds cond for item. An unconditional entry replaces every
// earlier one; nothing is added once the item is unconditional or when the
// same condition is already present.
func appendList(list map[string][]Entry, item, cond string) {
	if cond == "" {
		list[item] = []Entry{{}}
		return
	}
	for _, e := range list[item] {
		if e.Cond == "" || e.Cond == cond {
			return
		}
	}
	list[item] = append(list[item], Entry{Cond: cond})
}

// Body is the extracted form of one method.
type Body struct {
	Method *class.Method
	// Guard is the folded return expression ("" for actions).
	Guard    string
	Stores   []Store
	Calls    []Call
	Declares []Decl
	Temps    []Temp
	Lists    Lists
}

type collector struct {
	r     *render.Reconstructor
	body  *Body
	seq   int
	index map[*ir.Instruction]int
}

func (c *collector) next() int {
	c.seq++
	return c.seq
}

func (c *collector) cond(b *ir.Block) string {
	v := c.r.Conds().Primary(b)
	if v == nil {
		return ""
	}
	return c.r.Quiet(v)
}

func (c *collector) Read(item string, b *ir.Block) {
	appendList(c.body.Lists.Read, item, c.cond(b))
}

func (c *collector) Invoke(item string, b *ir.Block) {
	appendList(c.body.Lists.Invoke, item, c.cond(b))
}

func (c *collector) Call(site render.CallSite) {
	if _, ok := c.index[site.Inst]; ok {
		return
	}
	c.index[site.Inst] = len(c.body.Calls)
	c.body.Calls = append(c.body.Calls, Call{
		Cond:   c.cond(site.Inst.Block),
		Target: site.Target,
		Method: site.Method,
		Action: site.Method.Kind == class.Action,
		Args:   site.Args,
		Used:   !ir.IsVoid(site.Inst.Typ) && ir.Uses(site.Inst) > 0,
		Seq:    c.next(),
	})
}

// Method extracts the body of m.
func Method(r *render.Reconstructor, m *class.Method) (body *Body, err error) {
	defer diag.Recover(&err)
	return method(r, m), nil
}

func method(r *render.Reconstructor, m *class.Method) *Body {
	c := &collector{
		r:     r,
		body:  &Body{Method: m, Lists: newLists()},
		index: make(map[*ir.Instruction]int),
	}
	fn := m.Func
	r.Begin(m, ir.Conditions(fn), c)
	var ret []render.Arm
	for _, b := range fn.Blocks {
		for _, inst := range b.Instrs {
			if arm, ok := c.instruction(inst); ok {
				ret = append(ret, arm)
			}
		}
	}
	c.body.Guard = render.Fold(ret)
	slog.Debug("method extracted", "method", fn.Name, "mode", r.Mode(),
		"stores", len(c.body.Stores), "calls", len(c.body.Calls), "guard", c.body.Guard)
	return c.body
}

// instruction handles one instruction; a return value comes back as an arm
// of the guard.
func (c *collector) instruction(inst *ir.Instruction) (render.Arm, bool) {
	r := c.r
	m := c.body.Method
	switch inst.Op {
	case ir.OpStore:
		if inst.Volatile {
			diag.Fail(diag.Unsupported, m.Func.Name, "volatile store")
		}
		c.store(inst.Operands[1], r.Value(inst.Operands[0]), inst.Operands[0].Type(), inst.Block)
	case ir.OpAlloca:
		c.body.Declares = append(c.body.Declares, Decl{Name: r.Name(inst), Type: inst.Allocated})
	case ir.OpRet:
		if len(inst.Operands) == 0 {
			return render.Arm{}, false
		}
		arm := render.Arm{Cond: r.Cond(inst.Block), Val: r.Value(inst.Operands[0])}
		if alt := r.Conds().Alternate(inst.Block); alt != nil {
			arm.Alt = r.Quiet(alt)
		}
		return arm, true
	case ir.OpBr, ir.OpSwitch:
	case ir.OpCall:
		c.call(inst)
	default:
		if inst.Op == ir.OpLoad && inst.Volatile {
			diag.Fail(diag.Unsupported, m.Func.Name, "volatile load")
		}
		if m.Kind == class.Action && ir.Uses(inst) == 0 {
			diag.Fail(diag.Unsupported, m.Func.Name, "%s result is unused in an action body", inst.Op)
		}
		if r.Mode() == render.Software && !r.Inline(inst) {
			c.body.Temps = append(c.body.Temps, Temp{Name: r.Name(inst), Value: r.Define(inst), Type: inst.Typ, Seq: c.next()})
		}
	}
	return render.Arm{}, false
}

func (c *collector) store(addr ir.Value, value string, t ir.Type, b *ir.Block) {
	dest := strings.TrimPrefix(c.r.Deref(addr), "&")
	s := Store{Dest: dest, Cond: c.r.Cond(b), Value: value, Local: render.IsLocal(addr), Type: t, Seq: c.next()}
	if !s.Local {
		appendList(c.body.Lists.Write, dest, c.cond(b))
	}
	c.body.Stores = append(c.body.Stores, s)
}

func (c *collector) call(inst *ir.Instruction) {
	r := c.r
	if inst.Callee != nil && inst.Callee.IsDecl() {
		switch {
		case strings.HasPrefix(inst.Callee.Name, "llvm.memcpy"):
			c.store(inst.Operands[0], r.Deref(inst.Operands[1]), ir.Deref(inst.Operands[0].Type()), inst.Block)
			return
		case strings.HasPrefix(inst.Callee.Name, "llvm.memset"):
			c.store(inst.Operands[0], r.Value(inst.Operands[1]), ir.Deref(inst.Operands[0].Type()), inst.Block)
			return
		}
	}
	used := !ir.IsVoid(inst.Typ) && ir.Uses(inst) > 0
	if used && r.Mode() == render.Hardware {
		// Rendered again at every use; this records the site once.
		r.Value(inst)
		return
	}
	text := r.Define(inst)
	i, ok := c.index[inst]
	if !ok {
		diag.Fail(diag.Internal, fmt.Sprint(inst.Callee), "call rendered without a call record")
	}
	c.body.Calls[i].Text = text
	if used {
		c.body.Temps = append(c.body.Temps, Temp{
			Name: r.Name(inst), Value: text, Type: inst.Typ, Cond: c.body.Calls[i].Cond, Seq: c.next(),
		})
	}
}

// ClassBodies holds the extracted bodies of one class in method order.
type ClassBodies struct {
	Class  *class.Class
	Bodies []*Body
	byName map[string]*Body
}

// Body returns the body of the method called name, or nil.
func (cb *ClassBodies) Body(name string) *Body {
	return cb.byName[name]
}

// Class extracts every method with a body.
func Class(r *render.Reconstructor, cl *class.Class) (cb *ClassBodies, err error) {
	defer diag.Recover(&err)
	cb = &ClassBodies{Class: cl, byName: make(map[string]*Body)}
	for _, m := range cl.Methods {
		if m.Func.IsDecl() {
			continue
		}
		body := method(r, m)
		cb.Bodies = append(cb.Bodies, body)
		cb.byName[m.Name] = body
	}
	return cb, nil
}
