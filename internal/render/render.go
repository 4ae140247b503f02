// Package render reconstructs textual expressions from the SSA graph of a
// method body. The same Reconstructor serves the software and the hardware
// generators; the Mode selects naming, address and call conventions.
package render

import (
	"fmt"
	"log/slog"
	"strings"

	"atomgo/internal/class"
	"atomgo/internal/diag"
	"atomgo/internal/ir"
)

// Mode selects the target form.
type Mode int

const (
	// Software renders C++-like member expressions and named temporaries.
	Software Mode = iota
	// Hardware renders flattened signal names and inlines every value.
	Hardware
)

func (m Mode) String() string {
	if m == Hardware {
		return "hardware"
	}
	return "software"
}

// CallSite describes one rendered call for the bookkeeping consumer.
type CallSite struct {
	Inst     *ir.Instruction
	Method   *class.Method
	Receiver string
	// Target is the qualified callee ("fifo$enq__ENA" in hardware mode).
	Target string
	Args   []string
}

// Recorder receives the read, invoke and call bookkeeping produced while
// rendering. Writes are recorded by the body extractor itself.
type Recorder interface {
	Read(item string, b *ir.Block)
	Invoke(item string, b *ir.Block)
	Call(site CallSite)
}

// Reconstructor renders values of one method at a time.
type Reconstructor struct {
	res    *class.Resolver
	mode   Mode
	layout *ir.DataLayout

	method *class.Method
	conds  *ir.CondMap
	rec    Recorder
	muted  int

	names map[ir.Value]string
	used  map[string]bool
	next  int
}

// New returns a reconstructor reading class information from res.
func New(res *class.Resolver, mode Mode) *Reconstructor {
	layout := res.Program().Layout
	if layout == nil {
		layout = ir.DefaultLayout()
	}
	return &Reconstructor{res: res, mode: mode, layout: layout}
}

// Mode returns the target form.
func (r *Reconstructor) Mode() Mode { return r.mode }

// Resolver returns the class resolver.
func (r *Reconstructor) Resolver() *class.Resolver { return r.res }

// Begin starts rendering the body of m. Temporary numbering restarts.
func (r *Reconstructor) Begin(m *class.Method, conds *ir.CondMap, rec Recorder) {
	r.method = m
	r.conds = conds
	r.rec = rec
	r.names = make(map[ir.Value]string)
	r.used = make(map[string]bool)
	r.next = 0
	if m != nil {
		for _, p := range m.Params {
			r.used[p.Name] = true
		}
	}
}

// Method returns the method being rendered.
func (r *Reconstructor) Method() *class.Method { return r.method }

// Conds returns the block conditions of the current method.
func (r *Reconstructor) Conds() *ir.CondMap { return r.conds }

// Value renders v as an rvalue.
func (r *Reconstructor) Value(v ir.Value) string {
	return r.render(v, false)
}

// Deref renders the location addressed by v.
func (r *Reconstructor) Deref(v ir.Value) string {
	return r.render(v, true)
}

// Quiet renders v without recording reads, invokes or calls.
func (r *Reconstructor) Quiet(v ir.Value) string {
	r.muted++
	defer func() { r.muted-- }()
	return r.render(v, false)
}

// Cond renders the condition of block b, or "" when b runs unconditionally.
func (r *Reconstructor) Cond(b *ir.Block) string {
	c := r.conds.Primary(b)
	if c == nil {
		return ""
	}
	return r.render(c, false)
}

// Define renders the defining expression of inst, ignoring whether it is
// normally referenced through a temporary.
func (r *Reconstructor) Define(inst *ir.Instruction) string {
	return r.body(inst)
}

// Inline reports whether v is rendered at its uses rather than through a
// named temporary.
func (r *Reconstructor) Inline(v ir.Value) bool {
	inst, ok := v.(*ir.Instruction)
	if !ok {
		return true
	}
	switch inst.Op {
	case ir.OpAlloca:
		return false
	case ir.OpICmp, ir.OpFCmp, ir.OpLoad:
		return true
	}
	if r.mode == Hardware {
		return true
	}
	if inst.Op == ir.OpCall {
		return false
	}
	if ir.Uses(inst) > 1 {
		return false
	}
	for _, u := range inst.Referrers() {
		if u.Op == ir.OpExtractElement && u.Operands[0] == ir.Value(inst) {
			return false
		}
	}
	return true
}

// Name returns the temporary or local name of v, assigning tmp__N on first
// use for anonymous values.
func (r *Reconstructor) Name(v ir.Value) string {
	if n, ok := r.names[v]; ok {
		return n
	}
	base := sanitize(v.Name())
	if base == "" {
		r.next++
		base = fmt.Sprintf("tmp__%d", r.next)
	}
	name := base
	for i := 1; r.used[name]; i++ {
		name = fmt.Sprintf("%s_%d", base, i)
	}
	r.used[name] = true
	if r.mode == Hardware && r.method != nil {
		name = r.method.Name + class.Separator + name
	}
	r.names[v] = name
	return name
}

func sanitize(name string) string {
	var b strings.Builder
	for _, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '_':
			b.WriteRune(ch)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// exposed values are addresses of named storage.
func exposed(v ir.Value) bool {
	switch val := v.(type) {
	case *ir.Global:
		return true
	case *ir.Instruction:
		return val.Op == ir.OpAlloca
	}
	return false
}

func (r *Reconstructor) render(v ir.Value, indirect bool) string {
	if v == nil {
		diag.Fail(diag.Internal, "", "nil operand")
	}
	isExposed := exposed(v)
	if indirect && isExposed {
		indirect, isExposed = false, false
	}
	var text string
	switch val := v.(type) {
	case *ir.Const:
		text = r.constant(val)
	case *ir.Argument:
		text = r.argument(val)
	case *ir.Global:
		text = sanitize(val.Name())
	case *ir.Instruction:
		if r.Inline(val) {
			text = r.body(val)
		} else {
			text = r.Name(val)
		}
	default:
		diag.Fail(diag.Internal, v.Name(), "unexpected operand kind %T", v)
	}
	if r.mode == Hardware {
		return strings.TrimPrefix(text, "&")
	}
	switch {
	case indirect:
		if strings.HasPrefix(text, "&") {
			return text[1:]
		}
		return "*" + paren(text)
	case isExposed:
		return "&" + text
	}
	return text
}

func (r *Reconstructor) argument(a *ir.Argument) string {
	if a.Index == 0 {
		return "this"
	}
	name := sanitize(a.Name())
	if r.mode == Hardware && r.method != nil && r.method.Func == a.Parent {
		return r.method.ParamSignal(name)
	}
	return name
}

func (r *Reconstructor) constant(c *ir.Const) string {
	if c.Null {
		if r.mode == Hardware {
			return "0"
		}
		return "nullptr"
	}
	if it, ok := c.Typ.(*ir.IntType); ok && (it.Width > 32 || c.Signed) {
		return fmt.Sprint(c.SExt())
	}
	return fmt.Sprint(c.ZExt())
}

// body renders the defining expression of inst.
func (r *Reconstructor) body(inst *ir.Instruction) string {
	switch {
	case inst.Op.IsBinary():
		return r.binary(inst)
	case inst.Op.IsCast():
		return r.Value(inst.Operands[0])
	}
	switch inst.Op {
	case ir.OpICmp, ir.OpFCmp:
		return r.compare(inst)
	case ir.OpLoad:
		return r.load(inst)
	case ir.OpGEP:
		return r.gep(inst)
	case ir.OpAlloca:
		return r.Name(inst)
	case ir.OpCall:
		return r.call(inst)
	case ir.OpPhi:
		return r.phi(inst)
	case ir.OpSelect:
		return paren(r.Value(inst.Operands[0])) + " ? " + r.Value(inst.Operands[1]) + " : " + r.Value(inst.Operands[2])
	case ir.OpExtractValue:
		return r.extractValue(inst)
	case ir.OpExtractElement:
		return paren(r.Value(inst.Operands[0])) + "[" + r.Value(inst.Operands[1]) + "]"
	}
	diag.Fail(diag.Internal, inst.Op.String(), "instruction does not produce a value")
	return ""
}

var binaryOps = map[ir.Opcode]string{
	ir.OpAdd: "+", ir.OpFAdd: "+", ir.OpSub: "-", ir.OpFSub: "-",
	ir.OpMul: "*", ir.OpFMul: "*", ir.OpUDiv: "/", ir.OpSDiv: "/", ir.OpFDiv: "/",
	ir.OpURem: "%", ir.OpSRem: "%", ir.OpShl: "<<", ir.OpLShr: ">>", ir.OpAShr: ">>",
	ir.OpAnd: "&", ir.OpOr: "|", ir.OpXor: "^",
}

func (r *Reconstructor) binary(inst *ir.Instruction) string {
	x, y := inst.Operands[0], inst.Operands[1]
	if c, ok := x.(*ir.Const); ok && c.IsZero() && !c.Null && (inst.Op == ir.OpSub || inst.Op == ir.OpFSub) {
		return "-(" + r.Value(y) + ")"
	}
	if c, ok := y.(*ir.Const); ok && inst.Op == ir.OpXor && c.SExt() == -1 {
		return "~" + paren(r.Value(x))
	}
	if inst.Op == ir.OpFRem {
		fn := "fmodl"
		if ft, ok := inst.Typ.(*ir.FloatType); ok {
			switch ft.Bits {
			case 32:
				fn = "fmodf"
			case 64:
				fn = "fmod"
			}
		}
		return fn + "(" + r.Value(x) + ", " + r.Value(y) + ")"
	}
	op := binaryOps[inst.Op]
	if inst.Op == ir.OpAShr && r.mode == Hardware {
		op = ">>>"
	}
	return paren(r.Value(x)) + " " + op + " " + paren(r.Value(y))
}

var comparePreds = map[ir.Predicate]string{
	ir.PredEQ: "==", ir.PredNE: "!=",
	ir.PredUGT: ">", ir.PredUGE: ">=", ir.PredULT: "<", ir.PredULE: "<=",
	ir.PredSGT: ">", ir.PredSGE: ">=", ir.PredSLT: "<", ir.PredSLE: "<=",
	ir.PredFOEQ: "==", ir.PredFONE: "!=", ir.PredFOGT: ">", ir.PredFOGE: ">=", ir.PredFOLT: "<", ir.PredFOLE: "<=",
	ir.PredFUEQ: "==", ir.PredFUNE: "!=", ir.PredFUGT: ">", ir.PredFUGE: ">=", ir.PredFULT: "<", ir.PredFULE: "<=",
}

func (r *Reconstructor) compare(inst *ir.Instruction) string {
	op, ok := comparePreds[inst.Pred]
	if !ok {
		diag.Fail(diag.Unsupported, inst.Pred.String(), "comparison predicate has no operator form")
	}
	return paren(r.Value(inst.Operands[0])) + " " + op + " " + paren(r.Value(inst.Operands[1]))
}

func (r *Reconstructor) load(inst *ir.Instruction) string {
	if inst.Volatile {
		diag.Fail(diag.Unsupported, r.subject(), "volatile load")
	}
	addr := inst.Operands[0]
	text := r.render(addr, true)
	if !ir.IsPointer(inst.Typ) && !localAddr(addr) {
		r.read(text, inst.Block)
	}
	return text
}

// localAddr reports whether addr is rooted at a stack slot or a parameter.
func localAddr(addr ir.Value) bool {
	for {
		switch v := addr.(type) {
		case *ir.Argument:
			return v.Index != 0
		case *ir.Instruction:
			switch {
			case v.Op == ir.OpAlloca:
				return true
			case v.Op == ir.OpGEP || v.Op.IsCast():
				addr = v.Operands[0]
				continue
			}
		}
		return false
	}
}

// IsLocal reports whether stores through addr target method-local storage.
func IsLocal(addr ir.Value) bool {
	return localAddr(addr)
}

func (r *Reconstructor) extractValue(inst *ir.Instruction) string {
	text := paren(r.Value(inst.Operands[0]))
	t := inst.Operands[0].Type()
	bit, slicing := 0, false
	for _, idx := range inst.Indices {
		switch tt := t.(type) {
		case *ir.StructType:
			if r.mode == Hardware {
				bit += bitOffset(tt, idx)
				slicing = true
			} else if name, named := class.FieldName(tt, idx); named {
				text += "." + name
			}
			t = tt.Elems[idx]
		case *ir.ArrayType:
			if r.mode == Hardware && slicing {
				bit += idx * ir.BitWidth(tt.Elem)
			} else {
				text += fmt.Sprintf("[%d]", idx)
			}
			t = tt.Elem
		default:
			diag.Fail(diag.Encoding, r.subject(), "extractvalue into %s", t)
		}
	}
	if slicing {
		text += slice(bit, ir.BitWidth(t))
	}
	return text
}

// bitOffset is the position of element idx in a packed bit-vector struct;
// the first element occupies the low bits.
func bitOffset(st *ir.StructType, idx int) int {
	off := 0
	for i := 0; i < idx; i++ {
		off += ir.BitWidth(st.Elems[i])
	}
	return off
}

func slice(lo, width int) string {
	if width <= 1 {
		return fmt.Sprintf("[%d]", lo)
	}
	return fmt.Sprintf("[%d:%d]", lo+width-1, lo)
}

func (r *Reconstructor) read(item string, b *ir.Block) {
	if r.muted > 0 || r.rec == nil {
		return
	}
	slog.Debug("read", "method", r.subject(), "item", item)
	r.rec.Read(item, b)
}

func (r *Reconstructor) subject() string {
	if r.method == nil {
		return ""
	}
	return r.method.Func.Name
}

// paren wraps text unless it is already a bare identifier, member path or
// literal.
func paren(text string) string {
	if bare(text) {
		return text
	}
	return "(" + text + ")"
}

func bare(text string) bool {
	if text == "" {
		return true
	}
	s := strings.ReplaceAll(text, "->", ".")
	if s[0] == '-' {
		for _, ch := range s[1:] {
			if ch < '0' || ch > '9' {
				return false
			}
		}
		return len(s) > 1
	}
	depth := 0
	for _, ch := range s {
		switch {
		case ch == '[':
			depth++
		case ch == ']':
			depth--
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '_', ch == '$', ch == '.':
		case depth > 0 && ch == ':':
		default:
			return false
		}
	}
	return depth == 0
}
