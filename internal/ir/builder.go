package ir

import (
	"fmt"
	"go/constant"
	"go/token"
	"go/types"
	"sort"
	"strings"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/types/typeutil"

	"atomgo/internal/diag"
)

// BuildProgram lowers the classes declared in pkgs into the IR. Every named
// struct type becomes a StructType; pointer-receiver methods become
// functions registered against their owner. Interface types become
// interface-kind structs whose methods are declarations.
func BuildProgram(prog *ssa.Program, pkgs []*ssa.Package, reporter *diag.Reporter) (_ *Program, err error) {
	defer diag.Recover(&err)
	if prog == nil {
		return nil, fmt.Errorf("ir: nil ssa program")
	}
	b := &builder{
		ssa:      prog,
		reporter: reporter,
		out:      NewProgram(),
		funcs:    make(map[*ssa.Function]*Function),
		ifaces:   make(map[*StructType]map[string]*Function),
	}

	var named []*types.Named
	for _, pkg := range pkgs {
		if pkg == nil {
			continue
		}
		for _, mem := range pkg.Members {
			t, ok := mem.(*ssa.Type)
			if !ok {
				continue
			}
			if n, ok := t.Type().(*types.Named); ok {
				if _, isStruct := n.Underlying().(*types.Struct); isStruct {
					named = append(named, n)
				}
			}
		}
		for _, mem := range pkg.Members {
			if g, ok := mem.(*ssa.Global); ok {
				b.global(g)
			}
		}
	}
	sort.Slice(named, func(i, j int) bool {
		return named[i].Obj().Pos() < named[j].Obj().Pos()
	})
	for _, n := range named {
		b.typeOf(n)
	}
	// Bodies are lowered after every class is declared so that calls can
	// reference methods of classes declared later in the source.
	for i := 0; i < len(b.bodies); i++ {
		b.lowerBody(b.bodies[i])
	}
	if reporter.HasErrors() {
		return nil, fmt.Errorf("ir: failed to lower program")
	}
	return b.out, nil
}

type builder struct {
	ssa      *ssa.Program
	reporter *diag.Reporter
	out      *Program
	types    typeutil.Map
	funcs    map[*ssa.Function]*Function
	ifaces   map[*StructType]map[string]*Function
	globals  map[*ssa.Global]*Global
	bodies   []*ssa.Function
	literal  int
}

func (b *builder) typeOf(t types.Type) Type {
	if cached := b.types.At(t); cached != nil {
		return cached.(Type)
	}
	switch tt := t.(type) {
	case *types.Basic:
		return basicType(tt)
	case *types.Pointer:
		res := Ptr(b.typeOf(tt.Elem()))
		b.types.Set(t, res)
		return res
	case *types.Array:
		res := &ArrayType{Elem: b.typeOf(tt.Elem()), Len: int(tt.Len())}
		b.types.Set(t, res)
		return res
	case *types.Named:
		switch u := tt.Underlying().(type) {
		case *types.Struct:
			return b.structType(tt, u)
		case *types.Interface:
			st := b.interfaceType(tt.Obj().Name(), u)
			res := Ptr(st)
			b.types.Set(t, res)
			return res
		default:
			return b.typeOf(u)
		}
	case *types.Struct:
		st := &StructType{Kind: StructBitVector}
		b.types.Set(t, st)
		b.fillStruct(st, tt)
		return st
	case *types.Interface:
		st := b.interfaceType("", tt)
		res := Ptr(st)
		b.types.Set(t, res)
		return res
	}
	b.reporter.Error(token.NoPos, fmt.Sprintf("unsupported type %s", t))
	return I32
}

func basicType(t *types.Basic) Type {
	switch t.Kind() {
	case types.Float32:
		return F32
	case types.Float64, types.UntypedFloat:
		return F64
	case types.UnsafePointer:
		return Ptr(I8)
	}
	width, _ := widthForBasic(t)
	return Int(width)
}

func (b *builder) structType(n *types.Named, u *types.Struct) *StructType {
	kind := StructBitVector
	if hasMethods(b.ssa, n) {
		kind = StructClass
	}
	st := &StructType{Name: n.Obj().Name(), Kind: kind}
	b.types.Set(n, st)
	b.out.AddStruct(st)
	b.fillStruct(st, u)
	if kind == StructClass {
		for _, fn := range declaredMethods(b.ssa, n) {
			b.out.AddMethod(st, fn.Name(), b.function(fn))
			if len(fn.Blocks) > 0 {
				b.bodies = append(b.bodies, fn)
			}
		}
	}
	return st
}

// fillStruct converts the fields and encodes the field-name side channel:
// one comma separated slot per element, embedded fields end in '/'.
func (b *builder) fillStruct(st *StructType, u *types.Struct) {
	slots := make([]string, 0, u.NumFields())
	for i := 0; i < u.NumFields(); i++ {
		f := u.Field(i)
		st.Elems = append(st.Elems, b.typeOf(f.Type()))
		if f.Embedded() {
			slots = append(slots, f.Name()+"/")
		} else {
			slots = append(slots, f.Name())
		}
	}
	st.FieldMap = strings.Join(slots, ",")
}

func (b *builder) interfaceType(name string, it *types.Interface) *StructType {
	if name == "" {
		b.literal++
		name = fmt.Sprintf("iface%d", b.literal)
	}
	st := &StructType{Name: name, Kind: StructInterface}
	b.out.AddStruct(st)
	methods := make(map[string]*Function)
	b.ifaces[st] = methods
	names := make([]string, 0, it.NumMethods())
	for i := 0; i < it.NumMethods(); i++ {
		m := it.Method(i)
		sig := m.Type().(*types.Signature)
		params := []*Argument{Param("this", Ptr(st))}
		for j := 0; j < sig.Params().Len(); j++ {
			p := sig.Params().At(j)
			params = append(params, Param(p.Name(), b.typeOf(p.Type())))
		}
		fn := NewFunction(name+"."+m.Name(), b.resultType(sig, m.Pos()), params...)
		fn.Pos = m.Pos()
		st.Elems = append(st.Elems, Ptr(fn.Sig))
		names = append(names, m.Name())
		methods[m.Name()] = fn
		b.out.AddMethod(st, m.Name(), fn)
	}
	st.FieldMap = strings.Join(names, ",")
	return st
}

func (b *builder) resultType(sig *types.Signature, pos token.Pos) Type {
	switch sig.Results().Len() {
	case 0:
		return Void
	case 1:
		return b.typeOf(sig.Results().At(0).Type())
	}
	b.reporter.Error(pos, "methods may return at most one value")
	return Void
}

// function returns the IR function for fn, declaring it on first use.
func (b *builder) function(fn *ssa.Function) *Function {
	if f, ok := b.funcs[fn]; ok {
		return f
	}
	var params []*Argument
	for i, p := range fn.Params {
		name := p.Name()
		if i == 0 && fn.Signature.Recv() != nil {
			name = "this"
		}
		params = append(params, Param(name, b.typeOf(p.Type())))
	}
	owner := ""
	if n := recvNamed(fn); n != nil {
		owner = n.Obj().Name() + "."
	}
	f := NewFunction(owner+fn.Name(), b.resultType(fn.Signature, fn.Pos()), params...)
	f.Pos = fn.Pos()
	b.funcs[fn] = f
	return f
}

func (b *builder) global(g *ssa.Global) *Global {
	if b.globals == nil {
		b.globals = make(map[*ssa.Global]*Global)
	}
	if out, ok := b.globals[g]; ok {
		return out
	}
	elem := b.typeOf(g.Type().(*types.Pointer).Elem())
	out := b.out.NewGlobal(g.Name(), elem)
	b.globals[g] = out
	return out
}

func (b *builder) lowerBody(fn *ssa.Function) {
	l := &lowering{
		builder: b,
		fn:      b.function(fn),
		values:  make(map[ssa.Value]Value),
		blocks:  make(map[*ssa.BasicBlock]*Block),
	}
	for i, p := range fn.Params {
		l.values[p] = l.fn.Params[i]
	}
	for _, block := range fn.Blocks {
		l.blocks[block] = l.fn.NewBlock(blockComment(block))
	}
	for _, block := range fn.DomPreorder() {
		l.translateBlock(block)
	}
	for _, p := range l.phis {
		for i, edge := range p.src.Edges {
			p.dst.AddIncoming(l.value(edge), l.blocks[p.src.Block().Preds[i]])
		}
	}
}

type pendingPhi struct {
	src *ssa.Phi
	dst *Instruction
}

type lowering struct {
	*builder
	fn     *Function
	values map[ssa.Value]Value
	blocks map[*ssa.BasicBlock]*Block
	phis   []pendingPhi
	cur    *Block
}

func (l *lowering) translateBlock(block *ssa.BasicBlock) {
	l.cur = l.blocks[block]
	for _, instr := range block.Instrs {
		l.translateInstr(block, instr)
	}
}

func (l *lowering) bind(v ssa.Value, inst *Instruction) {
	inst.Pos = v.Pos()
	l.values[v] = inst
}

func (l *lowering) translateInstr(block *ssa.BasicBlock, instr ssa.Instruction) {
	switch v := instr.(type) {
	case *ssa.DebugRef:
		// Skip debug markers.
	case *ssa.Alloc:
		if v.Heap {
			l.reporter.Error(v.Pos(), "heap allocation is not supported")
			return
		}
		elem := v.Type().(*types.Pointer).Elem()
		l.bind(v, l.cur.Alloca(allocName(v), l.typeOf(elem)))
	case *ssa.Store:
		st := l.cur.Store(l.value(v.Val), l.value(v.Addr))
		st.Pos = v.Pos()
	case *ssa.FieldAddr:
		l.bind(v, l.cur.GEP(l.value(v.X), ConstInt(I32, 0), ConstInt(I32, int64(v.Field))))
	case *ssa.IndexAddr:
		if _, ok := v.X.Type().Underlying().(*types.Pointer); !ok {
			l.reporter.Error(v.Pos(), "slice indexing is not supported")
			return
		}
		l.bind(v, l.cur.GEP(l.value(v.X), ConstInt(I32, 0), l.value(v.Index)))
	case *ssa.Field:
		l.bind(v, l.cur.ExtractValue(l.value(v.X), v.Field))
	case *ssa.Index:
		c, ok := v.Index.(*ssa.Const)
		if !ok {
			l.reporter.Error(v.Pos(), "array value indexed by a non-constant")
			return
		}
		idx, _ := constant.Int64Val(c.Value)
		l.bind(v, l.cur.ExtractValue(l.value(v.X), int(idx)))
	case *ssa.UnOp:
		l.handleUnOp(v)
	case *ssa.BinOp:
		l.handleBinOp(v)
	case *ssa.Convert:
		l.handleConvert(v)
	case *ssa.ChangeType:
		l.values[v] = l.value(v.X)
	case *ssa.Phi:
		phi := l.cur.Phi(l.typeOf(v.Type()))
		l.bind(v, phi)
		l.phis = append(l.phis, pendingPhi{src: v, dst: phi})
	case *ssa.Call:
		l.handleCall(v)
	case *ssa.If:
		br := l.cur.CondBr(l.value(v.Cond), l.blocks[block.Succs[0]], l.blocks[block.Succs[1]])
		br.Pos = v.Pos()
	case *ssa.Jump:
		l.cur.Br(l.blocks[block.Succs[0]])
	case *ssa.Return:
		switch len(v.Results) {
		case 0:
			l.cur.Ret(nil)
		case 1:
			l.cur.Ret(l.value(v.Results[0])).Pos = v.Pos()
		default:
			l.reporter.Error(v.Pos(), "multiple return values are not supported")
		}
	default:
		l.reporter.Error(instr.Pos(), fmt.Sprintf("instruction %T is not supported", instr))
	}
}

func (l *lowering) value(v ssa.Value) Value {
	if out, ok := l.values[v]; ok {
		return out
	}
	switch val := v.(type) {
	case *ssa.Const:
		return l.constant(val)
	case *ssa.Global:
		return l.global(val)
	case *ssa.Function:
		l.reporter.Error(val.Pos(), fmt.Sprintf("function value %s is not supported", val.Name()))
	default:
		l.reporter.Error(v.Pos(), fmt.Sprintf("no lowering for value %T", v))
	}
	return ConstInt(I32, 0)
}

func (l *lowering) constant(c *ssa.Const) Value {
	t := l.typeOf(c.Type())
	if c.IsNil() {
		if IsPointer(t) {
			return NullPtr(t)
		}
		l.reporter.Error(c.Pos(), fmt.Sprintf("zero value of %s is not supported", c.Type()))
		return ConstInt(I32, 0)
	}
	it, ok := t.(*IntType)
	if !ok {
		l.reporter.Error(c.Pos(), fmt.Sprintf("constant of type %s is not supported", c.Type()))
		return ConstInt(I32, 0)
	}
	switch c.Value.Kind() {
	case constant.Bool:
		return ConstBool(constant.BoolVal(c.Value))
	case constant.Int:
		if isSignedType(c.Type()) {
			v, _ := constant.Int64Val(c.Value)
			return ConstInt(it, v)
		}
		v, _ := constant.Uint64Val(c.Value)
		return ConstUint(it, v)
	}
	l.reporter.Error(c.Pos(), fmt.Sprintf("constant %s is not supported", c.Value))
	return ConstInt(I32, 0)
}

func (l *lowering) handleUnOp(op *ssa.UnOp) {
	x := l.value(op.X)
	switch op.Op {
	case token.MUL:
		l.bind(op, l.cur.Load(x))
	case token.NOT:
		l.bind(op, l.cur.ICmp(PredEQ, x, ConstBool(false)))
	case token.SUB:
		zero := ConstInt(intOf(x.Type()), 0)
		l.bind(op, l.cur.Binary(OpSub, zero, x))
	case token.XOR:
		l.bind(op, l.cur.Binary(OpXor, x, ConstInt(intOf(x.Type()), -1)))
	default:
		l.reporter.Error(op.Pos(), fmt.Sprintf("unary operator %s is not supported", op.Op))
	}
}

func intOf(t Type) *IntType {
	if it, ok := t.(*IntType); ok {
		return it
	}
	return I32
}

func (l *lowering) handleBinOp(op *ssa.BinOp) {
	x, y := l.value(op.X), l.value(op.Y)
	signed := isSignedType(op.X.Type())
	if pred, ok := translateCompareOp(op.Op, signed); ok {
		l.bind(op, l.cur.ICmp(pred, x, y))
		return
	}
	bin, ok := translateBinOp(op.Op, signed)
	if !ok {
		l.reporter.Error(op.Pos(), fmt.Sprintf("unsupported binary op: %s", op.Op.String()))
		return
	}
	if bin == OpShl || bin == OpLShr || bin == OpAShr {
		y = l.resize(y, x.Type(), false)
	}
	l.bind(op, l.cur.Binary(bin, x, y))
}

// resize adapts an integer operand to the width of t.
func (l *lowering) resize(v Value, t Type, signed bool) Value {
	from, to := BitWidth(v.Type()), BitWidth(t)
	switch {
	case from == to:
		return v
	case from > to:
		return l.cur.Cast(OpTrunc, v, t)
	case signed:
		return l.cur.Cast(OpSExt, v, t)
	}
	return l.cur.Cast(OpZExt, v, t)
}

func (l *lowering) handleConvert(cv *ssa.Convert) {
	x := l.value(cv.X)
	to := l.typeOf(cv.Type())
	signed := isSignedType(cv.X.Type())
	_, fromFloat := x.Type().(*FloatType)
	_, toFloat := to.(*FloatType)
	var inst *Instruction
	switch {
	case !fromFloat && !toFloat:
		out := l.resize(x, to, signed)
		if out == x {
			inst = l.cur.Cast(OpBitCast, x, to)
		} else {
			inst = out.(*Instruction)
		}
	case !fromFloat && toFloat:
		op := OpUIToFP
		if signed {
			op = OpSIToFP
		}
		inst = l.cur.Cast(op, x, to)
	case fromFloat && !toFloat:
		op := OpFPToUI
		if isSignedType(cv.Type()) {
			op = OpFPToSI
		}
		inst = l.cur.Cast(op, x, to)
	default:
		op := OpFPExt
		if BitWidth(to) < BitWidth(x.Type()) {
			op = OpFPTrunc
		}
		inst = l.cur.Cast(op, x, to)
	}
	l.bind(cv, inst)
}

func (l *lowering) handleCall(call *ssa.Call) {
	common := call.Common()
	var callee *Function
	var args []Value
	if common.IsInvoke() {
		recv := l.value(common.Value)
		st, _ := Deref(recv.Type()).(*StructType)
		if st == nil || l.ifaces[st] == nil {
			l.reporter.Error(call.Pos(), "interface call through an unknown interface")
			return
		}
		callee = l.ifaces[st][common.Method.Name()]
		args = append(args, recv)
	} else {
		target := common.StaticCallee()
		if target == nil || target.Signature.Recv() == nil {
			l.reporter.Error(call.Pos(), "only method calls are supported")
			return
		}
		callee = l.function(target)
	}
	if callee == nil {
		l.reporter.Error(call.Pos(), "call target could not be resolved")
		return
	}
	for _, a := range common.Args {
		args = append(args, l.value(a))
	}
	l.bind(call, l.cur.Call(callee, args...))
}

func hasMethods(prog *ssa.Program, n *types.Named) bool {
	return len(declaredMethods(prog, n)) > 0
}

// declaredMethods returns the methods declared directly on n (not promoted
// from embedded fields), ordered by source position.
func declaredMethods(prog *ssa.Program, n *types.Named) []*ssa.Function {
	mset := prog.MethodSets.MethodSet(types.NewPointer(n))
	var out []*ssa.Function
	for i := 0; i < mset.Len(); i++ {
		sel := mset.At(i)
		if len(sel.Index()) != 1 {
			continue
		}
		if fn := prog.MethodValue(sel); fn != nil && fn.Synthetic == "" {
			out = append(out, fn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pos() < out[j].Pos() })
	return out
}

func recvNamed(fn *ssa.Function) *types.Named {
	recv := fn.Signature.Recv()
	if recv == nil {
		return nil
	}
	t := recv.Type()
	if p, ok := t.(*types.Pointer); ok {
		t = p.Elem()
	}
	n, _ := t.(*types.Named)
	return n
}

func blockComment(block *ssa.BasicBlock) string {
	if block.Comment != "" {
		return fmt.Sprintf("%s.%d", strings.ReplaceAll(block.Comment, " ", "_"), block.Index)
	}
	return fmt.Sprintf("block_%d", block.Index)
}

func translateBinOp(tok token.Token, signed bool) (Opcode, bool) {
	switch tok {
	case token.ADD:
		return OpAdd, true
	case token.SUB:
		return OpSub, true
	case token.MUL:
		return OpMul, true
	case token.QUO:
		if signed {
			return OpSDiv, true
		}
		return OpUDiv, true
	case token.REM:
		if signed {
			return OpSRem, true
		}
		return OpURem, true
	case token.AND:
		return OpAnd, true
	case token.OR:
		return OpOr, true
	case token.XOR:
		return OpXor, true
	case token.SHL:
		return OpShl, true
	case token.SHR:
		if signed {
			return OpAShr, true
		}
		return OpLShr, true
	default:
		return 0, false
	}
}

func translateCompareOp(tok token.Token, signed bool) (Predicate, bool) {
	switch tok {
	case token.EQL:
		return PredEQ, true
	case token.NEQ:
		return PredNE, true
	case token.LSS:
		if signed {
			return PredSLT, true
		}
		return PredULT, true
	case token.LEQ:
		if signed {
			return PredSLE, true
		}
		return PredULE, true
	case token.GTR:
		if signed {
			return PredSGT, true
		}
		return PredUGT, true
	case token.GEQ:
		if signed {
			return PredSGE, true
		}
		return PredUGE, true
	default:
		return 0, false
	}
}

func isSignedType(t types.Type) bool {
	if t == nil {
		return true
	}
	if basic, ok := t.Underlying().(*types.Basic); ok {
		if basic.Info()&(types.IsUnsigned|types.IsBoolean) != 0 {
			return false
		}
	}
	return true
}

func widthForBasic(b *types.Basic) (int, bool) {
	switch b.Kind() {
	case types.Int8:
		return 8, true
	case types.Uint8:
		return 8, false
	case types.Int16:
		return 16, true
	case types.Uint16:
		return 16, false
	case types.Int32, types.Int:
		return 32, true
	case types.Uint32, types.Uint:
		return 32, false
	case types.Int64:
		return 64, true
	case types.Uint64, types.Uintptr:
		return 64, false
	case types.Bool, types.UntypedBool:
		return 1, false
	default:
		return 32, true
	}
}

func allocName(a *ssa.Alloc) string {
	candidate := strings.TrimSpace(a.Comment)
	candidate = strings.TrimPrefix(candidate, "var ")
	if candidate == "" {
		candidate = a.Name()
	}
	candidate = strings.ReplaceAll(candidate, ".", "_")
	candidate = strings.ReplaceAll(candidate, " ", "_")
	return candidate
}
