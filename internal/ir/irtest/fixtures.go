// Package irtest builds small hand-written IR programs shared by the
// generator tests.
package irtest

import "atomgo/internal/ir"

// Idx returns an i32 constant used as an address-chain index.
func Idx(n int64) *ir.Const {
	return ir.ConstInt(ir.I32, n)
}

// Method creates a function for method name of owner, registers it and
// returns it with its receiver argument.
func Method(prog *ir.Program, owner *ir.StructType, name string, ret ir.Type, params ...*ir.Argument) (*ir.Function, *ir.Argument) {
	this := ir.Param("this", ir.Ptr(owner))
	fn := ir.NewFunction(owner.Name+"."+name, ret, append([]*ir.Argument{this}, params...)...)
	prog.AddMethod(owner, name, fn)
	return fn, this
}

// Counter is a class with one 8-bit register, an action incr that adds one
// to it and a value method read that returns it.
func Counter() *ir.Program {
	prog := ir.NewProgram()
	st := prog.AddStruct(&ir.StructType{Name: "Counter", Elems: []ir.Type{ir.I8}, FieldMap: "counter"})

	incr, this := Method(prog, st, "incr", ir.Void)
	b := incr.NewBlock("entry")
	addr := b.GEP(this, Idx(0), Idx(0))
	sum := b.Binary(ir.OpAdd, b.Load(addr), ir.ConstUint(ir.I8, 1))
	b.Store(sum, addr)
	b.Ret(nil)

	read, this := Method(prog, st, "read", ir.I8)
	b = read.NewBlock("entry")
	b.Ret(b.Load(b.GEP(this, Idx(0), Idx(0))))
	return prog
}

// Nested declares Inner{c} and Outer{a, b Inner} plus a global "base" of
// type Outer. The returned GEP is the address of base.b.c, built in a
// function "look" that loads it.
func Nested() (*ir.Program, *ir.Instruction) {
	prog := ir.NewProgram()
	inner := prog.AddStruct(&ir.StructType{Name: "Inner", Elems: []ir.Type{ir.I32}, FieldMap: "c", Kind: ir.StructBitVector})
	outer := prog.AddStruct(&ir.StructType{Name: "Outer", Elems: []ir.Type{ir.I32, inner}, FieldMap: "a,b"})
	base := prog.NewGlobal("base", outer)

	look, _ := Method(prog, outer, "look", ir.I32)
	b := look.NewBlock("entry")
	gep := b.GEP(base, Idx(0), Idx(1), Idx(0))
	b.Ret(b.Load(gep))
	return prog, gep
}

// Pipeline is a Top class composing a Fifo submodule and an outgoing PipeIn
// interface. The returned struct types are, in order, PipeIn, Fifo and Top.
//
//	run(x):   if x > 10 { fifo.enq(x) } else { out.enq(x + 1) }
//	          count = x > 10 ? 1 : 2
//	get():    fifo.first() + count
//	get__RDY: fifo.first__RDY()
func Pipeline() (*ir.Program, []*ir.StructType) {
	prog := ir.NewProgram()
	pipe := prog.AddStruct(&ir.StructType{
		Name:     "PipeIn",
		Elems:    []ir.Type{ir.Ptr(&ir.FunctionType{Ret: ir.Void, Params: []ir.Type{ir.I32}})},
		FieldMap: "enq",
		Kind:     ir.StructInterface,
	})
	pipeEnq, _ := Method(prog, pipe, "enq", ir.Void, ir.Param("v", ir.I32))

	fifo := prog.AddStruct(&ir.StructType{Name: "Fifo", Elems: []ir.Type{ir.I32, ir.I1}, FieldMap: "buf,full"})
	enq, this := Method(prog, fifo, "enq", ir.Void, ir.Param("v", ir.I32))
	b := enq.NewBlock("entry")
	b.Store(enq.Params[1], b.GEP(this, Idx(0), Idx(0)))
	b.Store(ir.ConstBool(true), b.GEP(this, Idx(0), Idx(1)))
	b.Ret(nil)

	enqRdy, this := Method(prog, fifo, "enq__RDY", ir.I1)
	b = enqRdy.NewBlock("entry")
	b.Ret(b.ICmp(ir.PredEQ, b.Load(b.GEP(this, Idx(0), Idx(1))), ir.ConstBool(false)))

	first, this := Method(prog, fifo, "first", ir.I32)
	b = first.NewBlock("entry")
	b.Ret(b.Load(b.GEP(this, Idx(0), Idx(0))))

	firstRdy, this := Method(prog, fifo, "first__RDY", ir.I1)
	b = firstRdy.NewBlock("entry")
	b.Ret(b.Load(b.GEP(this, Idx(0), Idx(1))))

	deq, this := Method(prog, fifo, "deq", ir.Void)
	b = deq.NewBlock("entry")
	b.Store(ir.ConstBool(false), b.GEP(this, Idx(0), Idx(1)))
	b.Ret(nil)

	top := prog.AddStruct(&ir.StructType{
		Name:     "Top",
		Elems:    []ir.Type{fifo, ir.Ptr(pipe), ir.I32},
		FieldMap: "fifo,out,count",
	})
	run, this := Method(prog, top, "run", ir.Void, ir.Param("x", ir.I32))
	x := run.Params[1]
	entry := run.NewBlock("entry")
	big := run.NewBlock("big")
	small := run.NewBlock("small")
	done := run.NewBlock("done")
	entry.CondBr(entry.ICmp(ir.PredSGT, x, Idx(10)), big, small)
	big.Call(enq, big.GEP(this, Idx(0), Idx(0)), x)
	big.Br(done)
	out := small.Load(small.GEP(this, Idx(0), Idx(1)))
	small.Call(pipeEnq, out, small.Binary(ir.OpAdd, x, Idx(1)))
	small.Br(done)
	phi := done.Phi(ir.I32)
	phi.AddIncoming(Idx(1), big)
	phi.AddIncoming(Idx(2), small)
	done.Store(phi, done.GEP(this, Idx(0), Idx(2)))
	done.Ret(nil)

	get, this := Method(prog, top, "get", ir.I32)
	b = get.NewBlock("entry")
	head := b.Call(first, b.GEP(this, Idx(0), Idx(0)))
	b.Ret(b.Binary(ir.OpAdd, head, b.Load(b.GEP(this, Idx(0), Idx(2)))))

	getRdy, this := Method(prog, top, "get__RDY", ir.I1)
	b = getRdy.NewBlock("entry")
	b.Ret(b.Call(firstRdy, b.GEP(this, Idx(0), Idx(0))))

	return prog, []*ir.StructType{pipe, fifo, top}
}
