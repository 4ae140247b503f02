package extract

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"atomgo/internal/class"
	"atomgo/internal/config"
	"atomgo/internal/diag"
	"atomgo/internal/ir"
	"atomgo/internal/ir/irtest"
	"atomgo/internal/render"
)

func extractClass(t *testing.T, prog *ir.Program, name string, mode render.Mode) *ClassBodies {
	t.Helper()
	res := class.NewResolver(prog, config.Default())
	classes, err := res.Populate()
	if err != nil {
		t.Fatalf("populate failed: %v", err)
	}
	for _, c := range classes {
		if c.Name != name {
			continue
		}
		cb, err := Class(render.New(res, mode), c)
		if err != nil {
			t.Fatalf("extract %s failed: %v", name, err)
		}
		return cb
	}
	t.Fatalf("class %s not found", name)
	return nil
}

var ignoreTypes = cmpopts.IgnoreFields(Store{}, "Type", "Seq")

func TestCounterBodies(t *testing.T) {
	cb := extractClass(t, irtest.Counter(), "Counter", render.Hardware)

	incr := cb.Body("incr")
	want := []Store{{Dest: "counter", Value: "counter + 1"}}
	if diff := cmp.Diff(want, incr.Stores, ignoreTypes); diff != "" {
		t.Fatalf("stores mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"counter"}, Keys(incr.Lists.Write)); diff != "" {
		t.Fatalf("write list mismatch (-want +got):\n%s", diff)
	}
	if incr.Guard != "" {
		t.Fatalf("expected no guard text for an action, got %q", incr.Guard)
	}

	read := cb.Body("read")
	if read.Guard != "counter" {
		t.Fatalf("expected guard counter, got %q", read.Guard)
	}
	if diff := cmp.Diff([]string{"counter"}, Keys(read.Lists.Read)); diff != "" {
		t.Fatalf("read list mismatch (-want +got):\n%s", diff)
	}
	if len(read.Lists.Write) != 0 {
		t.Fatalf("expected no writes for read, got %v", read.Lists.Write)
	}
}

func TestConditionalCallsAndStores(t *testing.T) {
	cb := extractClass(t, func() *ir.Program { p, _ := irtest.Pipeline(); return p }(), "Top", render.Hardware)
	run := cb.Body("run")

	type call struct {
		Cond, Target string
		Args         []string
	}
	var got []call
	for _, c := range run.Calls {
		got = append(got, call{c.Cond, c.Target, c.Args})
	}
	want := []call{
		{"run$x > 10", "fifo$enq__ENA", []string{"run$x"}},
		{"(run$x > 10) == 0", "out$enq__ENA", []string{"run$x + 1"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	stores := []Store{{Dest: "count", Value: "run$x > 10 ? 1 : 2"}}
	if diff := cmp.Diff(stores, run.Stores, ignoreTypes); diff != "" {
		t.Fatalf("stores mismatch (-want +got):\n%s", diff)
	}
	invoke := map[string][]Entry{
		"fifo$enq__ENA": {{Cond: "run$x > 10"}},
		"out$enq__ENA":  {{Cond: "(run$x > 10) == 0"}},
	}
	if diff := cmp.Diff(invoke, run.Lists.Invoke); diff != "" {
		t.Fatalf("invoke list mismatch (-want +got):\n%s", diff)
	}
}

func TestSoftwareCallTemporaries(t *testing.T) {
	prog, _ := irtest.Pipeline()
	cb := extractClass(t, prog, "Top", render.Software)
	get := cb.Body("get")
	if len(get.Temps) != 1 || get.Temps[0].Name != "tmp__1" || get.Temps[0].Value != "this->fifo.first()" {
		t.Fatalf("unexpected temporaries %+v", get.Temps)
	}
	if get.Guard != "tmp__1 + this->count" {
		t.Fatalf("expected guard tmp__1 + this->count, got %q", get.Guard)
	}
	if len(get.Calls) != 1 || !get.Calls[0].Used {
		t.Fatalf("expected one used call record, got %+v", get.Calls)
	}

	run := cb.Body("run")
	texts := []string{}
	for _, c := range run.Calls {
		texts = append(texts, c.Text)
	}
	if diff := cmp.Diff([]string{"this->fifo.enq(x)", "this->out->enq(x + 1)"}, texts); diff != "" {
		t.Fatalf("call text mismatch (-want +got):\n%s", diff)
	}
}

func TestLocalDeclarations(t *testing.T) {
	prog := ir.NewProgram()
	st := prog.AddStruct(&ir.StructType{Name: "L", Elems: []ir.Type{ir.I32}, FieldMap: "v"})
	fn, this := irtest.Method(prog, st, "set", ir.Void)
	b := fn.NewBlock("entry")
	acc := b.Alloca("acc", ir.I32)
	b.Store(irtest.Idx(5), acc)
	b.Store(b.Load(acc), b.GEP(this, irtest.Idx(0), irtest.Idx(0)))
	b.Ret(nil)

	body := extractClass(t, prog, "L", render.Hardware).Body("set")
	if diff := cmp.Diff([]Decl{{Name: "set$acc", Type: ir.I32}}, body.Declares); diff != "" {
		t.Fatalf("declares mismatch (-want +got):\n%s", diff)
	}
	want := []Store{
		{Dest: "set$acc", Value: "5", Local: true},
		{Dest: "v", Value: "set$acc"},
	}
	if diff := cmp.Diff(want, body.Stores, ignoreTypes); diff != "" {
		t.Fatalf("stores mismatch (-want +got):\n%s", diff)
	}
	if _, ok := body.Lists.Write["set$acc"]; ok {
		t.Fatalf("local store must not be recorded as a state write")
	}

	sw := extractClass(t, prog, "L", render.Software).Body("set")
	if sw.Stores[0].Dest != "acc" || sw.Stores[1].Dest != "this->v" || sw.Stores[1].Value != "acc" {
		t.Fatalf("unexpected software stores %+v", sw.Stores)
	}
}

func TestMultipleReturnsFoldIntoGuard(t *testing.T) {
	prog := ir.NewProgram()
	st := prog.AddStruct(&ir.StructType{Name: "R", Elems: []ir.Type{ir.I1}, FieldMap: "busy"})
	fn, this := irtest.Method(prog, st, "go__RDY", ir.I1)
	entry := fn.NewBlock("entry")
	yes := fn.NewBlock("yes")
	no := fn.NewBlock("no")
	busy := entry.Load(entry.GEP(this, irtest.Idx(0), irtest.Idx(0)))
	entry.CondBr(busy, yes, no)
	yes.Ret(ir.ConstBool(false))
	no.Ret(ir.ConstBool(true))

	body := extractClass(t, prog, "R", render.Hardware).Body("go__RDY")
	if body.Guard != "busy ? 0 : 1" {
		t.Fatalf("expected busy ? 0 : 1, got %q", body.Guard)
	}
}

func TestStructuralViolations(t *testing.T) {
	prog := ir.NewProgram()
	st := prog.AddStruct(&ir.StructType{Name: "V", Elems: []ir.Type{ir.I32}, FieldMap: "v"})

	fn, this := irtest.Method(prog, st, "vol", ir.Void)
	b := fn.NewBlock("entry")
	b.Store(irtest.Idx(1), b.GEP(this, irtest.Idx(0), irtest.Idx(0))).Volatile = true
	b.Ret(nil)

	fn, this = irtest.Method(prog, st, "pure", ir.Void)
	b = fn.NewBlock("entry")
	b.Binary(ir.OpAdd, b.Load(b.GEP(this, irtest.Idx(0), irtest.Idx(0))), irtest.Idx(1))
	b.Ret(nil)

	res := class.NewResolver(prog, config.Default())
	if _, err := res.Populate(); err != nil {
		t.Fatalf("populate failed: %v", err)
	}
	r := render.New(res, render.Hardware)
	for _, m := range res.Classes()[0].Methods {
		_, err := Method(r, m)
		var f *diag.Failure
		if !errors.As(err, &f) || f.Kind != diag.Unsupported {
			t.Fatalf("%s: expected unsupported failure, got %v", m.Name, err)
		}
	}
}

func TestAppendListKeepsReachableConditions(t *testing.T) {
	list := map[string][]Entry{}
	appendList(list, "x", "a")
	appendList(list, "x", "b")
	appendList(list, "x", "a")
	if diff := cmp.Diff([]Entry{{Cond: "a"}, {Cond: "b"}}, list["x"]); diff != "" {
		t.Fatalf("conditional entries mismatch (-want +got):\n%s", diff)
	}
	appendList(list, "x", "")
	appendList(list, "x", "c")
	if diff := cmp.Diff([]Entry{{}}, list["x"]); diff != "" {
		t.Fatalf("unconditional entry mismatch (-want +got):\n%s", diff)
	}
}
