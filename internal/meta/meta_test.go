package meta

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"atomgo/internal/class"
	"atomgo/internal/config"
	"atomgo/internal/extract"
	"atomgo/internal/ir"
	"atomgo/internal/ir/irtest"
	"atomgo/internal/render"
)

func analyze(t *testing.T, prog *ir.Program, cfg config.Config, name string) (*class.Resolver, *Conflicts) {
	t.Helper()
	res := class.NewResolver(prog, cfg)
	classes, err := res.Populate()
	if err != nil {
		t.Fatalf("populate failed: %v", err)
	}
	for _, c := range classes {
		if c.Name != name {
			continue
		}
		cb, err := extract.Class(render.New(res, render.Hardware), c)
		if err != nil {
			t.Fatalf("extract failed: %v", err)
		}
		return res, Analyze(cb)
	}
	t.Fatalf("class %s not found", name)
	return nil, nil
}

func stream(t *testing.T, res *class.Resolver, c *Conflicts) string {
	t.Helper()
	var sb strings.Builder
	if err := Write(&sb, res, c); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return sb.String()
}

func TestCounterScenario(t *testing.T) {
	res, c := analyze(t, irtest.Counter(), config.Default(), "Counter")
	if !c.Before("read", "incr") {
		t.Fatalf("expected BEFORE(read, incr)")
	}
	if c.Exclusive("incr", "incr") || c.Before("incr", "incr") {
		t.Fatalf("self pairs must never be recorded")
	}
	if c.Exclusive("read", "incr") || c.Exclusive("incr", "read") {
		t.Fatalf("read and incr do not contend")
	}
	want := "//METASTART; Counter\n//METABEFORE; read; :incr__ENA\n"
	if diff := cmp.Diff(want, stream(t, res, c)); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func twoWriters() *ir.Program {
	prog := ir.NewProgram()
	st := prog.AddStruct(&ir.StructType{Name: "Pair", Elems: []ir.Type{ir.I8}, FieldMap: "v"})
	for _, name := range []string{"a", "b"} {
		fn, this := irtest.Method(prog, st, name, ir.Void)
		b := fn.NewBlock("entry")
		b.Store(ir.ConstUint(ir.I8, 1), b.GEP(this, irtest.Idx(0), irtest.Idx(0)))
		b.Ret(nil)
	}
	return prog
}

func TestExclusiveIsSymmetric(t *testing.T) {
	res, c := analyze(t, twoWriters(), config.Default(), "Pair")
	if !c.Exclusive("a", "b") || !c.Exclusive("b", "a") {
		t.Fatalf("expected EXCLUSIVE in both directions")
	}
	want := "//METASTART; Pair\n//METAEXCLUSIVE; a__ENA; b__ENA\n"
	if diff := cmp.Diff(want, stream(t, res, c)); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestPipelineStream(t *testing.T) {
	prog, _ := irtest.Pipeline()
	cfg := config.Default()
	cfg.Classes["Top"] = config.ClassHints{
		Rules:    []string{"run"},
		Priority: []config.Priority{{Rule: "run", Level: "high"}},
		Connect:  []config.Connect{{Target: "fifo.in", Source: "out", Interface: "PipeIn"}},
	}
	res, c := analyze(t, prog, cfg, "Top")
	want := strings.Join([]string{
		"//METASTART; Top",
		"//METAINVOKE; run__ENA; run$x > 10:fifo$enq__ENA;(run$x > 10) == 0:out$enq__ENA;",
		"//METABEFORE; get; :run__ENA",
		"//METAGUARD; get; fifo$first__RDY;",
		"//METARULES; run",
		"//METACONNECT; fifo$in$enq__ENA; out$enq__ENA",
		"//METAINTERNAL; fifo; Fifo",
		"//METAEXTERNAL; out; PipeIn",
		"//METAPRIORITY; run; high",
	}, "\n") + "\n"
	if diff := cmp.Diff(want, stream(t, res, c)); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestSharedInvokeIsExclusive(t *testing.T) {
	prog, types := irtest.Pipeline()
	top := types[2]
	var enq *ir.Function
	for _, d := range prog.MethodsOf(types[1]) {
		if d.Name == "enq" {
			enq = d.Func
		}
	}
	fn, this := irtest.Method(prog, top, "push", ir.Void)
	b := fn.NewBlock("entry")
	b.Call(enq, b.GEP(this, irtest.Idx(0), irtest.Idx(0)), irtest.Idx(3))
	b.Ret(nil)

	_, c := analyze(t, prog, config.Default(), "Top")
	if !c.Exclusive("run", "push") || !c.Exclusive("push", "run") {
		t.Fatalf("expected run and push to be exclusive through fifo$enq__ENA")
	}
}
