package class

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"atomgo/internal/config"
	"atomgo/internal/diag"
	"atomgo/internal/ir"
	"atomgo/internal/ir/irtest"
)

func catch(fn func()) (err error) {
	defer diag.Recover(&err)
	fn()
	return nil
}

func TestFieldNameDecoding(t *testing.T) {
	st := &ir.StructType{Name: "S", Elems: []ir.Type{ir.I8, ir.I8, ir.I8}, FieldMap: "a,Base/,b"}
	tests := []struct {
		idx   int
		name  string
		named bool
	}{
		{0, "a", true},
		{1, "", false},
		{2, "b", true},
		{7, "", false},
	}
	for _, tt := range tests {
		name, named := FieldName(st, tt.idx)
		if name != tt.name || named != tt.named {
			t.Fatalf("slot %d: expected (%q, %v), got (%q, %v)", tt.idx, tt.name, tt.named, name, named)
		}
	}
}

func TestFieldNameRejectsMalformedSlot(t *testing.T) {
	for _, fm := range []string{"a,,b", "a,x/y,b"} {
		st := &ir.StructType{Name: "S", Elems: []ir.Type{ir.I8, ir.I8, ir.I8}, FieldMap: fm}
		err := catch(func() { FieldName(st, 1) })
		var f *diag.Failure
		if !errors.As(err, &f) || f.Kind != diag.Encoding {
			t.Fatalf("field map %q: expected encoding failure, got %v", fm, err)
		}
	}
}

func TestNameIsStableForLiteralStructs(t *testing.T) {
	r := NewResolver(ir.NewProgram(), config.Default())
	a := &ir.StructType{Elems: []ir.Type{ir.I8}}
	b := &ir.StructType{Elems: []ir.Type{ir.I16}}
	first := r.Name(a)
	if got := r.Name(b); got == first {
		t.Fatalf("expected distinct names, both %q", got)
	}
	if got := r.Name(a); got != first {
		t.Fatalf("expected memoized name %q, got %q", first, got)
	}
	if got := r.Name(&ir.StructType{Name: "pkg.T[int]"}); got != "pkg_2e_T_5b_int_5d_" {
		t.Fatalf("unexpected sanitized name %q", got)
	}
}

func TestClassifiesMethods(t *testing.T) {
	prog, types := irtest.Pipeline()
	r := NewResolver(prog, config.Default())
	fifo := r.Class(r.ClassOf(types[1]))

	got := map[string]MethodKind{}
	for _, m := range fifo.Methods {
		got[m.Name] = m.Kind
	}
	want := map[string]MethodKind{
		"enq":        Action,
		"enq__RDY":   Guard,
		"first":      ValueMethod,
		"first__RDY": Guard,
		"deq":        Action,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("method kinds mismatch (-want +got):\n%s", diff)
	}
	if m := fifo.Method("enq__ENA"); m == nil || m.Name != "enq" {
		t.Fatalf("expected signal lookup to find enq, got %+v", m)
	}
	if got := fifo.Method("enq").ParamSignal("v"); got != "enq$v" {
		t.Fatalf("expected enq$v, got %q", got)
	}
	if g := fifo.Method("enq__RDY"); g.GuardOf != "enq" || g.ValueGuard {
		t.Fatalf("unexpected guard record %+v", g)
	}
}

func TestGuardMustReturnBoolean(t *testing.T) {
	prog := ir.NewProgram()
	st := prog.AddStruct(&ir.StructType{Name: "G", Elems: []ir.Type{ir.I8}, FieldMap: "v"})
	fn, _ := irtest.Method(prog, st, "go__RDY", ir.I8)
	fn.NewBlock("entry").Ret(ir.ConstUint(ir.I8, 1))

	_, err := NewResolver(prog, config.Default()).Populate()
	var f *diag.Failure
	if !errors.As(err, &f) || f.Kind != diag.Unsupported {
		t.Fatalf("expected unsupported failure, got %v", err)
	}
}

func TestInterfacesRegisteredThroughBases(t *testing.T) {
	prog, types := irtest.Pipeline()
	derived := prog.AddStruct(&ir.StructType{
		Name:     "Derived",
		Elems:    []ir.Type{types[2], ir.I8},
		FieldMap: "Top/,extra",
	})
	r := NewResolver(prog, config.Default())
	if _, err := r.Populate(); err != nil {
		t.Fatalf("populate failed: %v", err)
	}
	d := r.Class(r.ClassOf(derived))
	want := []InterfaceRef{{Field: "out", Class: r.ClassOf(types[0])}}
	if diff := cmp.Diff(want, d.Interfaces); diff != "" {
		t.Fatalf("interfaces mismatch (-want +got):\n%s", diff)
	}
	names := []string{}
	for _, f := range r.AllFields(d.ID) {
		names = append(names, f.Name)
	}
	if diff := cmp.Diff([]string{"fifo", "out", "count", "extra"}, names); diff != "" {
		t.Fatalf("flattened fields mismatch (-want +got):\n%s", diff)
	}
	if m := r.FindMethod(d.ID, "run"); m == nil {
		t.Fatalf("expected inherited method run")
	}
}

func TestLookupQualName(t *testing.T) {
	prog, types := irtest.Pipeline()
	r := NewResolver(prog, config.Default())
	top := r.ClassOf(types[2])

	if m := r.LookupQualName(top, "fifo$enq"); m == nil || m.Name != "enq" {
		t.Fatalf("expected fifo$enq to resolve, got %+v", m)
	}
	if m := r.LookupQualName(top, "out$enq__ENA"); m == nil || m.Kind != Action {
		t.Fatalf("expected out$enq__ENA to resolve to an action, got %+v", m)
	}
	err := catch(func() { r.LookupQualName(top, "fifo$missing") })
	var f *diag.Failure
	if !errors.As(err, &f) || f.Kind != diag.Encoding {
		t.Fatalf("expected encoding failure, got %v", err)
	}
}

func TestHintsApplied(t *testing.T) {
	prog, types := irtest.Pipeline()
	cfg := config.Default()
	cfg.Classes["Top"] = config.ClassHints{
		Rules:     []string{"run"},
		Priority:  []config.Priority{{Rule: "run", Level: "high"}},
		Connect:   []config.Connect{{Target: "fifo.in", Source: "out", Interface: "PipeIn"}},
		Overrides: []config.Override{{Field: "count", Count: 2}},
		Software:  []string{"Top_sw"},
	}
	r := NewResolver(prog, cfg)
	top := r.Class(r.ClassOf(types[2]))
	if !top.Method("run").Rule {
		t.Fatalf("expected run to be a rule")
	}
	want := []Connect{{Target: "fifo$in", Source: "out", Interface: r.ClassOf(types[0])}}
	if diff := cmp.Diff(want, top.Connects); diff != "" {
		t.Fatalf("connects mismatch (-want +got):\n%s", diff)
	}
	if got := top.Fields[2].Names(); !cmp.Equal(got, []string{"count0", "count1"}) {
		t.Fatalf("expected vectored names, got %v", got)
	}
	if len(top.Priority) != 1 || top.Software[0] != "Top_sw" {
		t.Fatalf("unexpected hints on class: %+v", top)
	}
}

func TestUnknownRuleFails(t *testing.T) {
	prog := irtest.Counter()
	cfg := config.Default()
	cfg.Classes["Counter"] = config.ClassHints{Rules: []string{"nope"}}
	if _, err := NewResolver(prog, cfg).Populate(); err == nil {
		t.Fatalf("expected failure for unknown rule")
	}
}
