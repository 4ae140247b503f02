package verilog

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"atomgo/internal/class"
	"atomgo/internal/config"
	"atomgo/internal/diag"
	"atomgo/internal/extract"
	"atomgo/internal/ir"
	"atomgo/internal/ir/irtest"
	"atomgo/internal/render"
)

func emit(t *testing.T, prog *ir.Program, name string, mode config.InlineMode) (string, error) {
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
		cb, err := extract.Class(render.New(res, render.Hardware), c)
		if err != nil {
			t.Fatalf("extract failed: %v", err)
		}
		var sb strings.Builder
		err = Emit(&sb, res, cb, Options{Inline: mode})
		return sb.String(), err
	}
	t.Fatalf("class %s not found", name)
	return "", nil
}

func mustEmit(t *testing.T, prog *ir.Program, name string, mode config.InlineMode) string {
	t.Helper()
	out, err := emit(t, prog, name, mode)
	if err != nil {
		t.Fatalf("emit failed: %v", err)
	}
	return out
}

func TestCounterModule(t *testing.T) {
	got := mustEmit(t, irtest.Counter(), "Counter", config.InlineSingle)
	want := `module Counter (input wire CLK, input wire nRST,
    input wire incr__ENA,
    output wire [7:0] read);
    reg [7:0] counter;
    assign read = counter;

    always @( posedge CLK) begin
      if (!nRST) begin
        counter <= 0;
      end // nRST
      else begin
        if (incr__ENA) begin
            counter <= counter + 1;
        end // End of incr__ENA
      end
    end // always @ (posedge CLK)
endmodule
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("module mismatch (-want +got):\n%s", diff)
	}
	if n := strings.Count(got, "counter <= counter + 1;"); n != 1 {
		t.Fatalf("expected exactly one update of counter, got %d", n)
	}
}

func TestPipelineModule(t *testing.T) {
	prog, _ := irtest.Pipeline()
	got := mustEmit(t, prog, "Top", config.InlineSingle)
	want := `module Top (input wire CLK, input wire nRST,
    input wire run__ENA,
    input wire [31:0] run$x,
    output wire [31:0] get,
    output wire get__RDY,
    output wire out$enq__ENA,
    output wire [31:0] out$enq$v);
    reg [31:0] count;
    wire fifo$enq__RDY;
    wire [31:0] fifo$first;
    wire fifo$first__RDY;
    wire fifo$deq__ENA;
    Fifo fifo (.CLK(CLK), .nRST(nRST),
        .enq__ENA(run__ENA & (run$x > 10)),
        .enq$v(run$x),
        .enq__RDY(fifo$enq__RDY),
        .first(fifo$first),
        .first__RDY(fifo$first__RDY),
        .deq__ENA(fifo$deq__ENA));
    assign get = fifo$first + count;
    assign get__RDY = fifo$first__RDY;
    assign out$enq__ENA = run__ENA & ((run$x > 10) == 0);
    assign out$enq$v = run$x + 1;

    always @( posedge CLK) begin
      if (!nRST) begin
        count <= 0;
      end // nRST
      else begin
        if (run__ENA) begin
            count <= run$x > 10 ? 1 : 2;
        end // End of run__ENA
      end
    end // always @ (posedge CLK)
endmodule
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("module mismatch (-want +got):\n%s", diff)
	}
}

func TestNoInliningKeepsWires(t *testing.T) {
	prog, _ := irtest.Pipeline()
	got := mustEmit(t, prog, "Top", config.InlineNone)
	for _, line := range []string{
		"    wire fifo$enq__ENA;\n",
		"    wire [31:0] fifo$enq$v;\n",
		"        .enq__ENA(fifo$enq__ENA),\n",
		"    // Extra assignments, not to output wires\n",
		"    assign fifo$enq__ENA = run__ENA & (run$x > 10);\n",
		"    assign fifo$enq$v = run$x;\n",
	} {
		if !strings.Contains(got, line) {
			t.Fatalf("expected %q in module:\n%s", line, got)
		}
	}
}

// switchDriver builds Drive{sink Sink} whose action drive(sel) calls
// sink.enq with 10, 20 or 30 depending on sel.
func switchDriver() *ir.Program {
	prog := ir.NewProgram()
	sink := prog.AddStruct(&ir.StructType{Name: "Sink", Elems: []ir.Type{ir.I32}, FieldMap: "last"})
	enq, _ := irtest.Method(prog, sink, "enq", ir.Void, ir.Param("v", ir.I32))

	drive := prog.AddStruct(&ir.StructType{Name: "Drive", Elems: []ir.Type{sink}, FieldMap: "sink"})
	fn, this := irtest.Method(prog, drive, "drive", ir.Void, ir.Param("sel", ir.I32))
	entry := fn.NewBlock("entry")
	zero := fn.NewBlock("zero")
	one := fn.NewBlock("one")
	other := fn.NewBlock("other")
	done := fn.NewBlock("done")
	entry.Switch(fn.Params[1], other,
		ir.SwitchCase{Value: irtest.Idx(0), Target: zero},
		ir.SwitchCase{Value: irtest.Idx(1), Target: one})
	for _, arm := range []struct {
		b *ir.Block
		v int64
	}{{zero, 10}, {one, 20}, {other, 30}} {
		arm.b.Call(enq, arm.b.GEP(this, irtest.Idx(0), irtest.Idx(0)), irtest.Idx(arm.v))
		arm.b.Br(done)
	}
	done.Ret(nil)
	return prog
}

func TestParameterMux(t *testing.T) {
	got := mustEmit(t, switchDriver(), "Drive", config.InlineNone)
	mux := "    assign sink$enq$v = drive__ENA & (drive$sel == 0) ? 10 : drive__ENA & (drive$sel == 1) ? 20 : 30;\n"
	if !strings.Contains(got, mux) {
		t.Fatalf("expected mux %q in module:\n%s", mux, got)
	}
	enable := "    assign sink$enq__ENA = (drive__ENA & (drive$sel == 0)) || (drive__ENA & (drive$sel == 1)) || "
	if !strings.Contains(got, enable) {
		t.Fatalf("expected or-ed enable %q in module:\n%s", enable, got)
	}
}

func TestValueMethodMayNotWriteState(t *testing.T) {
	prog := ir.NewProgram()
	st := prog.AddStruct(&ir.StructType{Name: "Bad", Elems: []ir.Type{ir.I8}, FieldMap: "v"})
	fn, this := irtest.Method(prog, st, "peek", ir.I8)
	b := fn.NewBlock("entry")
	addr := b.GEP(this, irtest.Idx(0), irtest.Idx(0))
	b.Store(ir.ConstUint(ir.I8, 0), addr)
	b.Ret(b.Load(addr))

	out, err := emit(t, prog, "Bad", config.InlineSingle)
	var f *diag.Failure
	if !errors.As(err, &f) || f.Kind != diag.Unsupported {
		t.Fatalf("expected unsupported failure, got %v", err)
	}
	if out != "" {
		t.Fatalf("expected nothing written, got %q", out)
	}
}

func TestPortsOf(t *testing.T) {
	prog, types := irtest.Pipeline()
	res := class.NewResolver(prog, config.Default())
	if _, err := res.Populate(); err != nil {
		t.Fatalf("populate failed: %v", err)
	}
	fifo := res.ClassOf(types[1])
	want := []Port{
		{Name: "enq__ENA", Dir: Input, Width: 1},
		{Name: "enq$v", Dir: Input, Width: 32},
		{Name: "enq__RDY", Dir: Output, Width: 1},
		{Name: "first", Dir: Output, Width: 32},
		{Name: "first__RDY", Dir: Output, Width: 1},
		{Name: "deq__ENA", Dir: Input, Width: 1},
	}
	if diff := cmp.Diff(want, PortsOf(res, fifo)); diff != "" {
		t.Fatalf("ports mismatch (-want +got):\n%s", diff)
	}
}

// valueTable builds Table{v} with a value method get(i) = v + i, and
// User{tab Table} whose value methods first and second return tab.get(1)
// and tab.get(2).
func valueTable() *ir.Program {
	prog := ir.NewProgram()
	table := prog.AddStruct(&ir.StructType{Name: "Table", Elems: []ir.Type{ir.I8}, FieldMap: "v"})
	get, this := irtest.Method(prog, table, "get", ir.I8, ir.Param("i", ir.I8))
	b := get.NewBlock("entry")
	b.Ret(b.Binary(ir.OpAdd, b.Load(b.GEP(this, irtest.Idx(0), irtest.Idx(0))), get.Params[1]))

	user := prog.AddStruct(&ir.StructType{Name: "User", Elems: []ir.Type{table}, FieldMap: "tab"})
	for _, site := range []struct {
		name string
		arg  uint64
	}{{"first", 1}, {"second", 2}} {
		fn, this := irtest.Method(prog, user, site.name, ir.I8)
		b := fn.NewBlock("entry")
		b.Ret(b.Call(get, b.GEP(this, irtest.Idx(0), irtest.Idx(0)), ir.ConstUint(ir.I8, site.arg)))
	}
	return prog
}

func TestValueMethodParameters(t *testing.T) {
	prog := valueTable()
	table := mustEmit(t, prog, "Table", config.InlineSingle)
	for _, line := range []string{
		"    output wire [7:0] get,\n    input wire [7:0] get$i);\n",
		"    assign get = v + get$i;\n",
	} {
		if !strings.Contains(table, line) {
			t.Fatalf("expected %q in module:\n%s", line, table)
		}
	}

	user := mustEmit(t, prog, "User", config.InlineNone)
	for _, line := range []string{
		"    wire [7:0] tab$get;\n",
		"    wire [7:0] tab$get$i;\n",
		"        .get$i(tab$get$i));\n",
		"    assign first = tab$get;\n",
		"    assign second = tab$get;\n",
		"    assign tab$get$i = first ? 1 : 2;\n",
	} {
		if !strings.Contains(user, line) {
			t.Fatalf("expected %q in module:\n%s", line, user)
		}
	}
}

func TestParameterMuxKeepsCallSiteOrder(t *testing.T) {
	prog := ir.NewProgram()
	sink := prog.AddStruct(&ir.StructType{Name: "Sink", Elems: []ir.Type{ir.I32}, FieldMap: "last"})
	enq, _ := irtest.Method(prog, sink, "enq", ir.Void, ir.Param("v", ir.I32))
	drive := prog.AddStruct(&ir.StructType{Name: "Drive", Elems: []ir.Type{sink}, FieldMap: "sink"})
	fn, this := irtest.Method(prog, drive, "drive", ir.Void, ir.Param("sel", ir.I32))
	entry := fn.NewBlock("entry")
	hi := fn.NewBlock("hi")
	done := fn.NewBlock("done")
	entry.Call(enq, entry.GEP(this, irtest.Idx(0), irtest.Idx(0)), irtest.Idx(5))
	entry.CondBr(entry.ICmp(ir.PredUGT, fn.Params[1], irtest.Idx(5)), hi, done)
	hi.Call(enq, hi.GEP(this, irtest.Idx(0), irtest.Idx(0)), irtest.Idx(7))
	hi.Br(done)
	done.Ret(nil)

	got := mustEmit(t, prog, "Drive", config.InlineNone)
	for _, line := range []string{
		"    assign sink$enq$v = drive__ENA ? 5 : 7;\n",
		"    assign sink$enq__ENA = drive__ENA || (drive__ENA & (drive$sel > 5));\n",
	} {
		if !strings.Contains(got, line) {
			t.Fatalf("expected %q in module:\n%s", line, got)
		}
	}
}

func TestConditionalLocalStores(t *testing.T) {
	prog := ir.NewProgram()
	sink := prog.AddStruct(&ir.StructType{Name: "Sink", Elems: []ir.Type{ir.I32}, FieldMap: "last"})
	enq, _ := irtest.Method(prog, sink, "enq", ir.Void, ir.Param("v", ir.I32))
	pick := prog.AddStruct(&ir.StructType{Name: "Pick", Elems: []ir.Type{sink}, FieldMap: "sink"})
	fn, this := irtest.Method(prog, pick, "run", ir.Void, ir.Param("sel", ir.I32))
	entry := fn.NewBlock("entry")
	hi := fn.NewBlock("hi")
	lo := fn.NewBlock("lo")
	done := fn.NewBlock("done")
	x := entry.Alloca("x", ir.I32)
	entry.CondBr(entry.ICmp(ir.PredUGT, fn.Params[1], irtest.Idx(5)), hi, lo)
	hi.Store(irtest.Idx(10), x)
	hi.Br(done)
	lo.Store(irtest.Idx(20), x)
	lo.Br(done)
	done.Call(enq, done.GEP(this, irtest.Idx(0), irtest.Idx(0)), done.Load(x))
	done.Ret(nil)

	got := mustEmit(t, prog, "Pick", config.InlineNone)
	if n := strings.Count(got, "assign run$x = "); n != 1 {
		t.Fatalf("expected a single driver of run$x, got %d:\n%s", n, got)
	}
	want := "    assign run$x = (run$sel > 5) == 0 ? 20 : 10;\n"
	if !strings.Contains(got, want) {
		t.Fatalf("expected %q in module:\n%s", want, got)
	}
}

func TestLocalValueStartsAtLastUnconditionalStore(t *testing.T) {
	got := localValue([]extract.Store{
		{Dest: "m$x", Cond: "a", Value: "1"},
		{Dest: "m$x", Value: "2"},
		{Dest: "m$x", Cond: "b", Value: "3"},
	})
	if got != "b ? 3 : 2" {
		t.Fatalf("expected b ? 3 : 2, got %q", got)
	}
}
