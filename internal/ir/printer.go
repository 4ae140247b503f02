package ir

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a simple human-readable representation of the program.
func Dump(prog *Program, w io.Writer) {
	if prog == nil {
		fmt.Fprintln(w, "<nil program>")
		return
	}
	dumpStructs(prog, w)
	dumpGlobals(prog, w)
	for _, fn := range prog.Functions {
		dumpFunction(fn, w)
		fmt.Fprintln(w)
	}
}

func dumpStructs(prog *Program, w io.Writer) {
	for _, st := range prog.Structs {
		elems := make([]string, 0, len(st.Elems))
		for _, e := range st.Elems {
			elems = append(elems, e.String())
		}
		fmt.Fprintf(w, "%s = %s { %s }", st, st.Kind, strings.Join(elems, ", "))
		if st.FieldMap != "" {
			fmt.Fprintf(w, " fields=%q", st.FieldMap)
		}
		fmt.Fprintln(w)
		for _, m := range prog.MethodsOf(st) {
			fmt.Fprintf(w, "  method %s -> @%s\n", m.Name, m.Func.Name)
		}
	}
	if len(prog.Structs) > 0 {
		fmt.Fprintln(w)
	}
}

func dumpGlobals(prog *Program, w io.Writer) {
	for _, g := range prog.Globals {
		fmt.Fprintf(w, "@%s = global %s\n", g.Name(), g.Elem)
	}
	if len(prog.Globals) > 0 {
		fmt.Fprintln(w)
	}
}

func dumpFunction(fn *Function, w io.Writer) {
	names := newDumpNames()
	params := make([]string, 0, len(fn.Params))
	for _, p := range fn.Params {
		params = append(params, fmt.Sprintf("%s %s", p.Typ, names.of(p)))
	}
	if fn.IsDecl() {
		fmt.Fprintf(w, "declare %s @%s(%s)\n", fn.Sig.Ret, fn.Name, strings.Join(params, ", "))
		return
	}
	fmt.Fprintf(w, "define %s @%s(%s) {\n", fn.Sig.Ret, fn.Name, strings.Join(params, ", "))
	for _, b := range fn.Blocks {
		fmt.Fprintf(w, "%s:", b)
		if len(b.Preds) > 0 {
			preds := make([]string, 0, len(b.Preds))
			for _, p := range b.Preds {
				preds = append(preds, p.String())
			}
			fmt.Fprintf(w, "  ; preds = %s", strings.Join(preds, ", "))
		}
		fmt.Fprintln(w)
		for _, inst := range b.Instrs {
			fmt.Fprintf(w, "  %s\n", names.instr(inst))
		}
	}
	fmt.Fprintln(w, "}")
}

type dumpNames struct {
	ids  map[Value]string
	next int
}

func newDumpNames() *dumpNames {
	return &dumpNames{ids: make(map[Value]string)}
}

func (n *dumpNames) of(v Value) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case *Const:
		return constText(val)
	case *Global:
		return "@" + val.Name()
	}
	if id, ok := n.ids[v]; ok {
		return id
	}
	id := "%" + v.Name()
	if v.Name() == "" {
		id = fmt.Sprintf("%%%d", n.next)
		n.next++
	}
	n.ids[v] = id
	return id
}

func (n *dumpNames) operands(vals []Value) string {
	parts := make([]string, 0, len(vals))
	for _, v := range vals {
		parts = append(parts, n.of(v))
	}
	return strings.Join(parts, ", ")
}

func (n *dumpNames) instr(inst *Instruction) string {
	var body string
	switch {
	case inst.Op.IsBinary():
		body = fmt.Sprintf("%s %s %s", inst.Op, inst.Typ, n.operands(inst.Operands))
	case inst.Op.IsCast():
		body = fmt.Sprintf("%s %s to %s", inst.Op, n.of(inst.Operands[0]), inst.Typ)
	default:
		switch inst.Op {
		case OpICmp, OpFCmp:
			body = fmt.Sprintf("%s %s %s", inst.Op, inst.Pred, n.operands(inst.Operands))
		case OpLoad:
			body = fmt.Sprintf("load %s, %s", inst.Typ, n.of(inst.Operands[0]))
		case OpStore:
			body = fmt.Sprintf("store %s, %s", n.of(inst.Operands[0]), n.of(inst.Operands[1]))
		case OpGEP:
			body = fmt.Sprintf("getelementptr %s", n.operands(inst.Operands))
		case OpAlloca:
			body = fmt.Sprintf("alloca %s", inst.Allocated)
		case OpCall:
			body = fmt.Sprintf("call %s @%s(%s)", inst.Typ, inst.Callee.Name, n.operands(inst.Operands))
		case OpPhi:
			arms := make([]string, 0, len(inst.Operands))
			for i, v := range inst.Operands {
				arms = append(arms, fmt.Sprintf("[ %s, %s ]", n.of(v), inst.Incoming[i]))
			}
			body = fmt.Sprintf("phi %s %s", inst.Typ, strings.Join(arms, ", "))
		case OpSelect:
			body = fmt.Sprintf("select %s", n.operands(inst.Operands))
		case OpExtractValue:
			idx := make([]string, 0, len(inst.Indices))
			for _, i := range inst.Indices {
				idx = append(idx, fmt.Sprint(i))
			}
			body = fmt.Sprintf("extractvalue %s, %s", n.of(inst.Operands[0]), strings.Join(idx, ", "))
		case OpExtractElement:
			body = fmt.Sprintf("extractelement %s", n.operands(inst.Operands))
		case OpBr:
			if len(inst.Operands) == 0 {
				body = fmt.Sprintf("br %s", inst.Targets[0])
			} else {
				body = fmt.Sprintf("br %s, %s, %s", n.of(inst.Operands[0]), inst.Targets[0], inst.Targets[1])
			}
		case OpSwitch:
			cases := make([]string, 0, len(inst.Targets)-1)
			for i, t := range inst.Targets[1:] {
				cases = append(cases, fmt.Sprintf("%s: %s", n.of(inst.Operands[i+1]), t))
			}
			body = fmt.Sprintf("switch %s, %s [%s]", n.of(inst.Operands[0]), inst.Targets[0], strings.Join(cases, ", "))
		case OpRet:
			if len(inst.Operands) == 0 {
				body = "ret void"
			} else {
				body = "ret " + n.of(inst.Operands[0])
			}
		default:
			body = inst.Op.String()
		}
	}
	if inst.Volatile {
		body = "volatile " + body
	}
	if IsVoid(inst.Typ) {
		return body
	}
	return fmt.Sprintf("%s = %s", n.of(inst), body)
}

func constText(c *Const) string {
	if c.Null {
		return "null"
	}
	if c.Signed {
		return fmt.Sprint(c.SExt())
	}
	return fmt.Sprint(c.ZExt())
}
