package render

import (
	"strings"

	"atomgo/internal/class"
	"atomgo/internal/diag"
	"atomgo/internal/ir"
)

// call translates a method call. In hardware mode an action call renders as
// nothing (its effect is the enable recorded through the Recorder) and a
// value call renders as the qualified output signal.
func (r *Reconstructor) call(inst *ir.Instruction) string {
	callee := inst.Callee
	m := r.res.MethodOf(callee)
	if m == nil {
		diag.Fail(diag.Unsupported, callee.Name, "call target is not a method of a known class")
	}
	if len(inst.Operands) == 0 {
		diag.Fail(diag.Encoding, callee.Name, "method call without a receiver")
	}
	recv := r.Value(inst.Operands[0])
	addressed := strings.HasPrefix(recv, "&")
	recv = strings.TrimPrefix(recv, "&")

	args := make([]string, 0, len(inst.Operands)-1)
	for _, op := range inst.Operands[1:] {
		args = append(args, r.Value(op))
	}
	site := CallSite{Inst: inst, Method: m, Receiver: recv, Args: args}

	if r.mode == Hardware {
		site.Target = m.Signal()
		if recv != "this" && recv != "" {
			site.Target = recv + class.Separator + site.Target
		}
		r.record(site)
		if m.Kind == class.Action {
			return ""
		}
		return site.Target
	}

	switch {
	case recv == "this":
		site.Target = m.Name
	case addressed:
		site.Target = recv + "." + m.Name
	default:
		site.Target = recv + "->" + m.Name
	}
	r.record(site)
	return site.Target + "(" + strings.Join(site.Args, ", ") + ")"
}

func (r *Reconstructor) record(site CallSite) {
	if r.muted > 0 || r.rec == nil {
		return
	}
	if site.Method.Kind == class.Action {
		r.rec.Invoke(site.Target, site.Inst.Block)
	} else {
		r.rec.Read(site.Target, site.Inst.Block)
	}
	r.rec.Call(site)
}
