package render

import (
	"strings"

	"atomgo/internal/ir"
)

// Arm is one alternative of a merge: the value flowing in under Cond.
// Alt is the condition of the sibling arm of the same branch, when known.
type Arm struct {
	Cond string
	Alt  string
	Val  string
}

// Fold renders arms as a right-associated ternary chain. Arms without a
// condition go last, and only the final unconditional arm is kept. When no
// arm is unconditional, an arm whose Alt repeats the previous arm's
// condition is the complement of that arm and becomes the final one. The
// last arm never prints its condition.
func Fold(arms []Arm) string {
	var ordered []Arm
	var fallback *Arm
	for i := range arms {
		if arms[i].Cond == "" {
			fallback = &arms[i]
			continue
		}
		ordered = append(ordered, arms[i])
	}
	if fallback != nil {
		ordered = append(ordered, *fallback)
	} else {
		for i := 1; i < len(ordered); i++ {
			if ordered[i].Alt != "" && ordered[i].Alt == ordered[i-1].Cond {
				last := ordered[i]
				ordered = append(ordered[:i:i], ordered[i+1:]...)
				ordered = append(ordered, last)
				break
			}
		}
	}
	var b strings.Builder
	for i, a := range ordered {
		if i == len(ordered)-1 {
			b.WriteString(a.Val)
			break
		}
		b.WriteString(a.Cond)
		b.WriteString(" ? ")
		b.WriteString(a.Val)
		b.WriteString(" : ")
	}
	return b.String()
}

func (r *Reconstructor) phi(inst *ir.Instruction) string {
	arms := make([]Arm, 0, len(inst.Operands))
	for i, v := range inst.Operands {
		c := r.conds.Edge(inst.Incoming[i], inst.Block)
		arm := Arm{Val: r.Value(v)}
		if c.Primary != nil {
			arm.Cond = r.Value(c.Primary)
		}
		if c.Alternate != nil {
			arm.Alt = r.Quiet(c.Alternate)
		}
		arms = append(arms, arm)
	}
	return Fold(arms)
}
