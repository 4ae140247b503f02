package ir

// Condition is the boolean guard under which a block executes. Primary is
// nil for blocks that run unconditionally. Alternate, when set, is the
// Primary of the sibling arm of the same branch and lets the phi folder
// recognise a two-way split.
type Condition struct {
	Primary   Value
	Alternate Value
}

// CondMap holds the block conditions and immediate dominators of one
// function.
type CondMap struct {
	conds map[*Block]Condition
	idom  map[*Block]*Block
}

// Primary returns the condition of b, or nil.
func (m *CondMap) Primary(b *Block) Value {
	if m == nil || b == nil {
		return nil
	}
	return m.conds[b].Primary
}

// Alternate returns the sibling condition of b, or nil.
func (m *CondMap) Alternate(b *Block) Value {
	if m == nil || b == nil {
		return nil
	}
	return m.conds[b].Alternate
}

// Idom returns the immediate dominator of b (nil for the entry block).
func (m *CondMap) Idom(b *Block) *Block {
	return m.idom[b]
}

// Conditions derives the per-block conditions of fn from its branches and
// switches. A block with a single predecessor is guarded by the
// predecessor's condition and-ed with the edge predicate; a join block
// inherits the condition of its immediate dominator. The condition values
// are synthetic instructions that belong to no block and are not counted
// as uses of their operands.
func Conditions(fn *Function) *CondMap {
	m := &CondMap{conds: make(map[*Block]Condition), idom: make(map[*Block]*Block)}
	if fn.IsDecl() {
		return m
	}
	order := reversePostorder(fn)
	m.computeDominators(order)
	for _, b := range order {
		if b == fn.Entry() {
			continue
		}
		if len(b.Preds) != 1 {
			if d := m.idom[b]; d != nil {
				m.conds[b] = Condition{Primary: m.conds[d].Primary}
			}
			continue
		}
		m.conds[b] = m.edgeCondition(b.Preds[0], b)
	}
	return m
}

func (m *CondMap) edgeCondition(pred, b *Block) Condition {
	parent := m.conds[pred].Primary
	term := pred.Terminator()
	if term == nil {
		return m.conds[pred]
	}
	switch term.Op {
	case OpBr:
		if len(term.Operands) == 0 || term.Targets[0] == term.Targets[1] {
			return m.conds[pred]
		}
		c := term.Operands[0]
		taken := and(parent, c)
		if b == term.Targets[0] {
			return Condition{Primary: taken}
		}
		return Condition{
			Primary:   and(parent, &Instruction{Op: OpICmp, Typ: I1, Pred: PredEQ, Operands: []Value{c, ConstBool(false)}}),
			Alternate: taken,
		}
	case OpSwitch:
		sel := term.Operands[0]
		cases := term.Operands[1:]
		var hit Value
		for i, k := range cases {
			if term.Targets[i+1] != b {
				continue
			}
			eq := &Instruction{Op: OpICmp, Typ: I1, Pred: PredEQ, Operands: []Value{sel, k}}
			hit = or(hit, eq)
		}
		if b != term.Targets[0] {
			return Condition{Primary: and(parent, hit)}
		}
		var miss Value
		for _, k := range cases {
			ne := &Instruction{Op: OpICmp, Typ: I1, Pred: PredNE, Operands: []Value{sel, k}}
			miss = and(miss, ne)
		}
		cond := Condition{Primary: or(and(parent, miss), andNil(parent, hit))}
		if n := len(cases); n > 0 {
			last := &Instruction{Op: OpICmp, Typ: I1, Pred: PredEQ, Operands: []Value{sel, cases[n-1]}}
			cond.Alternate = and(parent, last)
		}
		return cond
	}
	return Condition{Primary: parent}
}

// andNil is and() that yields nil when the right side is missing.
func andNil(x, y Value) Value {
	if y == nil {
		return nil
	}
	return and(x, y)
}

func and(x, y Value) Value {
	switch {
	case x == nil:
		return y
	case y == nil:
		return x
	}
	return &Instruction{Op: OpAnd, Typ: I1, Operands: []Value{x, y}}
}

func or(x, y Value) Value {
	switch {
	case x == nil:
		return y
	case y == nil:
		return x
	}
	return &Instruction{Op: OpOr, Typ: I1, Operands: []Value{x, y}}
}

func reversePostorder(fn *Function) []*Block {
	seen := make(map[*Block]bool)
	var post []*Block
	var visit func(*Block)
	visit = func(b *Block) {
		seen[b] = true
		for _, s := range b.Succs {
			if !seen[s] {
				visit(s)
			}
		}
		post = append(post, b)
	}
	visit(fn.Entry())
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// computeDominators is the iterative algorithm of Cooper, Harvey and
// Kennedy over a reverse postorder.
func (m *CondMap) computeDominators(order []*Block) {
	index := make(map[*Block]int, len(order))
	for i, b := range order {
		index[b] = i
	}
	doms := make([]int, len(order))
	for i := range doms {
		doms[i] = -1
	}
	doms[0] = 0
	intersect := func(a, b int) int {
		for a != b {
			for a > b {
				a = doms[a]
			}
			for b > a {
				b = doms[b]
			}
		}
		return a
	}
	for changed := true; changed; {
		changed = false
		for i := 1; i < len(order); i++ {
			newIdom := -1
			for _, p := range order[i].Preds {
				pi, ok := index[p]
				if !ok || doms[pi] < 0 {
					continue
				}
				if newIdom < 0 {
					newIdom = pi
				} else {
					newIdom = intersect(pi, newIdom)
				}
			}
			if newIdom >= 0 && doms[i] != newIdom {
				doms[i] = newIdom
				changed = true
			}
		}
	}
	for i := 1; i < len(order); i++ {
		if doms[i] >= 0 {
			m.idom[order[i]] = order[doms[i]]
		}
	}
}

// Edge returns the condition under which control flows from pred into b.
// Unlike Primary(b) it is exact for edges into join blocks.
func (m *CondMap) Edge(pred, b *Block) Condition {
	if m == nil || pred == nil {
		return Condition{}
	}
	return m.edgeCondition(pred, b)
}
