package verilog

import (
	"sort"
	"strings"

	"atomgo/internal/config"
)

// assign is a continuous assignment lhs = rhs.
type assign struct {
	lhs string
	rhs string
}

func identChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_' || b == '$'
}

// occurrences returns the byte offsets where name appears as a whole
// identifier in text.
func occurrences(text, name string) []int {
	var out []int
	for from := 0; ; {
		i := strings.Index(text[from:], name)
		if i < 0 {
			return out
		}
		i += from
		end := i + len(name)
		if (i == 0 || !identChar(text[i-1])) && (end == len(text) || !identChar(text[end])) {
			out = append(out, i)
		}
		from = end
	}
}

func replaceIdent(text, name, value string) string {
	offs := occurrences(text, name)
	for k := len(offs) - 1; k >= 0; k-- {
		i := offs[k]
		text = text[:i] + value + text[i+len(name):]
	}
	return text
}

// inliner substitutes wires that are assigned once and read at exactly one
// site. Sites are the right-hand sides of assigns, the clocked update lines
// and the instance port connections.
type inliner struct {
	wires   map[string]bool
	assigns []assign
	always  []string
	conns   []string
}

func (in *inliner) sites(removed map[int]bool) []*string {
	out := make([]*string, 0, len(in.assigns)+len(in.always)+len(in.conns))
	for i := range in.assigns {
		if !removed[i] {
			out = append(out, &in.assigns[i].rhs)
		}
	}
	for i := range in.always {
		out = append(out, &in.always[i])
	}
	for i := range in.conns {
		out = append(out, &in.conns[i])
	}
	return out
}

func (in *inliner) uses(name string, removed map[int]bool) (count int, site *string) {
	for _, s := range in.sites(removed) {
		if n := len(occurrences(*s, name)); n > 0 {
			count += n
			site = s
		}
	}
	return count, site
}

// step performs one substitution sweep and reports whether anything was
// substituted. A text rewritten in this sweep is neither substituted nor
// substituted into again, so a chain shrinks by one link per step whatever
// the order of its names.
func (in *inliner) step() bool {
	assigned := make(map[string]int)
	for _, a := range in.assigns {
		assigned[a.lhs]++
	}
	index := make(map[string]int)
	var names []string
	for i, a := range in.assigns {
		if in.wires[a.lhs] && assigned[a.lhs] == 1 {
			names = append(names, a.lhs)
			index[a.lhs] = i
		}
	}
	sort.Strings(names)

	removed := make(map[int]bool)
	touched := make(map[*string]bool)
	for _, name := range names {
		idx := index[name]
		rhs := &in.assigns[idx].rhs
		if touched[rhs] || occurrences(*rhs, name) != nil {
			continue
		}
		count, site := in.uses(name, removed)
		if count != 1 || site == rhs || touched[site] {
			continue
		}
		value := *rhs
		if *site != name && !bareSignal(value) {
			off := occurrences(*site, name)[0]
			if end := off + len(name); end < len(*site) && (*site)[end] == '[' {
				continue
			}
			value = "(" + value + ")"
		}
		*site = replaceIdent(*site, name, value)
		touched[site] = true
		removed[idx] = true
		delete(in.wires, name)
	}
	if len(removed) == 0 {
		return false
	}
	kept := in.assigns[:0]
	for i, a := range in.assigns {
		if !removed[i] {
			kept = append(kept, a)
		}
	}
	in.assigns = kept
	return true
}

func (in *inliner) run(mode config.InlineMode) {
	switch mode {
	case config.InlineNone:
	case config.InlineFixpoint:
		for in.step() {
		}
	default:
		in.step()
	}
}

func bareSignal(text string) bool {
	if text == "" {
		return false
	}
	for i := 0; i < len(text); i++ {
		if !identChar(text[i]) {
			return false
		}
	}
	return true
}
