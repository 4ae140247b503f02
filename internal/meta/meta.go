// Package meta derives the scheduling relations between the methods of a
// class and writes them as //META records for the external scheduler.
package meta

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"atomgo/internal/class"
	"atomgo/internal/extract"
	"atomgo/internal/ir"
)

// Conflicts holds the pairwise relations of one class. Method order is the
// class's method table order.
type Conflicts struct {
	Class   *class.Class
	Bodies  *extract.ClassBodies
	methods []*extract.Body

	exclusive map[string][]string
	before    map[string][]string
}

// Analyze computes EXCLUSIVE and BEFORE relations for every ordered pair of
// distinct methods of cb.
func Analyze(cb *extract.ClassBodies) *Conflicts {
	c := &Conflicts{
		Class:     cb.Class,
		Bodies:    cb,
		methods:   cb.Bodies,
		exclusive: make(map[string][]string),
		before:    make(map[string][]string),
	}
	for _, m := range c.methods {
		for _, n := range c.methods {
			if m == n {
				continue
			}
			mn, nn := m.Method.Name, n.Method.Name
			if intersects(n.Lists.Write, m.Lists.Write) || intersects(n.Lists.Invoke, m.Lists.Invoke) {
				c.exclusive[mn] = appendOnce(c.exclusive[mn], nn)
			}
			if intersects(n.Lists.Write, m.Lists.Read) {
				c.before[mn] = appendOnce(c.before[mn], nn)
			}
		}
	}
	return c
}

func intersects(a, b map[string][]extract.Entry) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for item := range a {
		if _, ok := b[item]; ok {
			return true
		}
	}
	return false
}

func appendOnce(list []string, name string) []string {
	for _, n := range list {
		if n == name {
			return list
		}
	}
	return append(list, name)
}

// Exclusive reports whether methods a and b may not fire in the same cycle.
func (c *Conflicts) Exclusive(a, b string) bool {
	return contains(c.exclusive[a], b)
}

// Before reports whether b must be ordered before a's read of shared state.
func (c *Conflicts) Before(a, b string) bool {
	return contains(c.before[a], b)
}

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}

// signal returns the port name of method name.
func (c *Conflicts) signal(name string) string {
	if m := c.Class.Method(name); m != nil {
		return m.Signal()
	}
	return name
}

// Write emits the metadata stream of the class. res resolves the classes
// of composed fields.
func Write(w io.Writer, res *class.Resolver, c *Conflicts) error {
	bw := bufio.NewWriter(w)
	line := func(fields ...string) {
		bw.WriteString("//" + strings.Join(fields, "; ") + "\n")
	}
	line("METASTART", c.Class.Name)

	seen := make(map[string]bool)
	for _, body := range c.methods {
		m := body.Method
		if m.Kind == class.Guard {
			tag := "METAGUARD"
			if m.ValueGuard {
				tag = "METAGUARDV"
			}
			line(tag, m.GuardOf, body.Guard+";")
			continue
		}
		sig := m.Signal()
		if items := extract.Keys(body.Lists.Invoke); len(items) > 0 {
			var parts []string
			for _, item := range items {
				for _, e := range body.Lists.Invoke[item] {
					parts = append(parts, e.Cond+":"+item+";")
				}
			}
			line("METAINVOKE", sig, strings.Join(parts, ""))
		}
		seen[m.Name] = true
		var excl []string
		for _, n := range c.exclusive[m.Name] {
			if !seen[n] {
				excl = append(excl, c.signal(n))
			}
		}
		if len(excl) > 0 {
			line(append([]string{"METAEXCLUSIVE", sig}, excl...)...)
		}
		if before := c.before[m.Name]; len(before) > 0 {
			fields := []string{"METABEFORE", sig}
			for _, n := range before {
				fields = append(fields, ":"+c.signal(n))
			}
			line(fields...)
		}
	}

	if len(c.Class.Rules) > 0 {
		line(append([]string{"METARULES"}, c.Class.Rules...)...)
	}
	for _, conn := range c.Class.Connects {
		for _, m := range res.Class(conn.Interface).Methods {
			line("METACONNECT", conn.Target+class.Separator+m.Signal(), conn.Source+class.Separator+m.Signal())
		}
	}
	for _, f := range c.Class.Fields {
		if f.Class == class.NoClass || f.Kind == class.AnonymousBase {
			continue
		}
		nested := res.Class(f.Class)
		if len(nested.Methods) == 0 || nested.Kind() == ir.StructInterface {
			continue
		}
		tag := "METAINTERNAL"
		if f.Ptr {
			tag = "METAEXTERNAL"
		}
		for _, name := range f.Names() {
			line(tag, name, nested.Name)
		}
	}
	for _, iface := range c.Class.Interfaces {
		line("METAEXTERNAL", iface.Field, res.Class(iface.Class).Name)
	}
	for _, p := range c.Class.Priority {
		line("METAPRIORITY", p.Rule, p.Level)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("meta: write %s: %w", c.Class.Name, err)
	}
	return nil
}
