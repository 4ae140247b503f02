package validate

import (
	"fmt"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"atomgo/internal/diag"
)

// CheckProgram validates that the methods declared in pkgs only use the
// subset of Go the class lowering understands: straight-line and branching
// code over struct fields, with calls to other methods.
func CheckProgram(prog *ssa.Program, pkgs []*ssa.Package, reporter *diag.Reporter) error {
	if prog == nil {
		return fmt.Errorf("no SSA program provided for validation")
	}
	if reporter == nil {
		return fmt.Errorf("no reporter provided for validation")
	}

	c := &checker{
		reporter:   reporter,
		allowedPkg: make(map[*ssa.Package]struct{}),
	}
	for _, pkg := range pkgs {
		if pkg != nil {
			c.allowedPkg[pkg] = struct{}{}
		}
	}
	c.run(prog)
	if c.errCount > 0 {
		return fmt.Errorf("validation failed with %d issue(s)", c.errCount)
	}
	return nil
}

type checker struct {
	reporter   *diag.Reporter
	errCount   int
	allowedPkg map[*ssa.Package]struct{}
}

func (c *checker) run(prog *ssa.Program) {
	for fn := range ssautil.AllFunctions(prog) {
		if fn == nil || len(fn.Blocks) == 0 || fn.Synthetic != "" {
			continue
		}
		if fn.Pkg == nil || fn.Pkg.Pkg == nil {
			continue
		}
		if len(c.allowedPkg) > 0 {
			if _, ok := c.allowedPkg[fn.Pkg]; !ok {
				continue
			}
		}
		recv := fn.Signature.Recv()
		if recv == nil {
			// Free functions are not lowered; only their use from a method
			// is an error.
			continue
		}
		if _, ok := recv.Type().(*types.Pointer); !ok {
			c.error(fn.Pos(), "method %s has a value receiver; declare it on a pointer receiver", fn.Name())
			continue
		}
		c.checkFunction(fn)
	}
}

func (c *checker) checkFunction(fn *ssa.Function) {
	loopBlocks := findLoopBlocks(fn)
	reported := false
	for _, block := range fn.Blocks {
		if block == nil {
			continue
		}
		if loopBlocks[block] && !reported {
			c.error(blockPosition(block), "loops are not supported in method %s; a method body runs once per cycle", fn.Name())
			reported = true
		}
		for _, instr := range block.Instrs {
			c.inspectInstruction(fn, instr)
		}
	}
}

func (c *checker) inspectInstruction(fn *ssa.Function, instr ssa.Instruction) {
	switch inst := instr.(type) {
	case *ssa.Go:
		c.error(inst.Pos(), "goroutines are not supported; methods are scheduled by the generated hardware")
	case *ssa.Call:
		c.checkCall(fn, inst)
	case *ssa.MakeChan, *ssa.Send:
		c.error(instr.Pos(), "channels are not supported; use a method call on a submodule instead")
	case *ssa.UnOp:
		if inst.Op == token.ARROW {
			c.error(inst.Pos(), "channels are not supported; use a method call on a submodule instead")
		}
	case *ssa.Select:
		c.error(inst.Pos(), "select statements are not supported; guard the method with a __RDY method instead")
	case *ssa.MakeMap, *ssa.MapUpdate, *ssa.Lookup:
		c.error(instr.Pos(), "maps are not supported in hardware classes")
	case *ssa.MakeClosure:
		c.error(inst.Pos(), "closures are not supported; call a method instead")
	case *ssa.Defer, *ssa.RunDefers:
		if instr.Pos() != token.NoPos {
			c.error(instr.Pos(), "defer is not supported")
		}
	case *ssa.Panic:
		c.error(inst.Pos(), "panic is not supported in method %s", fn.Name())
	case *ssa.MakeSlice, *ssa.Slice:
		c.error(instr.Pos(), "slices are not supported; use a fixed-size array")
	case *ssa.MakeInterface, *ssa.TypeAssert:
		c.error(instr.Pos(), "dynamic interface values are not supported; store implementations in typed fields")
	case *ssa.Alloc:
		if inst.Heap {
			c.error(inst.Pos(), "heap allocation is not supported; %s escapes method %s", describeValue(inst), fn.Name())
		}
	}
}

func (c *checker) checkCall(current *ssa.Function, call *ssa.Call) {
	if call.Call.IsInvoke() {
		return
	}
	switch v := call.Call.Value.(type) {
	case *ssa.Builtin:
		c.error(call.Pos(), "builtin %s is not supported", v.Name())
		return
	case *ssa.Function:
	default:
		c.error(call.Pos(), "calls through function values are not supported")
		return
	}
	callee := call.Call.StaticCallee()
	if callee == nil {
		c.error(call.Pos(), "call target could not be resolved")
		return
	}
	if callee == current {
		c.error(call.Pos(), "recursion is not supported; refactor %s to straight-line code", current.Name())
		return
	}
	if callee.Signature.Recv() == nil {
		c.error(call.Pos(), "call to function %s is not supported; only methods may be called", callee.Name())
	}
}

func (c *checker) error(pos token.Pos, format string, args ...any) {
	c.errCount++
	if c.reporter != nil {
		c.reporter.Error(pos, fmt.Sprintf(format, args...))
	}
}

func describeValue(v ssa.Value) string {
	if v == nil {
		return "<nil>"
	}
	if a, ok := v.(*ssa.Alloc); ok && a.Comment != "" {
		return a.Comment
	}
	return v.Name()
}

func findLoopBlocks(fn *ssa.Function) map[*ssa.BasicBlock]bool {
	result := make(map[*ssa.BasicBlock]bool)
	index := 0
	stack := make([]*ssa.BasicBlock, 0, len(fn.Blocks))
	indices := make(map[*ssa.BasicBlock]int)
	lowlink := make(map[*ssa.BasicBlock]int)
	onStack := make(map[*ssa.BasicBlock]bool)

	var strongConnect func(v *ssa.BasicBlock)
	strongConnect = func(v *ssa.BasicBlock) {
		if v == nil {
			return
		}
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, succ := range v.Succs {
			if succ == nil {
				continue
			}
			if _, ok := indices[succ]; !ok {
				strongConnect(succ)
				if lowlink[succ] < lowlink[v] {
					lowlink[v] = lowlink[succ]
				}
			} else if onStack[succ] && indices[succ] < lowlink[v] {
				lowlink[v] = indices[succ]
			}
		}

		if lowlink[v] == indices[v] {
			component := make([]*ssa.BasicBlock, 0)
			for {
				if len(stack) == 0 {
					break
				}
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			if len(component) > 1 {
				for _, blk := range component {
					result[blk] = true
				}
			} else if hasSelfLoop(v) {
				result[v] = true
			}
		}
	}

	for _, block := range fn.Blocks {
		if block == nil {
			continue
		}
		if _, seen := indices[block]; !seen {
			strongConnect(block)
		}
	}
	return result
}

func hasSelfLoop(block *ssa.BasicBlock) bool {
	for _, succ := range block.Succs {
		if succ == block {
			return true
		}
	}
	return false
}

func blockPosition(block *ssa.BasicBlock) token.Pos {
	if block == nil {
		return token.NoPos
	}
	for _, instr := range block.Instrs {
		if instr == nil {
			continue
		}
		if pos := instr.Pos(); pos != token.NoPos {
			return pos
		}
	}
	return token.NoPos
}
