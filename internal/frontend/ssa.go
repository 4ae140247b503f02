package frontend

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/mod/modfile"
	gopackages "golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"atomgo/internal/diag"
)

// BuildSSA constructs SSA for the loaded packages and their dependencies.
// The returned slice holds the SSA packages of pkgs, in order.
func BuildSSA(pkgs []*gopackages.Package, reporter *diag.Reporter) (*ssa.Program, []*ssa.Package, error) {
	if len(pkgs) == 0 {
		return nil, nil, fmt.Errorf("frontend: no packages to build")
	}
	mode := ssa.BuilderMode(ssa.SanityCheckFunctions | ssa.InstantiateGenerics)
	prog, ssaPkgs := ssautil.AllPackages(pkgs, mode)
	var out []*ssa.Package
	for i, pkg := range ssaPkgs {
		if pkg == nil {
			reporter.Errorf("package %s has no SSA form", pkgs[i].PkgPath)
			continue
		}
		out = append(out, pkg)
	}
	if reporter.HasErrors() {
		return nil, nil, fmt.Errorf("frontend: ssa construction failed")
	}
	prog.Build()
	return prog, out, nil
}

// ModulePath returns the module path declared by the go.mod governing dir,
// searching parent directories. It returns "" when no go.mod is found.
func ModulePath(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(abs, "go.mod")
		data, err := os.ReadFile(path)
		if err == nil {
			mod := modfile.ModulePath(data)
			if mod == "" {
				return "", fmt.Errorf("frontend: %s declares no module", path)
			}
			return mod, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", nil
		}
		abs = parent
	}
}
