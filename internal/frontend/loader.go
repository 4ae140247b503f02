package frontend

import (
	"fmt"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	gopackages "golang.org/x/tools/go/packages"

	"atomgo/internal/diag"
)

// LoadConfig names the Go source files holding the classes of one unit.
// All sources must belong to the same package directory.
type LoadConfig struct {
	Sources   []string
	BuildTags []string
	// CacheDir holds the build and module caches used by the go command.
	// Empty selects .cache under the working directory.
	CacheDir string
}

const loadMode = gopackages.NeedName | gopackages.NeedSyntax | gopackages.NeedFiles |
	gopackages.NeedCompiledGoFiles | gopackages.NeedTypes | gopackages.NeedTypesInfo |
	gopackages.NeedImports | gopackages.NeedDeps | gopackages.NeedModule | gopackages.NeedTypesSizes

// LoadPackages type-checks the package containing cfg.Sources. Load and
// type errors are reported through reporter and fail the load.
func LoadPackages(cfg LoadConfig, reporter *diag.Reporter) ([]*gopackages.Package, *token.FileSet, error) {
	if len(cfg.Sources) == 0 {
		return nil, nil, fmt.Errorf("no source files were provided")
	}
	dir, err := sourceDir(cfg.Sources)
	if err != nil {
		return nil, nil, err
	}

	fset := token.NewFileSet()
	loadCfg := &gopackages.Config{
		Mode:       loadMode,
		Dir:        dir,
		Fset:       fset,
		Env:        loadEnv(cfg.CacheDir),
		BuildFlags: buildTagFlag(cfg.BuildTags),
	}
	pkgs, err := gopackages.Load(loadCfg, ".")
	if err != nil {
		return nil, nil, fmt.Errorf("frontend: load %s: %w", dir, err)
	}
	reporter.SetFileSet(fset)

	hadErrors := false
	gopackages.Visit(pkgs, nil, func(pkg *gopackages.Package) {
		for _, loadErr := range pkg.Errors {
			reporter.Errorf("%s: %s", loadErr.Pos, loadErr.Msg)
			hadErrors = true
		}
	})
	if hadErrors {
		return nil, nil, fmt.Errorf("package loading failed")
	}
	for _, src := range cfg.Sources {
		if !containsFile(pkgs, src) {
			return nil, nil, fmt.Errorf("frontend: %s is not compiled into the package in %s (build tags?)", src, dir)
		}
	}
	return pkgs, fset, nil
}

// sourceDir returns the absolute directory shared by every source.
func sourceDir(sources []string) (string, error) {
	var dir string
	for _, src := range sources {
		abs, err := filepath.Abs(filepath.Dir(src))
		if err != nil {
			return "", err
		}
		if dir == "" {
			dir = abs
			continue
		}
		if abs != dir {
			return "", fmt.Errorf("frontend: sources span %s and %s; a unit is one package", dir, abs)
		}
	}
	return dir, nil
}

// containsFile matches by base name; sourceDir already pinned the directory.
func containsFile(pkgs []*gopackages.Package, src string) bool {
	name := filepath.Base(src)
	for _, pkg := range pkgs {
		for _, f := range pkg.CompiledGoFiles {
			if filepath.Base(f) == name {
				return true
			}
		}
	}
	return false
}

func buildTagFlag(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	joined := strings.Join(tags, ",")
	if joined == "" {
		return nil
	}
	return []string{"-tags=" + joined}
}

// loadEnv pins the target so type sizes do not depend on the host.
func loadEnv(cacheDir string) []string {
	if cacheDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		cacheDir = filepath.Join(cwd, ".cache")
	}
	goCache := filepath.Join(cacheDir, "go-build")
	goModCache := filepath.Join(cacheDir, "gomod")
	_ = os.MkdirAll(goCache, 0o755)
	_ = os.MkdirAll(goModCache, 0o755)
	return append(os.Environ(),
		"GOOS=linux",
		"GOARCH=amd64",
		"GOCACHE="+goCache,
		"GOMODCACHE="+goModCache,
	)
}
