package backend

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"atomgo/internal/class"
	"atomgo/internal/config"
	"atomgo/internal/cpp"
	"atomgo/internal/extract"
	"atomgo/internal/ir"
	"atomgo/internal/meta"
	"atomgo/internal/render"
	"atomgo/internal/verilog"
)

// Artifact names one output file kind of a compilation unit.
type Artifact string

const (
	ArtifactIR      Artifact = "ir"
	ArtifactVerilog Artifact = "v"
	ArtifactHeader  Artifact = "h"
	ArtifactSource  Artifact = "cpp"
	ArtifactMeta    Artifact = "meta"
)

// AllArtifacts lists every artifact in the order they are written.
var AllArtifacts = []Artifact{ArtifactIR, ArtifactVerilog, ArtifactHeader, ArtifactSource, ArtifactMeta}

// Options configures generation and the optional external lint.
type Options struct {
	Config config.Config
	// VerilatorPath optionally overrides the verilator binary. When empty the
	// backend looks it up on PATH if linting is requested.
	VerilatorPath string
	// Progress is called after each class has been generated.
	Progress func(className string)
}

// Unit holds the buffered artifacts of one compilation unit. Nothing reaches
// the file system until every class has been generated.
type Unit struct {
	Name    string
	Classes []*class.Class
	files   map[Artifact]*bytes.Buffer
}

// Bytes returns the content generated for artifact a.
func (u *Unit) Bytes(a Artifact) []byte {
	if b, ok := u.files[a]; ok {
		return b.Bytes()
	}
	return nil
}

func (u *Unit) buf(a Artifact) *bytes.Buffer {
	b, ok := u.files[a]
	if !ok {
		b = &bytes.Buffer{}
		u.files[a] = b
	}
	return b
}

// Generate runs every generator over every class of prog.
func Generate(prog *ir.Program, name string, opts Options) (*Unit, error) {
	if prog == nil {
		return nil, fmt.Errorf("backend: program is nil")
	}
	u := &Unit{Name: name, files: make(map[Artifact]*bytes.Buffer)}
	ir.Dump(prog, u.buf(ArtifactIR))

	res := class.NewResolver(prog, opts.Config)
	if _, err := res.Populate(); err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}
	hw := render.New(res, render.Hardware)
	sw := render.New(res, render.Software)
	vopts := verilog.Options{Inline: opts.Config.Inline}

	u.Classes = dependencyOrder(res)
	for _, c := range u.Classes {
		if err := generateClass(u, res, hw, sw, vopts, c); err != nil {
			return nil, fmt.Errorf("backend: class %s: %w", c.Name, err)
		}
		slog.Debug("class generated", "class", c.Name, "kind", c.Kind(), "methods", len(c.Methods))
		if opts.Progress != nil {
			opts.Progress(c.Name)
		}
	}
	return u, nil
}

func generateClass(u *Unit, res *class.Resolver, hw, sw *render.Reconstructor, vopts verilog.Options, c *class.Class) error {
	swBodies, err := extract.Class(sw, c)
	if err != nil {
		return err
	}
	if err := cpp.Emit(u.buf(ArtifactHeader), u.buf(ArtifactSource), res, swBodies); err != nil {
		return err
	}
	if c.Kind() == ir.StructInterface {
		return nil
	}
	hwBodies, err := extract.Class(hw, c)
	if err != nil {
		return err
	}
	if err := verilog.Emit(u.buf(ArtifactVerilog), res, hwBodies, vopts); err != nil {
		return err
	}
	return meta.Write(u.buf(ArtifactMeta), res, meta.Analyze(hwBodies))
}

// dependencyOrder returns the classes with methods so that every class
// follows the classes its fields refer to.
func dependencyOrder(res *class.Resolver) []*class.Class {
	var out []*class.Class
	seen := make(map[class.ID]bool)
	var visit func(id class.ID)
	visit = func(id class.ID) {
		if seen[id] {
			return
		}
		seen[id] = true
		c := res.Class(id)
		for _, f := range c.Fields {
			if f.Class != class.NoClass {
				visit(f.Class)
			}
		}
		if len(c.Methods) > 0 && c.Kind() != ir.StructBitVector {
			out = append(out, c)
		}
	}
	for _, c := range res.Classes() {
		visit(c.ID)
	}
	return out
}

// Write stores the requested artifacts of u as dir/<name>.<artifact> and
// returns the paths written.
func Write(u *Unit, dir string, artifacts []Artifact) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backend: create output dir: %w", err)
	}
	var paths []string
	for _, a := range artifacts {
		path := filepath.Join(dir, u.Name+"."+string(a))
		if err := os.WriteFile(path, u.file(a), 0o644); err != nil {
			return paths, fmt.Errorf("backend: write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// file returns the on-disk form of artifact a.
func (u *Unit) file(a Artifact) []byte {
	body := u.Bytes(a)
	switch a {
	case ArtifactHeader:
		guard := "__" + strings.ToUpper(sanitize(u.Name)) + "_H__"
		var b bytes.Buffer
		fmt.Fprintf(&b, "#ifndef %s\n#define %s\n", guard, guard)
		b.Write(body)
		fmt.Fprintf(&b, "#endif // %s\n", guard)
		return b.Bytes()
	case ArtifactSource:
		return append([]byte(fmt.Sprintf("#include \"%s.h\"\n", u.Name)), body...)
	}
	return body
}

// Lint runs verilator --lint-only over the Verilog file at path.
func Lint(path string, opts Options) error {
	binary, err := resolveBinary(opts.VerilatorPath, "verilator")
	if err != nil {
		return fmt.Errorf("backend: resolve verilator: %w", err)
	}
	cmd := exec.Command(binary, "--lint-only", "-Wno-DECLFILENAME", path)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("backend: verilator lint failed: %w", err)
	}
	return nil
}

func resolveBinary(explicit, fallback string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}
	path, err := exec.LookPath(fallback)
	if err != nil {
		return "", err
	}
	return path, nil
}

func sanitize(name string) string {
	if name == "" {
		return "unnamed"
	}
	var b strings.Builder
	for i, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' || (r >= '0' && r <= '9' && i > 0) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
