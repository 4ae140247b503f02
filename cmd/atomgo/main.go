package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"atomgo/internal/backend"
	"atomgo/internal/config"
	"atomgo/internal/diag"
	"atomgo/internal/frontend"
	"atomgo/internal/ir"
	"atomgo/internal/passes"
	"atomgo/internal/validate"
)

var lintVerilog = backend.Lint

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printGlobalUsage()
		return fmt.Errorf("missing command")
	}

	switch args[0] {
	case "compile":
		return runCompile(args[1:])
	case "lint":
		return runLint(args[1:])
	case "init":
		return runInit(args[1:])
	default:
		printGlobalUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printGlobalUsage() {
	fmt.Fprintf(os.Stderr, "atomgo: class-based hardware generator\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  atomgo <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  compile    Generate Verilog, C++ and scheduling metadata from Go classes\n")
	fmt.Fprintf(os.Stderr, "  lint       Run validation and IR checks without writing output\n")
	fmt.Fprintf(os.Stderr, "  init       Write a default %s\n", config.DefaultFilename)
}

func emitArtifacts(emit string) ([]backend.Artifact, error) {
	switch emit {
	case "all":
		return backend.AllArtifacts, nil
	case "ir":
		return []backend.Artifact{backend.ArtifactIR}, nil
	case "verilog":
		return []backend.Artifact{backend.ArtifactVerilog}, nil
	case "cpp":
		return []backend.Artifact{backend.ArtifactHeader, backend.ArtifactSource}, nil
	case "meta":
		return []backend.Artifact{backend.ArtifactMeta}, nil
	}
	return nil, fmt.Errorf("unknown emit format: %s", emit)
}

func runCompile(args []string) error {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	emit := fs.String("emit", "all", "artifacts to write (ir|verilog|cpp|meta|all)")
	output := fs.String("o", ".", "output directory")
	name := fs.String("name", "", "unit name used for output files (defaults to the last element of the module path)")
	configPath := fs.String("config", "", "path to "+config.DefaultFilename+" (defaults to the one next to the sources)")
	inline := fs.String("inline", "", "override the wire inlining mode (single|fixpoint|none)")
	diagFormat := fs.String("diag-format", "text", "diagnostic output format (text|json)")
	trace := fs.Bool("trace", false, "log generator decisions at debug level")
	progress := fs.Bool("progress", term.IsTerminal(int(os.Stderr.Fd())), "show per-class progress")
	lint := fs.Bool("lint", false, "run verilator --lint-only over the generated Verilog")
	verilator := fs.String("verilator", "", "path to verilator (optional, falls back to PATH lookup)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("compile command requires at least one Go source file")
	}
	artifacts, err := emitArtifacts(*emit)
	if err != nil {
		return err
	}
	if *lint && !containsArtifact(artifacts, backend.ArtifactVerilog) {
		return fmt.Errorf("-lint requires the verilog artifact")
	}

	inputs := fs.Args()
	dir := filepath.Dir(inputs[0])
	cfg, err := loadConfig(*configPath, dir)
	if err != nil {
		return err
	}
	if *inline != "" {
		if cfg.Inline, err = config.ParseInlineMode(*inline); err != nil {
			return err
		}
	}
	setupLogging(*trace || cfg.Trace)

	prog, err := buildProgram(inputs, *diagFormat)
	if err != nil {
		return err
	}

	unitName := *name
	if unitName == "" {
		unitName = defaultUnitName(dir)
	}
	opts := backend.Options{Config: cfg, VerilatorPath: *verilator}
	var bar *progressbar.ProgressBar
	if *progress {
		bar = progressbar.Default(int64(countClasses(prog)), "generating")
		opts.Progress = func(string) { bar.Add(1) }
	}
	unit, err := backend.Generate(prog, unitName, opts)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}
	paths, err := backend.Write(unit, *output, artifacts)
	if err != nil {
		return err
	}
	slog.Debug("artifacts written", "paths", strings.Join(paths, ","))

	if *lint {
		return lintVerilog(filepath.Join(*output, unitName+"."+string(backend.ArtifactVerilog)), opts)
	}
	return nil
}

func runLint(args []string) error {
	fs := flag.NewFlagSet("lint", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	diagFormat := fs.String("diag-format", "text", "diagnostic output format (text|json)")
	trace := fs.Bool("trace", false, "log checks at debug level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("lint requires at least one Go source file")
	}
	setupLogging(*trace)
	_, err := buildProgram(fs.Args(), *diagFormat)
	return err
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	dir := fs.String("dir", ".", "directory to write "+config.DefaultFilename+" into")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	target := filepath.Join(*dir, config.DefaultFilename)
	if _, err := os.Stat(target); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", target)
	}
	return config.WriteTemplate(*dir, config.Default())
}

func containsArtifact(list []backend.Artifact, a backend.Artifact) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func loadConfig(explicit, dir string) (config.Config, error) {
	if explicit != "" {
		return config.Load(explicit)
	}
	return config.Discover(dir)
}

func setupLogging(trace bool) {
	level := slog.LevelInfo
	if trace {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// buildProgram runs the front end, the subset validation and the IR checks.
func buildProgram(sources []string, diagFormat string) (*ir.Program, error) {
	reporter := diag.NewReporter(os.Stderr, diagFormat)
	cfg := frontend.LoadConfig{Sources: sources}
	pkgs, _, err := frontend.LoadPackages(cfg, reporter)
	if err != nil {
		return nil, err
	}
	if reporter.HasErrors() {
		return nil, fmt.Errorf("errors reported while loading packages")
	}
	ssaProg, ssaPkgs, err := frontend.BuildSSA(pkgs, reporter)
	if err != nil {
		return nil, err
	}
	if err := validate.CheckProgram(ssaProg, ssaPkgs, reporter); err != nil {
		return nil, err
	}
	prog, err := ir.BuildProgram(ssaProg, ssaPkgs, reporter)
	if err != nil {
		return nil, err
	}
	if err := runDefaultPasses(prog, reporter); err != nil {
		return nil, err
	}
	return prog, nil
}

func runDefaultPasses(prog *ir.Program, reporter *diag.Reporter) error {
	passMgr := passes.NewManager()
	passMgr.Add(passes.NewShapeCheck(reporter))
	passMgr.Add(passes.NewWidthCheck(reporter))
	if err := passMgr.Run(prog); err != nil {
		return err
	}
	if reporter != nil && reporter.HasErrors() {
		return fmt.Errorf("analysis passes reported errors")
	}
	return nil
}

// countClasses is the number of classes the backend will generate: struct
// types that own at least one method and are not plain bit-vectors.
func countClasses(prog *ir.Program) int {
	n := 0
	for _, st := range prog.Structs {
		if st.Kind != ir.StructBitVector && len(prog.MethodsOf(st)) > 0 {
			n++
		}
	}
	return n
}

func defaultUnitName(dir string) string {
	if mod, err := frontend.ModulePath(dir); err == nil && mod != "" {
		return path.Base(mod)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "design"
	}
	return filepath.Base(abs)
}
