package diag

import (
	"encoding/json"
	"fmt"
	"go/token"
	"io"
	"sync"
)

// Severity classifies a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Reporter collects diagnostics and writes them to an output stream in either
// a human readable ("text") or machine readable ("json") format.
type Reporter struct {
	mu       sync.Mutex
	w        io.Writer
	format   string
	fset     *token.FileSet
	errors   int
	warnings int
}

// NewReporter returns a reporter writing to w. Unknown formats fall back to text.
func NewReporter(w io.Writer, format string) *Reporter {
	if w == nil {
		w = io.Discard
	}
	if format != "json" {
		format = "text"
	}
	return &Reporter{w: w, format: format}
}

// SetFileSet attaches the file set used to resolve token positions.
func (r *Reporter) SetFileSet(fset *token.FileSet) {
	r.mu.Lock()
	r.fset = fset
	r.mu.Unlock()
}

// Error records an error at pos.
func (r *Reporter) Error(pos token.Pos, msg string) {
	r.report(SeverityError, pos, msg)
}

// Warning records a warning at pos.
func (r *Reporter) Warning(pos token.Pos, msg string) {
	r.report(SeverityWarning, pos, msg)
}

// Errorf records a position-less error.
func (r *Reporter) Errorf(format string, args ...any) {
	r.report(SeverityError, token.NoPos, fmt.Sprintf(format, args...))
}

// HasErrors reports whether any error has been recorded.
func (r *Reporter) HasErrors() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors > 0
}

// ErrorCount returns the number of errors recorded so far.
func (r *Reporter) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors
}

type jsonDiagnostic struct {
	Severity string `json:"severity"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Message  string `json:"message"`
}

func (r *Reporter) report(sev Severity, pos token.Pos, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sev == SeverityError {
		r.errors++
	} else {
		r.warnings++
	}

	var position token.Position
	if r.fset != nil && pos.IsValid() {
		position = r.fset.Position(pos)
	}

	if r.format == "json" {
		data, err := json.Marshal(jsonDiagnostic{
			Severity: sev.String(),
			File:     position.Filename,
			Line:     position.Line,
			Column:   position.Column,
			Message:  msg,
		})
		if err != nil {
			fmt.Fprintf(r.w, "%s: %s\n", sev, msg)
			return
		}
		fmt.Fprintf(r.w, "%s\n", data)
		return
	}

	if position.IsValid() {
		fmt.Fprintf(r.w, "%s: %s: %s\n", position, sev, msg)
		return
	}
	fmt.Fprintf(r.w, "%s: %s\n", sev, msg)
}
