package diag

import "fmt"

// Kind is the class of a structural violation.
type Kind int

const (
	// Unsupported marks IR shapes the generators cannot express: non-constant
	// address offsets, volatile accesses, effectful values in action bodies,
	// unresolvable callees and unsupported bit widths.
	Unsupported Kind = iota
	// Encoding marks front-end contract violations such as a malformed
	// field-name map or a qualified method path that does not resolve.
	Encoding
	// Internal marks operand kinds that reach a branch which cannot produce them.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Unsupported:
		return "unsupported"
	case Encoding:
		return "encoding"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Failure is a fatal structural violation. Generators raise it with Fail and
// the package entry points convert it back into an error with Recover.
type Failure struct {
	Kind    Kind
	Subject string
	Msg     string
}

func (f *Failure) Error() string {
	if f.Subject == "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", f.Kind, f.Subject, f.Msg)
}

// Fail aborts the current unit with a Failure.
func Fail(kind Kind, subject string, format string, args ...any) {
	panic(&Failure{Kind: kind, Subject: subject, Msg: fmt.Sprintf(format, args...)})
}

// Recover turns a Failure panic into an error stored in *errp. Other panics
// are propagated unchanged.
//
//	func Emit(...) (err error) {
//		defer diag.Recover(&err)
//		...
//	}
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if f, ok := r.(*Failure); ok {
		*errp = f
		return
	}
	panic(r)
}
