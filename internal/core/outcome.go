package core

// Kind tags an evaluation Outcome.
type Kind int

const (
	KindUndefined Kind = iota
	KindNull
	KindValue
	KindUnrenderable
	KindException
	KindExceptionUnrenderable
	KindExceptionAbsent
)

var kindNames = [...]string{
	KindUndefined:             "undefined",
	KindNull:                  "null",
	KindValue:                 "value",
	KindUnrenderable:          "unrenderable",
	KindException:             "exception",
	KindExceptionUnrenderable: "exception-unrenderable",
	KindExceptionAbsent:       "exception-absent",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// IsException reports whether k is one of the exception variants.
func (k Kind) IsException() bool {
	return k >= KindException
}

// Outcome is the tagged result of one evaluation. Text carries the
// rendered value for KindValue and the rendered thrown value for
// KindException; it is empty for every other kind.
type Outcome struct {
	Kind Kind
	Text string
}

func Undefined() Outcome { return Outcome{Kind: KindUndefined} }

func Null() Outcome { return Outcome{Kind: KindNull} }

// Value is a successfully rendered result of any other type.
func Value(s string) Outcome { return Outcome{Kind: KindValue, Text: s} }

// Unrenderable is a result the engine could not convert to a string.
func Unrenderable() Outcome { return Outcome{Kind: KindUnrenderable} }

// Exception is a thrown value rendered to msg.
func Exception(msg string) Outcome { return Outcome{Kind: KindException, Text: msg} }

// ExceptionUnrenderable is a thrown value that could not be rendered.
func ExceptionUnrenderable() Outcome { return Outcome{Kind: KindExceptionUnrenderable} }

// ExceptionAbsent is an exception signal with no exception value attached.
func ExceptionAbsent() Outcome { return Outcome{Kind: KindExceptionAbsent} }
