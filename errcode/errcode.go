package errcode

// Code is a stable, caller-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK          Code = "ok"
	Busy        Code = "busy"
	Timeout     Code = "timeout"
	Unsupported Code = "unsupported"
	Parameter   Code = "invalid_params"

	InvalidPayload Code = "invalid_payload"
	InvalidTopic   Code = "invalid_topic"
	NotReady       Code = "not_ready"

	Error Code = "error" // generic fallback
)

// Numeric status values of the driver contract.
const (
	StatusOK          int32 = 0
	StatusError       int32 = -1
	StatusBusy        int32 = -2
	StatusTimeout     int32 = -3
	StatusUnsupported int32 = -4
	StatusParameter   int32 = -5
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// New returns an *E for op with code c and a short message.
func New(op string, c Code, msg string) error {
	return &E{C: c, Op: op, Msg: msg}
}

// Wrap keeps err as the cause; the code is taken from err when it carries one.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: Of(err), Op: op, Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		if inner := u.Unwrap(); inner != nil {
			return Of(inner)
		}
	}
	return Error
}

// Status maps an error to the numeric contract value.
func Status(err error) int32 {
	switch Of(err) {
	case OK:
		return StatusOK
	case Busy:
		return StatusBusy
	case Timeout:
		return StatusTimeout
	case Unsupported:
		return StatusUnsupported
	case Parameter:
		return StatusParameter
	default:
		return StatusError
	}
}
