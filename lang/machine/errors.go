package machine

import "fmt"

// IError is a runtime fault: a short, machine-readable name plus a human
// message, matching spec's error-kind taxonomy by short_name string.
type IError struct {
	ShortName string
	Message   string
}

func (e *IError) Error() string { return fmt.Sprintf("%s: %s", e.ShortName, e.Message) }

func newErr(shortName, format string, args ...any) *IError {
	return &IError{ShortName: shortName, Message: fmt.Sprintf(format, args...)}
}

func errInvalidPointer(msg string) error         { return newErr("InvalidPointer", "%s", msg) }
func errSegfault(msg string) error               { return newErr("SegfaultOutOfBounds", "%s", msg) }
func errStackUnderflow(msg string) error         { return newErr("StackUnderflow", "%s", msg) }
func errInvalidLibraryFunction(msg string) error { return newErr("InvalidLibraryFunction", "%s", msg) }
func errInvalidEcall(msg string) error           { return newErr("InvalidEnviromentCall", "%s", msg) }
func errInvalidArgIndex(msg string) error        { return newErr("InvalidArgumentIndex", "%s", msg) }
func errMissingNullTerm(msg string) error        { return newErr("MissingNullTerminator", "%s", msg) }
func errInvalidFormatString(msg string) error    { return newErr("InvalidFormatString", "%s", msg) }
func errWriteFailed(msg string) error            { return newErr("WriteFailed", "%s", msg) }
