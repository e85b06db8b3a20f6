package horizon

import "fmt"

// Error is a platform result code.
type Error struct {
	Level       uint8
	Summary     uint8
	Module      uint8
	Description uint16
	Op          string
}

// Code returns the packed 32 bit result code.
func (e *Error) Code() uint32 {
	return uint32(e.Level)<<27 | uint32(e.Summary)<<21 | uint32(e.Module)<<10 | uint32(e.Description&0x3ff)
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: result code %#08x", e.Op, e.Code())
	}
	return fmt.Sprintf("result code %#08x", e.Code())
}

// Is matches errors by result code, ignoring Op.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code() == e.Code()
}

// WithOp returns a copy of e annotated with the failing operation.
func (e *Error) WithOp(op string) *Error {
	c := *e
	c.Op = op
	return &c
}

const (
	levelPermanent = 27
	levelUsage     = 28

	summaryNotFound        = 4
	summaryInvalidArgument = 7
	summaryInvalidState    = 5

	moduleApplication = 254

	descNotFound           = 1018
	descInvalidPointer     = 1015
	descInvalidValue       = 1023
	descInvalidResultValue = 1017
	descNotInitialized     = 1020
	descInvalidCommand     = 1014
)

var (
	ErrNotFound           = &Error{Level: levelPermanent, Summary: summaryNotFound, Module: moduleApplication, Description: descNotFound}
	ErrInvalidPointer     = &Error{Level: levelUsage, Summary: summaryInvalidArgument, Module: moduleApplication, Description: descInvalidPointer}
	ErrInvalidValue       = &Error{Level: levelPermanent, Summary: summaryInvalidArgument, Module: moduleApplication, Description: descInvalidValue}
	ErrInvalidResultValue = &Error{Level: levelPermanent, Summary: summaryInvalidArgument, Module: moduleApplication, Description: descInvalidResultValue}
	ErrNotInitialized     = &Error{Level: levelPermanent, Summary: summaryInvalidState, Module: moduleApplication, Description: descNotInitialized}
	ErrInvalidCommand     = &Error{Level: levelPermanent, Summary: summaryInvalidArgument, Module: moduleApplication, Description: descInvalidCommand}
)
