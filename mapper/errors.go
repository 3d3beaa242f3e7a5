package mapper

import (
	"errors"
	"fmt"
	"strings"
)

// Causes of a ParseError. Use errors.Is to tell them apart.
var (
	ErrUnknownParameter   = errors.New("unknown parameter")
	ErrNullValue          = errors.New("null not permitted")
	ErrInvalidValue       = errors.New("invalid parameter value")
	ErrMissingType        = errors.New("no type specified")
	ErrUnknownType        = errors.New("no handler for type")
	ErrScriptOnSubField   = errors.New("script not permitted on a sub-field of an object field")
	ErrRemovalUnsupported = errors.New("removal not supported in this context")
	ErrNotAnObject        = errors.New("expected structured definition")
	ErrInvalidMapping     = errors.New("invalid mapping")
)

// ParseError reports a malformed field declaration. It always aborts the
// whole mapping update it belongs to.
type ParseError struct {
	Field  string
	Type   string
	Param  string
	Err    error
	Detail string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("failed to parse field [")
	b.WriteString(e.Field)
	b.WriteString("]")
	if e.Type != "" {
		b.WriteString(" of type [")
		b.WriteString(e.Type)
		b.WriteString("]")
	}
	b.WriteString(": ")
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	if e.Param != "" {
		b.WriteString(" [")
		b.WriteString(e.Param)
		b.WriteString("]")
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ConflictError reports two runtime fields exposing the same full name.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("found two runtime fields with same name [%s]", e.Field)
}

// CycleError reports a resolution that came back to a name already being
// resolved. Chain holds every name visited, ending with the repeated one.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return "loop in field resolution detected: " + strings.Join(e.Chain, "->")
}
