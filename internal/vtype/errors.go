package vtype

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes type errors.
type ErrorCode string

const (
	// ErrCodeDuplicateType indicates a type name is already registered.
	ErrCodeDuplicateType ErrorCode = "DUPLICATE_TYPE"

	// ErrCodeUnknownParent indicates a missing or foreign parent type.
	ErrCodeUnknownParent ErrorCode = "UNKNOWN_PARENT"

	// ErrCodeUnknownType indicates a type name that is not registered.
	ErrCodeUnknownType ErrorCode = "UNKNOWN_TYPE"

	// ErrCodeInvalidSchema indicates a member schema that doesn't fit the kind.
	ErrCodeInvalidSchema ErrorCode = "INVALID_SCHEMA"

	// ErrCodeInvalidOverride indicates a derived member narrowed to a non-subtype.
	ErrCodeInvalidOverride ErrorCode = "INVALID_OVERRIDE"

	// ErrCodeNoSuchMember indicates a list member lookup miss.
	ErrCodeNoSuchMember ErrorCode = "NO_SUCH_MEMBER"

	// ErrCodeLiteralParse indicates a literal that can't be converted.
	ErrCodeLiteralParse ErrorCode = "LITERAL_PARSE"

	// ErrCodeSchemaViolation indicates a value that doesn't satisfy its schema.
	ErrCodeSchemaViolation ErrorCode = "SCHEMA_VIOLATION"

	// ErrCodeTypeMismatch indicates a connection whose source isn't a subtype
	// of its destination.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// ErrCodeNoSuchPath indicates an address that reaches no value.
	ErrCodeNoSuchPath ErrorCode = "NO_SUCH_PATH"

	// ErrCodeIndexMismatch indicates a path step applied to the wrong kind.
	ErrCodeIndexMismatch ErrorCode = "INDEX_MISMATCH"
)

// TypeError is returned for every type-system failure: unparseable
// literals, schema violations, subtype mismatches and unknown members or
// addresses. It is never silently coerced.
type TypeError struct {
	Code    ErrorCode
	Type    string // offending type name, if any
	Member  string // member name, for member errors
	Path    string // address path, for path errors
	Message string
}

func (e *TypeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Type != "" {
		msg += fmt.Sprintf(" (type=%s", e.Type)
		if e.Path != "" {
			msg += fmt.Sprintf(", path=%s", e.Path)
		}
		msg += ")"
	} else if e.Path != "" {
		msg += fmt.Sprintf(" (path=%s)", e.Path)
	}
	return msg
}

// Errorf creates a TypeError with a formatted message.
func Errorf(code ErrorCode, t *Type, format string, args ...any) *TypeError {
	return &TypeError{
		Code:    code,
		Type:    t.DisplayName(),
		Message: fmt.Sprintf(format, args...),
	}
}

// IsTypeError reports whether err wraps a *TypeError.
func IsTypeError(err error) bool {
	var te *TypeError
	return errors.As(err, &te)
}

// HasCode reports whether err wraps a *TypeError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var te *TypeError
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}
