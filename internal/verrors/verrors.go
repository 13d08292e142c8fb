// Package verrors defines the error taxonomy shared by the class-file
// parser and the bytecode lifter.
package verrors

import "github.com/pkg/errors"

// Sentinel errors for the error taxonomy. Callers should use errors.Is
// against these, never string-match on Error().
var (
	// ErrIO wraps an underlying stream failure, propagated verbatim.
	ErrIO = errors.New("io error")

	// ErrMalformedClass covers magic mismatch, truncated tables,
	// out-of-range constant indices, wrong-kind pool dereference, unknown
	// attribute, unknown frame tag, unknown opcode.
	ErrMalformedClass = errors.New("malformed class")

	// ErrUnsupportedFeature covers major version > 52, MethodHandle /
	// MethodType / InvokeDynamic constants, and wide-prefixed opcodes
	// outside the allowed subset.
	ErrUnsupportedFeature = errors.New("unsupported feature")

	// ErrMalformedDescriptor covers an illegal character or premature
	// end while parsing a field/method descriptor.
	ErrMalformedDescriptor = errors.New("malformed descriptor")

	// ErrStackMapDisagreement is raised when the lifter-deduced shape at
	// a frame offset does not match the declared frame.
	ErrStackMapDisagreement = errors.New("stack-map disagreement")

	// ErrWidth is raised when popping a narrow value whose top slot is a
	// category-2 sentinel, or vice versa.
	ErrWidth = errors.New("width error")
)

// Wrap attaches msg as context to an existing taxonomy member and adds a
// stack trace, e.g. Wrap(ErrMalformedClass, "reading constant pool entry 4").
func Wrap(sentinel error, msg string) error {
	return errors.Wrap(sentinel, msg)
}

// Wrapf is Wrap with fmt-style formatting.
func Wrapf(sentinel error, format string, args ...any) error {
	return errors.Wrapf(sentinel, format, args...)
}
