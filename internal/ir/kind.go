// Package ir holds the lifted-instruction data model shared between the
// class-file parser (which produces verification types from stack-map
// frames) and the lifter (which produces lifted instructions and basic
// blocks from them).
package ir

// StackKind is the tagged enumeration of the nine abstract value kinds
// that flow through the operand stack.
type StackKind uint8

const (
	KindBoolean StackKind = iota
	KindByte
	KindShort
	KindChar
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindReference
)

func (k StackKind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	case KindByte:
		return "byte"
	case KindShort:
		return "short"
	case KindChar:
		return "char"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindReference:
		return "reference"
	default:
		return "?unknown-kind?"
	}
}

// Category2 reports whether k occupies two stack/local slots (Long,
// Double); every other kind is category-1.
func (k StackKind) Category2() bool {
	return k == KindLong || k == KindDouble
}

// Slots returns 2 for a category-2 kind, 1 otherwise.
func (k StackKind) Slots() int {
	if k.Category2() {
		return 2
	}
	return 1
}

// VerificationType is the tagged enumeration used only inside stack-map
// frames. Object carries the referenced class name; Uninitialized
// carries the bytecode offset of the `new` that created it.
type VerificationType struct {
	Tag       VerificationTag
	ClassName string // valid when Tag == VTObject
	NewOffset uint32 // valid when Tag == VTUninitialized
}

type VerificationTag uint8

const (
	VTTop VerificationTag = iota
	VTInteger
	VTFloat
	VTLong
	VTDouble
	VTNull
	VTUninitializedThis
	VTObject
	VTUninitialized
)

// StackKind maps a verification type to the operand-stack kind the
// lifter tracks for it. Integer-family verification types (boolean,
// byte, short, char, int) are all folded to VTInteger by the class
// format's stack map encoding, so the lifter widens to KindInt; the
// method descriptor is consulted separately where the narrower kind
// matters (e.g. typed array ops).
func (v VerificationType) StackKind() StackKind {
	switch v.Tag {
	case VTInteger:
		return KindInt
	case VTFloat:
		return KindFloat
	case VTLong:
		return KindLong
	case VTDouble:
		return KindDouble
	case VTNull, VTObject, VTUninitialized, VTUninitializedThis:
		return KindReference
	default:
		return KindInt
	}
}
