// Package constpool implements a typed constant-pool accessor built
// around a tagged Entry design.
package constpool

import (
	"fmt"

	"classlift/internal/verrors"
)

// ConstantKind tags the variant stored at a pool index.
type ConstantKind uint8

const (
	KindUnusable ConstantKind = iota
	KindUtf8
	KindInteger
	KindFloat
	KindLong
	KindDouble
	KindClass
	KindString
	KindFieldRef
	KindMethodRef
	KindInterfaceMethodRef
	KindNameAndType
	KindMethodHandle
	KindMethodType
	KindDynamic
	KindInvokeDynamic
	KindModule
	KindPackage
)

// Entry is one constant-pool slot. Only the fields relevant to Kind are
// populated; others are zero.
type Entry struct {
	Kind ConstantKind

	Utf8 string

	IntValue    int32
	FloatValue  float32
	LongValue   int64
	DoubleValue float64

	// Class / String / Module / Package: index into Utf8 entry.
	NameIndex int

	// FieldRef / MethodRef / InterfaceMethodRef.
	ClassIndex       int
	NameAndTypeIndex int

	// NameAndType.
	DescriptorIndex int

	// MethodHandle.
	ReferenceKind  uint8
	ReferenceIndex int
}

// Pool is the one-indexed constant pool of a class. Index 0 is unused
// by the format; Pool stores entries at Pool.entries[id-1].
type Pool struct {
	entries []Entry
}

// New wraps a slice of entries already in one-indexed storage order
// (entries[0] corresponds to pool index 1). A Long/Double entry's
// companion "next" slot must be KindUnusable; the class-file parser is
// responsible for establishing that invariant when it builds the slice.
func New(entries []Entry) *Pool {
	return &Pool{entries: entries}
}

func (p *Pool) at(id int) (Entry, error) {
	if id < 1 || id > len(p.entries) {
		return Entry{}, verrors.Wrapf(verrors.ErrMalformedClass, "constant pool index %d out of range [1,%d]", id, len(p.entries))
	}
	e := p.entries[id-1]
	if e.Kind == KindUnusable {
		return Entry{}, verrors.Wrapf(verrors.ErrMalformedClass, "constant pool index %d is an unusable slot (second half of a long/double)", id)
	}
	return e, nil
}

// Kind returns the tagged kind stored at id, for diagnostics.
func (p *Pool) Kind(id int) (ConstantKind, error) {
	e, err := p.at(id)
	if err != nil {
		return 0, err
	}
	return e.Kind, nil
}

// Utf8 returns the string at id, which must be a Utf8 entry.
func (p *Pool) Utf8(id int) (string, error) {
	e, err := p.at(id)
	if err != nil {
		return "", err
	}
	if e.Kind != KindUtf8 {
		return "", verrors.Wrapf(verrors.ErrMalformedClass, "constant pool index %d is not Utf8 (kind=%d)", id, e.Kind)
	}
	return e.Utf8, nil
}

// ClassName dereferences a Class entry to its name (a Class entry names
// its Utf8 by index, which this resolves in one call).
func (p *Pool) ClassName(id int) (string, error) {
	e, err := p.at(id)
	if err != nil {
		return "", err
	}
	if e.Kind != KindClass {
		return "", verrors.Wrapf(verrors.ErrMalformedClass, "constant pool index %d is not Class (kind=%d)", id, e.Kind)
	}
	return p.Utf8(e.NameIndex)
}

// Value is a typed literal constant resolved from Integer, Float, Long
// or Double pool entries (used by ldc/ldc_w/ldc2_w).
type Value struct {
	Kind   ConstantKind
	Int    int32
	Float  float32
	Long   int64
	Double float64
}

// ConstValue resolves an Integer/Float/Long/Double entry only. A
// MethodHandle, MethodType, Dynamic or InvokeDynamic entry is an
// unsupported-feature error; any other kind is a fatal malformed-class
// error.
func (p *Pool) ConstValue(id int) (Value, error) {
	e, err := p.at(id)
	if err != nil {
		return Value{}, err
	}
	switch e.Kind {
	case KindInteger:
		return Value{Kind: e.Kind, Int: e.IntValue}, nil
	case KindFloat:
		return Value{Kind: e.Kind, Float: e.FloatValue}, nil
	case KindLong:
		return Value{Kind: e.Kind, Long: e.LongValue}, nil
	case KindDouble:
		return Value{Kind: e.Kind, Double: e.DoubleValue}, nil
	case KindMethodHandle, KindMethodType, KindDynamic, KindInvokeDynamic:
		return Value{}, verrors.Wrapf(verrors.ErrUnsupportedFeature, "constant pool index %d is a %s constant", id, e.Kind)
	default:
		return Value{}, verrors.Wrapf(verrors.ErrMalformedClass, "constant pool index %d is not a value constant (kind=%d)", id, e.Kind)
	}
}

// StringValue resolves a String entry to its referenced Utf8 text.
func (p *Pool) StringValue(id int) (string, error) {
	e, err := p.at(id)
	if err != nil {
		return "", err
	}
	if e.Kind != KindString {
		return "", verrors.Wrapf(verrors.ErrMalformedClass, "constant pool index %d is not String (kind=%d)", id, e.Kind)
	}
	return p.Utf8(e.NameIndex)
}

// NameAndType resolves a NameAndType entry to its (name, descriptor) pair.
func (p *Pool) NameAndType(id int) (name, descriptor string, err error) {
	e, err := p.at(id)
	if err != nil {
		return "", "", err
	}
	if e.Kind != KindNameAndType {
		return "", "", verrors.Wrapf(verrors.ErrMalformedClass, "constant pool index %d is not NameAndType (kind=%d)", id, e.Kind)
	}
	name, err = p.Utf8(e.NameIndex)
	if err != nil {
		return "", "", err
	}
	descriptor, err = p.Utf8(e.DescriptorIndex)
	if err != nil {
		return "", "", err
	}
	return name, descriptor, nil
}

// Ref is a resolved field or method reference: the dereferenced owning
// class name plus its member name and descriptor.
type Ref struct {
	ClassName  string
	Name       string
	Descriptor string
}

// FieldRef resolves a FieldRef entry.
func (p *Pool) FieldRef(id int) (Ref, error) { return p.memberRef(id, KindFieldRef) }

// MethodRef resolves a MethodRef entry.
func (p *Pool) MethodRef(id int) (Ref, error) { return p.memberRef(id, KindMethodRef) }

// InterfaceMethodRef resolves an InterfaceMethodRef entry.
func (p *Pool) InterfaceMethodRef(id int) (Ref, error) {
	return p.memberRef(id, KindInterfaceMethodRef)
}

func (p *Pool) memberRef(id int, want ConstantKind) (Ref, error) {
	e, err := p.at(id)
	if err != nil {
		return Ref{}, err
	}
	if e.Kind != want {
		return Ref{}, verrors.Wrapf(verrors.ErrMalformedClass, "constant pool index %d is not kind %d (got %d)", id, want, e.Kind)
	}
	className, err := p.ClassName(e.ClassIndex)
	if err != nil {
		return Ref{}, err
	}
	name, descriptor, err := p.NameAndType(e.NameAndTypeIndex)
	if err != nil {
		return Ref{}, err
	}
	return Ref{ClassName: className, Name: name, Descriptor: descriptor}, nil
}

// ClassRef resolves a Class entry's referenced name directly, for New /
// CheckCast / InstanceOf / ANewArray / MultiNewArray operands.
func (p *Pool) ClassRef(id int) (string, error) { return p.ClassName(id) }

func (k ConstantKind) String() string {
	names := [...]string{
		"Unusable", "Utf8", "Integer", "Float", "Long", "Double", "Class", "String",
		"FieldRef", "MethodRef", "InterfaceMethodRef", "NameAndType", "MethodHandle",
		"MethodType", "Dynamic", "InvokeDynamic", "Module", "Package",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("ConstantKind(%d)", k)
}
