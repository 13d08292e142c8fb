// Package descriptor parses field and method type descriptors into
// structured type trees.
package descriptor

import (
	"strings"

	"classlift/internal/ir"
	"classlift/internal/verrors"
)

// FieldType is the recursive field-descriptor type tree: primitive
// leaves, Reference(class-name), or Array(element).
type FieldType struct {
	Primitive ir.StackKind // valid when !IsRef && !IsArray
	IsRef     bool
	ClassName string // valid when IsRef
	IsArray   bool
	Elem      *FieldType // valid when IsArray
}

// Width reports the operand-stack slot count of this type: 2 for long
// and double, 1 for everything else (arrays and references are
// reference-category, i.e. width 1).
func (f FieldType) Width() int {
	if f.IsRef || f.IsArray {
		return 1
	}
	return f.Primitive.Slots()
}

// StackKind returns the StackKind a value of this type occupies on the
// operand stack (arrays and references both map to KindReference).
func (f FieldType) StackKind() ir.StackKind {
	if f.IsRef || f.IsArray {
		return ir.KindReference
	}
	return f.Primitive
}

// MethodType is an ordered list of parameter field types plus an
// optional return type (absent = void).
type MethodType struct {
	Params     []FieldType
	ReturnType *FieldType // nil means void
}

// ParseField parses a single field descriptor, e.g. "[Ljava/lang/String;".
func ParseField(s string) (FieldType, error) {
	p := &parser{s: s}
	ft, err := p.parseOne()
	if err != nil {
		return FieldType{}, err
	}
	if p.pos != len(p.s) {
		return FieldType{}, verrors.Wrapf(verrors.ErrMalformedDescriptor, "trailing data after field descriptor %q", s)
	}
	return ft, nil
}

// ParseMethod parses a method descriptor, e.g. "(II)I" or "()V".
func ParseMethod(s string) (MethodType, error) {
	p := &parser{s: s}
	if p.pos >= len(p.s) || p.s[p.pos] != '(' {
		return MethodType{}, verrors.Wrapf(verrors.ErrMalformedDescriptor, "method descriptor %q must start with '('", s)
	}
	p.pos++

	var mt MethodType
	for {
		if p.pos >= len(p.s) {
			return MethodType{}, verrors.Wrapf(verrors.ErrMalformedDescriptor, "unterminated parameter list in %q", s)
		}
		if p.s[p.pos] == ')' {
			p.pos++
			break
		}
		ft, err := p.parseOne()
		if err != nil {
			return MethodType{}, err
		}
		mt.Params = append(mt.Params, ft)
	}

	if p.pos >= len(p.s) {
		return MethodType{}, verrors.Wrapf(verrors.ErrMalformedDescriptor, "missing return type in %q", s)
	}
	if p.s[p.pos] == 'V' {
		p.pos++
	} else {
		ft, err := p.parseOne()
		if err != nil {
			return MethodType{}, err
		}
		mt.ReturnType = &ft
	}

	if p.pos != len(p.s) {
		return MethodType{}, verrors.Wrapf(verrors.ErrMalformedDescriptor, "trailing data after method descriptor %q", s)
	}
	return mt, nil
}

type parser struct {
	s   string
	pos int
}

// parseOne parses a single field-type element (no trailing-data check;
// callers check that at the top level). Total and restartable: every
// return path either advances pos past what it consumed or returns an
// error, never leaving pos ambiguous.
func (p *parser) parseOne() (FieldType, error) {
	if p.pos >= len(p.s) {
		return FieldType{}, verrors.Wrapf(verrors.ErrMalformedDescriptor, "premature end of descriptor %q", p.s)
	}
	c := p.s[p.pos]
	switch c {
	case 'B':
		p.pos++
		return FieldType{Primitive: ir.KindByte}, nil
	case 'C':
		p.pos++
		return FieldType{Primitive: ir.KindChar}, nil
	case 'D':
		p.pos++
		return FieldType{Primitive: ir.KindDouble}, nil
	case 'F':
		p.pos++
		return FieldType{Primitive: ir.KindFloat}, nil
	case 'I':
		p.pos++
		return FieldType{Primitive: ir.KindInt}, nil
	case 'J':
		p.pos++
		return FieldType{Primitive: ir.KindLong}, nil
	case 'S':
		p.pos++
		return FieldType{Primitive: ir.KindShort}, nil
	case 'Z':
		p.pos++
		return FieldType{Primitive: ir.KindBoolean}, nil
	case 'L':
		p.pos++
		start := p.pos
		for p.pos < len(p.s) && p.s[p.pos] != ';' {
			p.pos++
		}
		if p.pos >= len(p.s) {
			return FieldType{}, verrors.Wrapf(verrors.ErrMalformedDescriptor, "unterminated class name in %q", p.s)
		}
		name := p.s[start:p.pos]
		p.pos++ // consume ';'
		return FieldType{IsRef: true, ClassName: strings.ReplaceAll(name, "/", ".")}, nil
	case '[':
		p.pos++
		elem, err := p.parseOne()
		if err != nil {
			return FieldType{}, err
		}
		return FieldType{IsArray: true, Elem: &elem}, nil
	default:
		return FieldType{}, verrors.Wrapf(verrors.ErrMalformedDescriptor, "unexpected character %q at offset %d in descriptor %q", c, p.pos, p.s)
	}
}
