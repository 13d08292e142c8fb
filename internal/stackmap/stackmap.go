// Package stackmap decodes the compressed stack-map-frame-delta stream
// into an ordered list of absolute-offset frames.
package stackmap

import (
	"golang.org/x/exp/slices"

	"classlift/internal/bytereader"
	"classlift/internal/descriptor"
	"classlift/internal/ir"
	"classlift/internal/verrors"
)

// Frame is a stack-map frame: an absolute bytecode offset, ordered
// locals, ordered operand stack.
type Frame struct {
	Offset uint32
	Locals []ir.VerificationType
	Stack  []ir.VerificationType
}

// Decode reads frameCount compressed frames from r, maintaining the
// rolling offset/locals/stack per the compressed frame encoding. The
// resolveClass callback dereferences a constant-pool Class index to a
// name for VTObject entries; it is supplied by the class-file parser
// since stackmap has no constant-pool dependency of its own.
func Decode(r *bytereader.Reader, frameCount int, resolveClass func(id int) (string, error)) ([]Frame, error) {
	frames := make([]Frame, 0, frameCount)

	var offset int64 = -1 // not used by the first frame: advance takes its delta as the absolute offset
	var locals []ir.VerificationType
	var stack []ir.VerificationType

	for i := 0; i < frameCount; i++ {
		tag := r.U1()
		first := i == 0

		switch {
		case tag <= 63: // same_frame
			offset = advance(offset, int64(tag), first)
			stack = nil

		case tag <= 127: // same_locals_1_stack_item
			offset = advance(offset, int64(tag)-64, first)
			item, err := readVerificationType(r, resolveClass)
			if err != nil {
				return nil, err
			}
			stack = []ir.VerificationType{item}

		case tag == 247: // same_locals_1_stack_item_extended
			delta := r.U2()
			offset = advance(offset, int64(delta), first)
			item, err := readVerificationType(r, resolveClass)
			if err != nil {
				return nil, err
			}
			stack = []ir.VerificationType{item}

		case tag >= 248 && tag <= 250: // chop
			delta := r.U2()
			offset = advance(offset, int64(delta), first)
			drop := int(251 - tag)
			if drop > len(locals) {
				return nil, verrors.Wrapf(verrors.ErrMalformedClass, "chop frame drops %d locals but only %d present", drop, len(locals))
			}
			locals = locals[:len(locals)-drop]
			stack = nil

		case tag == 251: // same_frame_extended
			delta := r.U2()
			offset = advance(offset, int64(delta), first)
			stack = nil

		case tag >= 252 && tag <= 254: // append
			delta := r.U2()
			offset = advance(offset, int64(delta), first)
			add := int(tag - 251)
			appended := make([]ir.VerificationType, 0, add)
			for j := 0; j < add; j++ {
				v, err := readVerificationType(r, resolveClass)
				if err != nil {
					return nil, err
				}
				appended = append(appended, v)
			}
			locals = append(append([]ir.VerificationType{}, locals...), appended...)
			stack = nil

		case tag == 255: // full_frame
			delta := r.U2()
			offset = advance(offset, int64(delta), first)
			numLocals := r.U2()
			newLocals := make([]ir.VerificationType, 0, numLocals)
			for j := 0; j < int(numLocals); j++ {
				v, err := readVerificationType(r, resolveClass)
				if err != nil {
					return nil, err
				}
				newLocals = append(newLocals, v)
			}
			numStack := r.U2()
			newStack := make([]ir.VerificationType, 0, numStack)
			for j := 0; j < int(numStack); j++ {
				v, err := readVerificationType(r, resolveClass)
				if err != nil {
					return nil, err
				}
				newStack = append(newStack, v)
			}
			locals = newLocals
			stack = newStack

		default:
			return nil, verrors.Wrapf(verrors.ErrMalformedClass, "unknown stack-map frame tag %d", tag)
		}

		frames = append(frames, Frame{
			Offset: uint32(offset),
			Locals: append([]ir.VerificationType{}, locals...),
			Stack:  append([]ir.VerificationType{}, stack...),
		})

		// "next instruction is at offset+1" rule, applied only between
		// frames: each later frame's delta is added on top of the previous
		// frame's offset plus one, while advance treats the first frame's
		// delta as absolute.
		offset++
	}

	if !slices.IsSortedFunc(frames, func(a, b Frame) int {
		if a.Offset < b.Offset {
			return -1
		}
		if a.Offset > b.Offset {
			return 1
		}
		return 0
	}) {
		return nil, verrors.Wrap(verrors.ErrMalformedClass, "stack-map frames are not strictly increasing by offset")
	}

	return frames, nil
}

// advance applies the rolling-offset rule: for the first frame, offset
// IS delta (no prior +1 has been applied); for later frames, offset +=
// delta on top of the running total (which already had +1 applied after
// the previous frame was stored).
func advance(offset int64, delta int64, first bool) int64 {
	if first {
		return delta
	}
	return offset + delta
}

func readVerificationType(r *bytereader.Reader, resolveClass func(id int) (string, error)) (ir.VerificationType, error) {
	tag := r.U1()
	switch tag {
	case 0:
		return ir.VerificationType{Tag: ir.VTTop}, nil
	case 1:
		return ir.VerificationType{Tag: ir.VTInteger}, nil
	case 2:
		return ir.VerificationType{Tag: ir.VTFloat}, nil
	case 3:
		return ir.VerificationType{Tag: ir.VTDouble}, nil
	case 4:
		return ir.VerificationType{Tag: ir.VTLong}, nil
	case 5:
		return ir.VerificationType{Tag: ir.VTNull}, nil
	case 6:
		return ir.VerificationType{Tag: ir.VTUninitializedThis}, nil
	case 7:
		classIndex := r.U2()
		name, err := resolveClass(int(classIndex))
		if err != nil {
			return ir.VerificationType{}, err
		}
		return ir.VerificationType{Tag: ir.VTObject, ClassName: name}, nil
	case 8:
		newOffset := r.U2()
		return ir.VerificationType{Tag: ir.VTUninitialized, NewOffset: uint32(newOffset)}, nil
	default:
		return ir.VerificationType{}, verrors.Wrapf(verrors.ErrMalformedClass, "unknown verification type tag %d", tag)
	}
}

// SynthesizeEntryFrame builds the frame-zero the lifter's caller
// prepends so that index 0 of the frame list always corresponds to the
// method entry: locals = receiver (if non-static) followed by parameter
// verification types; stack = empty.
func SynthesizeEntryFrame(mt descriptor.MethodType, isStatic bool, declaringClass string) Frame {
	var locals []ir.VerificationType
	if !isStatic {
		locals = append(locals, ir.VerificationType{Tag: ir.VTObject, ClassName: declaringClass})
	}
	for _, p := range mt.Params {
		locals = append(locals, fieldTypeToVerification(p))
		if p.Width() == 2 {
			// Category-2 parameters occupy two local slots; the second
			// is a padding Top entry so local indices line up with the
			// class format's slot numbering.
			locals = append(locals, ir.VerificationType{Tag: ir.VTTop})
		}
	}
	return Frame{Offset: 0, Locals: locals, Stack: nil}
}

func fieldTypeToVerification(f descriptor.FieldType) ir.VerificationType {
	if f.IsRef {
		return ir.VerificationType{Tag: ir.VTObject, ClassName: f.ClassName}
	}
	if f.IsArray {
		return ir.VerificationType{Tag: ir.VTObject, ClassName: arrayDescriptorName(f)}
	}
	switch f.Primitive {
	case ir.KindFloat:
		return ir.VerificationType{Tag: ir.VTFloat}
	case ir.KindLong:
		return ir.VerificationType{Tag: ir.VTLong}
	case ir.KindDouble:
		return ir.VerificationType{Tag: ir.VTDouble}
	default:
		return ir.VerificationType{Tag: ir.VTInteger}
	}
}

func arrayDescriptorName(f descriptor.FieldType) string {
	depth := 0
	elem := f
	for elem.IsArray {
		depth++
		elem = *elem.Elem
	}
	name := "[]"
	for i := 1; i < depth; i++ {
		name = "[]" + name
	}
	if elem.IsRef {
		return elem.ClassName + name
	}
	return elem.Primitive.String() + name
}
