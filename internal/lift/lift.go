// Package lift implements the bytecode lifter, the core of this module:
// symbolic stack execution, basic-block formation, and SSA-style
// instruction emission driven by a method's stack-map frames.
//
// Structured the way a bytecode interpreter's dispatch loop is
// structured (a switch over opcode mutating machine state) plus a
// two-pass label/offset resolution pass, generalized from "execute" to
// "lift": each opcode still drives a single switch, but produces typed
// instructions referencing earlier instructions by symbolic index
// instead of mutating a real stack.
package lift

import (
	"golang.org/x/exp/slices"

	"classlift/internal/constpool"
	"classlift/internal/descriptor"
	"classlift/internal/ir"
	"classlift/internal/stackmap"
	"classlift/internal/verrors"
)

// Input bundles the lifter's inputs: the method's raw code bytes, the
// constant pool of the enclosing class, and the ordered stack-map frame
// list (frame 0 is the synthesized method-entry frame).
type Input struct {
	Code           []byte
	Pool           *constpool.Pool
	Frames         []stackmap.Frame
	Signature      descriptor.MethodType
	IsStatic       bool
	DeclaringClass string
	// Exceptions carries the Code attribute's exception table: every
	// covered range registers its handler PC as a block start with a
	// synthesized single-Reference entry stack.
	Exceptions []ExceptionHandler
}

// ExceptionHandler mirrors classfile.ExceptionHandler field for field, so
// the lifter does not import the class-file parser; internal/program
// converts one to the other.
type ExceptionHandler struct {
	StartPC   uint32
	EndPC     uint32
	HandlerPC uint32
	CatchType string
}

// Lift performs the symbolic execution pass and returns the ordered
// block map.
func Lift(in Input) (*ir.BlockMap, error) {
	if len(in.Code) == 0 {
		return nil, verrors.Wrap(verrors.ErrMalformedClass, "lift called with empty code (native/abstract methods carry no Code attribute and should never reach the lifter)")
	}

	frameByOffset := make(map[uint32]stackmap.Frame, len(in.Frames))
	for _, f := range in.Frames {
		frameByOffset[f.Offset] = f
	}

	handlerStarts := map[uint32]bool{}
	for _, eh := range in.Exceptions {
		handlerStarts[eh.HandlerPC] = true
	}

	l := &lifter{
		code:          in.Code,
		pool:          in.Pool,
		frameByOffset: frameByOffset,
		blocks:        map[uint32]*ir.BasicBlock{},
		handlerStarts: handlerStarts,
	}

	cur := newBuilder(0)
	seedEntryArguments(cur, in.Signature, in.IsStatic)

	if err := l.checkEntryShape(cur, 0); err != nil {
		return nil, err
	}

	for l.pos < len(l.code) {
		offset := uint32(l.pos)

		if offset != cur.start {
			// A new block boundary was reached without an explicit seal
			// (only possible if the previous opcode was not a
			// terminator but the byte offset coincides with a declared
			// frame or exception handler start that isn't a fallthrough
			// target we created). In a well-formed method this cannot
			// happen: fall-through discovery guarantees block starts are
			// exactly {0} ∪ frame offsets ∪ terminator
			// targets, and every non-terminator opcode keeps `cur`
			// current. Treat a mismatch as malformed.
			if handlerStarts[offset] || frameByOffsetHas(frameByOffset, offset) {
				return nil, verrors.Wrapf(verrors.ErrMalformedClass, "block boundary at offset %d reached without a preceding terminator", offset)
			}
		}

		if err := l.step(cur); err != nil {
			return nil, err
		}

		if cur.hasTerminator {
			l.blocks[cur.start] = cur.toBlock()
			if l.pos >= len(l.code) {
				break
			}
			nextOffset := uint32(l.pos)
			var next *builder
			if l.handlerStarts[nextOffset] {
				next = cur.forkFromException(nextOffset)
			} else {
				next = cur.forkFrom(nextOffset)
			}
			if err := l.checkEntryShape(next, next.start); err != nil {
				return nil, err
			}
			cur = next
		}
	}

	if cur != nil && !cur.hasTerminator {
		return nil, verrors.Wrapf(verrors.ErrMalformedClass, "method falls off the end of its code without a terminator (block at offset %d)", cur.start)
	}

	if err := validateTerminatorTargets(l.blocks); err != nil {
		return nil, err
	}
	attachPredecessors(l.blocks)

	return &ir.BlockMap{Blocks: l.blocks, Entry: 0}, nil
}

func frameByOffsetHas(m map[uint32]stackmap.Frame, off uint32) bool {
	_, ok := m[off]
	return ok
}

type lifter struct {
	code []byte
	pos  int

	pool *constpool.Pool

	frameByOffset map[uint32]stackmap.Frame
	handlerStarts map[uint32]bool

	blocks map[uint32]*ir.BasicBlock
}

// checkEntryShape cross-checks a newly opened block's entry operand
// stack against the declared stack-map frame at that offset; a mismatch
// is a fatal stack-map disagreement.
func (l *lifter) checkEntryShape(b *builder, offset uint32) error {
	frame, ok := l.frameByOffset[offset]
	if !ok {
		return nil
	}
	declared := 0
	for _, vt := range frame.Stack {
		declared += vt.StackKind().Slots()
	}
	got := stackShapeLength(b.stackKinds)
	if declared != got {
		return verrors.Wrapf(verrors.ErrStackMapDisagreement, "offset %d: declared stack length %d, lifted entry stack length %d", offset, declared, got)
	}
	return nil
}

func (l *lifter) u1() uint8  { v := l.code[l.pos]; l.pos++; return v }
func (l *lifter) u2() uint16 {
	v := uint16(l.code[l.pos])<<8 | uint16(l.code[l.pos+1])
	l.pos += 2
	return v
}
func (l *lifter) i2() int16 { return int16(l.u2()) }
func (l *lifter) i4() int32 {
	v := int32(l.code[l.pos])<<24 | int32(l.code[l.pos+1])<<16 | int32(l.code[l.pos+2])<<8 | int32(l.code[l.pos+3])
	l.pos += 4
	return v
}

func seedEntryArguments(b *builder, sig descriptor.MethodType, isStatic bool) {
	argIdx := 0
	slot := 0
	if !isStatic {
		v := b.emit(ir.Instruction{Op: ir.OpArgument, ArgumentIndex: argIdx, Kind: ir.KindReference})
		b.store(ir.KindReference, slot, v)
		argIdx++
		slot++
	}
	for _, p := range sig.Params {
		kind := p.StackKind()
		v := b.emit(ir.Instruction{Op: ir.OpArgument, ArgumentIndex: argIdx, Kind: kind})
		b.store(kind, slot, v)
		argIdx++
		slot += p.Width()
	}
}

func validateTerminatorTargets(blocks map[uint32]*ir.BasicBlock) error {
	for _, b := range blocks {
		if !b.HasTerminator {
			continue
		}
		t := b.Terminator
		check := func(off uint32) error {
			if _, ok := blocks[off]; ok {
				return nil
			}
			return verrors.Wrapf(verrors.ErrMalformedClass, "terminator at block %d targets offset %d, which is not a block start", b.Start, off)
		}
		switch t.Op {
		case ir.OpGoto:
			if err := check(t.TargetOffset); err != nil {
				return err
			}
		case ir.OpGotoIf:
			if err := check(t.ThenOffset); err != nil {
				return err
			}
			if err := check(t.ElseOffset); err != nil {
				return err
			}
		}
	}
	return nil
}

// attachPredecessors computes, for every block, the set of block starts
// whose terminator can transfer control to it; additive, never changes
// instructions or terminators.
func attachPredecessors(blocks map[uint32]*ir.BasicBlock) {
	preds := map[uint32][]uint32{}
	starts := make([]uint32, 0, len(blocks))
	for off := range blocks {
		starts = append(starts, off)
	}
	slices.Sort(starts)

	for _, off := range starts {
		b := blocks[off]
		if !b.HasTerminator {
			continue
		}
		switch b.Terminator.Op {
		case ir.OpGoto:
			preds[b.Terminator.TargetOffset] = append(preds[b.Terminator.TargetOffset], off)
		case ir.OpGotoIf:
			preds[b.Terminator.ThenOffset] = append(preds[b.Terminator.ThenOffset], off)
			preds[b.Terminator.ElseOffset] = append(preds[b.Terminator.ElseOffset], off)
		}
	}
	for _, off := range starts {
		if p := preds[off]; p != nil {
			slices.Sort(p)
			blocks[off].SetPredecessors(p)
		}
	}
}
