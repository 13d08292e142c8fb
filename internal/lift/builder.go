package lift

import (
	"classlift/internal/ir"
	"classlift/internal/verrors"
)

// builder is the block-builder: a growing list of straight-line
// instructions plus a symbolic operand stack and local map. It is
// sealed into an *ir.BasicBlock the moment a terminator is set.
type builder struct {
	start  uint32
	instrs []ir.Instruction

	stack      []ir.SymbolicValue
	stackKinds []ir.StackKind // parallel to stack; a category-2 value's sentinel slot carries the same kind as its payload slot

	locals     map[int]ir.SymbolicValue
	localKinds map[int]ir.StackKind

	terminator    ir.Instruction
	hasTerminator bool
}

func newBuilder(start uint32) *builder {
	return &builder{
		start:      start,
		locals:     map[int]ir.SymbolicValue{},
		localKinds: map[int]ir.StackKind{},
	}
}

// emit appends instr to the straight-line sequence and returns its
// symbolic value (its own position in the instruction list), without
// touching the operand stack. Used for side-effecting instructions
// (PutField, ArrayStore, MonitorEnter, ...).
func (b *builder) emit(instr ir.Instruction) ir.SymbolicValue {
	b.instrs = append(b.instrs, instr)
	return ir.SymbolicValue(len(b.instrs) - 1)
}

// push emits instr and places its resulting value on the operand stack,
// honoring category-2 width: a category-2 push appends the payload
// followed by the reserved sentinel.
func (b *builder) push(kind ir.StackKind, instr ir.Instruction) ir.SymbolicValue {
	v := b.emit(instr)
	b.stack = append(b.stack, v)
	b.stackKinds = append(b.stackKinds, kind)
	if kind.Category2() {
		b.stack = append(b.stack, ir.SentinelSlot)
		b.stackKinds = append(b.stackKinds, kind)
	}
	return v
}

// pushValue places an already-produced symbolic value directly on the
// stack (used by dup/swap-family instructions which rearrange existing
// values rather than producing new ones).
func (b *builder) pushValue(kind ir.StackKind, v ir.SymbolicValue) {
	b.stack = append(b.stack, v)
	b.stackKinds = append(b.stackKinds, kind)
	if kind.Category2() {
		b.stack = append(b.stack, ir.SentinelSlot)
		b.stackKinds = append(b.stackKinds, kind)
	}
}

// pop removes one (category-1) or two (category-2) slots from the top of
// the stack and returns the payload value and its kind. A narrow pop
// whose top slot is a category-2 sentinel, or vice versa, is a fatal
// width error.
func (b *builder) pop(wantCategory2 bool) (ir.SymbolicValue, ir.StackKind, error) {
	if len(b.stack) == 0 {
		return 0, 0, verrors.Wrap(verrors.ErrWidth, "pop from empty operand stack")
	}
	top := b.stack[len(b.stack)-1]
	isSentinel := top == ir.SentinelSlot
	if isSentinel != wantCategory2 {
		return 0, 0, verrors.Wrapf(verrors.ErrWidth, "operand width mismatch: wanted category-2=%v, stack top sentinel=%v", wantCategory2, isSentinel)
	}
	if wantCategory2 {
		if len(b.stack) < 2 {
			return 0, 0, verrors.Wrap(verrors.ErrWidth, "category-2 pop needs two slots")
		}
		v := b.stack[len(b.stack)-2]
		k := b.stackKinds[len(b.stackKinds)-2]
		b.stack = b.stack[:len(b.stack)-2]
		b.stackKinds = b.stackKinds[:len(b.stackKinds)-2]
		return v, k, nil
	}
	v := b.stack[len(b.stack)-1]
	k := b.stackKinds[len(b.stackKinds)-1]
	b.stack = b.stack[:len(b.stack)-1]
	b.stackKinds = b.stackKinds[:len(b.stackKinds)-1]
	return v, k, nil
}

// popKind pops a value of a known kind, dispatching to the correct
// width automatically.
func (b *builder) popKind(kind ir.StackKind) (ir.SymbolicValue, error) {
	v, _, err := b.pop(kind.Category2())
	return v, err
}

// peekTop returns the top payload value without popping, used by dup-family
// instructions.
func (b *builder) peekTop() (ir.SymbolicValue, ir.StackKind, bool) {
	if len(b.stack) == 0 {
		return 0, 0, false
	}
	idx := len(b.stack) - 1
	if b.stack[idx] == ir.SentinelSlot {
		idx--
	}
	if idx < 0 {
		return 0, 0, false
	}
	return b.stack[idx], b.stackKinds[idx], true
}

// depth returns the current raw slot count of the stack (sentinels
// counted), used by dup_x1/x2 family slot arithmetic.
func (b *builder) depth() int { return len(b.stack) }

// store writes value into local slot. A category-2 store binds the
// value to the lower slot only; consumers (load) read only the lower
// slot.
func (b *builder) store(kind ir.StackKind, slot int, v ir.SymbolicValue) {
	b.locals[slot] = v
	b.localKinds[slot] = kind
}

// load reads the value bound to a local slot.
func (b *builder) load(slot int) (ir.SymbolicValue, ir.StackKind, error) {
	v, ok := b.locals[slot]
	if !ok {
		return 0, 0, verrors.Wrapf(verrors.ErrMalformedClass, "read of uninitialized local slot %d", slot)
	}
	return v, b.localKinds[slot], nil
}

// seal marks instr as this block's terminator. Exactly one terminator
// is allowed and it must be the logical last instruction.
func (b *builder) seal(instr ir.Instruction) {
	b.terminator = instr
	b.hasTerminator = true
}

// toBlock converts the builder into a sealed *ir.BasicBlock snapshot.
func (b *builder) toBlock() *ir.BasicBlock {
	entryStack := append([]ir.SymbolicValue{}, b.stack...)
	entryKinds := append([]ir.StackKind{}, b.stackKinds...)
	entryLocals := make(map[int]ir.SymbolicValue, len(b.locals))
	for k, v := range b.locals {
		entryLocals[k] = v
	}
	return &ir.BasicBlock{
		Start:           b.start,
		Instructions:    b.instrs,
		Terminator:      b.terminator,
		HasTerminator:   b.hasTerminator,
		EntryStack:      entryStack,
		EntryLocals:     entryLocals,
		EntryStackKinds: entryKinds,
	}
}

// forkFrom creates a new builder for a successor block whose entry state
// is a copy of this (just-sealed) block's outgoing stack and locals.
func (b *builder) forkFrom(start uint32) *builder {
	nb := newBuilder(start)
	nb.stack = append([]ir.SymbolicValue{}, b.stack...)
	nb.stackKinds = append([]ir.StackKind{}, b.stackKinds...)
	for k, v := range b.locals {
		nb.locals[k] = v
	}
	for k, v := range b.localKinds {
		nb.localKinds[k] = v
	}
	return nb
}

// forkFromException creates a new builder for an exception-handler
// block: locals survive (the JVM never clears local variables across an
// exceptional edge), but the operand stack is reset to hold exactly the
// caught exception reference, discarding whatever the try-block left on
// the stack.
func (b *builder) forkFromException(start uint32) *builder {
	nb := newBuilder(start)
	for k, v := range b.locals {
		nb.locals[k] = v
	}
	for k, v := range b.localKinds {
		nb.localKinds[k] = v
	}
	nb.push(ir.KindReference, ir.Instruction{Op: ir.OpCaughtException, Kind: ir.KindReference})
	return nb
}

// stackShapeLength returns the declared stack length (category-1 count +
// 2x category-2 count) of the entry operand stack, for the §8 property
// "Sum of category-1 slot counts + 2x category-2 slot counts on the
// entry stack of each block equals the declared stack length at the
// corresponding stack-map frame."
//
// kinds is parallel to the raw stack, so a category-2 value appears twice
// (payload and sentinel); the walk steps over both and counts it once.
func stackShapeLength(kinds []ir.StackKind) int {
	n := 0
	for i := 0; i < len(kinds); i += kinds[i].Slots() {
		n += kinds[i].Slots()
	}
	return n
}
