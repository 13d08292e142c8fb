package ir

import "golang.org/x/exp/slices"

// SymbolicValue names the instruction that produces a value by its
// position within the owning block's instruction list.
type SymbolicValue int32

// SentinelSlot occupies the upper slot of every category-2 value on the
// operand stack and must never be consumed as a real value.
const SentinelSlot SymbolicValue = -1

// BinaryOp enumerates the arithmetic/bitwise operators of BinaryOperation.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpShl
	OpAShr
	OpLShr
	OpAnd
	OpOr
	OpXor
)

// NaNBehavior distinguishes the NaN-biased float/double compare variants
// the lifter must not conflate.
type NaNBehavior uint8

const (
	// NaNNone applies to integer, long and reference compares, where NaN
	// cannot occur.
	NaNNone NaNBehavior = iota
	// NaNLess is fcmpl/dcmpl: a NaN operand makes the comparison produce -1.
	NaNLess
	// NaNGreater is fcmpg/dcmpg: a NaN operand makes the comparison produce 1.
	NaNGreater
)

// CondOp enumerates the comparison used by GotoIf.
type CondOp uint8

const (
	CondEQ CondOp = iota
	CondNE
	CondLT
	CondGE
	CondGT
	CondLE
)

// Op is the tag of a lifted instruction's opcode-level variant.
type Op uint8

const (
	OpIntegerConstant Op = iota
	OpLongConstant
	OpFloatConstant
	OpDoubleConstant
	OpNullConstant
	// OpStringConstant materializes a `String` constant-pool literal
	// resolved by ldc/ldc_w. StringValue carries the literal; distinct
	// from OpNew, which always denotes real object allocation.
	OpStringConstant
	// OpClassConstant materializes a `Class` constant-pool literal
	// resolved by ldc/ldc_w. Field.ClassName carries the referenced
	// class name; distinct from OpNew for the same reason.
	OpClassConstant

	OpArrayLoad
	OpArrayStore

	OpBinaryOperation
	OpNegate
	OpConvert
	OpCompare

	OpNew
	OpGetField
	OpPutField
	OpGetStatic
	OpPutStatic
	OpInvokeVirtual
	OpInvokeSpecial
	OpInvokeStatic
	OpInvokeInterface
	OpCheckCast
	OpInstanceOf
	OpArrayLength
	OpMonitorEnter
	OpMonitorExit
	OpNewArray
	OpNewReferenceArray
	OpMultiNewArray

	OpArgument
	// OpCaughtException seeds an exception-handler block's entry stack
	// with the single Reference value the JVM guarantees is present
	// there.
	OpCaughtException

	OpReturn
	OpReturnVoid
	OpThrow
	OpGoto
	OpGotoIf
)

// FieldRef identifies a resolved field or method reference: the
// dereferenced class name plus name-and-type.
type FieldRef struct {
	ClassName  string
	Name       string
	Descriptor string
}

// Instruction is a single lifted, tagged-variant instruction. Operand
// fields that are "not applicable" to Op are simply left zero, the
// same fixed-width-struct-as-tagged-sum shape a {code, arg} pair
// generalizes into.
type Instruction struct {
	Op Op

	Kind     StackKind // operand kind for typed ops
	FromKind StackKind // Convert: source kind
	ToKind   StackKind // Convert: destination kind

	IntValue    int32
	LongValue   int64
	FloatValue  float32
	DoubleValue float64
	StringValue string // OpStringConstant payload

	BinOp BinaryOp
	NaN   NaNBehavior

	// Operand symbolic values, meaning depends on Op.
	A, B, C, D SymbolicValue
	// Operands beyond the fixed set, e.g. invoke arguments.
	Args []SymbolicValue

	Field FieldRef
	Dims  uint8 // MultiNewArray dimension count

	// ArgumentIndex: for OpArgument, the parameter (0 = receiver for
	// instance methods, then positional parameters in order).
	ArgumentIndex int

	// Terminators.
	Cond         CondOp
	ThenOffset   uint32
	ElseOffset   uint32
	TargetOffset uint32
}

// BasicBlock is a maximal straight-line instruction sequence ending in
// exactly one control-flow transfer.
type BasicBlock struct {
	Start uint32

	// Instructions is the straight-line sequence; the terminator, if
	// present, is logically the last instruction and is NOT duplicated
	// in this slice (its index would be len(Instructions)).
	Instructions []Instruction

	// Terminator is Return/ReturnVoid/Throw/Goto/GotoIf for a sealed
	// block; zero value (Op: 0) with HasTerminator=false otherwise.
	Terminator    Instruction
	HasTerminator bool

	// EntryStack and EntryLocals snapshot the symbolic state at block
	// entry (before any instruction in this block executes).
	EntryStack  []SymbolicValue
	EntryLocals map[int]SymbolicValue

	// EntryStackKinds carries the kind of each EntryStack slot, parallel
	// to EntryStack, for width/category bookkeeping and for stack-map
	// cross-checks. The kinds of EntryLocals are not recorded on the block.
	EntryStackKinds []StackKind

	predecessors []uint32
}

// Predecessors returns the start offsets of every block whose terminator
// can transfer control to this block. Populated by a second pass once
// the whole block map is sealed; never mutates instructions or
// terminators.
func (b *BasicBlock) Predecessors() []uint32 {
	return b.predecessors
}

// SetPredecessors is used by the lifter's post-pass to attach computed
// predecessor lists.
func (b *BasicBlock) SetPredecessors(preds []uint32) {
	b.predecessors = preds
}

// BlockMap is the lifter's output: an ordered mapping from start-offset
// to basic block, plus the entry offset (always 0).
type BlockMap struct {
	Blocks map[uint32]*BasicBlock
	Entry  uint32
}

// Offsets returns the block-start offsets in strictly increasing order.
func (m *BlockMap) Offsets() []uint32 {
	out := make([]uint32, 0, len(m.Blocks))
	for off := range m.Blocks {
		out = append(out, off)
	}
	slices.Sort(out)
	return out
}
