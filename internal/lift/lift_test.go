package lift

import (
	"testing"

	"github.com/stretchr/testify/require"

	"classlift/internal/constpool"
	"classlift/internal/descriptor"
	"classlift/internal/ir"
)

func mustSig(t *testing.T, s string) descriptor.MethodType {
	sig, err := descriptor.ParseMethod(s)
	require.NoError(t, err)
	return sig
}

// assert is a lightweight fail-with-message helper for table-style checks.
func assert(t *testing.T, cond bool, format string, args ...any) {
	if !cond {
		t.Fatalf(format, args...)
	}
}

// TestLiftReturnsVoidMethod covers the simplest possible method body:
// a single `return` produces one block with no instructions and a
// ReturnVoid terminator.
func TestLiftReturnsVoidMethod(t *testing.T) {
	code := []byte{byte(opReturn)}

	blocks, err := Lift(Input{
		Code:      code,
		Signature: mustSig(t, "()V"),
		IsStatic:  true,
	})
	require.NoError(t, err)
	require.Len(t, blocks.Blocks, 1)

	b := blocks.Blocks[0]
	require.True(t, b.HasTerminator)
	require.Equal(t, ir.OpReturnVoid, b.Terminator.Op)
	require.Empty(t, b.Instructions)
}

// TestLiftBinaryOperationFromLocals exercises a binary-op-from-locals
// body: iload_0, iload_1, iadd, ireturn must emit exactly one instruction
// (the add) plus the entry Argument prelude; the two loads are pure
// bookkeeping and never appear in Instructions.
func TestLiftBinaryOperationFromLocals(t *testing.T) {
	code := []byte{
		byte(opIload0),
		byte(opIload1),
		byte(opIadd),
		byte(opIreturn),
	}

	blocks, err := Lift(Input{
		Code:      code,
		Signature: mustSig(t, "(II)I"),
		IsStatic:  true,
	})
	require.NoError(t, err)
	require.Len(t, blocks.Blocks, 1)

	b := blocks.Blocks[0]
	// Two Argument preludes (slot 0, slot 1) plus one BinaryOperation.
	require.Len(t, b.Instructions, 3)
	assert(t, b.Instructions[0].Op == ir.OpArgument, "expected first instruction to be an Argument, got %v", b.Instructions[0].Op)
	assert(t, b.Instructions[1].Op == ir.OpArgument, "expected second instruction to be an Argument, got %v", b.Instructions[1].Op)
	assert(t, b.Instructions[2].Op == ir.OpBinaryOperation, "expected third instruction to be a BinaryOperation, got %v", b.Instructions[2].Op)
	require.Equal(t, ir.OpAdd, b.Instructions[2].BinOp)

	require.True(t, b.HasTerminator)
	require.Equal(t, ir.OpReturn, b.Terminator.Op)
}

// TestLiftConditionalBranchFormsThreeBlocks covers an ifeq diamond: entry block ends in GotoIf, and both branch targets must be
// registered block starts reachable via Predecessors().
func TestLiftConditionalBranchFormsThreeBlocks(t *testing.T) {
	// 0: iload_0
	// 1,2,3: ifeq -> 6   (opcode(1) + branch(2); target = 1+5 = 6)
	// 4: iconst_1
	// 5: ireturn           (block starting at 4 ends here, next block starts at 6)
	// 6: iconst_0
	// 7: ireturn
	code := []byte{
		byte(opIload0),           // 0
		byte(opIfeq), 0x00, 0x05, // 1,2,3 -> branch target = 1+5 = 6
		byte(opIconst1), // 4
		byte(opIreturn), // 5
		byte(opIconst0), // 6
		byte(opIreturn), // 7
	}

	blocks, err := Lift(Input{
		Code:      code,
		Signature: mustSig(t, "(I)I"),
		IsStatic:  true,
	})
	require.NoError(t, err)
	require.Len(t, blocks.Blocks, 3)

	entry := blocks.Blocks[0]
	require.True(t, entry.HasTerminator)
	require.Equal(t, ir.OpGotoIf, entry.Terminator.Op)
	require.Equal(t, uint32(6), entry.Terminator.ThenOffset)
	require.Equal(t, uint32(4), entry.Terminator.ElseOffset)

	thenBlock, ok := blocks.Blocks[6]
	require.True(t, ok)
	require.Contains(t, thenBlock.Predecessors(), uint32(0))

	elseBlock, ok := blocks.Blocks[4]
	require.True(t, ok)
	require.Contains(t, elseBlock.Predecessors(), uint32(0))
}

// TestLiftUnconditionalGotoBackEdge covers a tight loop: a goto back to
// its own block's start offset must still resolve to a valid block start
// and register as a predecessor once the whole map is sealed.
func TestLiftUnconditionalGotoBackEdge(t *testing.T) {
	// An infinite loop body that never returns (a single self-looping
	// goto); the lifter should still successfully lift the blocks even though
	// no terminator ever reaches a return (the method itself just never
	// falls off the end, which is all Lift checks for).
	code := []byte{
		byte(opGoto), 0x00, 0x00, // 0,1,2: goto 0 (self loop)
	}

	blocks, err := Lift(Input{
		Code:      code,
		Signature: mustSig(t, "()V"),
		IsStatic:  true,
	})
	require.NoError(t, err)
	require.Len(t, blocks.Blocks, 1)

	b := blocks.Blocks[0]
	require.Equal(t, ir.OpGoto, b.Terminator.Op)
	require.Equal(t, uint32(0), b.Terminator.TargetOffset)
	require.Contains(t, b.Predecessors(), uint32(0))
}

// TestLiftRejectsCodeFallingOffTheEnd covers the fall-off-the-end case:
// a method body with no terminator at all is malformed, not silently
// truncated.
func TestLiftRejectsCodeFallingOffTheEnd(t *testing.T) {
	code := []byte{byte(opNop)}

	_, err := Lift(Input{
		Code:      code,
		Signature: mustSig(t, "()V"),
		IsStatic:  true,
	})
	require.Error(t, err)
}

// TestLiftRejectsEmptyCode covers the native/abstract-method guard: Lift
// must never be called with an empty Code attribute.
func TestLiftRejectsEmptyCode(t *testing.T) {
	_, err := Lift(Input{
		Code:      nil,
		Signature: mustSig(t, "()V"),
		IsStatic:  true,
	})
	require.Error(t, err)
}

// TestLiftIsDeterministic exercises the §8 determinism property: two
// lifts of the same input produce blocks with identical shapes.
func TestLiftIsDeterministic(t *testing.T) {
	code := []byte{
		byte(opIload0),
		byte(opIload1),
		byte(opIadd),
		byte(opIreturn),
	}
	in := Input{Code: code, Signature: mustSig(t, "(II)I"), IsStatic: true}

	a, err := Lift(in)
	require.NoError(t, err)
	b, err := Lift(in)
	require.NoError(t, err)

	require.Equal(t, len(a.Blocks), len(b.Blocks))
	for off, ba := range a.Blocks {
		bb, ok := b.Blocks[off]
		require.True(t, ok)
		require.Equal(t, len(ba.Instructions), len(bb.Instructions))
		require.Equal(t, ba.Terminator.Op, bb.Terminator.Op)
	}
}

// TestLiftExceptionHandlerSeedsSingleReferenceStack covers the
// exception-table lowering supplement: a handler block's entry stack is
// reset to one synthesized Reference value, not a copy of the try
// block's outgoing stack.
func TestLiftExceptionHandlerSeedsSingleReferenceStack(t *testing.T) {
	// 0: iconst_0        (try block pushes a value, never used directly)
	// 1: pop
	// 2: return           (end of try range)
	// 3: return           (handler: discards the caught exception, never
	//                       consumed, so its entry slot survives to seal)
	code := []byte{
		byte(opIconst0), // 0
		byte(opPop),     // 1
		byte(opReturn),  // 2
		byte(opReturn),  // 3
	}

	blocks, err := Lift(Input{
		Code:      code,
		Signature: mustSig(t, "()V"),
		IsStatic:  true,
		Exceptions: []ExceptionHandler{
			{StartPC: 0, EndPC: 2, HandlerPC: 3, CatchType: ""},
		},
	})
	require.NoError(t, err)

	handler, ok := blocks.Blocks[3]
	require.True(t, ok)
	require.Len(t, handler.EntryStack, 1)
	require.Equal(t, ir.KindReference, handler.EntryStackKinds[0])
}

// TestLiftIfAcmpeqComparesAsReference covers if_acmpeq/if_acmpne: the
// Compare instruction feeding the branch must carry Kind Reference, not
// Int, since both operands come from popKind(ir.KindReference).
func TestLiftIfAcmpeqComparesAsReference(t *testing.T) {
	// 0: aconst_null
	// 1: aconst_null
	// 2,3,4: if_acmpeq -> 7  (opcode(1) + branch(2); target = 2+5 = 7)
	// 5: iconst_1
	// 6: ireturn              (block starting at 5 ends here, next block starts at 7)
	// 7: iconst_0
	// 8: ireturn
	code := []byte{
		byte(opAconstNull),       // 0
		byte(opAconstNull),       // 1
		byte(opIfAcmpeq), 0x00, 0x05, // 2,3,4 -> branch target = 2+5 = 7
		byte(opIconst1), // 5
		byte(opIreturn),  // 6
		byte(opIconst0), // 7
		byte(opIreturn), // 8
	}

	blocks, err := Lift(Input{
		Code:      code,
		Signature: mustSig(t, "()I"),
		IsStatic:  true,
	})
	require.NoError(t, err)

	entry := blocks.Blocks[0]
	require.True(t, entry.HasTerminator)
	require.Equal(t, ir.OpGotoIf, entry.Terminator.Op)
	require.Equal(t, uint32(7), entry.Terminator.ThenOffset)
	require.Equal(t, uint32(5), entry.Terminator.ElseOffset)

	cmp := entry.Instructions[entry.Terminator.A]
	require.Equal(t, ir.OpCompare, cmp.Op)
	require.Equal(t, ir.KindReference, cmp.Kind)
}

// TestLiftIfnullComparesAsReference covers ifnull/ifnonnull: the
// synthesized NullConstant and the popped reference must compare as
// Reference, not Int.
func TestLiftIfnullComparesAsReference(t *testing.T) {
	// 0: aconst_null
	// 1,2,3: ifnull -> 6   (opcode(1) + branch(2); target = 1+5 = 6)
	// 4: iconst_1
	// 5: ireturn             (block starting at 4 ends here, next block starts at 6)
	// 6: iconst_0
	// 7: ireturn
	code := []byte{
		byte(opAconstNull),     // 0
		byte(opIfnull), 0x00, 0x05, // 1,2,3 -> branch target = 1+5 = 6
		byte(opIconst1), // 4
		byte(opIreturn),  // 5
		byte(opIconst0), // 6
		byte(opIreturn), // 7
	}

	blocks, err := Lift(Input{
		Code:      code,
		Signature: mustSig(t, "()I"),
		IsStatic:  true,
	})
	require.NoError(t, err)

	entry := blocks.Blocks[0]
	require.True(t, entry.HasTerminator)
	require.Equal(t, ir.OpGotoIf, entry.Terminator.Op)
	require.Equal(t, uint32(6), entry.Terminator.ThenOffset)
	require.Equal(t, uint32(4), entry.Terminator.ElseOffset)

	cmp := entry.Instructions[entry.Terminator.A]
	require.Equal(t, ir.OpCompare, cmp.Op)
	require.Equal(t, ir.KindReference, cmp.Kind)
}

// TestLiftLdcStringPushesStringConstant covers ldc of a String pool
// entry: it must push a dedicated OpStringConstant, never OpNew (OpNew
// is reserved for real `new` allocation).
func TestLiftLdcStringPushesStringConstant(t *testing.T) {
	pool := constpool.New([]constpool.Entry{
		{Kind: constpool.KindUtf8, Utf8: "hello"},          // index 1
		{Kind: constpool.KindString, NameIndex: 1},          // index 2
	})
	code := []byte{
		byte(opLdc), 0x02, // ldc #2
		byte(opAreturn),
	}

	blocks, err := Lift(Input{
		Code:      code,
		Pool:      pool,
		Signature: mustSig(t, "()Ljava/lang/String;"),
		IsStatic:  true,
	})
	require.NoError(t, err)

	b := blocks.Blocks[0]
	require.Len(t, b.Instructions, 1)
	require.Equal(t, ir.OpStringConstant, b.Instructions[0].Op)
	require.Equal(t, ir.KindReference, b.Instructions[0].Kind)
	require.Equal(t, "hello", b.Instructions[0].StringValue)
}

// TestLiftLdcClassPushesClassConstant covers ldc of a Class pool entry:
// it must push a dedicated OpClassConstant, never OpNew.
func TestLiftLdcClassPushesClassConstant(t *testing.T) {
	pool := constpool.New([]constpool.Entry{
		{Kind: constpool.KindUtf8, Utf8: "java/lang/Foo"}, // index 1
		{Kind: constpool.KindClass, NameIndex: 1},         // index 2
	})
	code := []byte{
		byte(opLdc), 0x02, // ldc #2
		byte(opAreturn),
	}

	blocks, err := Lift(Input{
		Code:      code,
		Pool:      pool,
		Signature: mustSig(t, "()Ljava/lang/Class;"),
		IsStatic:  true,
	})
	require.NoError(t, err)

	b := blocks.Blocks[0]
	require.Len(t, b.Instructions, 1)
	require.Equal(t, ir.OpClassConstant, b.Instructions[0].Op)
	require.Equal(t, ir.KindReference, b.Instructions[0].Kind)
	require.Equal(t, "java/lang/Foo", b.Instructions[0].Field.ClassName)
}
