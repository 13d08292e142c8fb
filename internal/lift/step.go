package lift

import (
	"classlift/internal/constpool"
	"classlift/internal/descriptor"
	"classlift/internal/ir"
	"classlift/internal/verrors"
)

// step consumes exactly one instruction (opcode plus operands) from
// l.code at l.pos and drives the builder accordingly: a single linear
// pass over the code bytes selects behavior per opcode.
func (l *lifter) step(b *builder) error {
	opcodeOffset := uint32(l.pos)
	op := Opcode(l.u1())

	switch op {
	case opNop:
		// no-op: produces and consumes nothing.

	case opAconstNull:
		b.push(ir.KindReference, ir.Instruction{Op: ir.OpNullConstant, Kind: ir.KindReference})

	case opIconstM1, opIconst0, opIconst1, opIconst2, opIconst3, opIconst4, opIconst5:
		v := int32(op) - int32(opIconst0)
		b.push(ir.KindInt, ir.Instruction{Op: ir.OpIntegerConstant, Kind: ir.KindInt, IntValue: v})

	case opLconst0, opLconst1:
		b.push(ir.KindLong, ir.Instruction{Op: ir.OpLongConstant, Kind: ir.KindLong, LongValue: int64(op - opLconst0)})

	case opFconst0, opFconst1, opFconst2:
		b.push(ir.KindFloat, ir.Instruction{Op: ir.OpFloatConstant, Kind: ir.KindFloat, FloatValue: float32(op - opFconst0)})

	case opDconst0, opDconst1:
		b.push(ir.KindDouble, ir.Instruction{Op: ir.OpDoubleConstant, Kind: ir.KindDouble, DoubleValue: float64(op - opDconst0)})

	case opBipush:
		v := int32(int8(l.u1()))
		b.push(ir.KindInt, ir.Instruction{Op: ir.OpIntegerConstant, Kind: ir.KindInt, IntValue: v})

	case opSipush:
		v := int32(l.i2())
		b.push(ir.KindInt, ir.Instruction{Op: ir.OpIntegerConstant, Kind: ir.KindInt, IntValue: v})

	case opLdc:
		return l.ldc(b, int(l.u1()))
	case opLdcW:
		return l.ldc(b, int(l.u2()))
	case opLdc2W:
		return l.ldc2(b, int(l.u2()))

	// --- typed loads ---
	case opIload:
		return l.loadLocal(b, ir.KindInt, int(l.u1()))
	case opLload:
		return l.loadLocal(b, ir.KindLong, int(l.u1()))
	case opFload:
		return l.loadLocal(b, ir.KindFloat, int(l.u1()))
	case opDload:
		return l.loadLocal(b, ir.KindDouble, int(l.u1()))
	case opAload:
		return l.loadLocal(b, ir.KindReference, int(l.u1()))

	case opIload0, opIload1, opIload2, opIload3:
		return l.loadLocal(b, ir.KindInt, int(op-opIload0))
	case opLload0, opLload1, opLload2, opLload3:
		return l.loadLocal(b, ir.KindLong, int(op-opLload0))
	case opFload0, opFload1, opFload2, opFload3:
		return l.loadLocal(b, ir.KindFloat, int(op-opFload0))
	case opDload0, opDload1, opDload2, opDload3:
		return l.loadLocal(b, ir.KindDouble, int(op-opDload0))
	case opAload0, opAload1, opAload2, opAload3:
		return l.loadLocal(b, ir.KindReference, int(op-opAload0))

	// --- typed stores ---
	case opIstore:
		return l.storeLocal(b, ir.KindInt, int(l.u1()))
	case opLstore:
		return l.storeLocal(b, ir.KindLong, int(l.u1()))
	case opFstore:
		return l.storeLocal(b, ir.KindFloat, int(l.u1()))
	case opDstore:
		return l.storeLocal(b, ir.KindDouble, int(l.u1()))
	case opAstore:
		return l.storeLocal(b, ir.KindReference, int(l.u1()))

	case opIstore0, opIstore1, opIstore2, opIstore3:
		return l.storeLocal(b, ir.KindInt, int(op-opIstore0))
	case opLstore0, opLstore1, opLstore2, opLstore3:
		return l.storeLocal(b, ir.KindLong, int(op-opLstore0))
	case opFstore0, opFstore1, opFstore2, opFstore3:
		return l.storeLocal(b, ir.KindFloat, int(op-opFstore0))
	case opDstore0, opDstore1, opDstore2, opDstore3:
		return l.storeLocal(b, ir.KindDouble, int(op-opDstore0))
	case opAstore0, opAstore1, opAstore2, opAstore3:
		return l.storeLocal(b, ir.KindReference, int(op-opAstore0))

	// --- typed array loads ---
	case opIaload:
		return l.arrayLoad(b, ir.KindInt)
	case opLaload:
		return l.arrayLoad(b, ir.KindLong)
	case opFaload:
		return l.arrayLoad(b, ir.KindFloat)
	case opDaload:
		return l.arrayLoad(b, ir.KindDouble)
	case opAaload:
		return l.arrayLoad(b, ir.KindReference)
	case opBaload:
		return l.arrayLoad(b, ir.KindByte)
	case opCaload:
		return l.arrayLoad(b, ir.KindChar)
	case opSaload:
		return l.arrayLoad(b, ir.KindShort)

	// --- typed array stores ---
	case opIastore:
		return l.arrayStore(b, ir.KindInt)
	case opLastore:
		return l.arrayStore(b, ir.KindLong)
	case opFastore:
		return l.arrayStore(b, ir.KindFloat)
	case opDastore:
		return l.arrayStore(b, ir.KindDouble)
	case opAastore:
		return l.arrayStore(b, ir.KindReference)
	case opBastore:
		return l.arrayStore(b, ir.KindByte)
	case opCastore:
		return l.arrayStore(b, ir.KindChar)
	case opSastore:
		return l.arrayStore(b, ir.KindShort)

	// --- stack manipulation ---
	case opPop:
		_, _, err := b.pop(false)
		return err
	case opPop2:
		if _, _, err := b.pop(true); err == nil {
			break
		}
		// Not a single category-2 slot pair: pop2 on two category-1 values.
		if _, _, err := b.pop(false); err != nil {
			return err
		}
		if _, _, err := b.pop(false); err != nil {
			return err
		}

	case opDup:
		v, k, ok := b.peekTop()
		if !ok {
			return verrors.Wrap(verrors.ErrWidth, "dup on empty stack")
		}
		b.pushValue(k, v)

	case opDupX1:
		return l.dupX1(b)
	case opDupX2:
		return l.dupX2(b)
	case opDup2:
		return l.dup2(b)
	case opDup2X1:
		return l.dup2X1(b)
	case opDup2X2:
		return l.dup2X2(b)
	case opSwap:
		return l.swap(b)

	// --- arithmetic ---
	case opIadd, opIsub, opImul, opIdiv, opIrem:
		return l.binary(b, ir.KindInt, arithOp(op, opIadd))
	case opLadd, opLsub, opLmul, opLdiv, opLrem:
		return l.binary(b, ir.KindLong, arithOp(op, opLadd))
	case opFadd, opFsub, opFmul, opFdiv, opFrem:
		return l.binary(b, ir.KindFloat, arithOp(op, opFadd))
	case opDadd, opDsub, opDmul, opDdiv, opDrem:
		return l.binary(b, ir.KindDouble, arithOp(op, opDadd))

	case opIneg:
		return l.negate(b, ir.KindInt)
	case opLneg:
		return l.negate(b, ir.KindLong)
	case opFneg:
		return l.negate(b, ir.KindFloat)
	case opDneg:
		return l.negate(b, ir.KindDouble)

	case opIshl, opIshr, opIushr, opIand, opIor, opIxor:
		return l.binary(b, ir.KindInt, bitwiseOp(op))
	case opLshl, opLshr, opLushr:
		// Shift amounts are int (category-1); binaryShift pops the right
		// operand as int.
		return l.binaryShift(b, ir.KindLong, bitwiseOp(op))
	case opLand, opLor, opLxor:
		return l.binary(b, ir.KindLong, bitwiseOp(op))

	case opIinc:
		slot := int(l.u1())
		delta := int32(int8(l.u1()))
		return l.iinc(b, slot, delta)

	// --- conversions ---
	case opI2l:
		return l.convert(b, ir.KindInt, ir.KindLong)
	case opI2f:
		return l.convert(b, ir.KindInt, ir.KindFloat)
	case opI2d:
		return l.convert(b, ir.KindInt, ir.KindDouble)
	case opL2i:
		return l.convert(b, ir.KindLong, ir.KindInt)
	case opL2f:
		return l.convert(b, ir.KindLong, ir.KindFloat)
	case opL2d:
		return l.convert(b, ir.KindLong, ir.KindDouble)
	case opF2i:
		return l.convert(b, ir.KindFloat, ir.KindInt)
	case opF2l:
		return l.convert(b, ir.KindFloat, ir.KindLong)
	case opF2d:
		return l.convert(b, ir.KindFloat, ir.KindDouble)
	case opD2i:
		return l.convert(b, ir.KindDouble, ir.KindInt)
	case opD2l:
		return l.convert(b, ir.KindDouble, ir.KindLong)
	case opD2f:
		return l.convert(b, ir.KindDouble, ir.KindFloat)
	case opI2b:
		return l.convert(b, ir.KindInt, ir.KindByte)
	case opI2c:
		return l.convert(b, ir.KindInt, ir.KindChar)
	case opI2s:
		return l.convert(b, ir.KindInt, ir.KindShort)

	// --- compares ---
	case opLcmp:
		return l.compare(b, ir.KindLong, ir.NaNNone)
	case opFcmpl:
		return l.compare(b, ir.KindFloat, ir.NaNLess)
	case opFcmpg:
		return l.compare(b, ir.KindFloat, ir.NaNGreater)
	case opDcmpl:
		return l.compare(b, ir.KindDouble, ir.NaNLess)
	case opDcmpg:
		return l.compare(b, ir.KindDouble, ir.NaNGreater)

	// --- conditional branches against zero ---
	case opIfeq, opIfne, opIflt, opIfge, opIfgt, opIfle:
		target := opcodeOffset + uint32(l.i2())
		cond := condFor(op, opIfeq)
		v, err := b.popKind(ir.KindInt)
		if err != nil {
			return err
		}
		zero := b.emit(ir.Instruction{Op: ir.OpIntegerConstant, Kind: ir.KindInt, IntValue: 0})
		return l.sealCompareBranch(b, cond, ir.KindInt, v, zero, target, opcodeOffset)

	case opIfIcmpeq, opIfIcmpne, opIfIcmplt, opIfIcmpge, opIfIcmpgt, opIfIcmple:
		target := opcodeOffset + uint32(l.i2())
		cond := condFor(op, opIfIcmpeq)
		rhs, err := b.popKind(ir.KindInt)
		if err != nil {
			return err
		}
		lhs, err := b.popKind(ir.KindInt)
		if err != nil {
			return err
		}
		return l.sealCompareBranch(b, cond, ir.KindInt, lhs, rhs, target, opcodeOffset)

	case opIfAcmpeq, opIfAcmpne:
		target := opcodeOffset + uint32(l.i2())
		cond := ir.CondEQ
		if op == opIfAcmpne {
			cond = ir.CondNE
		}
		rhs, err := b.popKind(ir.KindReference)
		if err != nil {
			return err
		}
		lhs, err := b.popKind(ir.KindReference)
		if err != nil {
			return err
		}
		return l.sealCompareBranch(b, cond, ir.KindReference, lhs, rhs, target, opcodeOffset)

	case opIfnull, opIfnonnull:
		target := opcodeOffset + uint32(l.i2())
		cond := ir.CondEQ
		if op == opIfnonnull {
			cond = ir.CondNE
		}
		v, err := b.popKind(ir.KindReference)
		if err != nil {
			return err
		}
		null := b.emit(ir.Instruction{Op: ir.OpNullConstant, Kind: ir.KindReference})
		return l.sealCompareBranch(b, cond, ir.KindReference, v, null, target, opcodeOffset)

	case opGoto:
		target := opcodeOffset + uint32(l.i2())
		b.seal(ir.Instruction{Op: ir.OpGoto, TargetOffset: target})
	case opGotoW:
		target := opcodeOffset + uint32(l.i4())
		b.seal(ir.Instruction{Op: ir.OpGoto, TargetOffset: target})

	case opJsr, opJsrW, opRet:
		return verrors.Wrapf(verrors.ErrUnsupportedFeature, "jsr/ret at offset %d: legacy subroutine opcodes are not supported", opcodeOffset)
	case opTableswitch, opLookupswitch:
		return verrors.Wrapf(verrors.ErrUnsupportedFeature, "switch opcode at offset %d is not supported", opcodeOffset)

	// --- returns ---
	case opIreturn:
		return l.typedReturn(b, ir.KindInt)
	case opLreturn:
		return l.typedReturn(b, ir.KindLong)
	case opFreturn:
		return l.typedReturn(b, ir.KindFloat)
	case opDreturn:
		return l.typedReturn(b, ir.KindDouble)
	case opAreturn:
		return l.typedReturn(b, ir.KindReference)
	case opReturn:
		b.seal(ir.Instruction{Op: ir.OpReturnVoid})

	case opGetstatic:
		return l.getStatic(b, int(l.u2()))
	case opPutstatic:
		return l.putStatic(b, int(l.u2()))
	case opGetfield:
		return l.getField(b, int(l.u2()))
	case opPutfield:
		return l.putField(b, int(l.u2()))

	case opInvokevirtual:
		return l.invoke(b, ir.OpInvokeVirtual, int(l.u2()), true)
	case opInvokespecial:
		return l.invoke(b, ir.OpInvokeSpecial, int(l.u2()), true)
	case opInvokestatic:
		return l.invoke(b, ir.OpInvokeStatic, int(l.u2()), false)
	case opInvokeinterface:
		idx := int(l.u2())
		_ = l.u1() // count, redundant with the descriptor
		_ = l.u1() // reserved, always 0
		return l.invoke(b, ir.OpInvokeInterface, idx, true)
	case opInvokedynamic:
		return verrors.Wrapf(verrors.ErrUnsupportedFeature, "invokedynamic at offset %d is not supported", opcodeOffset)

	case opNew:
		idx := int(l.u2())
		className, err := l.pool.ClassRef(idx)
		if err != nil {
			return err
		}
		b.push(ir.KindReference, ir.Instruction{Op: ir.OpNew, Kind: ir.KindReference, Field: ir.FieldRef{ClassName: className}})

	case opNewarray:
		atype := l.u1()
		elemKind, err := primitiveArrayKind(atype)
		if err != nil {
			return err
		}
		count, err := b.popKind(ir.KindInt)
		if err != nil {
			return err
		}
		b.push(ir.KindReference, ir.Instruction{Op: ir.OpNewArray, Kind: elemKind, A: count})

	case opAnewarray:
		idx := int(l.u2())
		className, err := l.pool.ClassRef(idx)
		if err != nil {
			return err
		}
		count, err := b.popKind(ir.KindInt)
		if err != nil {
			return err
		}
		b.push(ir.KindReference, ir.Instruction{Op: ir.OpNewReferenceArray, Field: ir.FieldRef{ClassName: className}, A: count})

	case opMultianewarray:
		idx := int(l.u2())
		dims := l.u1()
		className, err := l.pool.ClassRef(idx)
		if err != nil {
			return err
		}
		counts := make([]ir.SymbolicValue, dims)
		for i := int(dims) - 1; i >= 0; i-- {
			v, err := b.popKind(ir.KindInt)
			if err != nil {
				return err
			}
			counts[i] = v
		}
		b.push(ir.KindReference, ir.Instruction{Op: ir.OpMultiNewArray, Field: ir.FieldRef{ClassName: className}, Dims: dims, Args: counts})

	case opArraylength:
		arr, err := b.popKind(ir.KindReference)
		if err != nil {
			return err
		}
		b.push(ir.KindInt, ir.Instruction{Op: ir.OpArrayLength, A: arr})

	case opAthrow:
		v, err := b.popKind(ir.KindReference)
		if err != nil {
			return err
		}
		b.seal(ir.Instruction{Op: ir.OpThrow, A: v})

	case opCheckcast:
		idx := int(l.u2())
		className, err := l.pool.ClassRef(idx)
		if err != nil {
			return err
		}
		v, err := b.popKind(ir.KindReference)
		if err != nil {
			return err
		}
		b.push(ir.KindReference, ir.Instruction{Op: ir.OpCheckCast, Field: ir.FieldRef{ClassName: className}, A: v})

	case opInstanceof:
		idx := int(l.u2())
		className, err := l.pool.ClassRef(idx)
		if err != nil {
			return err
		}
		v, err := b.popKind(ir.KindReference)
		if err != nil {
			return err
		}
		b.push(ir.KindInt, ir.Instruction{Op: ir.OpInstanceOf, Field: ir.FieldRef{ClassName: className}, A: v})

	case opMonitorenter:
		v, err := b.popKind(ir.KindReference)
		if err != nil {
			return err
		}
		b.emit(ir.Instruction{Op: ir.OpMonitorEnter, A: v})
	case opMonitorexit:
		v, err := b.popKind(ir.KindReference)
		if err != nil {
			return err
		}
		b.emit(ir.Instruction{Op: ir.OpMonitorExit, A: v})

	case opWide:
		return l.wide(b)

	default:
		return verrors.Wrapf(verrors.ErrMalformedClass, "unrecognized opcode 0x%02X at offset %d", uint8(op), opcodeOffset)
	}

	return nil
}

func (l *lifter) loadLocal(b *builder, kind ir.StackKind, slot int) error {
	v, k, err := b.load(slot)
	if err != nil {
		return err
	}
	b.pushValue(k, v)
	_ = kind // the declared kind is informative only; the bound local's own kind governs width
	return nil
}

func (l *lifter) storeLocal(b *builder, kind ir.StackKind, slot int) error {
	v, err := b.popKind(kind)
	if err != nil {
		return err
	}
	b.store(kind, slot, v)
	return nil
}

func (l *lifter) ldc(b *builder, idx int) error {
	kind, err := l.pool.Kind(idx)
	if err != nil {
		return err
	}
	switch kind {
	case constpool.KindString:
		s, err := l.pool.StringValue(idx)
		if err != nil {
			return err
		}
		b.push(ir.KindReference, ir.Instruction{Op: ir.OpStringConstant, Kind: ir.KindReference, StringValue: s})
	case constpool.KindClass:
		className, err := l.pool.ClassRef(idx)
		if err != nil {
			return err
		}
		b.push(ir.KindReference, ir.Instruction{Op: ir.OpClassConstant, Kind: ir.KindReference, Field: ir.FieldRef{ClassName: className}})
	default:
		v, err := l.pool.ConstValue(idx)
		if err != nil {
			return err
		}
		switch v.Kind {
		case constpool.KindInteger:
			b.push(ir.KindInt, ir.Instruction{Op: ir.OpIntegerConstant, Kind: ir.KindInt, IntValue: v.Int})
		case constpool.KindFloat:
			b.push(ir.KindFloat, ir.Instruction{Op: ir.OpFloatConstant, Kind: ir.KindFloat, FloatValue: v.Float})
		default:
			return verrors.Wrapf(verrors.ErrMalformedClass, "ldc of non-loadable constant kind at pool index %d", idx)
		}
	}
	return nil
}

func (l *lifter) ldc2(b *builder, idx int) error {
	v, err := l.pool.ConstValue(idx)
	if err != nil {
		return err
	}
	switch v.Kind {
	case constpool.KindLong:
		b.push(ir.KindLong, ir.Instruction{Op: ir.OpLongConstant, Kind: ir.KindLong, LongValue: v.Long})
	case constpool.KindDouble:
		b.push(ir.KindDouble, ir.Instruction{Op: ir.OpDoubleConstant, Kind: ir.KindDouble, DoubleValue: v.Double})
	default:
		return verrors.Wrapf(verrors.ErrMalformedClass, "ldc2_w of non-category-2 constant at pool index %d", idx)
	}
	return nil
}

func (l *lifter) arrayLoad(b *builder, elemKind ir.StackKind) error {
	idx, err := b.popKind(ir.KindInt)
	if err != nil {
		return err
	}
	arr, err := b.popKind(ir.KindReference)
	if err != nil {
		return err
	}
	b.push(elemKind, ir.Instruction{Op: ir.OpArrayLoad, Kind: elemKind, A: arr, B: idx})
	return nil
}

func (l *lifter) arrayStore(b *builder, elemKind ir.StackKind) error {
	v, err := b.popKind(elemKind)
	if err != nil {
		return err
	}
	idx, err := b.popKind(ir.KindInt)
	if err != nil {
		return err
	}
	arr, err := b.popKind(ir.KindReference)
	if err != nil {
		return err
	}
	b.emit(ir.Instruction{Op: ir.OpArrayStore, Kind: elemKind, A: arr, B: idx, C: v})
	return nil
}

func (l *lifter) binary(b *builder, kind ir.StackKind, binOp ir.BinaryOp) error {
	rhs, err := b.popKind(kind)
	if err != nil {
		return err
	}
	lhs, err := b.popKind(kind)
	if err != nil {
		return err
	}
	b.push(kind, ir.Instruction{Op: ir.OpBinaryOperation, Kind: kind, BinOp: binOp, A: lhs, B: rhs})
	return nil
}

// binaryShift is binary with an int-category right operand: shift
// amounts to long shifts are always a narrow int regardless of the
// shifted value's kind.
func (l *lifter) binaryShift(b *builder, kind ir.StackKind, binOp ir.BinaryOp) error {
	rhs, err := b.popKind(ir.KindInt)
	if err != nil {
		return err
	}
	lhs, err := b.popKind(kind)
	if err != nil {
		return err
	}
	b.push(kind, ir.Instruction{Op: ir.OpBinaryOperation, Kind: kind, BinOp: binOp, A: lhs, B: rhs})
	return nil
}

func (l *lifter) negate(b *builder, kind ir.StackKind) error {
	v, err := b.popKind(kind)
	if err != nil {
		return err
	}
	b.push(kind, ir.Instruction{Op: ir.OpNegate, Kind: kind, A: v})
	return nil
}

func (l *lifter) iinc(b *builder, slot int, delta int32) error {
	v, k, err := b.load(slot)
	if err != nil {
		return err
	}
	constV := b.emit(ir.Instruction{Op: ir.OpIntegerConstant, Kind: ir.KindInt, IntValue: delta})
	sum := b.emit(ir.Instruction{Op: ir.OpBinaryOperation, Kind: ir.KindInt, BinOp: ir.OpAdd, A: v, B: constV})
	b.store(k, slot, sum)
	return nil
}

func (l *lifter) convert(b *builder, from, to ir.StackKind) error {
	v, err := b.popKind(from)
	if err != nil {
		return err
	}
	b.push(to, ir.Instruction{Op: ir.OpConvert, FromKind: from, ToKind: to, A: v})
	return nil
}

func (l *lifter) compare(b *builder, operandKind ir.StackKind, nan ir.NaNBehavior) error {
	rhs, err := b.popKind(operandKind)
	if err != nil {
		return err
	}
	lhs, err := b.popKind(operandKind)
	if err != nil {
		return err
	}
	b.push(ir.KindInt, ir.Instruction{Op: ir.OpCompare, Kind: operandKind, NaN: nan, A: lhs, B: rhs})
	return nil
}

// sealCompareBranch seals the current block with GotoIf, then records
// its fallthrough target; the actual fallthrough block is opened by the
// caller (Lift's main loop) immediately after, from l.pos. operandKind
// is the kind of lhs/rhs (Int for if<cond>/if_icmp<cond>, Reference for
// if_acmp<cond>/ifnull/ifnonnull) and is threaded into the emitted
// Compare the same way the non-branch compare helper does.
func (l *lifter) sealCompareBranch(b *builder, cond ir.CondOp, operandKind ir.StackKind, lhs, rhs ir.SymbolicValue, target, opcodeOffset uint32) error {
	elseOffset := uint32(l.pos)
	cmp := b.emit(ir.Instruction{Op: ir.OpCompare, Kind: operandKind, A: lhs, B: rhs})
	b.seal(ir.Instruction{Op: ir.OpGotoIf, Cond: cond, A: cmp, ThenOffset: target, ElseOffset: elseOffset})
	return nil
}

func (l *lifter) typedReturn(b *builder, kind ir.StackKind) error {
	v, err := b.popKind(kind)
	if err != nil {
		return err
	}
	b.seal(ir.Instruction{Op: ir.OpReturn, Kind: kind, A: v})
	return nil
}

func (l *lifter) getStatic(b *builder, idx int) error {
	ref, err := l.pool.FieldRef(idx)
	if err != nil {
		return err
	}
	kind, err := fieldRefKind(ref)
	if err != nil {
		return err
	}
	b.push(kind, ir.Instruction{Op: ir.OpGetStatic, Kind: kind, Field: ir.FieldRef(ref)})
	return nil
}

func (l *lifter) putStatic(b *builder, idx int) error {
	ref, err := l.pool.FieldRef(idx)
	if err != nil {
		return err
	}
	kind, err := fieldRefKind(ref)
	if err != nil {
		return err
	}
	v, err := b.popKind(kind)
	if err != nil {
		return err
	}
	b.emit(ir.Instruction{Op: ir.OpPutStatic, Kind: kind, Field: ir.FieldRef(ref), A: v})
	return nil
}

func (l *lifter) getField(b *builder, idx int) error {
	ref, err := l.pool.FieldRef(idx)
	if err != nil {
		return err
	}
	kind, err := fieldRefKind(ref)
	if err != nil {
		return err
	}
	obj, err := b.popKind(ir.KindReference)
	if err != nil {
		return err
	}
	b.push(kind, ir.Instruction{Op: ir.OpGetField, Kind: kind, Field: ir.FieldRef(ref), A: obj})
	return nil
}

func (l *lifter) putField(b *builder, idx int) error {
	ref, err := l.pool.FieldRef(idx)
	if err != nil {
		return err
	}
	kind, err := fieldRefKind(ref)
	if err != nil {
		return err
	}
	v, err := b.popKind(kind)
	if err != nil {
		return err
	}
	obj, err := b.popKind(ir.KindReference)
	if err != nil {
		return err
	}
	b.emit(ir.Instruction{Op: ir.OpPutField, Kind: kind, Field: ir.FieldRef(ref), A: obj, B: v})
	return nil
}

func (l *lifter) invoke(b *builder, op ir.Op, idx int, hasReceiver bool) error {
	var ref constpool.Ref
	var err error
	if op == ir.OpInvokeInterface {
		ref, err = l.pool.InterfaceMethodRef(idx)
	} else {
		ref, err = l.pool.MethodRef(idx)
	}
	if err != nil {
		return err
	}
	sig, err := descriptor.ParseMethod(ref.Descriptor)
	if err != nil {
		return err
	}

	args := make([]ir.SymbolicValue, len(sig.Params))
	for i := len(sig.Params) - 1; i >= 0; i-- {
		v, err := b.popKind(sig.Params[i].StackKind())
		if err != nil {
			return err
		}
		args[i] = v
	}
	var receiver ir.SymbolicValue
	if hasReceiver {
		receiver, err = b.popKind(ir.KindReference)
		if err != nil {
			return err
		}
		args = append([]ir.SymbolicValue{receiver}, args...)
	}

	instr := ir.Instruction{Op: op, Field: ir.FieldRef(ref), Args: args}
	if sig.ReturnType == nil {
		b.emit(instr)
		return nil
	}
	retKind := sig.ReturnType.StackKind()
	instr.Kind = retKind
	b.push(retKind, instr)
	return nil
}

func (l *lifter) wide(b *builder) error {
	sub := Opcode(l.u1())
	switch sub {
	case opIinc:
		slot := int(l.u2())
		delta := int32(l.i2())
		return l.iinc(b, slot, delta)
	case opIload:
		return l.loadLocal(b, ir.KindInt, int(l.u2()))
	case opLload:
		return l.loadLocal(b, ir.KindLong, int(l.u2()))
	case opFload:
		return l.loadLocal(b, ir.KindFloat, int(l.u2()))
	case opDload:
		return l.loadLocal(b, ir.KindDouble, int(l.u2()))
	case opAload:
		return l.loadLocal(b, ir.KindReference, int(l.u2()))
	case opIstore:
		return l.storeLocal(b, ir.KindInt, int(l.u2()))
	case opLstore:
		return l.storeLocal(b, ir.KindLong, int(l.u2()))
	case opFstore:
		return l.storeLocal(b, ir.KindFloat, int(l.u2()))
	case opDstore:
		return l.storeLocal(b, ir.KindDouble, int(l.u2()))
	case opAstore:
		return l.storeLocal(b, ir.KindReference, int(l.u2()))
	case opRet:
		return verrors.Wrap(verrors.ErrUnsupportedFeature, "wide ret is not supported")
	default:
		return verrors.Wrapf(verrors.ErrMalformedClass, "invalid opcode 0x%02X after wide prefix", uint8(sub))
	}
}

// --- dup family ---
// Per the JVM specification these operate on raw stack slots (which may
// be category-2 sentinels), not on logical values, so they are expressed
// directly against b's raw stack rather than through pop/push.

func (l *lifter) dupX1(b *builder) error {
	n := b.depth()
	if n < 2 {
		return verrors.Wrap(verrors.ErrWidth, "dup_x1 needs at least 2 slots")
	}
	top := b.stack[n-1]
	topKind := b.stackKinds[n-1]
	b.stack = append(b.stack[:n-2], top, b.stack[n-2], top)
	b.stackKinds = append(b.stackKinds[:n-2], topKind, b.stackKinds[n-2], topKind)
	return nil
}

func (l *lifter) dupX2(b *builder) error {
	n := b.depth()
	if n < 3 {
		return verrors.Wrap(verrors.ErrWidth, "dup_x2 needs at least 3 slots")
	}
	top, topKind := b.stack[n-1], b.stackKinds[n-1]
	rest := append([]ir.SymbolicValue{}, b.stack[n-3:n-1]...)
	restKinds := append([]ir.StackKind{}, b.stackKinds[n-3:n-1]...)
	b.stack = append(b.stack[:n-3], top)
	b.stackKinds = append(b.stackKinds[:n-3], topKind)
	b.stack = append(b.stack, rest...)
	b.stackKinds = append(b.stackKinds, restKinds...)
	b.stack = append(b.stack, top)
	b.stackKinds = append(b.stackKinds, topKind)
	return nil
}

func (l *lifter) dup2(b *builder) error {
	n := b.depth()
	if n < 2 {
		return verrors.Wrap(verrors.ErrWidth, "dup2 needs at least 2 slots")
	}
	pair := append([]ir.SymbolicValue{}, b.stack[n-2:]...)
	pairKinds := append([]ir.StackKind{}, b.stackKinds[n-2:]...)
	b.stack = append(b.stack, pair...)
	b.stackKinds = append(b.stackKinds, pairKinds...)
	return nil
}

func (l *lifter) dup2X1(b *builder) error {
	n := b.depth()
	if n < 3 {
		return verrors.Wrap(verrors.ErrWidth, "dup2_x1 needs at least 3 slots")
	}
	pair := append([]ir.SymbolicValue{}, b.stack[n-2:]...)
	pairKinds := append([]ir.StackKind{}, b.stackKinds[n-2:]...)
	below := b.stack[n-3]
	belowKind := b.stackKinds[n-3]
	b.stack = append(b.stack[:n-3], pair[0], pair[1], below, pair[0], pair[1])
	b.stackKinds = append(b.stackKinds[:n-3], pairKinds[0], pairKinds[1], belowKind, pairKinds[0], pairKinds[1])
	return nil
}

func (l *lifter) dup2X2(b *builder) error {
	n := b.depth()
	if n < 4 {
		return verrors.Wrap(verrors.ErrWidth, "dup2_x2 needs at least 4 slots")
	}
	top2 := append([]ir.SymbolicValue{}, b.stack[n-2:]...)
	top2Kinds := append([]ir.StackKind{}, b.stackKinds[n-2:]...)
	below2 := append([]ir.SymbolicValue{}, b.stack[n-4:n-2]...)
	below2Kinds := append([]ir.StackKind{}, b.stackKinds[n-4:n-2]...)
	b.stack = append(b.stack[:n-4], top2[0], top2[1])
	b.stackKinds = append(b.stackKinds[:n-4], top2Kinds[0], top2Kinds[1])
	b.stack = append(b.stack, below2...)
	b.stackKinds = append(b.stackKinds, below2Kinds...)
	b.stack = append(b.stack, top2...)
	b.stackKinds = append(b.stackKinds, top2Kinds...)
	return nil
}

func (l *lifter) swap(b *builder) error {
	n := b.depth()
	if n < 2 {
		return verrors.Wrap(verrors.ErrWidth, "swap needs at least 2 slots")
	}
	b.stack[n-1], b.stack[n-2] = b.stack[n-2], b.stack[n-1]
	b.stackKinds[n-1], b.stackKinds[n-2] = b.stackKinds[n-2], b.stackKinds[n-1]
	return nil
}

func arithOp(op, base Opcode) ir.BinaryOp {
	// Typed arithmetic opcodes interleave i/l/f/d, so each operator group
	// is 4 opcodes apart (iadd, isub = iadd+4, imul = iadd+8, ...).
	switch (op - base) / 4 {
	case 0:
		return ir.OpAdd
	case 1:
		return ir.OpSub
	case 2:
		return ir.OpMul
	case 3:
		return ir.OpDiv
	default:
		return ir.OpRem
	}
}

func bitwiseOp(op Opcode) ir.BinaryOp {
	switch op {
	case opIshl, opLshl:
		return ir.OpShl
	case opIshr, opLshr:
		return ir.OpAShr
	case opIushr, opLushr:
		return ir.OpLShr
	case opIand, opLand:
		return ir.OpAnd
	case opIor, opLor:
		return ir.OpOr
	default:
		return ir.OpXor
	}
}

func condFor(op, base Opcode) ir.CondOp {
	switch op - base {
	case 0:
		return ir.CondEQ
	case 1:
		return ir.CondNE
	case 2:
		return ir.CondLT
	case 3:
		return ir.CondGE
	case 4:
		return ir.CondGT
	default:
		return ir.CondLE
	}
}

func primitiveArrayKind(atype uint8) (ir.StackKind, error) {
	switch atype {
	case atBoolean:
		return ir.KindBoolean, nil
	case atChar:
		return ir.KindChar, nil
	case atFloat:
		return ir.KindFloat, nil
	case atDouble:
		return ir.KindDouble, nil
	case atByte:
		return ir.KindByte, nil
	case atShort:
		return ir.KindShort, nil
	case atInt:
		return ir.KindInt, nil
	case atLong:
		return ir.KindLong, nil
	default:
		return 0, verrors.Wrapf(verrors.ErrMalformedClass, "invalid newarray type code %d", atype)
	}
}

func fieldRefKind(ref constpool.Ref) (ir.StackKind, error) {
	ft, err := descriptor.ParseField(ref.Descriptor)
	if err != nil {
		return 0, err
	}
	return ft.StackKind(), nil
}
