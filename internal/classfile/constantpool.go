package classfile

import (
	"math"

	"classlift/internal/bytereader"
	"classlift/internal/constpool"
	"classlift/internal/verrors"
)

type cpTag uint8

const (
	tagUtf8               cpTag = 1
	tagInteger            cpTag = 3
	tagFloat              cpTag = 4
	tagLong               cpTag = 5
	tagDouble             cpTag = 6
	tagClass              cpTag = 7
	tagString             cpTag = 8
	tagFieldref           cpTag = 9
	tagMethodref          cpTag = 10
	tagInterfaceMethodref cpTag = 11
	tagNameAndType        cpTag = 12
	tagMethodHandle       cpTag = 15
	tagMethodType         cpTag = 16
	tagDynamic            cpTag = 17
	tagInvokeDynamic      cpTag = 18
	tagModule             cpTag = 19
	tagPackage            cpTag = 20
)

// parseConstantPool reads the constant_pool_count and that many entries,
// honoring the one-indexed, Long/Double-occupies-two-slots convention.
func parseConstantPool(br *bytereader.Reader) (*constpool.Pool, error) {
	count := br.U2()
	if count == 0 {
		return nil, verrors.Wrap(verrors.ErrMalformedClass, "constant_pool_count must be at least 1")
	}

	entries := make([]constpool.Entry, count-1)
	for i := 0; i < int(count)-1; i++ {
		entry, wide, err := readConstantPoolEntry(br)
		if err != nil {
			return nil, verrors.Wrapf(err, "constant pool entry %d", i+1)
		}
		entries[i] = entry
		if wide {
			i++
			if i < int(count)-1 {
				entries[i] = constpool.Entry{Kind: constpool.KindUnusable}
			}
		}
	}

	return constpool.New(entries), nil
}

func readConstantPoolEntry(br *bytereader.Reader) (constpool.Entry, bool, error) {
	tag := cpTag(br.U1())
	switch tag {
	case tagUtf8:
		length := br.U2()
		raw := br.Bytes(int(length))
		return constpool.Entry{Kind: constpool.KindUtf8, Utf8: decodeModifiedUtf8(raw)}, false, nil

	case tagInteger:
		return constpool.Entry{Kind: constpool.KindInteger, IntValue: br.I4()}, false, nil

	case tagFloat:
		return constpool.Entry{Kind: constpool.KindFloat, FloatValue: math.Float32frombits(br.U4())}, false, nil

	case tagLong:
		hi := uint64(br.U4())
		lo := uint64(br.U4())
		return constpool.Entry{Kind: constpool.KindLong, LongValue: int64(hi<<32 | lo)}, true, nil

	case tagDouble:
		hi := uint64(br.U4())
		lo := uint64(br.U4())
		return constpool.Entry{Kind: constpool.KindDouble, DoubleValue: math.Float64frombits(hi<<32 | lo)}, true, nil

	case tagClass:
		return constpool.Entry{Kind: constpool.KindClass, NameIndex: int(br.U2())}, false, nil

	case tagString:
		return constpool.Entry{Kind: constpool.KindString, NameIndex: int(br.U2())}, false, nil

	case tagFieldref:
		classIdx := int(br.U2())
		natIdx := int(br.U2())
		return constpool.Entry{Kind: constpool.KindFieldRef, ClassIndex: classIdx, NameAndTypeIndex: natIdx}, false, nil

	case tagMethodref:
		classIdx := int(br.U2())
		natIdx := int(br.U2())
		return constpool.Entry{Kind: constpool.KindMethodRef, ClassIndex: classIdx, NameAndTypeIndex: natIdx}, false, nil

	case tagInterfaceMethodref:
		classIdx := int(br.U2())
		natIdx := int(br.U2())
		return constpool.Entry{Kind: constpool.KindInterfaceMethodRef, ClassIndex: classIdx, NameAndTypeIndex: natIdx}, false, nil

	case tagNameAndType:
		nameIdx := int(br.U2())
		descIdx := int(br.U2())
		return constpool.Entry{Kind: constpool.KindNameAndType, NameIndex: nameIdx, DescriptorIndex: descIdx}, false, nil

	case tagMethodHandle:
		refKind := br.U1()
		refIdx := int(br.U2())
		return constpool.Entry{Kind: constpool.KindMethodHandle, ReferenceKind: refKind, ReferenceIndex: refIdx}, false, nil

	case tagMethodType:
		return constpool.Entry{Kind: constpool.KindMethodType, DescriptorIndex: int(br.U2())}, false, nil

	case tagDynamic:
		_ = br.U2() // bootstrap_method_attr_index, not resolved (invokedynamic is out of scope)
		natIdx := int(br.U2())
		return constpool.Entry{Kind: constpool.KindDynamic, NameAndTypeIndex: natIdx}, false, nil

	case tagInvokeDynamic:
		_ = br.U2()
		natIdx := int(br.U2())
		return constpool.Entry{Kind: constpool.KindInvokeDynamic, NameAndTypeIndex: natIdx}, false, nil

	case tagModule:
		return constpool.Entry{Kind: constpool.KindModule, NameIndex: int(br.U2())}, false, nil

	case tagPackage:
		return constpool.Entry{Kind: constpool.KindPackage, NameIndex: int(br.U2())}, false, nil

	default:
		return constpool.Entry{}, false, verrors.Wrapf(verrors.ErrMalformedClass, "unknown constant pool tag %d", tag)
	}
}

// decodeModifiedUtf8 decodes the class format's modified UTF-8 (CESU-8
// style surrogate pairs), grounded on other_examples' dhamidi-sai
// classfile reader's decodeModifiedUtf8.
func decodeModifiedUtf8(b []byte) string {
	runes := make([]rune, 0, len(b))
	i := 0
	for i < len(b) {
		c := b[i]
		switch {
		case c&0x80 == 0:
			runes = append(runes, rune(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) {
				i = len(b)
				continue
			}
			r := rune(c&0x1F)<<6 | rune(b[i+1]&0x3F)
			runes = append(runes, r)
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) {
				i = len(b)
				continue
			}
			r := rune(c&0x0F)<<12 | rune(b[i+1]&0x3F)<<6 | rune(b[i+2]&0x3F)
			if r >= 0xD800 && r <= 0xDBFF && i+5 < len(b) && b[i+3] == 0xED {
				high := r
				low := rune(b[i+3]&0x0F)<<12 | rune(b[i+4]&0x3F)<<6 | rune(b[i+5]&0x3F)
				if low >= 0xDC00 && low <= 0xDFFF {
					runes = append(runes, 0x10000+((high-0xD800)<<10)+(low-0xDC00))
					i += 6
					continue
				}
			}
			runes = append(runes, r)
			i += 3
		default:
			runes = append(runes, rune(c))
			i++
		}
	}
	return string(runes)
}
