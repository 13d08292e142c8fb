package program

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"classlift/internal/classfile"
)

// buildAddMethodClass hand-assembles a minimal class file with a single
// static method `int add(int, int)` whose Code attribute is
// `iload_0; iload_1; iadd; ireturn`, exercising the parser and the
// lifter together the way a real classpath entry would.
func buildAddMethodClass(t *testing.T) []byte {
	t.Helper()

	u16 := func(v uint16) []byte {
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, v)
		return b
	}

	var pool bytes.Buffer
	var next uint16 = 1
	utf8 := func(s string) uint16 {
		pool.WriteByte(1)
		pool.Write(u16(uint16(len(s))))
		pool.WriteString(s)
		idx := next
		next++
		return idx
	}
	class := func(name string) uint16 {
		nameIdx := utf8(name)
		pool.WriteByte(7)
		pool.Write(u16(nameIdx))
		idx := next
		next++
		return idx
	}

	thisClass := class("Adder")
	superClass := class("java/lang/Object")
	methodName := utf8("add")
	methodDesc := utf8("(II)I")
	codeAttr := utf8("Code")

	code := []byte{0x1A, 0x1B, 0x60, 0xAC} // iload_0, iload_1, iadd, ireturn

	var codeInfo bytes.Buffer
	codeInfo.Write(u16(2)) // max_stack
	codeInfo.Write(u16(2)) // max_locals
	binary.Write(&codeInfo, binary.BigEndian, uint32(len(code)))
	codeInfo.Write(code)
	codeInfo.Write(u16(0)) // exception_table_length
	codeInfo.Write(u16(0)) // code attributes_count

	var method bytes.Buffer
	method.Write(u16(0x0008)) // ACC_STATIC
	method.Write(u16(methodName))
	method.Write(u16(methodDesc))
	method.Write(u16(1)) // attributes_count
	method.Write(u16(codeAttr))
	binary.Write(&method, binary.BigEndian, uint32(codeInfo.Len()))
	method.Write(codeInfo.Bytes())

	var out bytes.Buffer
	binary.Write(&out, binary.BigEndian, uint32(classfile.Magic))
	out.Write(u16(0))  // minor
	out.Write(u16(52)) // major
	out.Write(u16(next))
	out.Write(pool.Bytes())
	out.Write(u16(0)) // access_flags
	out.Write(u16(thisClass))
	out.Write(u16(superClass))
	out.Write(u16(0)) // interfaces_count
	out.Write(u16(0)) // fields_count
	out.Write(u16(1)) // methods_count
	out.Write(method.Bytes())
	out.Write(u16(0)) // class attributes_count

	return out.Bytes()
}

func TestLiftClassLiftsEachCodeBearingMethod(t *testing.T) {
	raw := buildAddMethodClass(t)

	lifted, err := LiftClass(raw, nil)
	require.NoError(t, err)
	require.Equal(t, "Adder", lifted.ThisClass)
	require.Len(t, lifted.Methods, 1)

	m := lifted.Methods[0]
	require.Equal(t, "add", m.Name)
	require.NoError(t, m.Err)
	require.NotNil(t, m.Blocks)
	require.Len(t, m.Blocks.Blocks, 1)
}

func TestLiftClassRejectsMalformedInput(t *testing.T) {
	_, err := LiftClass([]byte{0, 0, 0, 0}, nil)
	require.Error(t, err)
}
