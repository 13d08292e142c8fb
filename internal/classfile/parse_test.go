package classfile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// classBuilder assembles a minimal well-formed class file byte-for-byte,
// the way a hand-rolled test fixture has to when there is no compiler in
// the loop to produce one.
type classBuilder struct {
	utf8Idx map[string]uint16
	next    uint16
	entries [][]byte
}

func newClassBuilder() *classBuilder {
	return &classBuilder{utf8Idx: map[string]uint16{}, next: 1}
}

func (c *classBuilder) utf8(s string) uint16 {
	if idx, ok := c.utf8Idx[s]; ok {
		return idx
	}
	var e bytes.Buffer
	e.WriteByte(1) // tagUtf8
	binary.Write(&e, binary.BigEndian, uint16(len(s)))
	e.WriteString(s)
	idx := c.add(e.Bytes())
	c.utf8Idx[s] = idx
	return idx
}

func (c *classBuilder) class(name string) uint16 {
	nameIdx := c.utf8(name)
	var e bytes.Buffer
	e.WriteByte(7) // tagClass
	binary.Write(&e, binary.BigEndian, nameIdx)
	return c.add(e.Bytes())
}

func (c *classBuilder) nameAndType(name, desc string) uint16 {
	nameIdx := c.utf8(name)
	descIdx := c.utf8(desc)
	var e bytes.Buffer
	e.WriteByte(12) // tagNameAndType
	binary.Write(&e, binary.BigEndian, nameIdx)
	binary.Write(&e, binary.BigEndian, descIdx)
	return c.add(e.Bytes())
}

func (c *classBuilder) add(entry []byte) uint16 {
	idx := c.next
	c.entries = append(c.entries, entry)
	c.next++
	return idx
}

// build writes the full class file: a fixed header around the gathered
// constant pool plus the caller-supplied body (everything after
// access_flags onward is left to the test for clarity).
func (c *classBuilder) build(accessFlags, thisClass, superClass uint16, body []byte) []byte {
	var out bytes.Buffer
	binary.Write(&out, binary.BigEndian, uint32(Magic))
	binary.Write(&out, binary.BigEndian, uint16(0))  // minor
	binary.Write(&out, binary.BigEndian, uint16(52)) // major

	binary.Write(&out, binary.BigEndian, uint16(len(c.entries)+1))
	for _, e := range c.entries {
		out.Write(e)
	}

	binary.Write(&out, binary.BigEndian, accessFlags)
	binary.Write(&out, binary.BigEndian, thisClass)
	binary.Write(&out, binary.BigEndian, superClass)
	binary.Write(&out, binary.BigEndian, uint16(0)) // interfaces_count
	out.Write(body)

	return out.Bytes()
}

func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

// TestParseBytesMinimalClass covers the happy path: constant pool,
// this/super resolution, one synthetic field, one method with no Code
// attribute (native), and the class-level Synthetic/InnerClasses/
// EnclosingMethod supplement attributes.
func TestParseBytesMinimalClass(t *testing.T) {
	cb := newClassBuilder()
	thisClass := cb.class("Foo")
	superClass := cb.class("java/lang/Object")
	barNat := cb.nameAndType("bar", "()V")

	syntheticAttr := cb.utf8("Synthetic")
	innerClassesAttr := cb.utf8("InnerClasses")
	enclosingMethodAttr := cb.utf8("EnclosingMethod")
	fieldName := cb.utf8("x")
	fieldDesc := cb.utf8("I")
	methodName := cb.utf8("bar")
	methodDesc := cb.utf8("()V")

	var body bytes.Buffer

	// fields_count = 1
	body.Write(u16(1))
	body.Write(u16(0)) // access_flags
	body.Write(u16(fieldName))
	body.Write(u16(fieldDesc))
	body.Write(u16(1)) // attributes_count
	body.Write(u16(syntheticAttr))
	body.Write([]byte{0, 0, 0, 0}) // attribute_length

	// methods_count = 1
	body.Write(u16(1))
	body.Write(u16(0x0100)) // ACC_NATIVE
	body.Write(u16(methodName))
	body.Write(u16(methodDesc))
	body.Write(u16(0)) // attributes_count

	// class attributes_count = 3
	body.Write(u16(3))

	body.Write(u16(syntheticAttr))
	body.Write([]byte{0, 0, 0, 0}) // length 0

	var ic bytes.Buffer
	ic.Write(u16(1))         // number_of_classes
	ic.Write(u16(thisClass)) // inner_class_info_index
	ic.Write(u16(0))         // outer_class_info_index
	ic.Write(u16(0))         // inner_name_index
	ic.Write(u16(0))         // inner_class_access_flags
	body.Write(u16(innerClassesAttr))
	binary.Write(&body, binary.BigEndian, uint32(ic.Len()))
	body.Write(ic.Bytes())

	var em bytes.Buffer
	em.Write(u16(thisClass))
	em.Write(u16(barNat))
	body.Write(u16(enclosingMethodAttr))
	binary.Write(&body, binary.BigEndian, uint32(em.Len()))
	body.Write(em.Bytes())

	raw := cb.build(0, thisClass, superClass, body.Bytes())

	cf, err := ParseBytes(raw)
	require.NoError(t, err)

	require.Equal(t, "Foo", cf.ThisClass)
	require.Equal(t, "java/lang/Object", cf.SuperClass)
	require.True(t, cf.Synthetic)

	require.Len(t, cf.Fields, 1)
	require.Equal(t, "x", cf.Fields[0].Name)
	require.True(t, cf.Fields[0].Synthetic)

	require.Len(t, cf.Methods, 1)
	require.Equal(t, "bar", cf.Methods[0].Name)
	require.Nil(t, cf.Methods[0].Code)

	require.Len(t, cf.InnerClasses, 1)
	require.Equal(t, "Foo", cf.InnerClasses[0].InnerClass)
	require.Empty(t, cf.InnerClasses[0].OuterClass)

	require.NotNil(t, cf.EnclosingMethod)
	require.Equal(t, "Foo", cf.EnclosingMethod.ClassName)
	require.Equal(t, "bar", cf.EnclosingMethod.MethodName)
	require.Equal(t, "()V", cf.EnclosingMethod.MethodDescriptor)
}

// TestParseBytesRejectsBadMagic covers the malformed-header case: a bad
// magic number is a hard parse error, never a best-effort partial result.
func TestParseBytesRejectsBadMagic(t *testing.T) {
	raw := []byte{0, 0, 0, 0}
	_, err := ParseBytes(raw)
	require.Error(t, err)
}

// TestParseBytesRejectsUnsupportedMajorVersion covers the ecosystem cap
// on class-file major versions.
func TestParseBytesRejectsUnsupportedMajorVersion(t *testing.T) {
	var out bytes.Buffer
	binary.Write(&out, binary.BigEndian, uint32(Magic))
	binary.Write(&out, binary.BigEndian, uint16(0))
	binary.Write(&out, binary.BigEndian, uint16(MaxSupportedMajor+1))

	_, err := ParseBytes(out.Bytes())
	require.Error(t, err)
}

// TestParseBytesRejectsUnknownClassAttribute covers the strict
// allow-list policy: an attribute name outside the recognized set is
// fatal, not silently skipped.
func TestParseBytesRejectsUnknownClassAttribute(t *testing.T) {
	cb := newClassBuilder()
	thisClass := cb.class("Foo")
	superClass := cb.class("java/lang/Object")
	weirdAttr := cb.utf8("SomeVendorExtension")

	var body bytes.Buffer
	body.Write(u16(0)) // fields_count
	body.Write(u16(0)) // methods_count
	body.Write(u16(1)) // attributes_count
	body.Write(u16(weirdAttr))
	body.Write([]byte{0, 0, 0, 0})

	raw := cb.build(0, thisClass, superClass, body.Bytes())

	_, err := ParseBytes(raw)
	require.Error(t, err)
}
