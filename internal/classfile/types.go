// Package classfile implements the top-level class-file container parse:
// magic/version check, constant pool, fields, methods, and attribute
// framing. There is no separate upstream class loader to depend on, so
// this package also implements that contract directly.
//
// Structured around a one-indexed constant pool with the Long/Double
// unusable-slot skip, and an attribute-name dispatch switch that rejects
// unknown attributes rather than skipping them. The Code attribute is
// decoded down to raw bytes, exception table and stack-map frames only;
// internal/program drives internal/lift over that data so classfile
// stays a leaf package.
package classfile

import (
	"classlift/internal/constpool"
	"classlift/internal/descriptor"
	"classlift/internal/stackmap"
)

// Magic is the fixed class-file magic number.
const Magic = 0xCAFEBABE

// MaxSupportedMajor is the ecosystem-specific cap this module fixes:
// classes newer than Java 8 are an unsupported feature, not malformed.
const MaxSupportedMajor = 52

// AccessFlags is the raw access_flags bitmask shared by classes, fields
// and methods.
type AccessFlags uint16

const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSuper        AccessFlags = 0x0020
	AccSynchronized AccessFlags = 0x0020
	AccBridge       AccessFlags = 0x0040
	AccVarargs      AccessFlags = 0x0080
	AccNative       AccessFlags = 0x0100
	AccInterface    AccessFlags = 0x0200
	AccAbstract     AccessFlags = 0x0400
	AccStrict       AccessFlags = 0x0800
	AccSynthetic    AccessFlags = 0x1000
	AccAnnotation   AccessFlags = 0x2000
	AccEnum         AccessFlags = 0x4000

	AccStaticMask = AccStatic
)

func (a AccessFlags) Is(flag AccessFlags) bool { return a&flag != 0 }

// ExceptionHandler is one entry of a Code attribute's exception table,
// feeding the lifter's exception-table lowering.
type ExceptionHandler struct {
	StartPC   uint32
	EndPC     uint32
	HandlerPC uint32
	CatchType string // empty string means "any" (catch-all / finally)
}

// CodeAttribute holds a method's Code attribute: raw bytecode, the
// declared stack/local sizes, the exception table, and decoded
// stack-map frames (frame 0 is the synthesized method-entry frame;
// decoded frames follow it in increasing-offset order).
type CodeAttribute struct {
	MaxStack     uint16
	MaxLocals    uint16
	Code         []byte
	Exceptions   []ExceptionHandler
	StackMap     []stackmap.Frame
	LineNumbers  map[uint32]uint16 // bytecode offset -> source line (kept, never consulted by the lifter)
}

// MethodInfo is one method_info entry.
type MethodInfo struct {
	AccessFlags AccessFlags
	Name        string
	Descriptor  string
	Signature   descriptor.MethodType

	Code       *CodeAttribute // nil for native/abstract methods
	GenericSig string         // Signature attribute, if present
	Exceptions []string       // Exceptions attribute: declared throws, by class name
	Synthetic  bool
	Deprecated bool
}

func (m *MethodInfo) IsStatic() bool { return m.AccessFlags.Is(AccStatic) }

// InnerClass is one entry of the class-level InnerClasses attribute.
type InnerClass struct {
	InnerClass  string
	OuterClass  string // empty if not a member class
	InnerName   string // empty for an anonymous class
	AccessFlags AccessFlags
}

// EnclosingMethodInfo is the class-level EnclosingMethod attribute, present
// on local and anonymous classes.
type EnclosingMethodInfo struct {
	ClassName      string
	MethodName     string // empty if the class is not enclosed by a method
	MethodDescriptor string
}

// FieldInfo is one field_info entry.
type FieldInfo struct {
	AccessFlags   AccessFlags
	Name          string
	Descriptor    string
	Type          descriptor.FieldType
	ConstantValue *constpool.Value
	GenericSig    string
	Synthetic     bool
	Deprecated    bool
}

// ClassFile is the parsed container.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16

	Pool *constpool.Pool

	AccessFlags AccessFlags
	ThisClass   string
	SuperClass  string // empty for java.lang.Object
	Interfaces  []string

	Fields  []FieldInfo
	Methods []MethodInfo

	SourceFile      string
	InnerClasses    []InnerClass
	EnclosingMethod *EnclosingMethodInfo
	Synthetic       bool
	Deprecated      bool
}
