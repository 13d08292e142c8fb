package classfile

import (
	"io"

	"classlift/internal/bytereader"
	"classlift/internal/constpool"
	"classlift/internal/descriptor"
	"classlift/internal/stackmap"
	"classlift/internal/verrors"

	"github.com/pkg/errors"
)

// recognizedClassAttributes is the strict allow-list of class-level
// attribute names: any other attribute name at any level is fatal
// rather than silently skipped, to surface unsupported class features
// early.
var recognizedClassAttributes = map[string]bool{
	"SourceFile":      true,
	"InnerClasses":    true,
	"EnclosingMethod": true,
	"Synthetic":       true,
	"Deprecated":      true,
}

var recognizedFieldAttributes = map[string]bool{
	"ConstantValue": true,
	"Signature":     true,
	"Synthetic":     true,
	"Deprecated":    true,
}

var recognizedMethodAttributes = map[string]bool{
	"Code":       true,
	"Signature":  true,
	"Exceptions": true,
	"Synthetic":  true,
	"Deprecated": true,
}

var recognizedCodeAttributes = map[string]bool{
	"LineNumberTable": true,
	"StackMapTable":   true,
}

// Parse reads a class file from r.
func Parse(r io.Reader) (*ClassFile, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(verrors.ErrIO, err.Error())
	}
	return ParseBytes(raw)
}

// ParseBytes parses an in-memory class file.
func ParseBytes(raw []byte) (*ClassFile, error) {
	br := bytereader.New(raw)

	magic := br.U4()
	if magic != Magic {
		return nil, verrors.Wrapf(verrors.ErrMalformedClass, "bad magic 0x%08X, expected 0x%08X", magic, uint32(Magic))
	}

	cf := &ClassFile{}
	cf.MinorVersion = br.U2()
	cf.MajorVersion = br.U2()
	if cf.MajorVersion > MaxSupportedMajor {
		return nil, verrors.Wrapf(verrors.ErrUnsupportedFeature, "class major version %d exceeds supported cap %d", cf.MajorVersion, MaxSupportedMajor)
	}

	pool, err := parseConstantPool(br)
	if err != nil {
		return nil, err
	}
	cf.Pool = pool

	cf.AccessFlags = AccessFlags(br.U2())

	thisClassIdx := int(br.U2())
	cf.ThisClass, err = pool.ClassName(thisClassIdx)
	if err != nil {
		return nil, errors.Wrap(err, "this_class")
	}

	superClassIdx := int(br.U2())
	if superClassIdx != 0 {
		cf.SuperClass, err = pool.ClassName(superClassIdx)
		if err != nil {
			return nil, errors.Wrap(err, "super_class")
		}
	}

	interfacesCount := br.U2()
	cf.Interfaces = make([]string, interfacesCount)
	for i := 0; i < int(interfacesCount); i++ {
		name, err := pool.ClassName(int(br.U2()))
		if err != nil {
			return nil, errors.Wrapf(err, "interface %d", i)
		}
		cf.Interfaces[i] = name
	}

	fieldsCount := br.U2()
	cf.Fields = make([]FieldInfo, fieldsCount)
	for i := 0; i < int(fieldsCount); i++ {
		f, err := parseField(br, pool)
		if err != nil {
			return nil, errors.Wrapf(err, "field %d", i)
		}
		cf.Fields[i] = f
	}

	methodsCount := br.U2()
	cf.Methods = make([]MethodInfo, methodsCount)
	for i := 0; i < int(methodsCount); i++ {
		m, err := parseMethod(br, pool, cf.ThisClass)
		if err != nil {
			return nil, errors.Wrapf(err, "method %d", i)
		}
		cf.Methods[i] = m
	}

	attrCount := br.U2()
	for i := 0; i < int(attrCount); i++ {
		name, info, err := readRawAttribute(br, pool)
		if err != nil {
			return nil, errors.Wrapf(err, "class attribute %d", i)
		}
		if !recognizedClassAttributes[name] {
			return nil, verrors.Wrapf(verrors.ErrMalformedClass, "unknown class attribute %q", name)
		}
		switch name {
		case "SourceFile":
			idx := bytereader.New(info).U2()
			sf, err := pool.Utf8(int(idx))
			if err != nil {
				return nil, errors.Wrap(err, "SourceFile")
			}
			cf.SourceFile = sf
		case "Synthetic":
			cf.Synthetic = true
		case "Deprecated":
			cf.Deprecated = true
		case "InnerClasses":
			ics, err := parseInnerClasses(info, pool)
			if err != nil {
				return nil, errors.Wrap(err, "InnerClasses")
			}
			cf.InnerClasses = ics
		case "EnclosingMethod":
			em, err := parseEnclosingMethod(info, pool)
			if err != nil {
				return nil, errors.Wrap(err, "EnclosingMethod")
			}
			cf.EnclosingMethod = em
		}
	}

	return cf, nil
}

func parseInnerClasses(info []byte, pool *constpool.Pool) ([]InnerClass, error) {
	r := bytereader.New(info)
	count := r.U2()
	out := make([]InnerClass, count)
	for i := 0; i < int(count); i++ {
		innerIdx := r.U2()
		outerIdx := r.U2()
		nameIdx := r.U2()
		flags := r.U2()

		ic := InnerClass{AccessFlags: AccessFlags(flags)}
		var err error
		ic.InnerClass, err = pool.ClassName(int(innerIdx))
		if err != nil {
			return nil, errors.Wrapf(err, "inner_classes[%d].inner_class_info_index", i)
		}
		if outerIdx != 0 {
			ic.OuterClass, err = pool.ClassName(int(outerIdx))
			if err != nil {
				return nil, errors.Wrapf(err, "inner_classes[%d].outer_class_info_index", i)
			}
		}
		if nameIdx != 0 {
			ic.InnerName, err = pool.Utf8(int(nameIdx))
			if err != nil {
				return nil, errors.Wrapf(err, "inner_classes[%d].inner_name_index", i)
			}
		}
		out[i] = ic
	}
	return out, nil
}

func parseEnclosingMethod(info []byte, pool *constpool.Pool) (*EnclosingMethodInfo, error) {
	r := bytereader.New(info)
	classIdx := r.U2()
	methodIdx := r.U2()

	em := &EnclosingMethodInfo{}
	var err error
	em.ClassName, err = pool.ClassName(int(classIdx))
	if err != nil {
		return nil, errors.Wrap(err, "class_index")
	}
	if methodIdx != 0 {
		em.MethodName, em.MethodDescriptor, err = pool.NameAndType(int(methodIdx))
		if err != nil {
			return nil, errors.Wrap(err, "method_index")
		}
	}
	return em, nil
}

func readRawAttribute(br *bytereader.Reader, pool *constpool.Pool) (name string, info []byte, err error) {
	nameIndex := br.U2()
	length := br.U4()
	name, err = pool.Utf8(int(nameIndex))
	if err != nil {
		return "", nil, errors.Wrap(err, "attribute_name_index")
	}
	info = br.Bytes(int(length))
	return name, info, nil
}

func parseField(br *bytereader.Reader, pool *constpool.Pool) (FieldInfo, error) {
	f := FieldInfo{}
	f.AccessFlags = AccessFlags(br.U2())
	nameIdx := br.U2()
	descIdx := br.U2()

	name, err := pool.Utf8(int(nameIdx))
	if err != nil {
		return FieldInfo{}, errors.Wrap(err, "field name")
	}
	f.Name = name

	desc, err := pool.Utf8(int(descIdx))
	if err != nil {
		return FieldInfo{}, errors.Wrap(err, "field descriptor")
	}
	f.Descriptor = desc

	f.Type, err = descriptor.ParseField(desc)
	if err != nil {
		return FieldInfo{}, err
	}

	attrCount := br.U2()
	for i := 0; i < int(attrCount); i++ {
		name, info, err := readRawAttribute(br, pool)
		if err != nil {
			return FieldInfo{}, err
		}
		if !recognizedFieldAttributes[name] {
			return FieldInfo{}, verrors.Wrapf(verrors.ErrMalformedClass, "unknown field attribute %q", name)
		}
		switch name {
		case "ConstantValue":
			idx := bytereader.New(info).U2()
			v, err := pool.ConstValue(int(idx))
			if err != nil {
				return FieldInfo{}, errors.Wrap(err, "ConstantValue")
			}
			f.ConstantValue = &v
		case "Signature":
			idx := bytereader.New(info).U2()
			sig, err := pool.Utf8(int(idx))
			if err != nil {
				return FieldInfo{}, errors.Wrap(err, "Signature")
			}
			f.GenericSig = sig
		case "Synthetic":
			f.Synthetic = true
		case "Deprecated":
			f.Deprecated = true
		}
	}

	return f, nil
}

func parseMethod(br *bytereader.Reader, pool *constpool.Pool, declaringClass string) (MethodInfo, error) {
	m := MethodInfo{}
	m.AccessFlags = AccessFlags(br.U2())
	nameIdx := br.U2()
	descIdx := br.U2()

	name, err := pool.Utf8(int(nameIdx))
	if err != nil {
		return MethodInfo{}, errors.Wrap(err, "method name")
	}
	m.Name = name

	desc, err := pool.Utf8(int(descIdx))
	if err != nil {
		return MethodInfo{}, errors.Wrap(err, "method descriptor")
	}
	m.Descriptor = desc

	m.Signature, err = descriptor.ParseMethod(desc)
	if err != nil {
		return MethodInfo{}, err
	}

	attrCount := br.U2()
	for i := 0; i < int(attrCount); i++ {
		name, info, err := readRawAttribute(br, pool)
		if err != nil {
			return MethodInfo{}, err
		}
		if !recognizedMethodAttributes[name] {
			return MethodInfo{}, verrors.Wrapf(verrors.ErrMalformedClass, "unknown method attribute %q", name)
		}
		switch name {
		case "Code":
			code, err := parseCodeAttribute(info, pool, m.Signature, m.IsStatic(), declaringClass)
			if err != nil {
				return MethodInfo{}, errors.Wrap(err, "Code")
			}
			m.Code = code
		case "Signature":
			idx := bytereader.New(info).U2()
			sig, err := pool.Utf8(int(idx))
			if err != nil {
				return MethodInfo{}, errors.Wrap(err, "Signature")
			}
			m.GenericSig = sig
		case "Exceptions":
			r := bytereader.New(info)
			count := r.U2()
			m.Exceptions = make([]string, count)
			for j := 0; j < int(count); j++ {
				cn, err := pool.ClassName(int(r.U2()))
				if err != nil {
					return MethodInfo{}, errors.Wrap(err, "Exceptions")
				}
				m.Exceptions[j] = cn
			}
		case "Synthetic":
			m.Synthetic = true
		case "Deprecated":
			m.Deprecated = true
		}
	}

	return m, nil
}

func parseCodeAttribute(info []byte, pool *constpool.Pool, sig descriptor.MethodType, isStatic bool, declaringClass string) (*CodeAttribute, error) {
	r := bytereader.New(info)
	ca := &CodeAttribute{}
	ca.MaxStack = r.U2()
	ca.MaxLocals = r.U2()
	codeLength := r.U4()
	ca.Code = r.Bytes(int(codeLength))

	excCount := r.U2()
	ca.Exceptions = make([]ExceptionHandler, excCount)
	for i := 0; i < int(excCount); i++ {
		eh := ExceptionHandler{
			StartPC:   uint32(r.U2()),
			EndPC:     uint32(r.U2()),
			HandlerPC: uint32(r.U2()),
		}
		catchTypeIdx := r.U2()
		if catchTypeIdx != 0 {
			cn, err := pool.ClassName(int(catchTypeIdx))
			if err != nil {
				return nil, errors.Wrap(err, "exception_table catch_type")
			}
			eh.CatchType = cn
		}
		ca.Exceptions[i] = eh
	}

	attrCount := r.U2()
	var rawStackMap []byte
	ca.LineNumbers = map[uint32]uint16{}
	for i := 0; i < int(attrCount); i++ {
		name, attrInfo, err := readRawAttribute(r, pool)
		if err != nil {
			return nil, err
		}
		if !recognizedCodeAttributes[name] {
			return nil, verrors.Wrapf(verrors.ErrMalformedClass, "unknown code attribute %q", name)
		}
		switch name {
		case "StackMapTable":
			rawStackMap = attrInfo
		case "LineNumberTable":
			lr := bytereader.New(attrInfo)
			count := lr.U2()
			for j := 0; j < int(count); j++ {
				startPC := lr.U2()
				line := lr.U2()
				ca.LineNumbers[uint32(startPC)] = line
			}
		}
	}

	entry := stackmap.SynthesizeEntryFrame(sig, isStatic, declaringClass)

	decoded, err := decodeStackMap(rawStackMap, pool)
	if err != nil {
		return nil, err
	}

	ca.StackMap = append([]stackmap.Frame{entry}, decoded...)

	return ca, nil
}

// decodeStackMap decodes the raw StackMapTable attribute body (frame
// count followed by that many compressed frames), binding the stack-map
// decoder's class-name resolution callback to pool.
func decodeStackMap(info []byte, pool *constpool.Pool) ([]stackmap.Frame, error) {
	if info == nil {
		return nil, nil
	}
	r := bytereader.New(info)
	count := r.U2()
	return stackmap.Decode(r, int(count), func(id int) (string, error) {
		return pool.ClassName(id)
	})
}
