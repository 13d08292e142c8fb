// Package program is the orchestration layer between the class-file
// parser and the lifter: it loads a class, lifts every method that
// carries a Code attribute, and reports the result via structured
// logging, staged the way a load-then-run driver narrates its progress.
package program

import (
	"github.com/sirupsen/logrus"

	"classlift/internal/classfile"
	"classlift/internal/ir"
	"classlift/internal/lift"
)

// LiftedMethod pairs a method's identity with its lifted block map, or
// the error that stopped lifting. A native/abstract method (no Code
// attribute) is skipped and never appears here.
type LiftedMethod struct {
	Name       string
	Descriptor string
	Blocks     *ir.BlockMap
	Err        error
}

// LiftedClass is the result of lifting every eligible method of one
// parsed class.
type LiftedClass struct {
	ThisClass string
	Methods   []LiftedMethod
}

// LiftClass parses raw and lifts every method carrying a Code attribute.
// A parse failure is fatal for the whole class (malformed input never
// yields partial output); a single method's lift failure is recorded on
// its LiftedMethod and does not abort its siblings, since each method's
// symbolic state is independent.
func LiftClass(raw []byte, log *logrus.Entry) (*LiftedClass, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	cf, err := classfile.ParseBytes(raw)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"class":   cf.ThisClass,
		"methods": len(cf.Methods),
	}).Debug("parsed class file")

	out := &LiftedClass{ThisClass: cf.ThisClass}
	for _, m := range cf.Methods {
		if m.Code == nil {
			continue
		}
		entry := logrus.Fields{
			"class":  cf.ThisClass,
			"method": m.Name,
			"desc":   m.Descriptor,
		}
		blocks, err := lift.Lift(toLiftInput(cf, m))
		if err != nil {
			log.WithFields(entry).WithError(err).Warn("lift failed")
		} else {
			log.WithFields(entry).WithField("blocks", len(blocks.Blocks)).Debug("lifted method")
		}
		out.Methods = append(out.Methods, LiftedMethod{
			Name:       m.Name,
			Descriptor: m.Descriptor,
			Blocks:     blocks,
			Err:        err,
		})
	}
	return out, nil
}

func toLiftInput(cf *classfile.ClassFile, m classfile.MethodInfo) lift.Input {
	exceptions := make([]lift.ExceptionHandler, len(m.Code.Exceptions))
	for i, eh := range m.Code.Exceptions {
		exceptions[i] = lift.ExceptionHandler(eh)
	}
	return lift.Input{
		Code:           m.Code.Code,
		Pool:           cf.Pool,
		Frames:         m.Code.StackMap,
		Signature:      m.Signature,
		IsStatic:       m.IsStatic(),
		DeclaringClass: cf.ThisClass,
		Exceptions:     exceptions,
	}
}
