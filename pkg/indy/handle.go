// Package indy emulates invokedynamic call sites that were linked through
// LambdaMetafactory, so they can be re-linked after a class is reloaded and
// its implementation methods have moved into an executor class.
package indy

import (
	"fmt"
	"strings"

	"github.com/daimatz/gojvm-reload/pkg/classfile"
	"github.com/daimatz/gojvm-reload/pkg/vm"
)

// Kind classifies a method handle by how its member is looked up.
type Kind int

const (
	KindUnsupported Kind = iota
	KindStatic
	KindSpecial
	KindVirtual
	KindInterface
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindSpecial:
		return "special"
	case KindVirtual:
		return "virtual"
	case KindInterface:
		return "interface"
	}
	return "unsupported"
}

// Handle is a method handle constant as captured from a class file: a
// member named by owner, name and descriptor, not yet resolved.
type Handle struct {
	Kind       Kind
	Owner      string // internal form, "pkg/Foo"
	Name       string
	Descriptor string
	RefKind    uint8 // the raw reference_kind tag
}

// HandleFromRef classifies a class-file method handle. Reference kinds other
// than invokestatic, invokespecial, invokevirtual and invokeinterface map to
// KindUnsupported.
func HandleFromRef(refKind uint8, owner, name, desc string) Handle {
	h := Handle{Owner: owner, Name: name, Descriptor: desc, RefKind: refKind}
	switch refKind {
	case classfile.RefInvokeStatic:
		h.Kind = KindStatic
	case classfile.RefInvokeSpecial:
		h.Kind = KindSpecial
	case classfile.RefInvokeVirtual:
		h.Kind = KindVirtual
	case classfile.RefInvokeInterface:
		h.Kind = KindInterface
	}
	return h
}

// HandleFromInfo converts a resolved MethodHandle constant.
func HandleFromInfo(info *classfile.MethodHandleInfo) Handle {
	return HandleFromRef(info.Kind, info.ClassName, info.MemberName, info.Descriptor)
}

func (h Handle) String() string {
	return fmt.Sprintf("%s %s.%s:%s", classfile.RefKindName(h.RefKind), h.Owner, h.Name, h.Descriptor)
}

// Executor is the class a reloaded type's implementation methods were moved
// into. Instance methods become static there and take the receiver as their
// first parameter.
type Executor struct {
	Name  string // dotted binary name, "pkg.Foo$$E2"
	Class *vm.Class
}

// ExecutorOf binds c as an executor.
func ExecutorOf(c *vm.Class) *Executor {
	return &Executor{Name: c.JavaName(), Class: c}
}

// relocates reports whether h must be looked up in exec instead of its owner:
// the executor's name starts with the owner's and h is not an interface
// method.
func relocates(h Handle, exec *Executor) bool {
	if exec == nil || h.Kind == KindInterface {
		return false
	}
	return strings.HasPrefix(exec.Name, strings.ReplaceAll(h.Owner, "/", "."))
}
