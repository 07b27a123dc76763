package vm

import (
	"github.com/daimatz/gojvm-reload/pkg/classfile"
)

// AccessMode is the set of privileges a Lookup carries.
type AccessMode uint8

const (
	AccessPublic AccessMode = 1 << iota
	AccessPackage
	AccessPrivate

	AccessFull = AccessPublic | AccessPackage | AccessPrivate
)

// Lookup is an access context: a lookup class plus the privileges code in
// that class has. It is immutable; In returns a new Lookup.
type Lookup struct {
	class *Class
	mode  AccessMode
}

// NewLookup returns a full-privilege lookup, as if created inside c.
func NewLookup(c *Class) *Lookup {
	return &Lookup{class: c, mode: AccessFull}
}

// PublicLookup returns a lookup on c that can only see public members.
func PublicLookup(c *Class) *Lookup {
	return &Lookup{class: c, mode: AccessPublic}
}

func (l *Lookup) LookupClass() *Class { return l.class }
func (l *Lookup) Mode() AccessMode    { return l.mode }

func (l *Lookup) String() string {
	switch l.mode {
	case AccessFull:
		return l.class.JavaName()
	case AccessPublic:
		return l.class.JavaName() + "/public"
	default:
		return l.class.JavaName() + "/package"
	}
}

// In returns a lookup on c. Private access survives only within the same
// nest, package access only within the same package.
func (l *Lookup) In(c *Class) *Lookup {
	if c == l.class {
		return l
	}
	mode := l.mode
	switch {
	case c.NestHost() == l.class.NestHost() && c.PackageName() == l.class.PackageName():
	case c.PackageName() == l.class.PackageName():
		mode &^= AccessPrivate
	default:
		mode &= AccessPublic
	}
	return &Lookup{class: c, mode: mode}
}

// FindStatic produces a handle to a static method of refc.
func (l *Lookup) FindStatic(refc *Class, name string, typ *MethodType) (*MethodHandle, error) {
	m, err := l.resolve(refc, name, typ)
	if err != nil {
		return nil, err
	}
	if !m.IsStatic() {
		return nil, &NoSuchMethodError{Class: refc.Name, Name: name, Descriptor: typ.Descriptor(), Reason: "method is not static"}
	}
	return &MethodHandle{Kind: classfile.RefInvokeStatic, Member: m, Type: typ}, nil
}

// FindVirtual produces a handle to an instance method of refc that dispatches
// on its receiver. The handle type has the receiver as parameter 0.
func (l *Lookup) FindVirtual(refc *Class, name string, typ *MethodType) (*MethodHandle, error) {
	m, err := l.resolve(refc, name, typ)
	if err != nil {
		return nil, err
	}
	if m.IsStatic() {
		return nil, &NoSuchMethodError{Class: refc.Name, Name: name, Descriptor: typ.Descriptor(), Reason: "method is static"}
	}
	kind := uint8(classfile.RefInvokeVirtual)
	if refc.IsInterface() {
		kind = classfile.RefInvokeInterface
	}
	return &MethodHandle{Kind: kind, Member: m, Type: typ.InsertParam(0, refc)}, nil
}

// FindSpecial produces a handle that invokes the named method without
// virtual dispatch, as invokespecial from inside specialCaller would. The
// lookup needs private access to specialCaller.
func (l *Lookup) FindSpecial(refc *Class, name string, typ *MethodType, specialCaller *Class) (*MethodHandle, error) {
	if l.mode&AccessPrivate == 0 || specialCaller.NestHost() != l.class.NestHost() {
		return nil, &IllegalAccessError{
			Lookup: l.String(),
			Member: refc.Name + "." + name + typ.Descriptor(),
			Reason: "no private access for invokespecial from " + specialCaller.JavaName(),
		}
	}
	if name == "<init>" || name == "<clinit>" {
		return nil, &NoSuchMethodError{Class: refc.Name, Name: name, Descriptor: typ.Descriptor(), Reason: "initializers are not special-invokable"}
	}
	m, err := l.resolve(refc, name, typ)
	if err != nil {
		return nil, err
	}
	if m.IsStatic() {
		return nil, &NoSuchMethodError{Class: refc.Name, Name: name, Descriptor: typ.Descriptor(), Reason: "method is static"}
	}
	return &MethodHandle{Kind: classfile.RefInvokeSpecial, Member: m, Type: typ.InsertParam(0, specialCaller), Caller: specialCaller}, nil
}

// Unreflect produces a handle for a method obtained reflectively.
func (l *Lookup) Unreflect(m *Method) (*MethodHandle, error) {
	if err := l.checkAccess(m); err != nil {
		return nil, err
	}
	typ, err := m.Type(m.Class.Loader())
	if err != nil {
		return nil, err
	}
	switch {
	case m.IsStatic():
		return &MethodHandle{Kind: classfile.RefInvokeStatic, Member: m, Type: typ}, nil
	case m.Class.IsInterface():
		return &MethodHandle{Kind: classfile.RefInvokeInterface, Member: m, Type: typ.InsertParam(0, m.Class)}, nil
	default:
		return &MethodHandle{Kind: classfile.RefInvokeVirtual, Member: m, Type: typ.InsertParam(0, m.Class)}, nil
	}
}

func (l *Lookup) resolve(refc *Class, name string, typ *MethodType) (*Method, error) {
	desc := typ.Descriptor()
	m := refc.FindMethod(name, desc)
	if m == nil {
		return nil, &NoSuchMethodError{Class: refc.Name, Name: name, Descriptor: desc}
	}
	if err := l.checkAccess(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (l *Lookup) checkAccess(m *Method) error {
	owner := m.Class
	samePackage := owner.PackageName() == l.class.PackageName()
	deny := func(reason string) error {
		return &IllegalAccessError{Lookup: l.String(), Member: m.String(), Reason: reason}
	}

	if owner.Flags&classfile.AccPublic == 0 && !(samePackage && l.mode&AccessPackage != 0) {
		return deny("class is not public")
	}
	switch {
	case m.IsPublic():
		return nil
	case m.IsPrivate():
		if l.mode&AccessPrivate != 0 && owner.NestHost() == l.class.NestHost() && samePackage {
			return nil
		}
		return deny("member is private")
	case m.Flags&classfile.AccProtected != 0:
		if l.mode&AccessPackage != 0 && (samePackage || l.class.IsSubclassOf(owner)) {
			return nil
		}
		return deny("member is protected")
	default:
		if l.mode&AccessPackage != 0 && samePackage {
			return nil
		}
		return deny("member is package-private")
	}
}
