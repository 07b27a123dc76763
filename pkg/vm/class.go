package vm

import (
	"fmt"
	"strings"
	"sync"

	"github.com/daimatz/gojvm-reload/pkg/classfile"
	"github.com/daimatz/gojvm-reload/pkg/descriptor"
)

// NativeFunc implements a method in Go. For instance methods args[0] is the
// receiver.
type NativeFunc func(vm *VM, args []Value) (Value, error)

// Method is a runtime method: either bytecode (Code) or Go (Native).
type Method struct {
	Class      *Class
	Name       string
	Descriptor string
	Flags      uint16
	Code       *classfile.CodeAttribute
	Native     NativeFunc

	sig *descriptor.Signature
}

func (m *Method) IsStatic() bool   { return m.Flags&classfile.AccStatic != 0 }
func (m *Method) IsPrivate() bool  { return m.Flags&classfile.AccPrivate != 0 }
func (m *Method) IsPublic() bool   { return m.Flags&classfile.AccPublic != 0 }
func (m *Method) IsAbstract() bool { return m.Code == nil && m.Native == nil }

// Signature returns the parsed descriptor.
func (m *Method) Signature() *descriptor.Signature { return m.sig }

// Type resolves the method's descriptor into a MethodType through r. The
// result is computed from the descriptor each time, never cached.
func (m *Method) Type(r ClassResolver) (*MethodType, error) {
	return MethodTypeOf(m.Descriptor, r)
}

func (m *Method) String() string {
	if m.Class == nil {
		return m.Name + m.Descriptor
	}
	return m.Class.Name + "." + m.Name + m.Descriptor
}

// Class is a loaded class, interface, primitive type or array type.
type Class struct {
	Name       string // internal form; "int" for primitives, "[I" for arrays
	Flags      uint16
	Super      *Class
	Interfaces []*Class
	Methods    []*Method
	File       *classfile.ClassFile
	Primitive  descriptor.Kind
	Component  *Class

	loader *Loader

	mu        sync.Mutex
	statics   map[string]Value
	initState initState
	initErr   error
}

type initState int

const (
	uninitialized initState = iota
	initializing
	initialized
)

// NewClass creates a class that has not been defined in any loader yet.
func NewClass(name string, flags uint16, super *Class, interfaces ...*Class) *Class {
	return &Class{
		Name:       name,
		Flags:      flags,
		Super:      super,
		Interfaces: interfaces,
		statics:    make(map[string]Value),
	}
}

var primitiveClasses = func() map[descriptor.Kind]*Class {
	m := make(map[descriptor.Kind]*Class)
	for _, k := range []descriptor.Kind{
		descriptor.Byte, descriptor.Char, descriptor.Double, descriptor.Float,
		descriptor.Int, descriptor.Long, descriptor.Short, descriptor.Boolean, descriptor.Void,
	} {
		name := descriptor.Type{Kind: k}.JavaName()
		m[k] = &Class{Name: name, Flags: classfile.AccPublic | classfile.AccFinal, Primitive: k}
	}
	return m
}()

// PrimitiveClass returns the class object of a primitive type, or nil.
func PrimitiveClass(k descriptor.Kind) *Class {
	return primitiveClasses[k]
}

// ArrayOf returns an array class with the given component type.
func ArrayOf(component *Class) *Class {
	return &Class{
		Name:      "[" + component.Descriptor(),
		Flags:     classfile.AccPublic | classfile.AccFinal,
		Component: component,
		loader:    component.loader,
		statics:   make(map[string]Value),
	}
}

// DefineMethod adds a Go-implemented method. It panics on a malformed
// descriptor, which is a programming error in the native class definition.
func (c *Class) DefineMethod(flags uint16, name, desc string, fn NativeFunc) *Method {
	m, err := c.AddMethod(&Method{Name: name, Descriptor: desc, Flags: flags, Native: fn})
	if err != nil {
		panic(fmt.Sprintf("vm: defining %s.%s%s: %v", c.Name, name, desc, err))
	}
	return m
}

// AddMethod attaches m to c after validating its descriptor.
func (c *Class) AddMethod(m *Method) (*Method, error) {
	sig, err := descriptor.ParseMethod(m.Descriptor)
	if err != nil {
		return nil, err
	}
	m.Class = c
	m.sig = sig
	c.Methods = append(c.Methods, m)
	return m, nil
}

// Loader returns the loader that defined c, or nil.
func (c *Class) Loader() *Loader { return c.loader }

func (c *Class) IsInterface() bool { return c.Flags&classfile.AccInterface != 0 }
func (c *Class) IsPrimitive() bool { return c.Primitive != 0 }
func (c *Class) IsArray() bool     { return c.Component != nil }

// Descriptor returns the field descriptor naming this class.
func (c *Class) Descriptor() string {
	switch {
	case c.IsPrimitive():
		return string(rune(c.Primitive))
	case c.IsArray():
		return c.Name
	default:
		return "L" + c.Name + ";"
	}
}

// JavaName returns the dotted binary name, e.g. "pkg.Foo$$E1".
func (c *Class) JavaName() string {
	return strings.ReplaceAll(c.Name, "/", ".")
}

// PackageName returns the internal package prefix ("pkg" for "pkg/Foo").
func (c *Class) PackageName() string {
	if i := strings.LastIndexByte(c.Name, '/'); i >= 0 {
		return c.Name[:i]
	}
	return ""
}

// NestHost returns the name of the class's nest host. A NestHost attribute
// wins; otherwise the host is derived from the binary name, so "pkg/Foo$Bar"
// and "pkg/Foo$$E2" both nest in "pkg/Foo".
func (c *Class) NestHost() string {
	if c.File != nil {
		if host := c.File.NestHostName(); host != "" {
			return host
		}
	}
	start := strings.LastIndexByte(c.Name, '/') + 1
	if i := strings.IndexByte(c.Name[start:], '$'); i > 0 {
		return c.Name[:start+i]
	}
	return c.Name
}

// DeclaredMethod finds a method declared directly on c.
func (c *Class) DeclaredMethod(name, desc string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Descriptor == desc {
			return m
		}
	}
	return nil
}

// FindMethod resolves name and desc the way the JVM resolves a method
// reference: the class and its superclasses first, then superinterfaces.
func (c *Class) FindMethod(name, desc string) *Method {
	for k := c; k != nil; k = k.Super {
		if m := k.DeclaredMethod(name, desc); m != nil {
			return m
		}
	}
	var abstract *Method
	for k := c; k != nil; k = k.Super {
		for _, iface := range k.Interfaces {
			if m := iface.FindMethod(name, desc); m != nil {
				if !m.IsAbstract() {
					return m
				}
				if abstract == nil {
					abstract = m
				}
			}
		}
	}
	return abstract
}

// PublicMethods returns the public member methods of c, including those
// inherited from superclasses and superinterfaces, in declaration order with
// duplicates removed by identity. Interfaces do not inherit from Object here.
func (c *Class) PublicMethods() []*Method {
	var out []*Method
	seen := make(map[*Method]bool)
	var visit func(k *Class)
	visit = func(k *Class) {
		if k == nil {
			return
		}
		for _, m := range k.Methods {
			if m.IsPublic() && !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
		if !k.IsInterface() {
			visit(k.Super)
		}
		for _, iface := range k.Interfaces {
			visit(iface)
		}
	}
	visit(c)
	return out
}

// InstanceOf reports whether c is the named class or extends or implements it.
func (c *Class) InstanceOf(name string) bool {
	for k := c; k != nil; k = k.Super {
		if k.Name == name {
			return true
		}
		for _, iface := range k.Interfaces {
			if iface.InstanceOf(name) {
				return true
			}
		}
	}
	return false
}

// IsSubclassOf reports whether c is other or extends or implements it.
func (c *Class) IsSubclassOf(other *Class) bool {
	if c == nil || other == nil {
		return false
	}
	return c.InstanceOf(other.Name)
}

// GetStatic returns the value of a static field.
func (c *Class) GetStatic(name string) (Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.statics[name]
	return v, ok
}

// SetStatic stores a static field.
func (c *Class) SetStatic(name string, v Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statics == nil {
		c.statics = make(map[string]Value)
	}
	c.statics[name] = v
}

func (c *Class) String() string {
	return c.JavaName()
}
