// Package descriptor parses JVM field and method descriptors.
//
// A method descriptor has the form "(P*)R", a field descriptor is a single
// type token. Class names inside descriptors are kept in internal form
// ("pkg/Foo$Bar").
package descriptor

import (
	"strings"
)

// Kind is the leading descriptor character of a type.
type Kind byte

const (
	Byte    Kind = 'B'
	Char    Kind = 'C'
	Double  Kind = 'D'
	Float   Kind = 'F'
	Int     Kind = 'I'
	Long    Kind = 'J'
	Short   Kind = 'S'
	Boolean Kind = 'Z'
	Void    Kind = 'V'
	Object  Kind = 'L'
	Array   Kind = '['
)

var primitiveNames = map[Kind]string{
	Byte:    "byte",
	Char:    "char",
	Double:  "double",
	Float:   "float",
	Int:     "int",
	Long:    "long",
	Short:   "short",
	Boolean: "boolean",
	Void:    "void",
}

// IsPrimitive reports whether k names a primitive type (void included).
func (k Kind) IsPrimitive() bool {
	_, ok := primitiveNames[k]
	return ok
}

// Type is a single parsed type token.
type Type struct {
	Kind      Kind
	ClassName string // internal name, Object only
	Elem      *Type  // component type, Array only
}

// ObjectType returns the reference type for an internal class name.
func ObjectType(internalName string) Type {
	return Type{Kind: Object, ClassName: internalName}
}

// ArrayOf returns the array type with the given component.
func ArrayOf(elem Type) Type {
	return Type{Kind: Array, Elem: &elem}
}

// String renders the type back to descriptor text.
func (t Type) String() string {
	var sb strings.Builder
	t.write(&sb)
	return sb.String()
}

func (t Type) write(sb *strings.Builder) {
	switch t.Kind {
	case Object:
		sb.WriteByte('L')
		sb.WriteString(t.ClassName)
		sb.WriteByte(';')
	case Array:
		sb.WriteByte('[')
		t.Elem.write(sb)
	default:
		sb.WriteByte(byte(t.Kind))
	}
}

// JavaName returns the source-level spelling, e.g. "int", "pkg.Foo", "int[]".
func (t Type) JavaName() string {
	switch t.Kind {
	case Object:
		return strings.ReplaceAll(t.ClassName, "/", ".")
	case Array:
		return t.Elem.JavaName() + "[]"
	default:
		return primitiveNames[t.Kind]
	}
}

// Slots returns the number of local variable slots a value of this type uses.
func (t Type) Slots() int {
	switch t.Kind {
	case Long, Double:
		return 2
	case Void:
		return 0
	default:
		return 1
	}
}

// Signature is a parsed method descriptor. A return-only signature was parsed
// from a bare type token and renders without a parameter list.
type Signature struct {
	Params     []Type
	Return     Type
	ReturnOnly bool
}

// String renders the signature back to descriptor text.
func (s *Signature) String() string {
	var sb strings.Builder
	if !s.ReturnOnly {
		sb.WriteByte('(')
		for _, p := range s.Params {
			p.write(&sb)
		}
		sb.WriteByte(')')
	}
	s.Return.write(&sb)
	return sb.String()
}

// ParamSlots returns the number of local variable slots used by the parameters.
func (s *Signature) ParamSlots() int {
	n := 0
	for _, p := range s.Params {
		n += p.Slots()
	}
	return n
}

// IsVoid reports whether the signature returns void.
func (s *Signature) IsVoid() bool {
	return s.Return.Kind == Void
}

// WithLeadingParam returns a copy of s with t inserted as parameter 0.
func (s *Signature) WithLeadingParam(t Type) *Signature {
	params := make([]Type, 0, len(s.Params)+1)
	params = append(params, t)
	params = append(params, s.Params...)
	return &Signature{Params: params, Return: s.Return}
}

// ClassNames returns every class name referenced by the signature, array
// component classes included, in order of appearance.
func (s *Signature) ClassNames() []string {
	var names []string
	collect := func(t Type) {
		for t.Kind == Array {
			t = *t.Elem
		}
		if t.Kind == Object {
			names = append(names, t.ClassName)
		}
	}
	for _, p := range s.Params {
		collect(p)
	}
	collect(s.Return)
	return names
}

// SplitNameAndDescriptor splits an invokedynamic name-and-type text such as
// "m()Lpkg/Type$Sam;" into its name and method descriptor.
func SplitNameAndDescriptor(s string) (string, string, error) {
	i := strings.IndexByte(s, '(')
	if i <= 0 {
		return "", "", &MalformedSignatureError{Input: s, Offset: max(i, 0), Reason: "expected name followed by '('"}
	}
	return s[:i], s[i:], nil
}
