package vm

import (
	"strings"

	"github.com/daimatz/gojvm-reload/pkg/descriptor"
)

// MethodType is a method descriptor whose class names have been resolved.
type MethodType struct {
	Params []*Class
	Return *Class
}

// NewMethodType builds a MethodType from resolved classes.
func NewMethodType(ret *Class, params ...*Class) *MethodType {
	return &MethodType{Params: params, Return: ret}
}

// MethodTypeOf parses desc and resolves every class it names through r.
// A bare type token yields a type with no parameters. Syntax errors are
// *descriptor.MalformedSignatureError; unloadable names are
// *descriptor.TypeResolutionError.
func MethodTypeOf(desc string, r ClassResolver) (*MethodType, error) {
	sig, err := descriptor.Parse(desc)
	if err != nil {
		return nil, err
	}
	mt := &MethodType{Params: make([]*Class, len(sig.Params))}
	for i, p := range sig.Params {
		if mt.Params[i], err = resolveType(p, r); err != nil {
			return nil, err
		}
	}
	if mt.Return, err = resolveType(sig.Return, r); err != nil {
		return nil, err
	}
	return mt, nil
}

func resolveType(t descriptor.Type, r ClassResolver) (*Class, error) {
	switch t.Kind {
	case descriptor.Object:
		c, err := r.LoadClass(t.ClassName)
		if err != nil {
			return nil, &descriptor.TypeResolutionError{Name: t.ClassName, Err: err}
		}
		return c, nil
	case descriptor.Array:
		elem, err := resolveType(*t.Elem, r)
		if err != nil {
			return nil, err
		}
		return ArrayOf(elem), nil
	default:
		return PrimitiveClass(t.Kind), nil
	}
}

// Descriptor renders the type as a method descriptor.
func (t *MethodType) Descriptor() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range t.Params {
		sb.WriteString(p.Descriptor())
	}
	sb.WriteByte(')')
	sb.WriteString(t.Return.Descriptor())
	return sb.String()
}

// String renders the type the way java.lang.invoke does, e.g. "(pkg.Foo)int".
func (t *MethodType) String() string {
	names := make([]string, len(t.Params))
	for i, p := range t.Params {
		names[i] = p.JavaName()
	}
	return "(" + strings.Join(names, ",") + ")" + t.Return.JavaName()
}

// InsertParam returns a copy with c inserted at position i.
func (t *MethodType) InsertParam(i int, c *Class) *MethodType {
	params := make([]*Class, 0, len(t.Params)+1)
	params = append(params, t.Params[:i]...)
	params = append(params, c)
	params = append(params, t.Params[i:]...)
	return &MethodType{Params: params, Return: t.Return}
}

// DropParams returns a copy without parameters [from, to).
func (t *MethodType) DropParams(from, to int) *MethodType {
	params := make([]*Class, 0, len(t.Params)-(to-from))
	params = append(params, t.Params[:from]...)
	params = append(params, t.Params[to:]...)
	return &MethodType{Params: params, Return: t.Return}
}

// Equal compares two types by descriptor.
func (t *MethodType) Equal(o *MethodType) bool {
	return o != nil && t.Descriptor() == o.Descriptor()
}
