package vm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/daimatz/gojvm-reload/internal/classgen"
	"github.com/daimatz/gojvm-reload/pkg/classfile"
)

func constInt(v int32) NativeFunc {
	return func(*VM, []Value) (Value, error) { return IntValue(v), nil }
}

func lookupFixture(t *testing.T) (*Loader, *Class) {
	t.Helper()
	l := testLoader()
	object, _ := l.Loaded("java/lang/Object")
	foo := l.Define(NewClass("pkg/Foo", classfile.AccPublic, object))
	foo.DefineMethod(classfile.AccPrivate|classfile.AccStatic, "secret", "()I", constInt(1))
	foo.DefineMethod(classfile.AccPublic, "value", "()I", constInt(2))
	foo.DefineMethod(classfile.AccPrivate, "hidden", "()I", constInt(3))
	return l, foo
}

func methodType(t *testing.T, l *Loader, desc string) *MethodType {
	t.Helper()
	typ, err := MethodTypeOf(desc, l)
	if err != nil {
		t.Fatalf("MethodTypeOf(%s): %v", desc, err)
	}
	return typ
}

func TestLookupIn(t *testing.T) {
	l, foo := lookupFixture(t)
	object, _ := l.Loaded("java/lang/Object")

	tests := []struct {
		class string
		want  AccessMode
	}{
		{"pkg/Foo", AccessFull},
		{"pkg/Foo$$E1", AccessFull},
		{"pkg/Foo$Inner", AccessFull},
		{"pkg/Sibling", AccessPublic | AccessPackage},
		{"other/Bar", AccessPublic},
	}
	for _, tt := range tests {
		c := foo
		if tt.class != foo.Name {
			c = NewClass(tt.class, classfile.AccPublic, object)
		}
		if got := NewLookup(foo).In(c).Mode(); got != tt.want {
			t.Errorf("In(%s): got mode %b, want %b", tt.class, got, tt.want)
		}
	}

	if got := PublicLookup(foo).In(NewClass("pkg/Foo$$E1", classfile.AccPublic, object)).Mode(); got != AccessPublic {
		t.Errorf("public lookup gained access: mode %b", got)
	}
}

func TestNestHostAttribute(t *testing.T) {
	l, foo := lookupFixture(t)
	cf, err := classfile.Parse(bytes.NewReader(classgen.New("pkg/Helper", "").NestHost("pkg/Foo").Bytes()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	helper, err := l.DefineClassFile(cf)
	if err != nil {
		t.Fatalf("define: %v", err)
	}

	if got := helper.NestHost(); got != "pkg/Foo" {
		t.Errorf("NestHost: got %q, want %q", got, "pkg/Foo")
	}
	if _, err := NewLookup(helper).FindStatic(foo, "secret", methodType(t, l, "()I")); err != nil {
		t.Errorf("nestmate cannot see private member: %v", err)
	}
}

func TestFindStatic(t *testing.T) {
	l, foo := lookupFixture(t)
	intType := methodType(t, l, "()I")

	h, err := NewLookup(foo).FindStatic(foo, "secret", intType)
	if err != nil {
		t.Fatalf("FindStatic: %v", err)
	}
	ret, err := h.Invoke(NewVM(l), nil)
	if err != nil || ret.Int != 1 {
		t.Errorf("invoke: got %v, %v; want 1", ret.Int, err)
	}

	var iae *IllegalAccessError
	if _, err := PublicLookup(foo).FindStatic(foo, "secret", intType); !errors.As(err, &iae) {
		t.Errorf("public lookup of private member: got %v, want IllegalAccessError", err)
	}
	var nsme *NoSuchMethodError
	if _, err := NewLookup(foo).FindStatic(foo, "value", intType); !errors.As(err, &nsme) {
		t.Errorf("FindStatic of instance method: got %v, want NoSuchMethodError", err)
	}
	if _, err := NewLookup(foo).FindStatic(foo, "missing", intType); !errors.As(err, &nsme) {
		t.Errorf("FindStatic of missing method: got %v, want NoSuchMethodError", err)
	}
}

func TestFindVirtualAndSpecial(t *testing.T) {
	l, foo := lookupFixture(t)
	intType := methodType(t, l, "()I")

	h, err := NewLookup(foo).FindVirtual(foo, "value", intType)
	if err != nil {
		t.Fatalf("FindVirtual: %v", err)
	}
	if got := h.Type.Descriptor(); got != "(Lpkg/Foo;)I" {
		t.Errorf("virtual handle type: got %s, want (Lpkg/Foo;)I", got)
	}
	if h.Kind != classfile.RefInvokeVirtual {
		t.Errorf("virtual handle kind: got %d", h.Kind)
	}

	sh, err := NewLookup(foo).FindSpecial(foo, "hidden", intType, foo)
	if err != nil {
		t.Fatalf("FindSpecial: %v", err)
	}
	if sh.Caller != foo || sh.Type.Descriptor() != "(Lpkg/Foo;)I" {
		t.Errorf("special handle: got caller %v type %s", sh.Caller, sh.Type)
	}

	var iae *IllegalAccessError
	if _, err := PublicLookup(foo).FindSpecial(foo, "hidden", intType, foo); !errors.As(err, &iae) {
		t.Errorf("FindSpecial without private access: got %v, want IllegalAccessError", err)
	}
}
