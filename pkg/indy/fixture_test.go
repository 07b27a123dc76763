package indy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daimatz/gojvm-reload/pkg/classfile"
	"github.com/daimatz/gojvm-reload/pkg/native"
	"github.com/daimatz/gojvm-reload/pkg/vm"
)

const (
	privateStatic = classfile.AccPrivate | classfile.AccStatic
	publicStatic  = classfile.AccPublic | classfile.AccStatic
	publicIface   = classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract
	abstractIface = classfile.AccPublic | classfile.AccAbstract
)

// world is a loader holding
//
//	class pkg.Foo {
//	    int x;
//	    interface Sam { int m(); }
//	    private static int lambda$run$0() { return 77; }
//	    private int lambda$inst$1() { return x; }
//	    public int value() { return x * 2; }
//	}
//
// and its executor pkg.Foo$$Exec, whose relocated copies add 1000.
type world struct {
	loader *vm.Loader
	foo    *vm.Class
	sam    *vm.Class
	exec   *vm.Class
}

func intField(v vm.Value) int32 {
	return v.Ref.(*vm.Object).Fields["x"].Int
}

func newWorld(t *testing.T) *world {
	t.Helper()
	l := vm.NewLoader(nil)
	native.Register(l)
	object, err := l.LoadClass("java/lang/Object")
	require.NoError(t, err)

	w := &world{loader: l}
	w.sam = l.Define(vm.NewClass("pkg/Foo$Sam", publicIface, nil))
	w.sam.DefineMethod(abstractIface, "m", "()I", nil)

	w.foo = l.Define(vm.NewClass("pkg/Foo", classfile.AccPublic, object))
	w.foo.DefineMethod(privateStatic, "lambda$run$0", "()I", func(*vm.VM, []vm.Value) (vm.Value, error) {
		return vm.IntValue(77), nil
	})
	w.foo.DefineMethod(classfile.AccPrivate, "lambda$inst$1", "()I", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.IntValue(intField(args[0])), nil
	})
	w.foo.DefineMethod(classfile.AccPublic, "value", "()I", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.IntValue(intField(args[0]) * 2), nil
	})

	w.exec = l.Define(vm.NewClass("pkg/Foo$$Exec", classfile.AccPublic, object))
	w.exec.DefineMethod(publicStatic, "lambda$run$0", "()I", func(*vm.VM, []vm.Value) (vm.Value, error) {
		return vm.IntValue(1077), nil
	})
	w.exec.DefineMethod(publicStatic, "lambda$inst$1", "(Lpkg/Foo;)I", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.IntValue(intField(args[0]) + 1000), nil
	})
	w.exec.DefineMethod(publicStatic, "value", "(Lpkg/Foo;)I", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.IntValue(intField(args[0])*2 + 1000), nil
	})
	return w
}

func (w *world) newFoo(x int32) *vm.Object {
	obj := vm.NewObject(w.foo)
	obj.Fields["x"] = vm.IntValue(x)
	return obj
}

func (w *world) callSam(t *testing.T, instance interface{}) int32 {
	t.Helper()
	ret, err := vm.NewVM(w.loader).InvokeVirtual(w.sam.DeclaredMethod("m", "()I"), []vm.Value{vm.RefValue(instance)})
	require.NoError(t, err)
	return ret.Int
}

func staticHandle(name, desc string) Handle {
	return HandleFromRef(classfile.RefInvokeStatic, "pkg/Foo", name, desc)
}

var metafactory = HandleFromRef(classfile.RefInvokeStatic, "java/lang/invoke/LambdaMetafactory", "metafactory",
	"(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;"+
		"Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodHandle;Ljava/lang/invoke/MethodType;)"+
		"Ljava/lang/invoke/CallSite;")
