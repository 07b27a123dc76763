package reload

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/daimatz/gojvm-reload/internal/classgen"
	"github.com/daimatz/gojvm-reload/pkg/classfile"
	"github.com/daimatz/gojvm-reload/pkg/indy"
	"github.com/daimatz/gojvm-reload/pkg/lambda"
	"github.com/daimatz/gojvm-reload/pkg/native"
	"github.com/daimatz/gojvm-reload/pkg/vm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func u2op(op byte, idx uint16) []byte {
	return append([]byte{op}, classgen.U2(idx)...)
}

// fooClass mirrors:
//
//	class pkg.Foo {
//	    int x;
//	    interface Sam { int m(); }
//	    static int run() { Sam s = () -> 77; return s.m(); }
//	    int inst() { Sam s = () -> x; return s.m(); }
//	}
func fooClass() *classgen.Builder {
	b := classgen.New("pkg/Foo", "").Field(0, "x", "I")
	x := b.Fieldref("pkg/Foo", "x", "I")
	m := b.InterfaceMethodref("pkg/Foo$Sam", "m", "()I")
	invokeM := append(u2op(0xB9, m), 1, 0)

	run := b.LambdaSite("m", "()Lpkg/Foo$Sam;", "()I",
		classgen.Impl{Kind: classfile.RefInvokeStatic, Owner: "pkg/Foo", Name: "lambda$run$0", Desc: "()I"}, "()I")
	inst := b.LambdaSite("m", "(Lpkg/Foo;)Lpkg/Foo$Sam;", "()I",
		classgen.Impl{Kind: classfile.RefInvokeSpecial, Owner: "pkg/Foo", Name: "lambda$inst$1", Desc: "()I"}, "()I")

	code := append(u2op(0xBA, run), 0, 0)
	code = append(code, invokeM...)
	b.Method(classfile.AccStatic, "run", "()I", 1, 0, append(code, 0xAC))

	code = append([]byte{0x2A}, u2op(0xBA, inst)...)
	code = append(code, 0, 0)
	code = append(code, invokeM...)
	b.Method(0, "inst", "()I", 1, 1, append(code, 0xAC))

	b.Method(classfile.AccPrivate|classfile.AccStatic|classfile.AccSynthetic, "lambda$run$0", "()I", 1, 0,
		[]byte{0x10, 77, 0xAC})
	b.Method(classfile.AccPrivate|classfile.AccSynthetic, "lambda$inst$1", "()I", 1, 1,
		append(append([]byte{0x2A}, u2op(0xB4, x)...), 0xAC))
	return b
}

// executorClass is version n of pkg.Foo's executor: its lambda bodies add
// n*1000 to what the original returned.
func executorClass(n int) *classgen.Builder {
	b := classgen.New(ExecutorName("pkg/Foo", n), "")
	x := b.Fieldref("pkg/Foo", "x", "I")
	bonus := classgen.U2(uint16(n * 1000))
	b.Method(classfile.AccPublic|classfile.AccStatic, "lambda$run$0", "()I", 2, 0,
		[]byte{0x10, 77, 0x11, bonus[0], bonus[1], 0x60, 0xAC})
	code := append([]byte{0x2A}, u2op(0xB4, x)...)
	code = append(code, 0x11, bonus[0], bonus[1], 0x60, 0xAC)
	b.Method(classfile.AccPublic|classfile.AccStatic, "lambda$inst$1", "(Lpkg/Foo;)I", 2, 1, code)
	return b
}

func parse(t *testing.T, b *classgen.Builder) *classfile.ClassFile {
	t.Helper()
	cf, err := classfile.Parse(bytes.NewReader(b.Bytes()))
	require.NoError(t, err)
	return cf
}

type env struct {
	loader   *vm.Loader
	registry *Registry
	handler  *Handler
	links    *atomic.Int32
	foo      *vm.Class
}

func newEnv(t *testing.T, opts ...HandlerOption) *env {
	t.Helper()
	l := vm.NewLoader(nil)
	native.Register(l)
	_, err := l.DefineClassFile(parse(t, classgen.New("pkg/Foo$Sam", "").
		Flags(classfile.AccPublic|classfile.AccInterface|classfile.AccAbstract).
		Method(classfile.AccPublic|classfile.AccAbstract, "m", "()I", 0, 0, nil)))
	require.NoError(t, err)
	foo, err := l.DefineClassFile(parse(t, fooClass()))
	require.NoError(t, err)

	links := new(atomic.Int32)
	counting := func(caller *vm.Lookup, name string, invokedType, samType *vm.MethodType, impl *vm.MethodHandle, instantiatedType *vm.MethodType) (*lambda.CallSite, error) {
		links.Add(1)
		return lambda.Metafactory(caller, name, invokedType, samType, impl, instantiatedType)
	}
	registry := NewRegistry(l, nil)
	emulator := indy.NewEmulator(indy.NewReflector(l), indy.WithMetafactory(counting))
	return &env{
		loader:   l,
		registry: registry,
		handler:  NewHandler(registry, emulator, opts...),
		links:    links,
		foo:      foo,
	}
}

func (e *env) thread() *vm.VM {
	v := vm.NewVM(e.loader)
	v.Indy = e.handler
	return v
}

func (e *env) run(t *testing.T) int32 {
	t.Helper()
	ret, err := e.thread().Invoke(e.foo.DeclaredMethod("run", "()I"), nil)
	require.NoError(t, err)
	return ret.Int
}

func (e *env) inst(t *testing.T, x int32) int32 {
	t.Helper()
	obj := vm.NewObject(e.foo)
	obj.Fields["x"] = vm.IntValue(x)
	ret, err := e.thread().InvokeVirtual(e.foo.DeclaredMethod("inst", "()I"), []vm.Value{vm.RefValue(obj)})
	require.NoError(t, err)
	return ret.Int
}

func TestInvokeDynamicAcrossReloads(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, int32(77), e.run(t))
	assert.Equal(t, int32(5), e.inst(t, 5))

	for n := 1; n <= 2; n++ {
		exec, err := e.registry.ReloadClassFile("pkg/Foo", parse(t, executorClass(n)))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("pkg.Foo$$E%d", n), exec.Name)

		assert.Equal(t, int32(77+n*1000), e.run(t))
		assert.Equal(t, int32(5+n*1000), e.inst(t, 5))
	}
}

func TestCallSiteCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := newEnv(t, WithCallSiteCache(), WithHandlerMetrics(NewMetrics(reg)))

	for i := 0; i < 3; i++ {
		assert.Equal(t, int32(77), e.run(t))
	}
	assert.Equal(t, int32(1), e.links.Load())
	assert.Equal(t, 1, e.handler.cache.len())

	_, err := e.registry.ReloadClassFile("pkg/Foo", parse(t, executorClass(1)))
	require.NoError(t, err)
	assert.Equal(t, 0, e.handler.cache.len(), "reload must clear the cache before returning")

	assert.Equal(t, int32(1077), e.run(t))
	assert.Equal(t, int32(1077), e.run(t))
	assert.Equal(t, int32(2), e.links.Load())

	families, err := reg.Gather()
	require.NoError(t, err)
	got := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch mf.GetName() {
			case "gojvm_reload_callsite_cache_lookups_total":
				got[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
			case "gojvm_reload_generation":
				got["generation"] = m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, map[string]float64{"hit": 3, "miss": 2, "generation": 1}, got)
}

func TestUncachedHandlerLinksEveryTime(t *testing.T) {
	e := newEnv(t)
	e.run(t)
	e.run(t)
	assert.Equal(t, int32(2), e.links.Load())
}

func TestSiteCacheIgnoresStaleGeneration(t *testing.T) {
	c := newSiteCache()
	key := siteKey{index: 3}
	old := &lambda.CallSite{}
	fresh := &lambda.CallSite{}

	got, hit, err := c.get(key, 1, func() (*lambda.CallSite, error) { return old, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Same(t, old, got)

	got, hit, err = c.get(key, 1, func() (*lambda.CallSite, error) { t.Fatal("unexpected link"); return nil, nil })
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Same(t, old, got)

	got, hit, err = c.get(key, 2, func() (*lambda.CallSite, error) { return fresh, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Same(t, fresh, got)
}

func TestConcurrentInvokeDynamic(t *testing.T) {
	e := newEnv(t, WithCallSiteCache())

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			v := e.thread()
			ret, err := v.Invoke(e.foo.DeclaredMethod("run", "()I"), nil)
			if err != nil {
				return err
			}
			if ret.Int != 77 {
				return fmt.Errorf("run() = %d, want 77", ret.Int)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.LessOrEqual(t, e.links.Load(), int32(16))
	assert.Equal(t, 1, e.handler.cache.len())
}

func TestRegistry(t *testing.T) {
	e := newEnv(t)
	r := e.registry

	assert.Nil(t, r.Executor("pkg/Foo"))
	assert.Nil(t, r.ExecutorFor(e.foo))
	assert.Equal(t, "pkg/Foo$$E1", r.NextExecutorName("pkg/Foo"))

	_, err := r.ReloadClassFile("pkg/Foo", parse(t, executorClass(2)))
	assert.Error(t, err, "executor version must be the next one")
	assert.Equal(t, uint64(0), r.Generation())

	var notified []string
	r.Subscribe(func(typeName string, generation uint64) {
		notified = append(notified, fmt.Sprintf("%s@%d", typeName, generation))
	})
	exec, err := r.ReloadClassFile("pkg/Foo", parse(t, executorClass(1)))
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/Foo@1"}, notified)
	assert.Same(t, exec, r.Executor("pkg/Foo"))
	assert.Same(t, exec, r.ExecutorFor(e.foo))
	assert.Same(t, exec, r.ExecutorFor(exec.Class), "executor code belongs to the reloaded type")

	inner := vm.NewClass("pkg/Foo$Inner", classfile.AccPublic, nil)
	assert.Nil(t, r.ExecutorFor(inner))

	_, err = r.Reload("pkg/Foo", vm.NewClass("pkg/Bar$$E2", classfile.AccPublic, nil))
	assert.Error(t, err)
}

func TestUnsupportedSiteFailsDistinctly(t *testing.T) {
	e := newEnv(t)
	b := classgen.New("pkg/Alt", "")
	site := b.AltLambdaSite("m", "()Lpkg/Foo$Sam;", "()I",
		classgen.Impl{Kind: classfile.RefInvokeStatic, Owner: "pkg/Alt", Name: "lambda$0", Desc: "()I"}, "()I")
	b.Method(classfile.AccStatic, "run", "()Ljava/lang/Object;", 1, 0, append(append(u2op(0xBA, site), 0, 0), 0xB0))
	b.Method(classfile.AccPrivate|classfile.AccStatic, "lambda$0", "()I", 1, 0, []byte{0x04, 0xAC})
	alt, err := e.loader.DefineClassFile(parse(t, b))
	require.NoError(t, err)

	_, err = e.thread().Invoke(alt.DeclaredMethod("run", "()Ljava/lang/Object;"), nil)
	var ce *indy.CallEmulationError
	require.ErrorAs(t, err, &ce)
	var unsupported *indy.UnsupportedBootstrapError
	assert.ErrorAs(t, err, &unsupported)
}
