package indy

import (
	"time"

	"go.uber.org/zap"

	"github.com/daimatz/gojvm-reload/pkg/descriptor"
	"github.com/daimatz/gojvm-reload/pkg/lambda"
	"github.com/daimatz/gojvm-reload/pkg/vm"
)

// MetafactoryFunc is the bootstrap method the emulator calls. Its arguments
// are in LambdaMetafactory.metafactory order.
type MetafactoryFunc func(caller *vm.Lookup, invokedName string, invokedType, samType *vm.MethodType, impl *vm.MethodHandle, instantiatedType *vm.MethodType) (*lambda.CallSite, error)

// Emulator links and invokes LambdaMetafactory call sites by hand. It holds
// no per-call state and is safe for concurrent use.
type Emulator struct {
	reflector   Reflector
	resolver    *Resolver
	metafactory MetafactoryFunc
	log         *zap.Logger
	metrics     *Metrics
}

type Option func(*Emulator)

func WithLogger(log *zap.Logger) Option {
	return func(e *Emulator) { e.log = log }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Emulator) { e.metrics = m }
}

// WithMetafactory replaces lambda.Metafactory as the bootstrap method.
func WithMetafactory(fn MetafactoryFunc) Option {
	return func(e *Emulator) { e.metafactory = fn }
}

func NewEmulator(r Reflector, opts ...Option) *Emulator {
	e := &Emulator{
		reflector:   r,
		metafactory: lambda.Metafactory,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resolver = NewResolver(r, e.log)
	return e
}

// Emulate links the call site described by bsm and args as the JVM would on
// first execution, then invokes it with invokedArgs on a fresh thread of the
// caller's loader and returns the result: for a lambda site, the functional
// interface instance. Arguments and result are converted with vm.ToValue
// and vm.Value.Interface. Every failure is a *CallEmulationError.
func (e *Emulator) Emulate(exec *Executor, bsm Handle, args BootstrapArgs, caller *vm.Lookup, nameAndDescriptor string, invokedArgs []interface{}) (interface{}, error) {
	loader := caller.LookupClass().Loader()
	if loader == nil {
		return nil, &CallEmulationError{Site: nameAndDescriptor, Stage: StageInvoke, Err: ErrNoLoader}
	}
	thread := vm.NewVM(loader)
	ret, err := e.EmulateOn(thread, exec, bsm, args, caller, nameAndDescriptor, vm.ToValues(invokedArgs))
	if err != nil {
		return nil, err
	}
	return ret.Interface(), nil
}

// EmulateOn is Emulate on an existing interpreter thread.
func (e *Emulator) EmulateOn(thread *vm.VM, exec *Executor, bsm Handle, args BootstrapArgs, caller *vm.Lookup, nameAndDescriptor string, invokedArgs []vm.Value) (vm.Value, error) {
	cs, err := e.Link(exec, bsm, args, caller, nameAndDescriptor)
	if err != nil {
		return vm.Value{}, err
	}
	return e.Invoke(thread, nameAndDescriptor, cs, invokedArgs)
}

// Link runs the parse, resolve and link stages and returns the call site
// without invoking it.
func (e *Emulator) Link(exec *Executor, bsm Handle, args BootstrapArgs, caller *vm.Lookup, nameAndDescriptor string) (cs *lambda.CallSite, err error) {
	start := time.Now()
	defer func() { e.metrics.observe(start, err) }()
	fail := func(stage Stage, err error) (*lambda.CallSite, error) {
		e.log.Debug("call site emulation failed",
			zap.String("site", nameAndDescriptor),
			zap.String("stage", string(stage)),
			zap.Error(err))
		return nil, &CallEmulationError{Site: nameAndDescriptor, Stage: stage, Err: err}
	}

	if err := checkBootstrap(bsm); err != nil {
		return fail(StageLink, err)
	}

	name, desc, err := descriptor.SplitNameAndDescriptor(nameAndDescriptor)
	if err != nil {
		return fail(StageParse, err)
	}
	invokedType, err := vm.MethodTypeOf(desc, e.reflector)
	if err != nil {
		return fail(StageParse, err)
	}
	samType, err := vm.MethodTypeOf(args.SamType, e.reflector)
	if err != nil {
		return fail(StageParse, err)
	}
	instantiatedType, err := vm.MethodTypeOf(args.InstantiatedType, e.reflector)
	if err != nil {
		return fail(StageParse, err)
	}

	impl, err := e.resolver.Resolve(args.Impl, caller, exec)
	if err != nil {
		return fail(StageResolve, err)
	}

	cs, err = e.metafactory(caller, name, invokedType, samType, impl, instantiatedType)
	if err != nil {
		return fail(StageLink, err)
	}
	e.log.Debug("linked call site",
		zap.String("site", nameAndDescriptor),
		zap.Stringer("caller", caller),
		zap.Stringer("impl", args.Impl),
		zap.Bool("relocated", relocates(args.Impl, exec)))
	return cs, nil
}

// Invoke calls the call site's target with the dynamic arguments of one
// execution of the site.
func (e *Emulator) Invoke(thread *vm.VM, nameAndDescriptor string, cs *lambda.CallSite, invokedArgs []vm.Value) (vm.Value, error) {
	ret, err := cs.DynamicInvoker().Invoke(thread, invokedArgs)
	if err != nil {
		return vm.Value{}, &CallEmulationError{Site: nameAndDescriptor, Stage: StageInvoke, Err: err}
	}
	return ret, nil
}
