package vm

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/daimatz/gojvm-reload/pkg/classfile"
	"github.com/daimatz/gojvm-reload/pkg/descriptor"
)

// maxFrameDepth is the maximum number of nested method calls.
const maxFrameDepth = 1024

// InvokeDynamicHandler links and invokes invokedynamic call sites. args are
// the dynamic arguments popped from the caller's operand stack.
type InvokeDynamicHandler interface {
	InvokeDynamic(vm *VM, caller *Class, site *classfile.InvokeDynamicSite, args []Value) (Value, error)
}

// VM executes bytecode on a single thread. Run one VM per goroutine; the
// Loader may be shared.
type VM struct {
	Loader *Loader
	Stdout io.Writer
	Indy   InvokeDynamicHandler
	Log    *zap.Logger

	frameDepth int
}

// NewVM creates a VM that loads classes from loader and prints to os.Stdout.
func NewVM(loader *Loader) *VM {
	return &VM{
		Loader: loader,
		Stdout: os.Stdout,
		Log:    loader.log,
	}
}

// Execute initializes the named class and runs its main method.
func (vm *VM) Execute(className string) error {
	c, err := vm.Loader.LoadClass(className)
	if err != nil {
		return err
	}
	method := c.DeclaredMethod("main", "([Ljava/lang/String;)V")
	if method == nil || !method.IsStatic() {
		return fmt.Errorf("main method not found in %s", c.JavaName())
	}
	vm.Log.Debug("executing main", zap.String("class", c.Name))

	// main(String[] args); args is null
	_, err = vm.Invoke(method, []Value{NullValue()})
	return err
}

// Invoke calls m directly, without virtual dispatch. For instance methods
// args[0] is the receiver.
func (vm *VM) Invoke(m *Method, args []Value) (Value, error) {
	if m.IsStatic() {
		if err := vm.initialize(m.Class); err != nil {
			return Value{}, err
		}
	}
	switch {
	case m.Native != nil:
		return m.Native(vm, args)
	case m.Code != nil:
		return vm.executeMethod(m, args)
	}
	return Value{}, vm.Throw("java/lang/AbstractMethodError", m.String())
}

// InvokeVirtual selects the implementation of m for the receiver in args[0]
// and calls it. Private methods and non-Object receivers are not dispatched.
func (vm *VM) InvokeVirtual(m *Method, args []Value) (Value, error) {
	if len(args) == 0 || args[0].IsNull() {
		return Value{}, vm.Throw("java/lang/NullPointerException", "invoking "+m.String())
	}
	target := m
	if obj, ok := args[0].Ref.(*Object); ok && !m.IsPrivate() {
		if impl := obj.Class.FindMethod(m.Name, m.Descriptor); impl != nil {
			target = impl
		}
	}
	return vm.Invoke(target, args)
}

// executeMethod runs bytecode with the given arguments and returns its return value.
func (vm *VM) executeMethod(method *Method, args []Value) (Value, error) {
	vm.frameDepth++
	defer func() { vm.frameDepth-- }()
	if vm.frameDepth > maxFrameDepth {
		return Value{}, vm.Throw("java/lang/StackOverflowError", fmt.Sprintf("frame depth exceeded %d", maxFrameDepth))
	}

	code := method.Code
	frame := NewFrame(code.MaxLocals, code.MaxStack, code.Code, method.Class)
	frame.Method = method

	slot := 0
	for _, arg := range args {
		frame.SetLocal(slot, arg)
		slot++
		if arg.Type == TypeLong {
			slot++
		}
	}

	for frame.PC < len(frame.Code) {
		opcodePC := frame.PC
		opcode := frame.Code[frame.PC]
		frame.PC++

		retVal, hasReturn, err := vm.executeInstruction(frame, opcode)
		if err != nil {
			var jex *JavaException
			if errors.As(err, &jex) {
				if handlerPC, ok := vm.findHandler(frame, opcodePC, jex); ok {
					frame.SP = 0
					frame.Push(RefValue(jex.Object))
					frame.PC = handlerPC
					continue
				}
			}
			return Value{}, err
		}
		if hasReturn {
			return retVal, nil
		}
	}

	// Fell off the end of the method (implicit return for void methods)
	return Value{}, nil
}

func (vm *VM) findHandler(frame *Frame, pc int, jex *JavaException) (int, bool) {
	for _, h := range frame.Method.Code.ExceptionHandlers {
		if pc < int(h.StartPC) || pc >= int(h.EndPC) {
			continue
		}
		if h.CatchType == 0 {
			return int(h.HandlerPC), true
		}
		name, err := classfile.GetClassName(frame.Class.File.ConstantPool, h.CatchType)
		if err != nil {
			continue
		}
		if jex.Object.Class.InstanceOf(name) {
			return int(h.HandlerPC), true
		}
	}
	return 0, false
}

// initialize runs static initializers, superclass first. A class that is
// already being initialized is treated as initialized.
func (vm *VM) initialize(c *Class) error {
	c.mu.Lock()
	switch c.initState {
	case initialized:
		err := c.initErr
		c.mu.Unlock()
		return err
	case initializing:
		c.mu.Unlock()
		return nil
	}
	c.initState = initializing
	c.mu.Unlock()

	var err error
	if c.Super != nil {
		err = vm.initialize(c.Super)
	}
	if err == nil {
		if clinit := c.DeclaredMethod("<clinit>", "()V"); clinit != nil {
			_, err = vm.Invoke(clinit, nil)
		}
	}

	c.mu.Lock()
	c.initState = initialized
	c.initErr = err
	c.mu.Unlock()
	return err
}

// Throw builds a Java exception of the named class. Classes the loader does
// not know are synthesized so the exception can still be raised.
func (vm *VM) Throw(className, message string) error {
	c, err := vm.Loader.LoadClass(className)
	if err != nil {
		c = NewClass(className, classfile.AccPublic, nil)
	}
	return NewJavaException(c, message)
}

// executeLdc handles ldc and ldc_w.
func (vm *VM) executeLdc(frame *Frame, index uint16) (Value, bool, error) {
	constant, err := classfile.ResolveConstant(frame.Class.File.ConstantPool, index)
	if err != nil {
		return Value{}, false, fmt.Errorf("ldc: %w", err)
	}
	switch c := constant.(type) {
	case int32:
		frame.Push(IntValue(c))
	case string:
		frame.Push(RefValue(c))
	case classfile.ClassRef:
		class, err := vm.Loader.LoadClass(c.Name)
		if err != nil {
			return Value{}, false, fmt.Errorf("ldc: %w", err)
		}
		frame.Push(RefValue(class))
	case classfile.MethodTypeRef:
		mt, err := MethodTypeOf(c.Descriptor, vm.Loader)
		if err != nil {
			return Value{}, false, fmt.Errorf("ldc: %w", err)
		}
		frame.Push(RefValue(mt))
	default:
		return Value{}, false, fmt.Errorf("ldc: unsupported constant %T at index %d", constant, index)
	}
	return Value{}, false, nil
}

// executeGetstatic handles the getstatic instruction.
func (vm *VM) executeGetstatic(frame *Frame) (Value, bool, error) {
	index := frame.ReadU16()
	fieldRef, err := classfile.ResolveFieldref(frame.Class.File.ConstantPool, index)
	if err != nil {
		return Value{}, false, fmt.Errorf("getstatic: %w", err)
	}
	c, err := vm.Loader.LoadClass(fieldRef.ClassName)
	if err != nil {
		return Value{}, false, fmt.Errorf("getstatic: %w", err)
	}
	if err := vm.initialize(c); err != nil {
		return Value{}, false, err
	}
	for k := c; k != nil; k = k.Super {
		if v, ok := k.GetStatic(fieldRef.FieldName); ok {
			frame.Push(v)
			return Value{}, false, nil
		}
	}
	frame.Push(zeroValue(fieldRef.Descriptor))
	return Value{}, false, nil
}

// executePutstatic handles the putstatic instruction.
func (vm *VM) executePutstatic(frame *Frame) (Value, bool, error) {
	index := frame.ReadU16()
	fieldRef, err := classfile.ResolveFieldref(frame.Class.File.ConstantPool, index)
	if err != nil {
		return Value{}, false, fmt.Errorf("putstatic: %w", err)
	}
	c, err := vm.Loader.LoadClass(fieldRef.ClassName)
	if err != nil {
		return Value{}, false, fmt.Errorf("putstatic: %w", err)
	}
	if err := vm.initialize(c); err != nil {
		return Value{}, false, err
	}
	value := frame.Pop()
	for k := c; k != nil; k = k.Super {
		if _, ok := k.GetStatic(fieldRef.FieldName); ok {
			k.SetStatic(fieldRef.FieldName, value)
			return Value{}, false, nil
		}
	}
	c.SetStatic(fieldRef.FieldName, value)
	return Value{}, false, nil
}

// executeGetfield handles the getfield instruction.
func (vm *VM) executeGetfield(frame *Frame) (Value, bool, error) {
	index := frame.ReadU16()
	fieldRef, err := classfile.ResolveFieldref(frame.Class.File.ConstantPool, index)
	if err != nil {
		return Value{}, false, fmt.Errorf("getfield: %w", err)
	}

	objectRef := frame.Pop()
	if objectRef.IsNull() {
		return Value{}, false, vm.Throw("java/lang/NullPointerException", "getfield "+fieldRef.FieldName)
	}
	obj, ok := objectRef.Ref.(*Object)
	if !ok {
		return Value{}, false, fmt.Errorf("getfield: receiver %T is not an object", objectRef.Ref)
	}

	val, exists := obj.Fields[fieldRef.FieldName]
	if !exists {
		val = zeroValue(fieldRef.Descriptor)
	}
	frame.Push(val)
	return Value{}, false, nil
}

// executePutfield handles the putfield instruction.
func (vm *VM) executePutfield(frame *Frame) (Value, bool, error) {
	index := frame.ReadU16()
	fieldRef, err := classfile.ResolveFieldref(frame.Class.File.ConstantPool, index)
	if err != nil {
		return Value{}, false, fmt.Errorf("putfield: %w", err)
	}

	value := frame.Pop()
	objectRef := frame.Pop()
	if objectRef.IsNull() {
		return Value{}, false, vm.Throw("java/lang/NullPointerException", "putfield "+fieldRef.FieldName)
	}
	obj, ok := objectRef.Ref.(*Object)
	if !ok {
		return Value{}, false, fmt.Errorf("putfield: receiver %T is not an object", objectRef.Ref)
	}

	obj.Fields[fieldRef.FieldName] = value
	return Value{}, false, nil
}

// resolveMethod resolves a Methodref or InterfaceMethodref against the loader.
func (vm *VM) resolveMethod(frame *Frame, index uint16) (*Method, error) {
	ref, err := classfile.ResolveAnyMethodref(frame.Class.File.ConstantPool, index)
	if err != nil {
		return nil, err
	}
	c, err := vm.Loader.LoadClass(ref.ClassName)
	if err != nil {
		return nil, err
	}
	m := c.FindMethod(ref.MethodName, ref.Descriptor)
	if m == nil {
		return nil, &NoSuchMethodError{Class: ref.ClassName, Name: ref.MethodName, Descriptor: ref.Descriptor}
	}
	return m, nil
}

// popArgs pops n values, returning them in push order.
func popArgs(frame *Frame, n int) []Value {
	args := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = frame.Pop()
	}
	return args
}

// executeInvoke handles invokevirtual, invokespecial, invokestatic and
// invokeinterface.
func (vm *VM) executeInvoke(frame *Frame, opcode byte) (Value, bool, error) {
	index := frame.ReadU16()
	if opcode == OpInvokeinterface {
		frame.ReadU16() // count, 0
	}
	method, err := vm.resolveMethod(frame, index)
	if err != nil {
		return Value{}, false, fmt.Errorf("%s: %w", opcodeName(opcode), err)
	}
	sig := method.Signature()

	var retVal Value
	switch opcode {
	case OpInvokestatic:
		if !method.IsStatic() {
			return Value{}, false, vm.Throw("java/lang/IncompatibleClassChangeError", method.String()+" is not static")
		}
		retVal, err = vm.Invoke(method, popArgs(frame, len(sig.Params)))
	case OpInvokespecial:
		retVal, err = vm.Invoke(method, popArgs(frame, len(sig.Params)+1))
	default:
		retVal, err = vm.InvokeVirtual(method, popArgs(frame, len(sig.Params)+1))
	}
	if err != nil {
		return Value{}, false, err
	}
	if !sig.IsVoid() {
		frame.Push(retVal)
	}
	return Value{}, false, nil
}

// executeInvokedynamic hands the call site to the installed handler.
func (vm *VM) executeInvokedynamic(frame *Frame) (Value, bool, error) {
	index := frame.ReadU16()
	frame.ReadU16() // 0, 0
	if vm.Indy == nil {
		return Value{}, false, fmt.Errorf("invokedynamic: no call site handler installed")
	}
	site, err := frame.Class.File.ResolveInvokeDynamic(index)
	if err != nil {
		return Value{}, false, fmt.Errorf("invokedynamic: %w", err)
	}
	sig, err := descriptor.ParseMethod(site.Descriptor)
	if err != nil {
		return Value{}, false, fmt.Errorf("invokedynamic: %w", err)
	}
	retVal, err := vm.Indy.InvokeDynamic(vm, frame.Class, site, popArgs(frame, len(sig.Params)))
	if err != nil {
		return Value{}, false, err
	}
	if !sig.IsVoid() {
		frame.Push(retVal)
	}
	return Value{}, false, nil
}

// executeNew handles the new instruction.
func (vm *VM) executeNew(frame *Frame) (Value, bool, error) {
	index := frame.ReadU16()
	className, err := classfile.GetClassName(frame.Class.File.ConstantPool, index)
	if err != nil {
		return Value{}, false, fmt.Errorf("new: %w", err)
	}
	c, err := vm.Loader.LoadClass(className)
	if err != nil {
		return Value{}, false, fmt.Errorf("new: %w", err)
	}
	if c.IsInterface() || c.Flags&classfile.AccAbstract != 0 {
		return Value{}, false, vm.Throw("java/lang/InstantiationError", c.JavaName())
	}
	if err := vm.initialize(c); err != nil {
		return Value{}, false, err
	}
	frame.Push(RefValue(NewObject(c)))
	return Value{}, false, nil
}

// ClassOf returns the runtime class of a reference, or nil when the value is
// a host value the loader has no class for.
func (vm *VM) ClassOf(v Value) *Class {
	switch r := v.Ref.(type) {
	case *Object:
		return r.Class
	case *Array:
		return r.Class
	case string:
		if c, err := vm.Loader.LoadClass("java/lang/String"); err == nil {
			return c
		}
	}
	return nil
}

// IsInstance implements the checkcast/instanceof test for a non-null value.
// Host values without a runtime class pass.
func (vm *VM) IsInstance(v Value, className string) bool {
	c := vm.ClassOf(v)
	if c == nil {
		return true
	}
	if c.IsArray() {
		return c.Name == className || className == "java/lang/Object"
	}
	return c.InstanceOf(className)
}

func opcodeName(op byte) string {
	switch op {
	case OpInvokevirtual:
		return "invokevirtual"
	case OpInvokespecial:
		return "invokespecial"
	case OpInvokestatic:
		return "invokestatic"
	case OpInvokeinterface:
		return "invokeinterface"
	}
	return fmt.Sprintf("opcode 0x%02X", op)
}
