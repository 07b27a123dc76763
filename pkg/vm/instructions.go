package vm

import (
	"fmt"

	"github.com/daimatz/gojvm-reload/pkg/classfile"
)

// Opcodes
const (
	OpNop             = 0x00
	OpAconstNull      = 0x01
	OpIconstM1        = 0x02
	OpIconst0         = 0x03
	OpIconst1         = 0x04
	OpIconst2         = 0x05
	OpIconst3         = 0x06
	OpIconst4         = 0x07
	OpIconst5         = 0x08
	OpLconst0         = 0x09
	OpLconst1         = 0x0A
	OpBipush          = 0x10
	OpSipush          = 0x11
	OpLdc             = 0x12
	OpLdcW            = 0x13
	OpLdc2W           = 0x14
	OpIload           = 0x15
	OpLload           = 0x16
	OpAload           = 0x19
	OpIload0          = 0x1A
	OpIload1          = 0x1B
	OpIload2          = 0x1C
	OpIload3          = 0x1D
	OpLload0          = 0x1E
	OpLload1          = 0x1F
	OpLload2          = 0x20
	OpLload3          = 0x21
	OpAload0          = 0x2A
	OpAload1          = 0x2B
	OpAload2          = 0x2C
	OpAload3          = 0x2D
	OpIaload          = 0x2E
	OpLaload          = 0x2F
	OpAaload          = 0x32
	OpBaload          = 0x33
	OpCaload          = 0x34
	OpSaload          = 0x35
	OpIstore          = 0x36
	OpLstore          = 0x37
	OpAstore          = 0x3A
	OpIstore0         = 0x3B
	OpIstore1         = 0x3C
	OpIstore2         = 0x3D
	OpIstore3         = 0x3E
	OpLstore0         = 0x3F
	OpLstore1         = 0x40
	OpLstore2         = 0x41
	OpLstore3         = 0x42
	OpAstore0         = 0x4B
	OpAstore1         = 0x4C
	OpAstore2         = 0x4D
	OpAstore3         = 0x4E
	OpIastore         = 0x4F
	OpLastore         = 0x50
	OpAastore         = 0x53
	OpBastore         = 0x54
	OpCastore         = 0x55
	OpSastore         = 0x56
	OpPop             = 0x57
	OpPop2            = 0x58
	OpDup             = 0x59
	OpDupX1           = 0x5A
	OpDupX2           = 0x5B
	OpSwap            = 0x5F
	OpIadd            = 0x60
	OpLadd            = 0x61
	OpIsub            = 0x64
	OpLsub            = 0x65
	OpImul            = 0x68
	OpLmul            = 0x69
	OpIdiv            = 0x6C
	OpLdiv            = 0x6D
	OpIrem            = 0x70
	OpLrem            = 0x71
	OpIneg            = 0x74
	OpLneg            = 0x75
	OpIshl            = 0x78
	OpLshl            = 0x79
	OpIshr            = 0x7A
	OpLshr            = 0x7B
	OpIushr           = 0x7C
	OpLushr           = 0x7D
	OpIand            = 0x7E
	OpLand            = 0x7F
	OpIor             = 0x80
	OpLor             = 0x81
	OpIxor            = 0x82
	OpLxor            = 0x83
	OpIinc            = 0x84
	OpI2l             = 0x85
	OpL2i             = 0x88
	OpI2b             = 0x91
	OpI2c             = 0x92
	OpI2s             = 0x93
	OpLcmp            = 0x94
	OpIfeq            = 0x99
	OpIfne            = 0x9A
	OpIflt            = 0x9B
	OpIfge            = 0x9C
	OpIfgt            = 0x9D
	OpIfle            = 0x9E
	OpIfIcmpeq        = 0x9F
	OpIfIcmpne        = 0xA0
	OpIfIcmplt        = 0xA1
	OpIfIcmpge        = 0xA2
	OpIfIcmpgt        = 0xA3
	OpIfIcmple        = 0xA4
	OpIfAcmpeq        = 0xA5
	OpIfAcmpne        = 0xA6
	OpGoto            = 0xA7
	OpTableswitch     = 0xAA
	OpLookupswitch    = 0xAB
	OpIreturn         = 0xAC
	OpLreturn         = 0xAD
	OpAreturn         = 0xB0
	OpReturn          = 0xB1
	OpGetstatic       = 0xB2
	OpPutstatic       = 0xB3
	OpGetfield        = 0xB4
	OpPutfield        = 0xB5
	OpInvokevirtual   = 0xB6
	OpInvokespecial   = 0xB7
	OpInvokestatic    = 0xB8
	OpInvokeinterface = 0xB9
	OpInvokedynamic   = 0xBA
	OpNew             = 0xBB
	OpNewarray        = 0xBC
	OpAnewarray       = 0xBD
	OpArraylength     = 0xBE
	OpAthrow          = 0xBF
	OpCheckcast       = 0xC0
	OpInstanceof      = 0xC1
	OpMonitorenter    = 0xC2
	OpMonitorexit     = 0xC3
	OpIfnull          = 0xC6
	OpIfnonnull       = 0xC7
	OpGotoW           = 0xC8
)
// executeInstruction executes a single bytecode instruction.
// Returns (returnValue, hasReturn, error).
func (vm *VM) executeInstruction(frame *Frame, opcode byte) (Value, bool, error) {
	switch opcode {
	case OpNop:
		// do nothing

	// --- Constant load instructions ---
	case OpAconstNull:
		frame.Push(NullValue())

	case OpIconstM1:
		frame.Push(IntValue(-1))
	case OpIconst0:
		frame.Push(IntValue(0))
	case OpIconst1:
		frame.Push(IntValue(1))
	case OpIconst2:
		frame.Push(IntValue(2))
	case OpIconst3:
		frame.Push(IntValue(3))
	case OpIconst4:
		frame.Push(IntValue(4))
	case OpIconst5:
		frame.Push(IntValue(5))

	case OpLconst0:
		frame.Push(LongValue(0))
	case OpLconst1:
		frame.Push(LongValue(1))

	case OpBipush:
		val := frame.ReadI8()
		frame.Push(IntValue(int32(val)))

	case OpSipush:
		val := frame.ReadI16()
		frame.Push(IntValue(int32(val)))

	case OpLdc:
		index := frame.ReadU8()
		return vm.executeLdc(frame, uint16(index))

	case OpLdcW:
		index := frame.ReadU16()
		return vm.executeLdc(frame, index)

	case OpLdc2W:
		index := frame.ReadU16()
		constant, err := classfile.ResolveConstant(frame.Class.File.ConstantPool, index)
		if err != nil {
			return Value{}, false, fmt.Errorf("ldc2_w: %w", err)
		}
		long, ok := constant.(int64)
		if !ok {
			return Value{}, false, fmt.Errorf("ldc2_w: unsupported constant %T at index %d", constant, index)
		}
		frame.Push(LongValue(long))

	// --- Local variable load instructions ---
	case OpIload, OpLload, OpAload:
		index := frame.ReadU8()
		frame.Push(frame.GetLocal(int(index)))
	case OpIload0, OpLload0, OpAload0:
		frame.Push(frame.GetLocal(0))
	case OpIload1, OpLload1, OpAload1:
		frame.Push(frame.GetLocal(1))
	case OpIload2, OpLload2, OpAload2:
		frame.Push(frame.GetLocal(2))
	case OpIload3, OpLload3, OpAload3:
		frame.Push(frame.GetLocal(3))

	// --- Array load ---
	case OpIaload, OpLaload, OpAaload, OpBaload, OpCaload, OpSaload:
		index := frame.Pop().Int
		arr, err := vm.popArray(frame, "xaload")
		if err != nil {
			return Value{}, false, err
		}
		if err := vm.checkIndex(arr, index); err != nil {
			return Value{}, false, err
		}
		frame.Push(arr.Elements[index])

	// --- Local variable store instructions ---
	case OpIstore, OpLstore, OpAstore:
		index := frame.ReadU8()
		frame.SetLocal(int(index), frame.Pop())
	case OpIstore0, OpLstore0, OpAstore0:
		frame.SetLocal(0, frame.Pop())
	case OpIstore1, OpLstore1, OpAstore1:
		frame.SetLocal(1, frame.Pop())
	case OpIstore2, OpLstore2, OpAstore2:
		frame.SetLocal(2, frame.Pop())
	case OpIstore3, OpLstore3, OpAstore3:
		frame.SetLocal(3, frame.Pop())

	// --- Array store ---
	case OpIastore, OpLastore, OpAastore, OpBastore, OpCastore, OpSastore:
		value := frame.Pop()
		index := frame.Pop().Int
		arr, err := vm.popArray(frame, "xastore")
		if err != nil {
			return Value{}, false, err
		}
		if err := vm.checkIndex(arr, index); err != nil {
			return Value{}, false, err
		}
		switch opcode {
		case OpBastore:
			value = IntValue(int32(int8(value.Int)))
		case OpCastore:
			value = IntValue(int32(uint16(value.Int)))
		case OpSastore:
			value = IntValue(int32(int16(value.Int)))
		}
		arr.Elements[index] = value

	// --- Stack manipulation ---
	case OpPop:
		frame.Pop()

	case OpPop2:
		// a long is a single stack entry here
		if v := frame.Pop(); v.Type != TypeLong {
			frame.Pop()
		}

	case OpDup:
		frame.Push(frame.Peek())

	case OpDupX1:
		v1 := frame.Pop()
		v2 := frame.Pop()
		frame.Push(v1)
		frame.Push(v2)
		frame.Push(v1)

	case OpDupX2:
		v1 := frame.Pop()
		v2 := frame.Pop()
		v3 := frame.Pop()
		frame.Push(v1)
		frame.Push(v3)
		frame.Push(v2)
		frame.Push(v1)

	case OpSwap:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(v2)
		frame.Push(v1)

	// --- Arithmetic ---
	case OpIadd:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(IntValue(v1.Int + v2.Int))

	case OpLadd:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(LongValue(v1.Long + v2.Long))

	case OpIsub:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(IntValue(v1.Int - v2.Int))

	case OpLsub:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(LongValue(v1.Long - v2.Long))

	case OpImul:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(IntValue(v1.Int * v2.Int))

	case OpLmul:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(LongValue(v1.Long * v2.Long))

	case OpIdiv:
		v2 := frame.Pop()
		v1 := frame.Pop()
		if v2.Int == 0 {
			return Value{}, false, vm.Throw("java/lang/ArithmeticException", "/ by zero")
		}
		frame.Push(IntValue(v1.Int / v2.Int))

	case OpLdiv:
		v2 := frame.Pop()
		v1 := frame.Pop()
		if v2.Long == 0 {
			return Value{}, false, vm.Throw("java/lang/ArithmeticException", "/ by zero")
		}
		frame.Push(LongValue(v1.Long / v2.Long))

	case OpIrem:
		v2 := frame.Pop()
		v1 := frame.Pop()
		if v2.Int == 0 {
			return Value{}, false, vm.Throw("java/lang/ArithmeticException", "/ by zero")
		}
		frame.Push(IntValue(v1.Int % v2.Int))

	case OpLrem:
		v2 := frame.Pop()
		v1 := frame.Pop()
		if v2.Long == 0 {
			return Value{}, false, vm.Throw("java/lang/ArithmeticException", "/ by zero")
		}
		frame.Push(LongValue(v1.Long % v2.Long))

	case OpIneg:
		v := frame.Pop()
		frame.Push(IntValue(-v.Int))

	case OpLneg:
		v := frame.Pop()
		frame.Push(LongValue(-v.Long))

	// --- Bit operations ---
	case OpIshl:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(IntValue(v1.Int << (uint(v2.Int) & 0x1f)))

	case OpLshl:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(LongValue(v1.Long << (uint(v2.Int) & 0x3f)))

	case OpIshr:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(IntValue(v1.Int >> (uint(v2.Int) & 0x1f)))

	case OpLshr:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(LongValue(v1.Long >> (uint(v2.Int) & 0x3f)))

	case OpIushr:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(IntValue(int32(uint32(v1.Int) >> (uint(v2.Int) & 0x1f))))

	case OpLushr:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(LongValue(int64(uint64(v1.Long) >> (uint(v2.Int) & 0x3f))))

	case OpIand:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(IntValue(v1.Int & v2.Int))

	case OpLand:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(LongValue(v1.Long & v2.Long))

	case OpIor:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(IntValue(v1.Int | v2.Int))

	case OpLor:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(LongValue(v1.Long | v2.Long))

	case OpIxor:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(IntValue(v1.Int ^ v2.Int))

	case OpLxor:
		v2 := frame.Pop()
		v1 := frame.Pop()
		frame.Push(LongValue(v1.Long ^ v2.Long))

	case OpIinc:
		index := frame.ReadU8()
		constVal := frame.ReadI8()
		local := frame.GetLocal(int(index))
		frame.SetLocal(int(index), IntValue(local.Int+int32(constVal)))

	// --- Type conversions ---
	case OpI2l:
		v := frame.Pop()
		frame.Push(LongValue(int64(v.Int)))

	case OpL2i:
		v := frame.Pop()
		frame.Push(IntValue(int32(v.Long)))

	case OpI2b:
		v := frame.Pop()
		frame.Push(IntValue(int32(int8(v.Int))))

	case OpI2c:
		v := frame.Pop()
		frame.Push(IntValue(int32(uint16(v.Int))))

	case OpI2s:
		v := frame.Pop()
		frame.Push(IntValue(int32(int16(v.Int))))

	// --- Comparisons ---
	case OpLcmp:
		v2 := frame.Pop()
		v1 := frame.Pop()
		switch {
		case v1.Long > v2.Long:
			frame.Push(IntValue(1))
		case v1.Long < v2.Long:
			frame.Push(IntValue(-1))
		default:
			frame.Push(IntValue(0))
		}

	// --- Comparison and branch ---
	case OpIfeq:
		return vm.executeBranchUnary(frame, func(v int32) bool { return v == 0 })
	case OpIfne:
		return vm.executeBranchUnary(frame, func(v int32) bool { return v != 0 })
	case OpIflt:
		return vm.executeBranchUnary(frame, func(v int32) bool { return v < 0 })
	case OpIfge:
		return vm.executeBranchUnary(frame, func(v int32) bool { return v >= 0 })
	case OpIfgt:
		return vm.executeBranchUnary(frame, func(v int32) bool { return v > 0 })
	case OpIfle:
		return vm.executeBranchUnary(frame, func(v int32) bool { return v <= 0 })

	case OpIfIcmpeq:
		return vm.executeBranchBinary(frame, func(v1, v2 int32) bool { return v1 == v2 })
	case OpIfIcmpne:
		return vm.executeBranchBinary(frame, func(v1, v2 int32) bool { return v1 != v2 })
	case OpIfIcmplt:
		return vm.executeBranchBinary(frame, func(v1, v2 int32) bool { return v1 < v2 })
	case OpIfIcmpge:
		return vm.executeBranchBinary(frame, func(v1, v2 int32) bool { return v1 >= v2 })
	case OpIfIcmpgt:
		return vm.executeBranchBinary(frame, func(v1, v2 int32) bool { return v1 > v2 })
	case OpIfIcmple:
		return vm.executeBranchBinary(frame, func(v1, v2 int32) bool { return v1 <= v2 })

	case OpIfAcmpeq, OpIfAcmpne:
		branchPC := frame.PC - 1
		offset := frame.ReadI16()
		v2 := frame.Pop()
		v1 := frame.Pop()
		if sameRef(v1, v2) == (opcode == OpIfAcmpeq) {
			frame.PC = branchPC + int(offset)
		}

	case OpGoto:
		branchPC := frame.PC - 1
		offset := frame.ReadI16()
		frame.PC = branchPC + int(offset)

	case OpGotoW:
		branchPC := frame.PC - 1
		offset := frame.ReadI32()
		frame.PC = branchPC + int(offset)

	case OpTableswitch:
		// PC of the tableswitch opcode
		opcodePC := frame.PC - 1
		// Padding to align to 4-byte boundary
		for frame.PC%4 != 0 {
			frame.PC++
		}
		defaultOffset := frame.ReadI32()
		low := frame.ReadI32()
		high := frame.ReadI32()
		numOffsets := int(high - low + 1)
		offsets := make([]int32, numOffsets)
		for i := 0; i < numOffsets; i++ {
			offsets[i] = frame.ReadI32()
		}
		index := frame.Pop().Int
		if index >= low && index <= high {
			frame.PC = opcodePC + int(offsets[index-low])
		} else {
			frame.PC = opcodePC + int(defaultOffset)
		}

	case OpLookupswitch:
		opcodePC := frame.PC - 1
		for frame.PC%4 != 0 {
			frame.PC++
		}
		defaultOffset := frame.ReadI32()
		npairs := frame.ReadI32()
		key := frame.Pop().Int
		target := opcodePC + int(defaultOffset)
		for i := int32(0); i < npairs; i++ {
			matchVal := frame.ReadI32()
			offset := frame.ReadI32()
			if key == matchVal {
				target = opcodePC + int(offset)
			}
		}
		frame.PC = target

	// --- Return ---
	case OpIreturn, OpAreturn, OpLreturn:
		return frame.Pop(), true, nil

	case OpReturn:
		return Value{}, true, nil

	// --- Method invocation and field access ---
	case OpGetstatic:
		return vm.executeGetstatic(frame)

	case OpPutstatic:
		return vm.executePutstatic(frame)

	case OpGetfield:
		return vm.executeGetfield(frame)

	case OpPutfield:
		return vm.executePutfield(frame)

	case OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpInvokeinterface:
		return vm.executeInvoke(frame, opcode)

	case OpInvokedynamic:
		return vm.executeInvokedynamic(frame)

	case OpNew:
		return vm.executeNew(frame)

	case OpNewarray:
		atype := frame.ReadU8()
		count := frame.Pop().Int
		if count < 0 {
			return Value{}, false, vm.Throw("java/lang/NegativeArraySizeException", fmt.Sprint(count))
		}
		kind, ok := newarrayKinds[atype]
		if !ok {
			return Value{}, false, fmt.Errorf("newarray: unsupported element type %d", atype)
		}
		arrClass, err := vm.Loader.LoadClass("[" + string(kind))
		if err != nil {
			return Value{}, false, fmt.Errorf("newarray: %w", err)
		}
		zero := IntValue(0)
		if kind == 'J' {
			zero = LongValue(0)
		}
		elements := make([]Value, count)
		for i := range elements {
			elements[i] = zero
		}
		frame.Push(RefValue(&Array{Class: arrClass, Elements: elements}))

	case OpAnewarray:
		index := frame.ReadU16()
		className, err := classfile.GetClassName(frame.Class.File.ConstantPool, index)
		if err != nil {
			return Value{}, false, fmt.Errorf("anewarray: %w", err)
		}
		count := frame.Pop().Int
		if count < 0 {
			return Value{}, false, vm.Throw("java/lang/NegativeArraySizeException", fmt.Sprint(count))
		}
		arrName := "[L" + className + ";"
		if className[0] == '[' {
			arrName = "[" + className
		}
		arrClass, err := vm.Loader.LoadClass(arrName)
		if err != nil {
			return Value{}, false, fmt.Errorf("anewarray: %w", err)
		}
		elements := make([]Value, count)
		for i := range elements {
			elements[i] = NullValue()
		}
		frame.Push(RefValue(&Array{Class: arrClass, Elements: elements}))

	case OpArraylength:
		arr, err := vm.popArray(frame, "arraylength")
		if err != nil {
			return Value{}, false, err
		}
		frame.Push(IntValue(int32(len(arr.Elements))))

	case OpAthrow:
		excRef := frame.Pop()
		if excRef.IsNull() {
			return Value{}, false, vm.Throw("java/lang/NullPointerException", "athrow")
		}
		if obj, ok := excRef.Ref.(*Object); ok {
			return Value{}, false, &JavaException{Object: obj}
		}
		return Value{}, false, fmt.Errorf("athrow: %T on stack is not an object", excRef.Ref)

	case OpCheckcast:
		index := frame.ReadU16()
		className, err := classfile.GetClassName(frame.Class.File.ConstantPool, index)
		if err != nil {
			return Value{}, false, fmt.Errorf("checkcast: %w", err)
		}
		if val := frame.Peek(); !val.IsNull() && !vm.IsInstance(val, className) {
			return Value{}, false, vm.Throw("java/lang/ClassCastException", vm.ClassOf(val).JavaName()+" cannot be cast to "+className)
		}

	case OpInstanceof:
		index := frame.ReadU16()
		className, err := classfile.GetClassName(frame.Class.File.ConstantPool, index)
		if err != nil {
			return Value{}, false, fmt.Errorf("instanceof: %w", err)
		}
		if ref := frame.Pop(); !ref.IsNull() && vm.IsInstance(ref, className) {
			frame.Push(IntValue(1))
		} else {
			frame.Push(IntValue(0))
		}

	case OpMonitorenter, OpMonitorexit:
		// single-threaded interpreter: monitors are no-ops
		if frame.Pop().IsNull() {
			return Value{}, false, vm.Throw("java/lang/NullPointerException", "monitor")
		}

	case OpIfnull, OpIfnonnull:
		branchPC := frame.PC - 1
		offset := frame.ReadI16()
		if frame.Pop().IsNull() == (opcode == OpIfnull) {
			frame.PC = branchPC + int(offset)
		}

	default:
		return Value{}, false, fmt.Errorf("unknown opcode: 0x%02X at PC=%d", opcode, frame.PC-1)
	}

	return Value{}, false, nil
}

var newarrayKinds = map[uint8]byte{
	4: 'Z', 5: 'C', 8: 'B', 9: 'S', 10: 'I', 11: 'J',
}

func sameRef(v1, v2 Value) bool {
	if v1.IsNull() || v2.IsNull() {
		return v1.IsNull() && v2.IsNull()
	}
	return v1.Ref == v2.Ref
}

func (vm *VM) popArray(frame *Frame, op string) (*Array, error) {
	ref := frame.Pop()
	if ref.IsNull() {
		return nil, vm.Throw("java/lang/NullPointerException", op)
	}
	arr, ok := ref.Ref.(*Array)
	if !ok {
		return nil, fmt.Errorf("%s: reference %T is not an array", op, ref.Ref)
	}
	return arr, nil
}

func (vm *VM) checkIndex(arr *Array, index int32) error {
	if index < 0 || int(index) >= len(arr.Elements) {
		return vm.Throw("java/lang/ArrayIndexOutOfBoundsException", fmt.Sprintf("Index %d out of bounds for length %d", index, len(arr.Elements)))
	}
	return nil
}

// executeBranchUnary handles unary branch instructions (ifeq, ifne, etc.)
func (vm *VM) executeBranchUnary(frame *Frame, cond func(int32) bool) (Value, bool, error) {
	branchPC := frame.PC - 1 // PC of the branch instruction
	offset := frame.ReadI16()
	val := frame.Pop()
	if cond(val.Int) {
		frame.PC = branchPC + int(offset)
	}
	return Value{}, false, nil
}

// executeBranchBinary handles binary branch instructions (if_icmpeq, etc.)
func (vm *VM) executeBranchBinary(frame *Frame, cond func(int32, int32) bool) (Value, bool, error) {
	branchPC := frame.PC - 1 // PC of the branch instruction
	offset := frame.ReadI16()
	v2 := frame.Pop()
	v1 := frame.Pop()
	if cond(v1.Int, v2.Int) {
		frame.PC = branchPC + int(offset)
	}
	return Value{}, false, nil
}
