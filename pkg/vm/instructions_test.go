package vm

import (
	"errors"
	"io"
	"testing"

	"github.com/daimatz/gojvm-reload/pkg/classfile"
)

// testLoader returns a loader with just enough of java.lang defined for
// exceptions and arrays.
func testLoader() *Loader {
	l := NewLoader(nil)
	object := l.Define(NewClass("java/lang/Object", classfile.AccPublic, nil))
	throwable := l.Define(NewClass("java/lang/Throwable", classfile.AccPublic, object))
	exception := l.Define(NewClass("java/lang/Exception", classfile.AccPublic, throwable))
	runtime := l.Define(NewClass("java/lang/RuntimeException", classfile.AccPublic, exception))
	for _, name := range []string{
		"java/lang/ArithmeticException",
		"java/lang/NullPointerException",
		"java/lang/ArrayIndexOutOfBoundsException",
		"java/lang/NegativeArraySizeException",
	} {
		l.Define(NewClass(name, classfile.AccPublic, runtime))
	}
	return l
}

func newTestVM() *VM {
	v := NewVM(testLoader())
	v.Stdout = io.Discard
	return v
}

// run creates a Frame with the given bytecodes and runs the execution loop
// until a return instruction.
func run(t *testing.T, v *VM, code []byte, locals ...Value) (Value, error) {
	t.Helper()

	maxLocals := uint16(len(locals))
	if maxLocals < 4 {
		maxLocals = 4
	}
	frame := NewFrame(maxLocals, 10, code, nil)
	for i, val := range locals {
		frame.SetLocal(i, val)
	}

	for frame.PC < len(frame.Code) {
		opcode := frame.Code[frame.PC]
		frame.PC++
		retVal, hasReturn, err := v.executeInstruction(frame, opcode)
		if err != nil {
			return Value{}, err
		}
		if hasReturn {
			return retVal, nil
		}
	}
	t.Fatal("bytecode did not return")
	return Value{}, nil
}

// executeAndGetInt runs code that must end with ireturn (0xAC). Optional
// locals are set as int32 values starting at index 0.
func executeAndGetInt(t *testing.T, code []byte, locals ...int32) int32 {
	t.Helper()
	vals := make([]Value, len(locals))
	for i, l := range locals {
		vals[i] = IntValue(l)
	}
	ret, err := run(t, newTestVM(), code, vals...)
	if err != nil {
		t.Fatalf("execution error: %v", err)
	}
	if ret.Type != TypeInt {
		t.Fatalf("return type: got %v, want int", ret.Type)
	}
	return ret.Int
}

func TestIconst(t *testing.T) {
	tests := []struct {
		name   string
		opcode byte
		want   int32
	}{
		{"iconst_m1", 0x02, -1},
		{"iconst_0", 0x03, 0},
		{"iconst_1", 0x04, 1},
		{"iconst_2", 0x05, 2},
		{"iconst_3", 0x06, 3},
		{"iconst_4", 0x07, 4},
		{"iconst_5", 0x08, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := []byte{tt.opcode, 0xAC} // iconst_N, ireturn
			got := executeAndGetInt(t, code)
			if got != tt.want {
				t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestBipushSipush(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want int32
	}{
		{"bipush positive", []byte{0x10, 42, 0xAC}, 42},
		{"bipush negative", []byte{0x10, 0xFB, 0xAC}, -5},
		{"bipush min_byte", []byte{0x10, 0x80, 0xAC}, -128},
		{"sipush positive", []byte{0x11, 0x01, 0x00, 0xAC}, 256},
		{"sipush negative", []byte{0x11, 0xFF, 0x00, 0xAC}, -256},
		{"sipush max_short", []byte{0x11, 0x7F, 0xFF, 0xAC}, 32767},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := executeAndGetInt(t, tt.code)
			if got != tt.want {
				t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestArithmeticInstructions(t *testing.T) {
	tests := []struct {
		name   string
		code   []byte
		locals []int32
		want   int32
	}{
		{name: "iadd: 3+4=7", code: []byte{0x06, 0x07, 0x60, 0xAC}, want: 7},
		{name: "isub: 5-3=2", code: []byte{0x08, 0x06, 0x64, 0xAC}, want: 2},
		{name: "imul: 3*4=12", code: []byte{0x06, 0x07, 0x68, 0xAC}, want: 12},
		{name: "idiv: 5/2=2", code: []byte{0x08, 0x05, 0x6C, 0xAC}, want: 2},
		{name: "irem: 5%3=2", code: []byte{0x08, 0x06, 0x70, 0xAC}, want: 2},
		{name: "ineg", code: []byte{0x08, 0x74, 0xAC}, want: -5},
		{name: "ishl: 1<<4", code: []byte{0x04, 0x07, 0x78, 0xAC}, want: 16},
		{name: "iushr: -1>>>28", code: []byte{0x02, 0x10, 28, 0x7C, 0xAC}, want: 15},
		{name: "iand", code: []byte{0x08, 0x06, 0x7E, 0xAC}, want: 1},
		{name: "ior", code: []byte{0x08, 0x05, 0x80, 0xAC}, want: 7},
		{name: "ixor", code: []byte{0x08, 0x06, 0x82, 0xAC}, want: 6},
		{name: "i2b truncates", code: []byte{0x11, 0x01, 0x01, 0x91, 0xAC}, want: 1},
		{
			name:   "iadd overflow wraps",
			code:   []byte{0x1A, 0x1B, 0x60, 0xAC},
			locals: []int32{2147483647, 1},
			want:   -2147483648,
		},
		{
			name:   "ineg MinInt32 stays MinInt32",
			code:   []byte{0x1A, 0x74, 0xAC},
			locals: []int32{-2147483648},
			want:   -2147483648,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := executeAndGetInt(t, tt.code, tt.locals...)
			if got != tt.want {
				t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestLongArithmetic(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want int64
	}{
		// lconst_1, lconst_1, ladd, lreturn
		{"ladd", []byte{0x0A, 0x0A, 0x61, 0xAD}, 2},
		// lconst_0, lconst_1, lsub, lreturn
		{"lsub", []byte{0x09, 0x0A, 0x65, 0xAD}, -1},
		// bipush 7, i2l, bipush 6, i2l, lmul, lreturn
		{"lmul", []byte{0x10, 7, 0x85, 0x10, 6, 0x85, 0x69, 0xAD}, 42},
		// lconst_1, bipush 40, lshl, lreturn
		{"lshl", []byte{0x0A, 0x10, 40, 0x79, 0xAD}, 1 << 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := run(t, newTestVM(), tt.code)
			if err != nil {
				t.Fatalf("execution error: %v", err)
			}
			if got.Type != TypeLong || got.Long != tt.want {
				t.Errorf("%s: got %+v, want long %d", tt.name, got, tt.want)
			}
		})
	}

	t.Run("lcmp and l2i", func(t *testing.T) {
		// lconst_1, lconst_0, lcmp, ireturn
		if got := executeAndGetInt(t, []byte{0x0A, 0x09, 0x94, 0xAC}); got != 1 {
			t.Errorf("lcmp 1,0: got %d, want 1", got)
		}
		// lconst_1, l2i, ireturn
		if got := executeAndGetInt(t, []byte{0x0A, 0x88, 0xAC}); got != 1 {
			t.Errorf("l2i: got %d, want 1", got)
		}
	})

	t.Run("long locals take two slots", func(t *testing.T) {
		// lconst_1, lstore_0, iconst_3, istore_2, iload_2, ireturn
		code := []byte{0x0A, 0x3F, 0x06, 0x3D, 0x1C, 0xAC}
		if got := executeAndGetInt(t, code); got != 3 {
			t.Errorf("got %d, want 3", got)
		}
	})
}

func TestBranch(t *testing.T) {
	t.Run("ifeq: taken (value == 0)", func(t *testing.T) {
		// Byte 0: iconst_0    (0x03)
		// Byte 1: ifeq        (0x99) branchPC=1, offset=5, target=6
		// Byte 4: iconst_1    (0x04)  -- not taken path
		// Byte 5: ireturn     (0xAC)
		// Byte 6: iconst_2    (0x05)  -- taken path
		// Byte 7: ireturn     (0xAC)
		code := []byte{0x03, 0x99, 0x00, 0x05, 0x04, 0xAC, 0x05, 0xAC}
		if got := executeAndGetInt(t, code); got != 2 {
			t.Errorf("ifeq taken: got %d, want 2", got)
		}
	})

	t.Run("ifne: not taken (value == 0)", func(t *testing.T) {
		code := []byte{0x03, 0x9A, 0x00, 0x05, 0x06, 0xAC, 0x07, 0xAC}
		if got := executeAndGetInt(t, code); got != 3 {
			t.Errorf("ifne not taken: got %d, want 3", got)
		}
	})

	t.Run("goto: unconditional jump", func(t *testing.T) {
		code := []byte{0xA7, 0x00, 0x05, 0x04, 0xAC, 0x05, 0xAC}
		if got := executeAndGetInt(t, code); got != 2 {
			t.Errorf("goto: got %d, want 2", got)
		}
	})
}

func TestIfIcmp(t *testing.T) {
	// iload_0, iload_1, if_icmpXX(offset=5, target=7), iconst_0, ireturn, iconst_1, ireturn
	buildCode := func(opcode byte) []byte {
		return []byte{0x1A, 0x1B, opcode, 0x00, 0x05, 0x03, 0xAC, 0x04, 0xAC}
	}

	tests := []struct {
		name   string
		opcode byte
		a, b   int32
		want   int32 // 1=taken, 0=not taken
	}{
		{"if_icmpeq taken", 0x9F, 5, 5, 1},
		{"if_icmpeq not taken", 0x9F, 5, 3, 0},
		{"if_icmpne taken", 0xA0, 5, 3, 1},
		{"if_icmplt taken", 0xA1, 3, 5, 1},
		{"if_icmpge taken (=)", 0xA2, 5, 5, 1},
		{"if_icmpgt not taken (=)", 0xA3, 5, 5, 0},
		{"if_icmple not taken", 0xA4, 5, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := executeAndGetInt(t, buildCode(tt.opcode), tt.a, tt.b)
			if got != tt.want {
				t.Errorf("%s (%d vs %d): got %d, want %d", tt.name, tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSwitch(t *testing.T) {
	// Byte 0: iload_0
	// Byte 1: tableswitch, padded to byte 4
	// default=+27 (28), low=1, high=2, 1 -> +23 (24), 2 -> +25 (26)
	table := []byte{0x1A, 0xAA, 0, 0,
		0, 0, 0, 27,
		0, 0, 0, 1,
		0, 0, 0, 2,
		0, 0, 0, 23,
		0, 0, 0, 25,
		0x04, 0xAC, // 24: iconst_1, ireturn
		0x05, 0xAC, // 26: iconst_2, ireturn
		0x02, 0xAC, // 28: iconst_m1, ireturn
	}
	// Byte 1: lookupswitch, padded to byte 4
	// default=+31 (32), npairs=2, 10 -> +27 (28), 20 -> +29 (30)
	lookup := []byte{0x1A, 0xAB, 0, 0,
		0, 0, 0, 31,
		0, 0, 0, 2,
		0, 0, 0, 10, 0, 0, 0, 27,
		0, 0, 0, 20, 0, 0, 0, 29,
		0x04, 0xAC, // 28
		0x05, 0xAC, // 30
		0x02, 0xAC, // 32
	}

	tests := []struct {
		name string
		code []byte
		key  int32
		want int32
	}{
		{"tableswitch low", table, 1, 1},
		{"tableswitch high", table, 2, 2},
		{"tableswitch default", table, 7, -1},
		{"lookupswitch first", lookup, 10, 1},
		{"lookupswitch second", lookup, 20, 2},
		{"lookupswitch default", lookup, 15, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := executeAndGetInt(t, tt.code, tt.key); got != tt.want {
				t.Errorf("key %d: got %d, want %d", tt.key, got, tt.want)
			}
		})
	}
}

func TestStackOps(t *testing.T) {
	t.Run("dup: duplicate top of stack", func(t *testing.T) {
		// iconst_3, dup, iadd, ireturn -> 3+3=6
		if got := executeAndGetInt(t, []byte{0x06, 0x59, 0x60, 0xAC}); got != 6 {
			t.Errorf("dup + iadd: got %d, want 6", got)
		}
	})

	t.Run("swap: exchange top two values", func(t *testing.T) {
		// iconst_5, iconst_2, swap, isub, ireturn -> 2-5
		if got := executeAndGetInt(t, []byte{0x08, 0x05, 0x5F, 0x64, 0xAC}); got != -3 {
			t.Errorf("swap + isub: got %d, want -3", got)
		}
	})

	t.Run("pop2 discards a long as one entry", func(t *testing.T) {
		// iconst_4, lconst_1, pop2, ireturn
		if got := executeAndGetInt(t, []byte{0x07, 0x0A, 0x58, 0xAC}); got != 4 {
			t.Errorf("pop2: got %d, want 4", got)
		}
	})
}

func TestIinc(t *testing.T) {
	// iinc 0 by -3, iload_0, ireturn
	if got := executeAndGetInt(t, []byte{0x84, 0x00, 0xFD, 0x1A, 0xAC}, 10); got != 7 {
		t.Errorf("iinc: got %d, want 7", got)
	}
}

func TestJavaExceptions(t *testing.T) {
	tests := []struct {
		name      string
		code      []byte
		wantClass string
	}{
		// iconst_5, iconst_0, idiv, ireturn
		{"idiv by zero", []byte{0x08, 0x03, 0x6C, 0xAC}, "java/lang/ArithmeticException"},
		{"irem by zero", []byte{0x08, 0x03, 0x70, 0xAC}, "java/lang/ArithmeticException"},
		// lconst_1, lconst_0, ldiv, lreturn
		{"ldiv by zero", []byte{0x0A, 0x09, 0x6D, 0xAD}, "java/lang/ArithmeticException"},
		// aconst_null, arraylength, ireturn
		{"arraylength of null", []byte{0x01, 0xBE, 0xAC}, "java/lang/NullPointerException"},
		// iconst_2, newarray int, iconst_2, iaload, ireturn
		{"index out of bounds", []byte{0x05, 0xBC, 10, 0x05, 0x2E, 0xAC}, "java/lang/ArrayIndexOutOfBoundsException"},
		// iconst_m1, newarray int
		{"negative size", []byte{0x02, 0xBC, 10, 0xAC}, "java/lang/NegativeArraySizeException"},
		// aconst_null, athrow
		{"athrow null", []byte{0x01, 0xBF}, "java/lang/NullPointerException"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, newTestVM(), tt.code)
			var jex *JavaException
			if !errors.As(err, &jex) {
				t.Fatalf("got error %v, want a JavaException", err)
			}
			if jex.Object.Class.Name != tt.wantClass {
				t.Errorf("exception class: got %s, want %s", jex.Object.Class.Name, tt.wantClass)
			}
			if !jex.Object.Class.InstanceOf("java/lang/Throwable") {
				t.Errorf("%s does not extend Throwable", jex.Object.Class.Name)
			}
		})
	}
}

func TestArrays(t *testing.T) {
	t.Run("int array store and load", func(t *testing.T) {
		// iconst_3, newarray int, astore_0
		// aload_0, iconst_1, bipush 9, iastore
		// aload_0, iconst_1, iaload, aload_0, arraylength, iadd, ireturn
		code := []byte{
			0x06, 0xBC, 10, 0x4B,
			0x2A, 0x04, 0x10, 9, 0x4F,
			0x2A, 0x04, 0x2E, 0x2A, 0xBE, 0x60, 0xAC,
		}
		if got := executeAndGetInt(t, code); got != 12 {
			t.Errorf("got %d, want 12", got)
		}
	})

	t.Run("array class comes from the loader", func(t *testing.T) {
		// iconst_1, newarray long, areturn
		v := newTestVM()
		ret, err := run(t, v, []byte{0x04, 0xBC, 11, 0xB0})
		if err != nil {
			t.Fatalf("execution error: %v", err)
		}
		arr, ok := ret.Ref.(*Array)
		if !ok {
			t.Fatalf("got %T, want *Array", ret.Ref)
		}
		if arr.Class.Name != "[J" {
			t.Errorf("class: got %s, want [J", arr.Class.Name)
		}
		if arr.Elements[0].Type != TypeLong {
			t.Errorf("element zero value: got %+v, want long 0", arr.Elements[0])
		}
		if c, ok := v.Loader.Loaded("[J"); !ok || c != arr.Class {
			t.Errorf("[J was not cached by the loader")
		}
	})
}

func TestReferenceBranches(t *testing.T) {
	obj := RefValue(NewObject(NewClass("pkg/A", classfile.AccPublic, nil)))
	other := RefValue(NewObject(NewClass("pkg/A", classfile.AccPublic, nil)))

	// aload_0, ifnull(+5), iconst_1, ireturn, iconst_2, ireturn
	ifnull := []byte{0x2A, 0xC6, 0x00, 0x05, 0x04, 0xAC, 0x05, 0xAC}
	// aload_0, aload_1, if_acmpeq(+5), iconst_0, ireturn, iconst_1, ireturn
	acmpeq := []byte{0x2A, 0x2B, 0xA5, 0x00, 0x05, 0x03, 0xAC, 0x04, 0xAC}

	tests := []struct {
		name   string
		code   []byte
		locals []Value
		want   int32
	}{
		{"ifnull taken", ifnull, []Value{NullValue()}, 2},
		{"ifnull not taken", ifnull, []Value{obj}, 1},
		{"if_acmpeq same object", acmpeq, []Value{obj, obj}, 1},
		{"if_acmpeq different objects", acmpeq, []Value{obj, other}, 0},
		{"if_acmpeq both null", acmpeq, []Value{NullValue(), NullValue()}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ret, err := run(t, newTestVM(), tt.code, tt.locals...)
			if err != nil {
				t.Fatalf("execution error: %v", err)
			}
			if ret.Int != tt.want {
				t.Errorf("got %d, want %d", ret.Int, tt.want)
			}
		})
	}
}

func TestUnknownOpcode(t *testing.T) {
	_, err := run(t, newTestVM(), []byte{0xFE})
	if err == nil {
		t.Fatal("expected error for unknown opcode")
	}
}
