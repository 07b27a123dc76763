package classfile

import (
	"fmt"
	"math"
)

// Constant pool tags
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
)

// parseConstantPool reads count-1 entries. The returned slice is indexed by
// constant pool index, so slot 0 and the slot after each long or double
// stay nil.
func parseConstantPool(r *reader, count uint16) ([]ConstantPoolEntry, error) {
	pool := make([]ConstantPoolEntry, count)
	for i := uint16(1); i < count; i++ {
		entry, wide, err := parseConstant(r, i)
		if err != nil {
			return nil, err
		}
		if err := r.check(); err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		pool[i] = entry
		if wide {
			i++
		}
	}
	return pool, nil
}

// parseConstant reads one cp_info. wide is set for the two-slot constants.
func parseConstant(r *reader, i uint16) (entry ConstantPoolEntry, wide bool, err error) {
	tag := r.u1("tag")
	switch tag {
	case TagUtf8:
		n := r.u2("Utf8 length")
		return &ConstantUtf8{Value: string(r.bytes(int(n), "Utf8 bytes"))}, false, nil
	case TagInteger:
		return &ConstantInteger{Value: int32(r.u4("Integer"))}, false, nil
	case TagFloat:
		return &ConstantFloat{Value: math.Float32frombits(r.u4("Float"))}, false, nil
	case TagLong:
		return &ConstantLong{Value: int64(r.u8("Long"))}, true, nil
	case TagDouble:
		return &ConstantDouble{Value: math.Float64frombits(r.u8("Double"))}, true, nil
	case TagClass:
		return &ConstantClass{NameIndex: r.u2("Class name_index")}, false, nil
	case TagString:
		return &ConstantString{StringIndex: r.u2("String string_index")}, false, nil
	case TagFieldref:
		c := &ConstantFieldref{ClassIndex: r.u2("Fieldref class_index")}
		c.NameAndTypeIndex = r.u2("Fieldref name_and_type_index")
		return c, false, nil
	case TagMethodref:
		c := &ConstantMethodref{ClassIndex: r.u2("Methodref class_index")}
		c.NameAndTypeIndex = r.u2("Methodref name_and_type_index")
		return c, false, nil
	case TagInterfaceMethodref:
		c := &ConstantInterfaceMethodref{ClassIndex: r.u2("InterfaceMethodref class_index")}
		c.NameAndTypeIndex = r.u2("InterfaceMethodref name_and_type_index")
		return c, false, nil
	case TagNameAndType:
		c := &ConstantNameAndType{NameIndex: r.u2("NameAndType name_index")}
		c.DescriptorIndex = r.u2("NameAndType descriptor_index")
		return c, false, nil
	case TagMethodHandle:
		c := &ConstantMethodHandle{ReferenceKind: r.u1("MethodHandle reference_kind")}
		c.ReferenceIndex = r.u2("MethodHandle reference_index")
		if r.err == nil && (c.ReferenceKind < RefGetField || c.ReferenceKind > RefInvokeInterface) {
			return nil, false, fmt.Errorf("constant %d: MethodHandle reference kind %d out of range", i, c.ReferenceKind)
		}
		return c, false, nil
	case TagMethodType:
		return &ConstantMethodType{DescriptorIndex: r.u2("MethodType descriptor_index")}, false, nil
	case TagDynamic, TagInvokeDynamic:
		c := &ConstantInvokeDynamic{Dynamic: tag == TagDynamic}
		c.BootstrapMethodAttrIndex = r.u2("bootstrap_method_attr_index")
		c.NameAndTypeIndex = r.u2("name_and_type_index")
		return c, false, nil
	}
	if err := r.check(); err != nil {
		return nil, false, fmt.Errorf("constant %d: %w", i, err)
	}
	return nil, false, fmt.Errorf("unknown constant pool tag %d at index %d", tag, i)
}

// GetUtf8 returns the Utf8 string at the given constant pool index.
func GetUtf8(pool []ConstantPoolEntry, index uint16) (string, error) {
	entry, err := entryAt(pool, index)
	if err != nil {
		return "", err
	}
	utf8, ok := entry.(*ConstantUtf8)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Utf8 (tag=%d)", index, entry.Tag())
	}
	return utf8.Value, nil
}

// GetClassName returns the class name referenced by a CONSTANT_Class entry.
func GetClassName(pool []ConstantPoolEntry, classIndex uint16) (string, error) {
	entry, err := entryAt(pool, classIndex)
	if err != nil {
		return "", err
	}
	class, ok := entry.(*ConstantClass)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Class (tag=%d)", classIndex, entry.Tag())
	}
	return GetUtf8(pool, class.NameIndex)
}
