package classfile

import "fmt"

// MethodRefInfo holds resolved method reference info.
type MethodRefInfo struct {
	ClassName  string
	MethodName string
	Descriptor string
	Interface  bool
}

// FieldRefInfo holds resolved field reference info.
type FieldRefInfo struct {
	ClassName  string
	FieldName  string
	Descriptor string
}

func entryAt(pool []ConstantPoolEntry, index uint16) (ConstantPoolEntry, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return nil, fmt.Errorf("invalid constant pool index %d", index)
	}
	return pool[index], nil
}

// resolveNameAndType returns the name and descriptor of a CONSTANT_NameAndType entry.
func resolveNameAndType(pool []ConstantPoolEntry, index uint16) (string, string, error) {
	entry, err := entryAt(pool, index)
	if err != nil {
		return "", "", fmt.Errorf("invalid NameAndType index %d", index)
	}
	nat, ok := entry.(*ConstantNameAndType)
	if !ok {
		return "", "", fmt.Errorf("constant pool index %d is not NameAndType", index)
	}
	name, err := GetUtf8(pool, nat.NameIndex)
	if err != nil {
		return "", "", fmt.Errorf("resolving name: %w", err)
	}
	descriptor, err := GetUtf8(pool, nat.DescriptorIndex)
	if err != nil {
		return "", "", fmt.Errorf("resolving descriptor: %w", err)
	}
	return name, descriptor, nil
}

func resolveMemberRef(pool []ConstantPoolEntry, classIndex, natIndex uint16) (string, string, string, error) {
	className, err := GetClassName(pool, classIndex)
	if err != nil {
		return "", "", "", fmt.Errorf("resolving class: %w", err)
	}
	name, descriptor, err := resolveNameAndType(pool, natIndex)
	if err != nil {
		return "", "", "", err
	}
	return className, name, descriptor, nil
}

// ResolveMethodref resolves a CONSTANT_Methodref entry.
func ResolveMethodref(pool []ConstantPoolEntry, index uint16) (*MethodRefInfo, error) {
	entry, err := entryAt(pool, index)
	if err != nil {
		return nil, err
	}
	mref, ok := entry.(*ConstantMethodref)
	if !ok {
		return nil, fmt.Errorf("constant pool index %d is not Methodref", index)
	}
	className, name, descriptor, err := resolveMemberRef(pool, mref.ClassIndex, mref.NameAndTypeIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving Methodref: %w", err)
	}
	return &MethodRefInfo{ClassName: className, MethodName: name, Descriptor: descriptor}, nil
}

// ResolveInterfaceMethodref resolves a CONSTANT_InterfaceMethodref entry.
func ResolveInterfaceMethodref(pool []ConstantPoolEntry, index uint16) (*MethodRefInfo, error) {
	entry, err := entryAt(pool, index)
	if err != nil {
		return nil, err
	}
	mref, ok := entry.(*ConstantInterfaceMethodref)
	if !ok {
		return nil, fmt.Errorf("constant pool index %d is not InterfaceMethodref", index)
	}
	className, name, descriptor, err := resolveMemberRef(pool, mref.ClassIndex, mref.NameAndTypeIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving InterfaceMethodref: %w", err)
	}
	return &MethodRefInfo{ClassName: className, MethodName: name, Descriptor: descriptor, Interface: true}, nil
}

// ResolveAnyMethodref resolves either a Methodref or an InterfaceMethodref.
// invokestatic and invokespecial may reference both since class file version 52.
func ResolveAnyMethodref(pool []ConstantPoolEntry, index uint16) (*MethodRefInfo, error) {
	entry, err := entryAt(pool, index)
	if err != nil {
		return nil, err
	}
	if _, ok := entry.(*ConstantInterfaceMethodref); ok {
		return ResolveInterfaceMethodref(pool, index)
	}
	return ResolveMethodref(pool, index)
}

// ResolveFieldref resolves a CONSTANT_Fieldref entry.
func ResolveFieldref(pool []ConstantPoolEntry, index uint16) (*FieldRefInfo, error) {
	entry, err := entryAt(pool, index)
	if err != nil {
		return nil, err
	}
	fref, ok := entry.(*ConstantFieldref)
	if !ok {
		return nil, fmt.Errorf("constant pool index %d is not Fieldref", index)
	}
	className, name, descriptor, err := resolveMemberRef(pool, fref.ClassIndex, fref.NameAndTypeIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving Fieldref: %w", err)
	}
	return &FieldRefInfo{ClassName: className, FieldName: name, Descriptor: descriptor}, nil
}

// MethodHandleInfo is a resolved CONSTANT_MethodHandle.
type MethodHandleInfo struct {
	Kind       uint8
	ClassName  string
	MemberName string
	Descriptor string
	Interface  bool
}

func (h *MethodHandleInfo) String() string {
	return fmt.Sprintf("%s %s.%s:%s", RefKindName(h.Kind), h.ClassName, h.MemberName, h.Descriptor)
}

// RefKindName returns the javap spelling of a reference kind.
func RefKindName(kind uint8) string {
	switch kind {
	case RefGetField:
		return "getfield"
	case RefGetStatic:
		return "getstatic"
	case RefPutField:
		return "putfield"
	case RefPutStatic:
		return "putstatic"
	case RefInvokeVirtual:
		return "invokevirtual"
	case RefInvokeStatic:
		return "invokestatic"
	case RefInvokeSpecial:
		return "invokespecial"
	case RefNewInvokeSpecial:
		return "newinvokespecial"
	case RefInvokeInterface:
		return "invokeinterface"
	}
	return fmt.Sprintf("refkind(%d)", kind)
}

// ResolveMethodHandle resolves a CONSTANT_MethodHandle entry.
func ResolveMethodHandle(pool []ConstantPoolEntry, index uint16) (*MethodHandleInfo, error) {
	entry, err := entryAt(pool, index)
	if err != nil {
		return nil, err
	}
	mh, ok := entry.(*ConstantMethodHandle)
	if !ok {
		return nil, fmt.Errorf("constant pool index %d is not MethodHandle", index)
	}
	info := &MethodHandleInfo{Kind: mh.ReferenceKind}
	switch mh.ReferenceKind {
	case RefGetField, RefGetStatic, RefPutField, RefPutStatic:
		fref, err := ResolveFieldref(pool, mh.ReferenceIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving MethodHandle at index %d: %w", index, err)
		}
		info.ClassName, info.MemberName, info.Descriptor = fref.ClassName, fref.FieldName, fref.Descriptor
	case RefInvokeVirtual, RefInvokeStatic, RefInvokeSpecial, RefNewInvokeSpecial, RefInvokeInterface:
		mref, err := ResolveAnyMethodref(pool, mh.ReferenceIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving MethodHandle at index %d: %w", index, err)
		}
		info.ClassName, info.MemberName, info.Descriptor = mref.ClassName, mref.MethodName, mref.Descriptor
		info.Interface = mref.Interface
	default:
		return nil, fmt.Errorf("MethodHandle at index %d has invalid reference kind %d", index, mh.ReferenceKind)
	}
	return info, nil
}

// MethodTypeRef is a resolved CONSTANT_MethodType used as a bootstrap argument.
type MethodTypeRef struct {
	Descriptor string
}

// ClassRef is a CONSTANT_Class used as a bootstrap argument.
type ClassRef struct {
	Name string
}

// ResolveConstant resolves a loadable constant into a Go value: int32, int64,
// float32, float64, string, ClassRef, MethodTypeRef or *MethodHandleInfo.
func ResolveConstant(pool []ConstantPoolEntry, index uint16) (interface{}, error) {
	entry, err := entryAt(pool, index)
	if err != nil {
		return nil, err
	}
	switch c := entry.(type) {
	case *ConstantInteger:
		return c.Value, nil
	case *ConstantLong:
		return c.Value, nil
	case *ConstantFloat:
		return c.Value, nil
	case *ConstantDouble:
		return c.Value, nil
	case *ConstantString:
		return GetUtf8(pool, c.StringIndex)
	case *ConstantClass:
		name, err := GetUtf8(pool, c.NameIndex)
		if err != nil {
			return nil, err
		}
		return ClassRef{Name: name}, nil
	case *ConstantMethodType:
		desc, err := GetUtf8(pool, c.DescriptorIndex)
		if err != nil {
			return nil, err
		}
		return MethodTypeRef{Descriptor: desc}, nil
	case *ConstantMethodHandle:
		return ResolveMethodHandle(pool, index)
	}
	return nil, fmt.Errorf("constant pool index %d (tag=%d) is not loadable", index, entry.Tag())
}

// InvokeDynamicSite is a fully resolved invokedynamic constant together with
// its bootstrap method entry.
type InvokeDynamicSite struct {
	Index      uint16
	Bootstrap  *MethodHandleInfo
	Arguments  []interface{}
	Name       string
	Descriptor string
}

// NameAndDescriptor returns the site text in the form "m()Lpkg/Type$Sam;".
func (s *InvokeDynamicSite) NameAndDescriptor() string {
	return s.Name + s.Descriptor
}

// ResolveInvokeDynamic resolves the CONSTANT_InvokeDynamic at index against
// the class's BootstrapMethods attribute.
func (cf *ClassFile) ResolveInvokeDynamic(index uint16) (*InvokeDynamicSite, error) {
	entry, err := entryAt(cf.ConstantPool, index)
	if err != nil {
		return nil, err
	}
	indy, ok := entry.(*ConstantInvokeDynamic)
	if !ok || indy.Dynamic {
		return nil, fmt.Errorf("constant pool index %d is not InvokeDynamic", index)
	}
	if int(indy.BootstrapMethodAttrIndex) >= len(cf.BootstrapMethods) {
		return nil, fmt.Errorf("InvokeDynamic at index %d: bootstrap method %d out of range (have %d)",
			index, indy.BootstrapMethodAttrIndex, len(cf.BootstrapMethods))
	}
	bm := cf.BootstrapMethods[indy.BootstrapMethodAttrIndex]

	bsm, err := ResolveMethodHandle(cf.ConstantPool, bm.MethodRef)
	if err != nil {
		return nil, fmt.Errorf("InvokeDynamic at index %d: bootstrap method: %w", index, err)
	}
	args := make([]interface{}, len(bm.BootstrapArguments))
	for i, argIndex := range bm.BootstrapArguments {
		if args[i], err = ResolveConstant(cf.ConstantPool, argIndex); err != nil {
			return nil, fmt.Errorf("InvokeDynamic at index %d: bootstrap argument %d: %w", index, i, err)
		}
	}
	name, descriptor, err := resolveNameAndType(cf.ConstantPool, indy.NameAndTypeIndex)
	if err != nil {
		return nil, fmt.Errorf("InvokeDynamic at index %d: %w", index, err)
	}
	return &InvokeDynamicSite{
		Index:      index,
		Bootstrap:  bsm,
		Arguments:  args,
		Name:       name,
		Descriptor: descriptor,
	}, nil
}

// InvokeDynamicSites resolves every invokedynamic constant in the pool, in
// constant pool order.
func (cf *ClassFile) InvokeDynamicSites() ([]*InvokeDynamicSite, error) {
	var sites []*InvokeDynamicSite
	for i, entry := range cf.ConstantPool {
		if entry == nil || entry.Tag() != TagInvokeDynamic {
			continue
		}
		site, err := cf.ResolveInvokeDynamic(uint16(i))
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, nil
}
