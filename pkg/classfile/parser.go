package classfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const classMagic = 0xCAFEBABE

// ParseFile opens and parses a .class file from the given path.
func ParseFile(path string) (*ClassFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(bufio.NewReader(f))
}

// ParseBytes parses an in-memory class file.
func ParseBytes(data []byte) (*ClassFile, error) {
	return Parse(bytes.NewReader(data))
}

// Parse reads a .class file from r. Attributes other than Code,
// BootstrapMethods, NestHost and SourceFile are kept raw.
func Parse(in io.Reader) (*ClassFile, error) {
	r := newReader(in)

	if magic := r.u4("magic number"); r.err == nil && magic != classMagic {
		return nil, fmt.Errorf("invalid magic number: 0x%X (expected 0xCAFEBABE)", magic)
	}
	cf := &ClassFile{
		MinorVersion: r.u2("minor version"),
		MajorVersion: r.u2("major version"),
	}
	cpCount := r.u2("constant pool count")
	if err := r.check(); err != nil {
		return nil, err
	}

	pool, err := parseConstantPool(r, cpCount)
	if err != nil {
		return nil, fmt.Errorf("parsing constant pool: %w", err)
	}
	cf.ConstantPool = pool

	cf.AccessFlags = r.u2("access flags")
	cf.ThisClass = r.u2("this_class")
	cf.SuperClass = r.u2("super_class")
	cf.Interfaces = make([]uint16, r.u2("interfaces count"))
	for i := range cf.Interfaces {
		cf.Interfaces[i] = r.u2("interface index")
	}
	if err := r.check(); err != nil {
		return nil, err
	}

	if cf.Fields, err = parseMembers(r, pool, "field", newField); err != nil {
		return nil, fmt.Errorf("parsing fields: %w", err)
	}
	if cf.Methods, err = parseMembers(r, pool, "method", newMethod); err != nil {
		return nil, fmt.Errorf("parsing methods: %w", err)
	}

	attrs, err := parseAttributes(r, pool)
	if err != nil {
		return nil, fmt.Errorf("parsing class attributes: %w", err)
	}
	if err := cf.applyClassAttributes(attrs); err != nil {
		return nil, err
	}
	return cf, nil
}

// parseMembers reads a field_info or method_info table; build turns the
// decoded header and attributes into the caller's member type.
func parseMembers[T any](r *reader, pool []ConstantPoolEntry, kind string, build func(flags uint16, name, desc string, attrs []AttributeInfo) (T, error)) ([]T, error) {
	count := r.u2(kind + "s count")
	if err := r.check(); err != nil {
		return nil, err
	}
	members := make([]T, 0, count)
	for i := uint16(0); i < count; i++ {
		flags := r.u2(kind + " access flags")
		nameIndex := r.u2(kind + " name index")
		descIndex := r.u2(kind + " descriptor index")
		if err := r.check(); err != nil {
			return nil, fmt.Errorf("%s %d: %w", kind, i, err)
		}
		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("%s %d name: %w", kind, i, err)
		}
		desc, err := GetUtf8(pool, descIndex)
		if err != nil {
			return nil, fmt.Errorf("%s %s descriptor: %w", kind, name, err)
		}
		attrs, err := parseAttributes(r, pool)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", kind, name, err)
		}
		m, err := build(flags, name, desc, attrs)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", kind, name, err)
		}
		members = append(members, m)
	}
	return members, nil
}

func newField(flags uint16, name, desc string, attrs []AttributeInfo) (FieldInfo, error) {
	return FieldInfo{AccessFlags: flags, Name: name, Descriptor: desc, Attributes: attrs}, nil
}

func newMethod(flags uint16, name, desc string, attrs []AttributeInfo) (MethodInfo, error) {
	m := MethodInfo{AccessFlags: flags, Name: name, Descriptor: desc, Attributes: attrs}
	if data, ok := findAttribute(attrs, "Code"); ok {
		code, err := parseCodeAttribute(data)
		if err != nil {
			return m, fmt.Errorf("Code attribute: %w", err)
		}
		m.Code = code
	}
	return m, nil
}

func parseAttributes(r *reader, pool []ConstantPoolEntry) ([]AttributeInfo, error) {
	count := r.u2("attributes count")
	if err := r.check(); err != nil {
		return nil, err
	}
	attrs := make([]AttributeInfo, 0, count)
	for i := uint16(0); i < count; i++ {
		nameIndex := r.u2("attribute name index")
		length := r.u4("attribute length")
		data := r.bytes(int(length), "attribute data")
		if err := r.check(); err != nil {
			return nil, fmt.Errorf("attribute %d: %w", i, err)
		}
		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("attribute %d name: %w", i, err)
		}
		attrs = append(attrs, AttributeInfo{Name: name, Data: data})
	}
	return attrs, nil
}

func findAttribute(attrs []AttributeInfo, name string) ([]byte, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a.Data, true
		}
	}
	return nil, false
}

func parseCodeAttribute(data []byte) (*CodeAttribute, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("too short: %d bytes", len(data))
	}
	codeLength := int(binary.BigEndian.Uint32(data[4:8]))
	if len(data) < 10+codeLength {
		return nil, fmt.Errorf("truncated: code_length %d in %d bytes", codeLength, len(data))
	}
	attr := &CodeAttribute{
		MaxStack:  binary.BigEndian.Uint16(data[0:2]),
		MaxLocals: binary.BigEndian.Uint16(data[2:4]),
		Code:      append([]byte(nil), data[8:8+codeLength]...),
	}

	table := data[8+codeLength:]
	n := int(binary.BigEndian.Uint16(table))
	table = table[2:]
	if len(table) < 8*n {
		return nil, fmt.Errorf("truncated exception table: %d entries in %d bytes", n, len(table))
	}
	for i := 0; i < n; i++ {
		e := table[8*i:]
		h := ExceptionHandler{
			StartPC:   binary.BigEndian.Uint16(e[0:2]),
			EndPC:     binary.BigEndian.Uint16(e[2:4]),
			HandlerPC: binary.BigEndian.Uint16(e[4:6]),
			CatchType: binary.BigEndian.Uint16(e[6:8]),
		}
		if int(h.StartPC) >= codeLength || int(h.EndPC) > codeLength || h.StartPC >= h.EndPC || int(h.HandlerPC) >= codeLength {
			return nil, fmt.Errorf("exception handler %d: range [%d, %d) -> %d outside code of length %d",
				i, h.StartPC, h.EndPC, h.HandlerPC, codeLength)
		}
		attr.ExceptionHandlers = append(attr.ExceptionHandlers, h)
	}
	return attr, nil
}

func (cf *ClassFile) applyClassAttributes(attrs []AttributeInfo) error {
	for _, a := range attrs {
		var err error
		switch a.Name {
		case "BootstrapMethods":
			cf.BootstrapMethods, err = parseBootstrapMethods(a.Data)
		case "NestHost":
			cf.NestHost, err = u2Attribute(a)
		case "SourceFile":
			var idx uint16
			if idx, err = u2Attribute(a); err == nil {
				cf.SourceFile, err = GetUtf8(cf.ConstantPool, idx)
			}
		}
		if err != nil {
			return fmt.Errorf("parsing %s: %w", a.Name, err)
		}
	}
	return nil
}

func u2Attribute(a AttributeInfo) (uint16, error) {
	if len(a.Data) != 2 {
		return 0, fmt.Errorf("length %d, want 2", len(a.Data))
	}
	return binary.BigEndian.Uint16(a.Data), nil
}

func parseBootstrapMethods(data []byte) ([]BootstrapMethod, error) {
	r := newReader(bytes.NewReader(data))
	methods := make([]BootstrapMethod, r.u2("num_bootstrap_methods"))
	for i := range methods {
		methods[i].MethodRef = r.u2("bootstrap_method_ref")
		methods[i].BootstrapArguments = make([]uint16, r.u2("num_bootstrap_arguments"))
		for j := range methods[i].BootstrapArguments {
			methods[i].BootstrapArguments[j] = r.u2("bootstrap argument")
		}
		if err := r.check(); err != nil {
			return nil, fmt.Errorf("bootstrap method %d: %w", i, err)
		}
	}
	if err := r.check(); err != nil {
		return nil, err
	}
	return methods, nil
}

// ClassName returns the fully qualified name of this class.
func (cf *ClassFile) ClassName() (string, error) {
	return GetClassName(cf.ConstantPool, cf.ThisClass)
}

// NestHostName returns the class named by the NestHost attribute, or "" when
// the class has none.
func (cf *ClassFile) NestHostName() string {
	if cf.NestHost == 0 {
		return ""
	}
	name, err := GetClassName(cf.ConstantPool, cf.NestHost)
	if err != nil {
		return ""
	}
	return name
}

// FindMethod finds a method by name and descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name && cf.Methods[i].Descriptor == descriptor {
			return &cf.Methods[i]
		}
	}
	return nil
}

// FindMethodByName finds a method by name only (first match).
func (cf *ClassFile) FindMethodByName(name string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name {
			return &cf.Methods[i]
		}
	}
	return nil
}
