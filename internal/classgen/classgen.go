// Package classgen assembles class files in memory. It exists so tests can
// exercise the parser and the interpreter without a Java compiler.
package classgen

import (
	"bytes"
	"encoding/binary"

	"github.com/daimatz/gojvm-reload/pkg/classfile"
)

const (
	metafactoryOwner = "java/lang/invoke/LambdaMetafactory"
	metafactoryDesc  = "(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;" +
		"Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodHandle;Ljava/lang/invoke/MethodType;)" +
		"Ljava/lang/invoke/CallSite;"
	altMetafactoryDesc = "(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;" +
		"[Ljava/lang/Object;)Ljava/lang/invoke/CallSite;"
)

type method struct {
	flags     uint16
	name      string
	desc      string
	maxStack  uint16
	maxLocals uint16
	code      []byte
	handlers  []classfile.ExceptionHandler
}

type field struct {
	flags uint16
	name  string
	desc  string
}

type bootstrap struct {
	ref  uint16
	args []uint16
}

// Builder accumulates a class file. Constant pool entries are de-duplicated.
type Builder struct {
	pool       [][]byte
	index      map[string]uint16
	flags      uint16
	this       uint16
	super      uint16
	interfaces []uint16
	fields     []field
	methods    []method
	bootstrap  []bootstrap
	nestHost   uint16
	sourceFile uint16
}

// New starts a public class. An empty super means java/lang/Object.
func New(name, super string) *Builder {
	b := &Builder{
		pool:  [][]byte{nil},
		index: make(map[string]uint16),
		flags: classfile.AccPublic | classfile.AccSuper,
	}
	if super == "" {
		super = "java/lang/Object"
	}
	b.this = b.Class(name)
	b.super = b.Class(super)
	return b
}

// Flags replaces the class access flags.
func (b *Builder) Flags(flags uint16) *Builder {
	b.flags = flags
	return b
}

// Implements adds direct superinterfaces.
func (b *Builder) Implements(names ...string) *Builder {
	for _, n := range names {
		b.interfaces = append(b.interfaces, b.Class(n))
	}
	return b
}

func (b *Builder) add(tag uint8, payload []byte) uint16 {
	key := string(append([]byte{tag}, payload...))
	if idx, ok := b.index[key]; ok {
		return idx
	}
	idx := uint16(len(b.pool))
	b.pool = append(b.pool, append([]byte{tag}, payload...))
	b.index[key] = idx
	if tag == classfile.TagLong || tag == classfile.TagDouble {
		b.pool = append(b.pool, nil)
	}
	return idx
}

func u2(vs ...uint16) []byte {
	out := make([]byte, 0, 2*len(vs))
	for _, v := range vs {
		out = binary.BigEndian.AppendUint16(out, v)
	}
	return out
}

// U2 encodes big-endian operands, handy when writing bytecode by hand.
func U2(v uint16) []byte { return u2(v) }

func (b *Builder) Utf8(s string) uint16 {
	return b.add(classfile.TagUtf8, append(u2(uint16(len(s))), s...))
}

func (b *Builder) Integer(v int32) uint16 {
	return b.add(classfile.TagInteger, binary.BigEndian.AppendUint32(nil, uint32(v)))
}

func (b *Builder) Long(v int64) uint16 {
	return b.add(classfile.TagLong, binary.BigEndian.AppendUint64(nil, uint64(v)))
}

func (b *Builder) Class(name string) uint16 {
	return b.add(classfile.TagClass, u2(b.Utf8(name)))
}

func (b *Builder) String(s string) uint16 {
	return b.add(classfile.TagString, u2(b.Utf8(s)))
}

func (b *Builder) NameAndType(name, desc string) uint16 {
	return b.add(classfile.TagNameAndType, u2(b.Utf8(name), b.Utf8(desc)))
}

func (b *Builder) Fieldref(class, name, desc string) uint16 {
	return b.add(classfile.TagFieldref, u2(b.Class(class), b.NameAndType(name, desc)))
}

func (b *Builder) Methodref(class, name, desc string) uint16 {
	return b.add(classfile.TagMethodref, u2(b.Class(class), b.NameAndType(name, desc)))
}

func (b *Builder) InterfaceMethodref(class, name, desc string) uint16 {
	return b.add(classfile.TagInterfaceMethodref, u2(b.Class(class), b.NameAndType(name, desc)))
}

func (b *Builder) MethodHandle(kind uint8, ref uint16) uint16 {
	return b.add(classfile.TagMethodHandle, append([]byte{kind}, u2(ref)...))
}

func (b *Builder) MethodType(desc string) uint16 {
	return b.add(classfile.TagMethodType, u2(b.Utf8(desc)))
}

// Bootstrap appends a BootstrapMethods entry and returns its index.
func (b *Builder) Bootstrap(handle uint16, args ...uint16) uint16 {
	b.bootstrap = append(b.bootstrap, bootstrap{ref: handle, args: args})
	return uint16(len(b.bootstrap) - 1)
}

func (b *Builder) InvokeDynamic(bsm uint16, name, desc string) uint16 {
	return b.add(classfile.TagInvokeDynamic, u2(bsm, b.NameAndType(name, desc)))
}

// Impl names the implementation method of a lambda site.
type Impl struct {
	Kind      uint8
	Owner     string
	Name      string
	Desc      string
	Interface bool
}

func (b *Builder) implHandle(impl Impl) uint16 {
	var ref uint16
	if impl.Interface || impl.Kind == classfile.RefInvokeInterface {
		ref = b.InterfaceMethodref(impl.Owner, impl.Name, impl.Desc)
	} else {
		ref = b.Methodref(impl.Owner, impl.Name, impl.Desc)
	}
	return b.MethodHandle(impl.Kind, ref)
}

// LambdaSite adds a LambdaMetafactory.metafactory call site and returns the
// InvokeDynamic constant index.
func (b *Builder) LambdaSite(name, siteDesc, samDesc string, impl Impl, instantiatedDesc string) uint16 {
	bsm := b.MethodHandle(classfile.RefInvokeStatic, b.Methodref(metafactoryOwner, "metafactory", metafactoryDesc))
	idx := b.Bootstrap(bsm, b.MethodType(samDesc), b.implHandle(impl), b.MethodType(instantiatedDesc))
	return b.InvokeDynamic(idx, name, siteDesc)
}

// AltLambdaSite adds a LambdaMetafactory.altMetafactory call site with the
// serializable flag set.
func (b *Builder) AltLambdaSite(name, siteDesc, samDesc string, impl Impl, instantiatedDesc string) uint16 {
	bsm := b.MethodHandle(classfile.RefInvokeStatic, b.Methodref(metafactoryOwner, "altMetafactory", altMetafactoryDesc))
	idx := b.Bootstrap(bsm, b.MethodType(samDesc), b.implHandle(impl), b.MethodType(instantiatedDesc), b.Integer(1))
	return b.InvokeDynamic(idx, name, siteDesc)
}

// Field adds a field declaration.
func (b *Builder) Field(flags uint16, name, desc string) *Builder {
	b.Utf8(name)
	b.Utf8(desc)
	b.fields = append(b.fields, field{flags, name, desc})
	return b
}

// Catch adds an exception table entry to the most recently added method. An
// empty catchType catches everything.
func (b *Builder) Catch(start, end, handler uint16, catchType string) *Builder {
	h := classfile.ExceptionHandler{StartPC: start, EndPC: end, HandlerPC: handler}
	if catchType != "" {
		h.CatchType = b.Class(catchType)
	}
	m := &b.methods[len(b.methods)-1]
	m.handlers = append(m.handlers, h)
	return b
}

// Method adds a method. A nil code slice produces an abstract method.
func (b *Builder) Method(flags uint16, name, desc string, maxStack, maxLocals uint16, code []byte) *Builder {
	b.Utf8(name)
	b.Utf8(desc)
	if code != nil {
		b.Utf8("Code")
	}
	b.methods = append(b.methods, method{flags, name, desc, maxStack, maxLocals, code, nil})
	return b
}

// NestHost records the NestHost attribute naming host.
func (b *Builder) NestHost(host string) *Builder {
	b.Utf8("NestHost")
	b.nestHost = b.Class(host)
	return b
}

// SourceFile records the SourceFile attribute.
func (b *Builder) SourceFile(name string) *Builder {
	b.Utf8("SourceFile")
	b.sourceFile = b.Utf8(name)
	return b
}

// Bytes serializes the class file.
func (b *Builder) Bytes() []byte {
	// attribute names must be in the pool before it is written
	if len(b.bootstrap) > 0 {
		b.Utf8("BootstrapMethods")
	}

	var buf bytes.Buffer
	w := func(v interface{}) { _ = binary.Write(&buf, binary.BigEndian, v) }

	w(uint32(0xCAFEBABE))
	w(uint16(0))
	w(uint16(52))
	w(uint16(len(b.pool)))
	for _, e := range b.pool[1:] {
		buf.Write(e)
	}
	w(b.flags)
	w(b.this)
	w(b.super)
	w(uint16(len(b.interfaces)))
	for _, i := range b.interfaces {
		w(i)
	}
	w(uint16(len(b.fields)))
	for _, f := range b.fields {
		w(f.flags)
		w(b.Utf8(f.name))
		w(b.Utf8(f.desc))
		w(uint16(0))
	}

	w(uint16(len(b.methods)))
	for _, m := range b.methods {
		w(m.flags)
		w(b.Utf8(m.name))
		w(b.Utf8(m.desc))
		if m.code == nil {
			w(uint16(0))
			continue
		}
		w(uint16(1))
		w(b.Utf8("Code"))
		w(uint32(12 + len(m.code) + 8*len(m.handlers)))
		w(m.maxStack)
		w(m.maxLocals)
		w(uint32(len(m.code)))
		buf.Write(m.code)
		w(uint16(len(m.handlers)))
		for _, h := range m.handlers {
			w(h)
		}
		w(uint16(0)) // attributes
	}

	type attribute struct {
		name uint16
		data []byte
	}
	var attrs []attribute
	if len(b.bootstrap) > 0 {
		var data bytes.Buffer
		data.Write(u2(uint16(len(b.bootstrap))))
		for _, bm := range b.bootstrap {
			data.Write(u2(bm.ref, uint16(len(bm.args))))
			data.Write(u2(bm.args...))
		}
		attrs = append(attrs, attribute{b.Utf8("BootstrapMethods"), data.Bytes()})
	}
	if b.nestHost != 0 {
		attrs = append(attrs, attribute{b.Utf8("NestHost"), u2(b.nestHost)})
	}
	if b.sourceFile != 0 {
		attrs = append(attrs, attribute{b.Utf8("SourceFile"), u2(b.sourceFile)})
	}
	w(uint16(len(attrs)))
	for _, a := range attrs {
		w(a.name)
		w(uint32(len(a.data)))
		buf.Write(a.data)
	}
	return buf.Bytes()
}
