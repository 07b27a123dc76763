package vm

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/daimatz/gojvm-reload/pkg/classfile"
	"github.com/daimatz/gojvm-reload/pkg/descriptor"
)

// ErrClassFileNotFound is returned by a ClassSource that does not have the
// requested class.
var ErrClassFileNotFound = errors.New("class file not found")

// ClassSource supplies parsed class files by internal name.
type ClassSource interface {
	LoadClassFile(name string) (*classfile.ClassFile, error)
}

// ClassResolver loads classes by internal name. *Loader implements it.
type ClassResolver interface {
	LoadClass(name string) (*Class, error)
}

// JmodSource loads class files from a JDK jmod file.
type JmodSource struct {
	JmodPath string

	once    sync.Once
	openErr error
	files   map[string]*zip.File
}

// NewJmodSource creates a new JmodSource.
func NewJmodSource(jmodPath string) *JmodSource {
	return &JmodSource{JmodPath: jmodPath}
}

func (s *JmodSource) open() error {
	s.once.Do(func() {
		data, err := os.ReadFile(s.JmodPath)
		if err != nil {
			s.openErr = fmt.Errorf("jmod: reading %s: %w", s.JmodPath, err)
			return
		}
		if len(data) < 4 {
			s.openErr = fmt.Errorf("jmod: %s is too short", s.JmodPath)
			return
		}
		zipData := data[4:] // Skip "JM\x01\x00" header
		zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
		if err != nil {
			s.openErr = fmt.Errorf("jmod: opening zip: %w", err)
			return
		}
		s.files = make(map[string]*zip.File, len(zr.File))
		for _, f := range zr.File {
			s.files[f.Name] = f
		}
	})
	return s.openErr
}

func (s *JmodSource) LoadClassFile(name string) (*classfile.ClassFile, error) {
	if err := s.open(); err != nil {
		return nil, err
	}
	target := "classes/" + name + ".class"
	file, ok := s.files[target]
	if !ok {
		return nil, fmt.Errorf("jmod: class %s not found in %s: %w", name, s.JmodPath, ErrClassFileNotFound)
	}
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("jmod: opening %s: %w", target, err)
	}
	defer rc.Close()

	cf, err := classfile.Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("jmod: parsing %s: %w", name, err)
	}
	return cf, nil
}

// DirSource loads class files from a classpath directory.
type DirSource struct {
	ClassPath string
}

// NewDirSource creates a new DirSource.
func NewDirSource(classPath string) *DirSource {
	return &DirSource{ClassPath: classPath}
}

func (s *DirSource) LoadClassFile(name string) (*classfile.ClassFile, error) {
	path := filepath.Join(s.ClassPath, filepath.FromSlash(name)+".class")
	cf, err := classfile.ParseFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("user: class %s not found: %w", name, ErrClassFileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("user: class %s: %w", name, err)
	}
	return cf, nil
}

// Loader links classes from its sources and holds every defined class by
// name. Defining a class under an existing name replaces it; classes already
// handed out keep pointing at the old version. Loader is safe for concurrent use.
type Loader struct {
	sources []ClassSource
	log     *zap.Logger

	mu      sync.RWMutex
	classes map[string]*Class
}

// NewLoader creates a Loader that consults sources in order.
func NewLoader(log *zap.Logger, sources ...ClassSource) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{
		sources: sources,
		log:     log,
		classes: make(map[string]*Class),
	}
}

// Loaded returns a defined class without consulting the sources.
func (l *Loader) Loaded(name string) (*Class, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.classes[name]
	return c, ok
}

// Define registers c, replacing any class of the same name, and returns it.
func (l *Loader) Define(c *Class) *Class {
	c.loader = l
	if c.statics == nil {
		c.statics = make(map[string]Value)
	}
	l.mu.Lock()
	_, replaced := l.classes[c.Name]
	l.classes[c.Name] = c
	l.mu.Unlock()
	if replaced {
		l.log.Debug("class redefined", zap.String("class", c.Name))
	}
	return c
}

// LoadClass returns the class with the given internal name, linking it from
// the sources on first use. Array names ("[I", "[Lpkg/Foo;") are synthesized.
func (l *Loader) LoadClass(name string) (*Class, error) {
	if c, ok := l.Loaded(name); ok {
		return c, nil
	}
	if len(name) > 0 && name[0] == '[' {
		return l.loadArray(name)
	}

	var lastErr error
	for _, src := range l.sources {
		cf, err := src.LoadClassFile(name)
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrClassFileNotFound) {
				continue
			}
			return nil, &ClassNotFoundError{Name: name, Err: err}
		}
		c, err := l.link(cf)
		if err != nil {
			return nil, &ClassNotFoundError{Name: name, Err: err}
		}
		l.mu.Lock()
		if existing, ok := l.classes[name]; ok {
			l.mu.Unlock()
			return existing, nil
		}
		l.classes[name] = c
		l.mu.Unlock()
		l.log.Debug("class loaded", zap.String("class", name), zap.Int("methods", len(c.Methods)))
		return c, nil
	}
	if lastErr == nil {
		lastErr = ErrClassFileNotFound
	}
	return nil, &ClassNotFoundError{Name: name, Err: lastErr}
}

// DefineClassFile links cf against this loader and defines the result,
// replacing any class of the same name.
func (l *Loader) DefineClassFile(cf *classfile.ClassFile) (*Class, error) {
	c, err := l.link(cf)
	if err != nil {
		return nil, err
	}
	return l.Define(c), nil
}

func (l *Loader) loadArray(name string) (*Class, error) {
	t, err := descriptor.ParseType(name)
	if err != nil || t.Kind != descriptor.Array {
		return nil, &ClassNotFoundError{Name: name, Err: fmt.Errorf("invalid array class name")}
	}
	var component *Class
	switch elem := *t.Elem; elem.Kind {
	case descriptor.Object:
		component, err = l.LoadClass(elem.ClassName)
	case descriptor.Array:
		component, err = l.LoadClass(elem.String())
	default:
		component = PrimitiveClass(elem.Kind)
	}
	if err != nil {
		return nil, err
	}
	arr := ArrayOf(component)
	arr.loader = l
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.classes[name]; ok {
		return existing, nil
	}
	l.classes[name] = arr
	return arr, nil
}

func (l *Loader) link(cf *classfile.ClassFile) (*Class, error) {
	name, err := cf.ClassName()
	if err != nil {
		return nil, fmt.Errorf("resolving this_class: %w", err)
	}
	c := NewClass(name, cf.AccessFlags, nil)
	c.File = cf
	c.loader = l

	if superName := cf.SuperClassName(); superName != "" {
		if c.Super, err = l.LoadClass(superName); err != nil {
			return nil, fmt.Errorf("linking %s: superclass: %w", name, err)
		}
	}
	ifaceNames, err := cf.InterfaceNames()
	if err != nil {
		return nil, fmt.Errorf("linking %s: %w", name, err)
	}
	for _, in := range ifaceNames {
		iface, err := l.LoadClass(in)
		if err != nil {
			return nil, fmt.Errorf("linking %s: interface: %w", name, err)
		}
		c.Interfaces = append(c.Interfaces, iface)
	}

	for i := range cf.Methods {
		mi := &cf.Methods[i]
		if _, err := c.AddMethod(&Method{
			Name:       mi.Name,
			Descriptor: mi.Descriptor,
			Flags:      mi.AccessFlags,
			Code:       mi.Code,
		}); err != nil {
			return nil, fmt.Errorf("linking %s.%s: %w", name, mi.Name, err)
		}
	}
	for _, f := range cf.Fields {
		if f.AccessFlags&classfile.AccStatic != 0 {
			c.statics[f.Name] = zeroValue(f.Descriptor)
		}
	}
	return c, nil
}

func zeroValue(desc string) Value {
	switch desc {
	case "J":
		return LongValue(0)
	case "B", "C", "I", "S", "Z":
		return IntValue(0)
	}
	return NullValue()
}
