// Package reload tracks which executor class currently implements each
// reloaded type and re-links invokedynamic call sites against it.
package reload

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/daimatz/gojvm-reload/pkg/classfile"
	"github.com/daimatz/gojvm-reload/pkg/indy"
	"github.com/daimatz/gojvm-reload/pkg/vm"
)

const executorMarker = "$$E"

// Registry maps reloaded types to their current executor. Every Reload bumps
// the generation and notifies subscribers before it returns.
type Registry struct {
	loader *vm.Loader
	log    *zap.Logger

	mu          sync.RWMutex
	executors   map[string]*indy.Executor
	versions    map[string]int
	generation  uint64
	subscribers []func(typeName string, generation uint64)
}

func NewRegistry(loader *vm.Loader, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		loader:    loader,
		log:       log,
		executors: make(map[string]*indy.Executor),
		versions:  make(map[string]int),
	}
}

// ExecutorName returns the name of version n of typeName's executor:
// "pkg/Foo$$E3".
func ExecutorName(typeName string, n int) string {
	return typeName + executorMarker + strconv.Itoa(n)
}

// NextExecutorName returns the name the next Reload of typeName expects.
func (r *Registry) NextExecutorName(typeName string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return ExecutorName(typeName, r.versions[typeName]+1)
}

// Reload binds c, which must be named NextExecutorName(typeName), as the
// executor of typeName and defines it in the registry's loader.
func (r *Registry) Reload(typeName string, c *vm.Class) (*indy.Executor, error) {
	r.mu.Lock()
	version := r.versions[typeName] + 1
	if want := ExecutorName(typeName, version); c.Name != want {
		r.mu.Unlock()
		return nil, fmt.Errorf("reloading %s: executor is %s, want %s", typeName, c.Name, want)
	}
	r.loader.Define(c)
	exec := indy.ExecutorOf(c)
	r.executors[typeName] = exec
	r.versions[typeName] = version
	r.generation++
	generation := r.generation
	subscribers := r.subscribers
	r.mu.Unlock()

	for _, fn := range subscribers {
		fn(typeName, generation)
	}
	r.log.Info("type reloaded",
		zap.String("type", typeName),
		zap.String("executor", exec.Name),
		zap.Uint64("generation", generation))
	return exec, nil
}

// ReloadClassFile links cf against the registry's loader and reloads
// typeName with it.
func (r *Registry) ReloadClassFile(typeName string, cf *classfile.ClassFile) (*indy.Executor, error) {
	name, err := cf.ClassName()
	if err != nil {
		return nil, err
	}
	if want := r.NextExecutorName(typeName); name != want {
		return nil, fmt.Errorf("reloading %s: executor is %s, want %s", typeName, name, want)
	}
	c, err := r.loader.DefineClassFile(cf)
	if err != nil {
		return nil, err
	}
	return r.Reload(typeName, c)
}

// Executor returns the current executor of typeName, or nil if it has never
// been reloaded.
func (r *Registry) Executor(typeName string) *indy.Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.executors[typeName]
}

// ExecutorFor returns the executor bound to the type code in c belongs to.
// Code running inside an executor belongs to the executor's type.
func (r *Registry) ExecutorFor(c *vm.Class) *indy.Executor {
	name := c.Name
	if i := strings.LastIndex(name, executorMarker); i > 0 {
		if _, err := strconv.Atoi(name[i+len(executorMarker):]); err == nil {
			name = name[:i]
		}
	}
	return r.Executor(name)
}

// Generation counts reloads since the registry was created.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Subscribe registers fn to run synchronously at the end of every Reload.
func (r *Registry) Subscribe(fn func(typeName string, generation uint64)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}
