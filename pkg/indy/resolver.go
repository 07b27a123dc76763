package indy

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/daimatz/gojvm-reload/pkg/vm"
)

// Resolver turns captured handles into invokable method handles, taking
// into account where a reload has moved their implementation.
type Resolver struct {
	reflector Reflector
	log       *zap.Logger
}

func NewResolver(r Reflector, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{reflector: r, log: log}
}

// Resolve links h for caller. When exec is bound and its name starts with
// h's owner, the member is looked up as a static method of the executor:
// static members keep their descriptor, special and virtual members take
// the owner as an extra first parameter. Otherwise the owner is loaded by
// name and the member looked up there. An executor bound by name only is
// loaded through the reflector. Interface members are matched
// structurally against the interface's public methods.
func (r *Resolver) Resolve(h Handle, caller *vm.Lookup, exec *Executor) (*vm.MethodHandle, error) {
	switch h.Kind {
	case KindStatic, KindSpecial, KindVirtual:
	case KindInterface:
		return r.matchInterfaceMember(h, caller)
	default:
		return nil, &UnsupportedHandleKindError{Handle: h}
	}

	typ, err := vm.MethodTypeOf(h.Descriptor, r.reflector)
	if err != nil {
		return nil, err
	}

	if relocates(h, exec) {
		target := exec.Class
		if target == nil {
			if target, err = r.loadClass(strings.ReplaceAll(exec.Name, ".", "/")); err != nil {
				return nil, err
			}
		}
		if h.Kind != KindStatic {
			owner, err := r.loadClass(h.Owner)
			if err != nil {
				return nil, err
			}
			typ = typ.InsertParam(0, owner)
		}
		r.log.Debug("relocating method handle",
			zap.Stringer("handle", h),
			zap.String("executor", exec.Name),
			zap.String("descriptor", typ.Descriptor()))
		mh, err := r.reflector.FindMember(caller.In(target), target, h.Name, typ, KindStatic, caller.LookupClass())
		return mh, classify(target.Name, h.Name, typ.Descriptor(), err)
	}

	owner, err := r.loadClass(h.Owner)
	if err != nil {
		return nil, err
	}
	mh, err := r.reflector.FindMember(caller.In(owner), owner, h.Name, typ, h.Kind, caller.LookupClass())
	return mh, classify(h.Owner, h.Name, h.Descriptor, err)
}

func (r *Resolver) loadClass(name string) (*vm.Class, error) {
	c, err := r.reflector.LoadClass(name)
	if err != nil {
		return nil, &TypeResolutionError{Name: name, Err: err}
	}
	return c, nil
}

// classify maps lookup failures onto MemberResolutionError and
// AccessViolationError. Other errors pass through unchanged.
func classify(owner, name, desc string, err error) error {
	var noSuchMethod *vm.NoSuchMethodError
	var illegalAccess *vm.IllegalAccessError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &noSuchMethod):
		return &MemberResolutionError{Owner: owner, Name: name, Descriptor: desc, Err: err}
	case errors.As(err, &illegalAccess):
		return &AccessViolationError{Owner: owner, Name: name, Descriptor: desc, Err: err}
	}
	return err
}
