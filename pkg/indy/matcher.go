package indy

import (
	"go.uber.org/zap"

	"github.com/daimatz/gojvm-reload/pkg/vm"
)

// matchInterfaceMember selects the public method of h's interface whose name
// is h.Name and whose descriptor, computed from its resolved parameter and
// return types, equals h.Descriptor. A method overridden by a more specific
// interface in the same hierarchy is not a separate candidate.
func (r *Resolver) matchInterfaceMember(h Handle, caller *vm.Lookup) (*vm.MethodHandle, error) {
	iface, err := r.loadClass(h.Owner)
	if err != nil {
		return nil, err
	}

	var matches []*vm.Method
	for _, m := range r.reflector.PublicMethods(iface) {
		if m.Name != h.Name {
			continue
		}
		typ, err := m.Type(r.reflector)
		if err != nil {
			return nil, err
		}
		if typ.Descriptor() == h.Descriptor {
			matches = append(matches, m)
		}
	}
	matches = mostSpecific(matches)

	switch len(matches) {
	case 0:
		return nil, &InterfaceMemberNotFoundError{Interface: h.Owner, Name: h.Name, Descriptor: h.Descriptor}
	case 1:
	default:
		candidates := make([]string, len(matches))
		for i, m := range matches {
			candidates[i] = m.String()
		}
		return nil, &AmbiguousInterfaceMemberError{Interface: h.Owner, Name: h.Name, Descriptor: h.Descriptor, Candidates: candidates}
	}

	r.log.Debug("matched interface member", zap.Stringer("handle", h), zap.Stringer("method", matches[0]))
	mh, err := r.reflector.Unreflect(caller, matches[0])
	return mh, classify(h.Owner, h.Name, h.Descriptor, err)
}

// mostSpecific drops every method whose declaring interface is a proper
// superinterface of another candidate's.
func mostSpecific(ms []*vm.Method) []*vm.Method {
	if len(ms) < 2 {
		return ms
	}
	var out []*vm.Method
	for _, m := range ms {
		overridden := false
		for _, o := range ms {
			if o.Class != m.Class && o.Class.IsSubclassOf(m.Class) {
				overridden = true
				break
			}
		}
		if !overridden {
			out = append(out, m)
		}
	}
	return out
}
