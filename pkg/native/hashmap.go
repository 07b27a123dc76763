package native

import (
	"github.com/daimatz/gojvm-reload/pkg/vm"
)

// HashMap is the host state of a java.util.HashMap. Integer and Long keys
// are stored by value and strings by content; any other key by identity.
type HashMap struct {
	Data map[interface{}]vm.Value
}

// NewHashMap creates an empty HashMap.
func NewHashMap() *HashMap {
	return &HashMap{Data: make(map[interface{}]vm.Value)}
}

func mapKey(key vm.Value) interface{} {
	if obj, ok := key.Ref.(*vm.Object); ok {
		switch n := obj.Native.(type) {
		case int32, int64:
			return n
		}
	}
	return key.Ref
}

// Get returns the value mapped to key, or null.
func (m *HashMap) Get(key vm.Value) vm.Value {
	if v, ok := m.Data[mapKey(key)]; ok {
		return v
	}
	return vm.NullValue()
}

// Put stores a key-value pair and returns the previous value, or null.
func (m *HashMap) Put(key, value vm.Value) vm.Value {
	k := mapKey(key)
	old, ok := m.Data[k]
	if !ok {
		old = vm.NullValue()
	}
	m.Data[k] = value
	return old
}

// Remove deletes key and returns its previous value, or null.
func (m *HashMap) Remove(key vm.Value) vm.Value {
	k := mapKey(key)
	old, ok := m.Data[k]
	if !ok {
		return vm.NullValue()
	}
	delete(m.Data, k)
	return old
}

func (m *HashMap) ContainsKey(key vm.Value) bool {
	_, ok := m.Data[mapKey(key)]
	return ok
}

func (m *HashMap) Len() int { return len(m.Data) }

func registerHashMap(l *vm.Loader, object *vm.Class) {
	mapIface := define(l, "java/util/Map", publicIface, nil)
	methods := []struct {
		name, desc string
		fn         vm.NativeFunc
	}{
		{"get", "(Ljava/lang/Object;)Ljava/lang/Object;", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
			return hashMapOf(args[0]).Get(args[1]), nil
		}},
		{"put", "(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
			return hashMapOf(args[0]).Put(args[1], args[2]), nil
		}},
		{"remove", "(Ljava/lang/Object;)Ljava/lang/Object;", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
			return hashMapOf(args[0]).Remove(args[1]), nil
		}},
		{"containsKey", "(Ljava/lang/Object;)Z", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
			return boolValue(hashMapOf(args[0]).ContainsKey(args[1])), nil
		}},
		{"size", "()I", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
			return vm.IntValue(int32(hashMapOf(args[0]).Len())), nil
		}},
	}

	hashMap := define(l, "java/util/HashMap", public, object, mapIface)
	hashMap.DefineMethod(public, "<init>", "()V", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		args[0].Ref.(*vm.Object).Native = NewHashMap()
		return vm.Value{}, nil
	})
	for _, m := range methods {
		mapIface.DefineMethod(publicAbstract, m.name, m.desc, nil)
		hashMap.DefineMethod(public, m.name, m.desc, m.fn)
	}
}

func hashMapOf(v vm.Value) *HashMap {
	return v.Ref.(*vm.Object).Native.(*HashMap)
}
