package vm

// Object represents a JVM object instance. Native carries host state for
// built-in classes (the int of a java.lang.Integer, the map of a HashMap).
type Object struct {
	Class  *Class
	Fields map[string]Value
	Native interface{}
}

// NewObject allocates an instance of c with no fields set.
func NewObject(c *Class) *Object {
	return &Object{Class: c, Fields: make(map[string]Value)}
}

// Array represents a JVM array. Elements of primitive arrays are IntValue or
// LongValue; reference arrays hold RefValue or NullValue.
type Array struct {
	Class    *Class
	Elements []Value
}

// ToValue converts a Go value into a Value: int32, int, bool and the small
// integer types become ints, int64 becomes a long, nil becomes null, and
// anything else is carried as a reference.
func ToValue(x interface{}) Value {
	switch v := x.(type) {
	case nil:
		return NullValue()
	case Value:
		return v
	case int32:
		return IntValue(v)
	case int:
		return IntValue(int32(v))
	case int16:
		return IntValue(int32(v))
	case int8:
		return IntValue(int32(v))
	case uint16:
		return IntValue(int32(v))
	case bool:
		if v {
			return IntValue(1)
		}
		return IntValue(0)
	case int64:
		return LongValue(v)
	default:
		return RefValue(v)
	}
}

// Interface converts v back to a Go value. Ints come back as int32, longs as
// int64, null as nil.
func (v Value) Interface() interface{} {
	switch v.Type {
	case TypeInt:
		return v.Int
	case TypeLong:
		return v.Long
	case TypeRef:
		return v.Ref
	}
	return nil
}

// ToValues converts a slice with ToValue.
func ToValues(xs []interface{}) []Value {
	vals := make([]Value, len(xs))
	for i, x := range xs {
		vals[i] = ToValue(x)
	}
	return vals
}
