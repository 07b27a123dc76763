package native

import (
	"github.com/daimatz/gojvm-reload/pkg/vm"
)

// functionalInterfaces are declared with only their abstract methods.
var functionalInterfaces = []struct {
	name    string
	extends string
	methods [][2]string
}{
	{"java/lang/Runnable", "", [][2]string{{"run", "()V"}}},
	{"java/util/function/Supplier", "", [][2]string{{"get", "()Ljava/lang/Object;"}}},
	{"java/util/function/Function", "", [][2]string{{"apply", "(Ljava/lang/Object;)Ljava/lang/Object;"}}},
	{"java/util/function/UnaryOperator", "java/util/function/Function", nil},
	{"java/util/function/BiFunction", "", [][2]string{{"apply", "(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;"}}},
	{"java/util/function/BinaryOperator", "java/util/function/BiFunction", nil},
	{"java/util/function/Consumer", "", [][2]string{{"accept", "(Ljava/lang/Object;)V"}}},
	{"java/util/function/Predicate", "", [][2]string{{"test", "(Ljava/lang/Object;)Z"}}},
	{"java/util/function/IntSupplier", "", [][2]string{{"getAsInt", "()I"}}},
	{"java/util/function/IntUnaryOperator", "", [][2]string{{"applyAsInt", "(I)I"}}},
	{"java/util/function/IntBinaryOperator", "", [][2]string{{"applyAsInt", "(II)I"}}},
	{"java/util/Comparator", "", [][2]string{
		{"compare", "(Ljava/lang/Object;Ljava/lang/Object;)I"},
		{"equals", "(Ljava/lang/Object;)Z"},
	}},
}

func registerFunctions(l *vm.Loader) {
	for _, f := range functionalInterfaces {
		var ifaces []*vm.Class
		if f.extends != "" {
			ifaces = append(ifaces, loaded(l, f.extends))
		}
		c := define(l, f.name, publicIface, nil, ifaces...)
		for _, m := range f.methods {
			c.DefineMethod(publicAbstract, m[0], m[1], nil)
		}
	}
}

// registerInvoke defines the java.lang.invoke types that bootstrap method
// descriptors name, so those descriptors resolve. Their behavior lives in the
// indy and lambda packages.
func registerInvoke(l *vm.Loader, object *vm.Class) {
	define(l, "java/lang/invoke/MethodHandles", publicFinal, object)
	define(l, "java/lang/invoke/MethodHandles$Lookup", publicFinal, object)
	define(l, "java/lang/invoke/MethodType", publicFinal, object)
	define(l, "java/lang/invoke/MethodHandle", publicAbstract, object)
	define(l, "java/lang/invoke/CallSite", publicAbstract, object)
	define(l, "java/lang/invoke/LambdaMetafactory", publicFinal, object)
	define(l, "java/lang/invoke/StringConcatFactory", publicFinal, object)
}
