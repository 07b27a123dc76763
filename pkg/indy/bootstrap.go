package indy

import (
	"fmt"

	"github.com/daimatz/gojvm-reload/pkg/classfile"
	"github.com/daimatz/gojvm-reload/pkg/lambda"
)

const (
	metafactoryOwner = "java/lang/invoke/LambdaMetafactory"
	metafactoryName  = "metafactory"

	altMetafactoryName = "altMetafactory"
)

// BootstrapArgs are the static arguments of a LambdaMetafactory call site,
// in class-file order.
type BootstrapArgs struct {
	SamType          string
	Impl             Handle
	InstantiatedType string
}

// BootstrapFromSite extracts the bootstrap method, its static arguments and
// the call site's name and descriptor from a parsed invokedynamic site.
// Sites whose arguments do not start with (MethodType, MethodHandle,
// MethodType) fail with UnsupportedBootstrapError.
func BootstrapFromSite(site *classfile.InvokeDynamicSite) (Handle, BootstrapArgs, string, error) {
	bsm := HandleFromInfo(site.Bootstrap)
	unsupported := func(format string, args ...interface{}) (Handle, BootstrapArgs, string, error) {
		return bsm, BootstrapArgs{}, site.NameAndDescriptor(), &UnsupportedBootstrapError{Bootstrap: bsm, Reason: fmt.Sprintf(format, args...)}
	}

	if len(site.Arguments) < 3 {
		return unsupported("%d static arguments, want at least 3", len(site.Arguments))
	}
	sam, ok := site.Arguments[0].(classfile.MethodTypeRef)
	if !ok {
		return unsupported("argument 0 is %T, want a method type", site.Arguments[0])
	}
	impl, ok := site.Arguments[1].(*classfile.MethodHandleInfo)
	if !ok {
		return unsupported("argument 1 is %T, want a method handle", site.Arguments[1])
	}
	instantiated, ok := site.Arguments[2].(classfile.MethodTypeRef)
	if !ok {
		return unsupported("argument 2 is %T, want a method type", site.Arguments[2])
	}
	return bsm, BootstrapArgs{
		SamType:          sam.Descriptor,
		Impl:             HandleFromInfo(impl),
		InstantiatedType: instantiated.Descriptor,
	}, site.NameAndDescriptor(), nil
}

func checkBootstrap(bsm Handle) error {
	if bsm.Owner != metafactoryOwner {
		return &UnsupportedBootstrapError{Bootstrap: bsm, Reason: "only LambdaMetafactory call sites are emulated"}
	}
	switch bsm.Name {
	case metafactoryName:
	case altMetafactoryName:
		return &UnsupportedBootstrapError{Bootstrap: bsm, Reason: lambda.ErrAltMetafactory.Error(), Err: lambda.ErrAltMetafactory}
	default:
		return &UnsupportedBootstrapError{Bootstrap: bsm, Reason: "unknown LambdaMetafactory entry point"}
	}
	if bsm.Kind != KindStatic {
		return &UnsupportedBootstrapError{Bootstrap: bsm, Reason: "bootstrap handle is not static"}
	}
	return nil
}
