package indy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/daimatz/gojvm-reload/pkg/descriptor"
)

type (
	MalformedSignatureError = descriptor.MalformedSignatureError
	TypeResolutionError     = descriptor.TypeResolutionError
)

// ErrNoLoader is the cause when Emulate is asked to run a call site whose
// caller class was never defined in a loader.
var ErrNoLoader = errors.New("caller class has no class loader")

// Stage is the step of an emulation that failed.
type Stage string

const (
	StageParse   Stage = "parse"
	StageResolve Stage = "resolve"
	StageLink    Stage = "link"
	StageInvoke  Stage = "invoke"
)

// CallEmulationError is the only error Emulate returns. Err is the cause and
// stays reachable through errors.As.
type CallEmulationError struct {
	Site  string
	Stage Stage
	Err   error
}

func (e *CallEmulationError) Error() string {
	return fmt.Sprintf("emulating invokedynamic %s: %s: %v", e.Site, e.Stage, e.Err)
}

func (e *CallEmulationError) Unwrap() error { return e.Err }

type UnsupportedHandleKindError struct {
	Handle Handle
}

func (e *UnsupportedHandleKindError) Error() string {
	return fmt.Sprintf("unsupported method handle kind %d for %s.%s%s", e.Handle.RefKind, e.Handle.Owner, e.Handle.Name, e.Handle.Descriptor)
}

// UnsupportedBootstrapError reports a bootstrap method other than
// LambdaMetafactory.metafactory, or bootstrap arguments of the wrong shape.
type UnsupportedBootstrapError struct {
	Bootstrap Handle
	Reason    string
	Err       error
}

func (e *UnsupportedBootstrapError) Error() string {
	return fmt.Sprintf("unsupported bootstrap method %s.%s: %s", e.Bootstrap.Owner, e.Bootstrap.Name, e.Reason)
}

func (e *UnsupportedBootstrapError) Unwrap() error { return e.Err }

type MemberResolutionError struct {
	Owner      string
	Name       string
	Descriptor string
	Err        error
}

func (e *MemberResolutionError) Error() string {
	return fmt.Sprintf("resolving %s.%s%s: %v", e.Owner, e.Name, e.Descriptor, e.Err)
}

func (e *MemberResolutionError) Unwrap() error { return e.Err }

type AccessViolationError struct {
	Owner      string
	Name       string
	Descriptor string
	Err        error
}

func (e *AccessViolationError) Error() string {
	return fmt.Sprintf("access to %s.%s%s denied: %v", e.Owner, e.Name, e.Descriptor, e.Err)
}

func (e *AccessViolationError) Unwrap() error { return e.Err }

type InterfaceMemberNotFoundError struct {
	Interface  string
	Name       string
	Descriptor string
}

func (e *InterfaceMemberNotFoundError) Error() string {
	return fmt.Sprintf("interface %s has no public method %s%s", e.Interface, e.Name, e.Descriptor)
}

// AmbiguousInterfaceMemberError reports more than one public method of an
// interface matching the same name and descriptor.
type AmbiguousInterfaceMemberError struct {
	Interface  string
	Name       string
	Descriptor string
	Candidates []string
}

func (e *AmbiguousInterfaceMemberError) Error() string {
	return fmt.Sprintf("interface %s has %d methods matching %s%s: %s",
		e.Interface, len(e.Candidates), e.Name, e.Descriptor, strings.Join(e.Candidates, ", "))
}
