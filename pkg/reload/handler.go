package reload

import (
	"go.uber.org/zap"

	"github.com/daimatz/gojvm-reload/pkg/classfile"
	"github.com/daimatz/gojvm-reload/pkg/indy"
	"github.com/daimatz/gojvm-reload/pkg/lambda"
	"github.com/daimatz/gojvm-reload/pkg/vm"
)

// Handler executes invokedynamic instructions for the interpreter by
// emulating their bootstrap against the caller's current executor.
type Handler struct {
	registry *Registry
	emulator *indy.Emulator
	cache    *siteCache
	metrics  *Metrics
	log      *zap.Logger
}

var _ vm.InvokeDynamicHandler = (*Handler)(nil)

type HandlerOption func(*Handler)

// WithCallSiteCache keeps linked call sites until the next reload.
func WithCallSiteCache() HandlerOption {
	return func(h *Handler) { h.cache = newSiteCache() }
}

func WithHandlerMetrics(m *Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

func WithHandlerLogger(log *zap.Logger) HandlerOption {
	return func(h *Handler) { h.log = log }
}

func NewHandler(registry *Registry, emulator *indy.Emulator, opts ...HandlerOption) *Handler {
	h := &Handler{registry: registry, emulator: emulator, log: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	registry.Subscribe(func(typeName string, generation uint64) {
		h.metrics.setGeneration(generation)
		if h.cache != nil {
			h.cache.clear()
			h.log.Debug("call site cache cleared", zap.String("type", typeName), zap.Uint64("generation", generation))
		}
	})
	return h
}

// InvokeDynamic links site for caller, or reuses the cached link, and
// invokes it with args.
func (h *Handler) InvokeDynamic(thread *vm.VM, caller *vm.Class, site *classfile.InvokeDynamicSite, args []vm.Value) (vm.Value, error) {
	bsm, bsmArgs, nameAndDesc, err := indy.BootstrapFromSite(site)
	if err != nil {
		return vm.Value{}, &indy.CallEmulationError{Site: nameAndDesc, Stage: indy.StageLink, Err: err}
	}
	link := func() (*lambda.CallSite, error) {
		return h.emulator.Link(h.registry.ExecutorFor(caller), bsm, bsmArgs, vm.NewLookup(caller), nameAndDesc)
	}

	var cs *lambda.CallSite
	if h.cache == nil {
		cs, err = link()
	} else {
		var hit bool
		cs, hit, err = h.cache.get(siteKey{class: caller, index: site.Index}, h.registry.Generation(), link)
		h.metrics.cacheLookup(hit)
	}
	if err != nil {
		return vm.Value{}, err
	}
	return h.emulator.Invoke(thread, nameAndDesc, cs, args)
}
