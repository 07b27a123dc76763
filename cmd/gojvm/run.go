package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daimatz/gojvm-reload/pkg/classfile"
	"github.com/daimatz/gojvm-reload/pkg/indy"
	"github.com/daimatz/gojvm-reload/pkg/native"
	"github.com/daimatz/gojvm-reload/pkg/reload"
	"github.com/daimatz/gojvm-reload/pkg/vm"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <classfile>",
		Short: "Execute the main method of a class file",
		Long: `Execute the main method of a class file.

Executor classes named <Class>$$E<n>.class next to the class file are applied
as successive reloads before main starts, so lambda call sites link against
the newest executor.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args[0])
		},
	}
}

func (a *app) run(cmd *cobra.Command, filename string) error {
	dir := filepath.Dir(filename)
	className := strings.TrimSuffix(filepath.Base(filename), ".class")

	sources := []vm.ClassSource{vm.NewDirSource(dir)}
	for _, p := range a.cfg.ClassPath {
		sources = append(sources, vm.NewDirSource(p))
	}
	if a.cfg.JavaBaseJmod != "" {
		sources = append(sources, vm.NewJmodSource(a.cfg.JavaBaseJmod))
	} else {
		a.logger.Debug("no java.base.jmod configured, using built-in library classes only")
	}
	loader := vm.NewLoader(a.logger, sources...)
	native.Register(loader)

	var reg *prometheus.Registry
	var indyMetrics *indy.Metrics
	var reloadMetrics *reload.Metrics
	if a.cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		indyMetrics = indy.NewMetrics(reg)
		reloadMetrics = reload.NewMetrics(reg)
	}

	registry := reload.NewRegistry(loader, a.logger)
	emulator := indy.NewEmulator(indy.NewReflector(loader),
		indy.WithLogger(a.logger),
		indy.WithMetrics(indyMetrics))
	opts := []reload.HandlerOption{
		reload.WithHandlerLogger(a.logger),
		reload.WithHandlerMetrics(reloadMetrics),
	}
	if a.cfg.Reload.CallSiteCache {
		opts = append(opts, reload.WithCallSiteCache())
	}
	handler := reload.NewHandler(registry, emulator, opts...)

	if a.cfg.Reload.ApplyExecutors {
		if err := applyExecutors(registry, dir, className); err != nil {
			return err
		}
	}

	thread := vm.NewVM(loader)
	thread.Stdout = cmd.OutOrStdout()
	thread.Indy = handler
	if err := thread.Execute(className); err != nil {
		return fmt.Errorf("executing %s: %w", className, err)
	}

	if reg != nil {
		logMetrics(a.logger, reg)
	}
	return nil
}

type executorFile struct {
	path    string
	version int
}

// executorFiles lists className$$E<n>.class files in dir ordered by n.
func executorFiles(dir, className string) ([]executorFile, error) {
	prefix := className + "$$E"
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []executorFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".class") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".class"))
		if err != nil || n < 1 {
			continue
		}
		files = append(files, executorFile{path: filepath.Join(dir, name), version: n})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

func applyExecutors(registry *reload.Registry, dir, className string) error {
	files, err := executorFiles(dir, className)
	if err != nil {
		return err
	}
	for _, f := range files {
		cf, err := classfile.ParseFile(f.path)
		if err != nil {
			return fmt.Errorf("reading executor %s: %w", f.path, err)
		}
		if _, err := registry.ReloadClassFile(className, cf); err != nil {
			return err
		}
	}
	return nil
}

func logMetrics(log *zap.Logger, reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		log.Warn("gathering metrics", zap.Error(err))
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fields := []zap.Field{zap.String("metric", mf.GetName())}
			for _, l := range m.GetLabel() {
				fields = append(fields, zap.String(l.GetName(), l.GetValue()))
			}
			switch {
			case m.GetCounter() != nil:
				fields = append(fields, zap.Float64("value", m.GetCounter().GetValue()))
			case m.GetGauge() != nil:
				fields = append(fields, zap.Float64("value", m.GetGauge().GetValue()))
			case m.GetHistogram() != nil:
				fields = append(fields,
					zap.Uint64("count", m.GetHistogram().GetSampleCount()),
					zap.Float64("sum", m.GetHistogram().GetSampleSum()))
			}
			log.Info("metric", fields...)
		}
	}
}
