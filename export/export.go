/*
	Package export writes named pipeline outputs into a blob bucket.  Batch exports run
	on a background task queue while a Controller disables and re-enables the caller's
	controls around them.
*/
package export

import (
	"context"
	"errors"
	"sync"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/graph"

	"github.com/dustin/go-humanize"
)

// Exporter exports configured outputs by name.
type Exporter struct {
	sink *Sink

	mu      sync.Mutex
	names   []string
	outputs map[string]*graph.OutputSlot
}

// NewExporter returns an exporter writing into sink.
func NewExporter(sink *Sink) *Exporter {
	return &Exporter{sink: sink, outputs: make(map[string]*graph.OutputSlot)}
}

// AddOutput registers an output for export.  Re-adding a name replaces its slot.
func (e *Exporter) AddOutput(name string, out *graph.OutputSlot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, found := e.outputs[name]; !found {
		e.names = append(e.names, name)
	}
	e.outputs[name] = out
}

// Names returns the registered output names in the order they were added.
func (e *Exporter) Names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.names...)
}

func (e *Exporter) export(ctx context.Context, name string) error {
	e.mu.Lock()
	out, found := e.outputs[name]
	e.mu.Unlock()
	if !found {
		return dvid.ConfigErrorf("no output named %q", name)
	}
	meta := out.Meta()
	if !meta.Ready {
		return dvid.ConfigErrorf("output %q is not ready", name)
	}
	tlog := dvid.NewTimeLog()
	data, err := out.Get(ctx, meta.FullRoi())
	if err != nil {
		return err
	}
	if err := e.sink.Write(ctx, name, meta.Axes, data); err != nil {
		return err
	}
	exportedBytes.Add(float64(data.NumBytes()))
	tlog.Infof("Exported %q (%s %v, %s) to %s", name, meta.DType, meta.Shape,
		humanize.Bytes(uint64(data.NumBytes())), e.sink.Key(name))
	return nil
}

// ExportResult exports one output and reports whether it succeeded.  Failures are logged.
func (e *Exporter) ExportResult(ctx context.Context, name string) bool {
	if err := e.export(ctx, name); err != nil {
		exportFailures.Inc()
		dvid.Errorf("Export of %q failed: %v\n", name, err)
		return false
	}
	return true
}

// ExportAll exports every output in order.  A failed output does not stop the others;
// cancellation is observed between outputs and fails the ones not yet started.
func (e *Exporter) ExportAll(ctx context.Context) []*dvid.ExportFailure {
	var failures []*dvid.ExportFailure
	for _, name := range e.Names() {
		err := ctx.Err()
		if err == nil {
			err = e.export(ctx, name)
		}
		if err != nil {
			exportFailures.Inc()
			dvid.Errorf("Export of %q failed: %v\n", name, err)
			failures = append(failures, &dvid.ExportFailure{Name: name, Err: err})
		}
	}
	return failures
}

// Batch runs ExportAll on the queue with controls disabled around it.  The task
// fails with every ExportFailure joined.
func (e *Exporter) Batch(ctx context.Context, ctrl *Controller, q *TaskQueue) *Task {
	return ctrl.Batch(ctx, q, func(ctx context.Context) error {
		failures := e.ExportAll(ctx)
		errs := make([]error, len(failures))
		for i, f := range failures {
			errs[i] = f
		}
		return errors.Join(errs...)
	})
}
