package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/graph"
	"github.com/janelia-flyem/voxflow/operators"
	"github.com/janelia-flyem/voxflow/request"
	"github.com/janelia-flyem/voxflow/storage"

	"github.com/google/go-cmp/cmp"
)

type fixture struct {
	exporter *Exporter
	sink     *Sink
	raw      *dvid.Array
}

func newFixture(t *testing.T) fixture {
	ctx := context.Background()
	bucket, err := storage.OpenBucket(ctx, "mem://")
	if err != nil {
		t.Fatalf("can't open bucket: %v", err)
	}
	t.Cleanup(func() { bucket.Close() })
	sink := NewSink(bucket, "results", dvid.Zstd)

	g := graph.New(request.NewScheduler(2))
	raw := dvid.ArrayFromFloat32s([]int{3, 2}, []float32{0.1, 0.9, 0.6, 0.2, 0.5, 1})
	src := operators.NewOpArraySource(g, "raw")
	if err := src.SetData(raw, "xy"); err != nil {
		t.Fatalf("can't set data: %v", err)
	}
	thresh := operators.NewOpThreshold(g, "threshold")
	if err := thresh.Input.Connect(src.Output); err != nil {
		t.Fatalf("can't connect: %v", err)
	}
	unset := operators.NewOpArraySource(g, "unset")

	e := NewExporter(sink)
	e.AddOutput("Raw", src.Output)
	e.AddOutput("Broken", unset.Output)
	e.AddOutput("Thresholded", thresh.Output)
	return fixture{exporter: e, sink: sink, raw: raw}
}

func TestExportAllContinuesAfterFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	failures := f.exporter.ExportAll(ctx)
	if len(failures) != 1 || failures[0].Name != "Broken" {
		t.Fatalf("expected only Broken to fail, got %v", failures)
	}
	if !errors.Is(failures[0], dvid.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", failures[0])
	}

	axes, raw, err := f.sink.Read(ctx, "Raw")
	if err != nil {
		t.Fatalf("can't read exported Raw: %v", err)
	}
	if axes != "xy" || !raw.Equal(f.raw) {
		t.Errorf("exported Raw differs: %s %s", axes, raw)
	}
	_, th, err := f.sink.Read(ctx, "Thresholded")
	if err != nil {
		t.Fatalf("can't read exported Thresholded: %v", err)
	}
	if diff := cmp.Diff([]uint8{0, 1, 1, 0, 0, 1}, th.Uint8s()); diff != "" {
		t.Errorf("exported threshold mismatch (-want +got):\n%s", diff)
	}
	if _, _, err := f.sink.Read(ctx, "Broken"); err == nil {
		t.Errorf("failed output should not have been written")
	}
}

func TestExportResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if !f.exporter.ExportResult(ctx, "Raw") {
		t.Errorf("expected Raw export to succeed")
	}
	if f.exporter.ExportResult(ctx, "Broken") {
		t.Errorf("expected Broken export to fail")
	}
	if f.exporter.ExportResult(ctx, "Missing") {
		t.Errorf("expected export of unknown output to fail")
	}
	if f.sink.Key("Raw") != "results/Raw" {
		t.Errorf("bad dataset key %q", f.sink.Key("Raw"))
	}
}

func TestExportAllCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	failures := f.exporter.ExportAll(ctx)
	if len(failures) != 3 {
		t.Fatalf("expected every output to fail after cancel, got %v", failures)
	}
	for _, fail := range failures {
		if fail.Name != "Broken" && !errors.Is(fail, context.Canceled) {
			t.Errorf("expected cancellation for %q, got %v", fail.Name, fail.Err)
		}
	}
}

func receive(t *testing.T, ch <-chan ControlCommand, n int) []ControlCommand {
	cmds := make([]ControlCommand, n)
	for i := range cmds {
		cmds[i] = <-ch
	}
	return cmds
}

func TestBatchControlCommands(t *testing.T) {
	f := newFixture(t)
	q := NewTaskQueue(4)
	defer q.Close()
	ch := make(chan ControlCommand, 8)
	ctrl := NewController(ch)

	task := f.exporter.Batch(context.Background(), ctrl, q)
	var failure *dvid.ExportFailure
	if err := task.Err(); !errors.As(err, &failure) || failure.Name != "Broken" {
		t.Errorf("expected batch to report Broken failure, got %v", err)
	}
	want := []ControlCommand{DisableUpstream, DisableSelf, Pop, Pop}
	if diff := cmp.Diff(want, receive(t, ch, 4)); diff != "" {
		t.Errorf("control commands mismatch (-want +got):\n%s", diff)
	}
	if ctrl.Depth() != 0 {
		t.Errorf("expected balanced push/pop, depth %d", ctrl.Depth())
	}
}

func TestBatchCancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	q := NewTaskQueue(4)
	defer q.Close()
	ch := make(chan ControlCommand, 8)
	ctrl := NewController(ch)

	release := make(chan struct{})
	blocker := q.Submit(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})
	task := f.exporter.Batch(context.Background(), ctrl, q)
	task.Cancel()
	close(release)

	if err := blocker.Err(); err != nil {
		t.Errorf("blocking task failed: %v", err)
	}
	if err := task.Err(); !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancelled batch, got %v", err)
	}
	want := []ControlCommand{DisableUpstream, DisableSelf, Pop, Pop}
	if diff := cmp.Diff(want, receive(t, ch, 4)); diff != "" {
		t.Errorf("control commands mismatch (-want +got):\n%s", diff)
	}
	if _, _, err := f.sink.Read(context.Background(), "Raw"); err == nil {
		t.Errorf("cancelled batch should not have exported anything")
	}
}

func TestQueueClosed(t *testing.T) {
	q := NewTaskQueue(1)
	q.Close()
	task := q.Submit(context.Background(), func(ctx context.Context) error { return nil })
	if err := task.Err(); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected closed queue error, got %v", err)
	}
	if task.ID() == "" {
		t.Errorf("expected task id")
	}
}

func TestQueueCloseWithBlockedSubmit(t *testing.T) {
	q := NewTaskQueue(1)
	started := make(chan struct{})
	release := make(chan struct{})
	running := q.Submit(context.Background(), func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started
	buffered := q.Submit(context.Background(), func(ctx context.Context) error { return nil })

	stuck := make(chan *Task, 1)
	go func() {
		stuck <- q.Submit(context.Background(), func(ctx context.Context) error { return nil })
	}()
	time.Sleep(10 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()

	select {
	case task := <-stuck:
		if err := task.Err(); !errors.Is(err, ErrQueueClosed) {
			t.Errorf("expected blocked submit to fail with closed queue, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("blocked Submit did not return after Close")
	}
	close(release)
	select {
	case <-closed:
	case <-time.After(10 * time.Second):
		t.Fatalf("Close did not return")
	}
	if err := running.Err(); err != nil {
		t.Errorf("running task failed: %v", err)
	}
	if err := buffered.Err(); err != nil {
		t.Errorf("queued task should run before Close returns: %v", err)
	}
}

func TestQueueSubmitContextDone(t *testing.T) {
	q := NewTaskQueue(1)
	defer q.Close()
	release := make(chan struct{})
	started := make(chan struct{})
	q.Submit(context.Background(), func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started
	q.Submit(context.Background(), func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	task := q.Submit(ctx, func(ctx context.Context) error { return nil })
	if err := task.Err(); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error from full queue, got %v", err)
	}
	close(release)
}
