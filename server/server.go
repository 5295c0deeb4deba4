/*
	Package server loads configuration and wires the logging, cache, scheduler,
	storage, export and Kafka layers around an MRI volume filter pipeline.
*/
package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/export"
	"github.com/janelia-flyem/voxflow/graph"
	"github.com/janelia-flyem/voxflow/operators"
	"github.com/janelia-flyem/voxflow/persist"
	"github.com/janelia-flyem/voxflow/request"
	"github.com/janelia-flyem/voxflow/storage"

	"gocloud.dev/blob"
)

// Server holds the resources opened for a configuration.
type Server struct {
	config *Config

	Graph    *graph.Graph
	DB       storage.KeyValueDB
	DirtyLog *storage.DirtyLog
	Bucket   *blob.Bucket
	Sink     *export.Sink
	Exporter *export.Exporter
	Queue    *export.TaskQueue
	Control  *export.Controller

	Source *operators.OpArraySource
	Filter *operators.OpMriVolFilter

	unsubscribe []func()
}

// Initialize opens every resource named in the configuration.  Logging and cache
// limits are process-wide settings.
func Initialize(ctx context.Context, c *Config, controls chan<- export.ControlCommand) (*Server, error) {
	if err := c.Logging.SetLogger(); err != nil {
		return nil, err
	}
	operators.SetCacheConfig(c.CacheSettings())

	var err error
	s := &Server{
		config:  c,
		Graph:   graph.New(request.NewScheduler(c.Workers())),
		Queue:   export.NewTaskQueue(4),
		Control: export.NewController(controls),
	}
	defer func() {
		if err != nil {
			s.Shutdown()
		}
	}()

	if s.DB, _, err = storage.NewStore(c.StoreSettings()); err != nil {
		return nil, err
	}
	if s.DirtyLog, err = storage.NewDirtyLog(c.Kafka, s.DB); err != nil {
		return nil, fmt.Errorf("unable to start kafka dirty log: %w", err)
	}
	if s.Bucket, err = storage.OpenBucket(ctx, c.Export.Bucket); err != nil {
		return nil, err
	}
	compress, _ := dvid.ParseCompression(c.Export.Compression)
	s.Sink = export.NewSink(s.Bucket, c.Export.Group, compress)
	s.Exporter = export.NewExporter(s.Sink)
	dvid.Infof("Initialized with %d workers, store %s, export bucket %s\n", c.Workers(), s.DB, c.Export.Bucket)
	return s, nil
}

// pipelineOutputs maps export names to the outputs of the MRI volume filter.
func (s *Server) pipelineOutputs() map[string]*graph.OutputSlot {
	return map[string]*graph.OutputSlot{
		"Smoothed":     s.Filter.Smoothed,
		"Argmax":       s.Filter.ArgmaxOutput,
		"CachedOutput": s.Filter.CachedOutput,
		"Output":       s.Filter.Output,
	}
}

var exportOrder = []string{"Smoothed", "Argmax", "CachedOutput", "Output"}

// BuildPipeline creates the source and MRI volume filter, sets the parameters from the
// [pipeline] section, registers outputs for export, and publishes their dirty regions.
func (s *Server) BuildPipeline(data *dvid.Array, axes dvid.AxisOrder) error {
	p := s.config.Pipeline
	method, err := operators.ParseSmoothingMethod(p.Method)
	if err != nil {
		return err
	}
	return s.Graph.Mutate(func() error {
		s.Source = operators.NewOpArraySource(s.Graph, "source")
		s.Filter = operators.NewOpMriVolFilter(s.Graph, "mrivolfilter")
		if err := s.Filter.SmoothingMethod.SetValue(method); err != nil {
			return err
		}
		if err := s.Filter.Configuration.SetValue(map[string]interface{}{"sigma": p.Sigma}); err != nil {
			return err
		}
		if err := s.Filter.Threshold.SetValue(p.Threshold); err != nil {
			return err
		}
		if p.ActiveChannels != nil {
			if err := s.Filter.ActiveChannels.SetValue(p.ActiveChannels); err != nil {
				return err
			}
		}
		if err := s.Filter.Input.Connect(s.Source.Output); err != nil {
			return err
		}
		if err := s.Source.SetData(data, axes); err != nil {
			return err
		}

		outputs := s.pipelineOutputs()
		selected := s.config.Export.Outputs
		if len(selected) == 0 {
			selected = exportOrder
		}
		for _, name := range selected {
			out, found := outputs[name]
			if !found {
				return dvid.ConfigErrorf("[export] unknown output %q", name)
			}
			s.Exporter.AddOutput(name, out)
		}
		if s.DirtyLog.Enabled() {
			for _, name := range exportOrder {
				s.unsubscribe = append(s.unsubscribe, outputs[name].Subscribe(s.DirtyLog.Watch(name)))
			}
		}
		return nil
	})
}

// InputVolume returns the configured input: a dataset from the export bucket or a
// synthetic volume.
func (s *Server) InputVolume(ctx context.Context) (*dvid.Array, dvid.AxisOrder, error) {
	p := s.config.Pipeline
	if p.Input == "" {
		dvid.Infof("Generating synthetic %v probability volume\n", p.SyntheticShape)
		return SyntheticVolume(p.SyntheticShape), "txyzc", nil
	}
	axes, data, err := s.Sink.Read(ctx, p.Input)
	if err != nil {
		return nil, "", fmt.Errorf("unable to read input dataset %q: %w", p.Input, err)
	}
	return data, axes, nil
}

func (s *Server) serializer() persist.Serializer {
	compress, _ := dvid.ParseCompression(s.config.Cache.Compression)
	return persist.Serializer{Group: s.config.Store.Group + "/mrivolfilter", Compression: compress}
}

// LoadCache restores a previously saved component cache.  A missing or mismatched
// group leaves the cache empty.
func (s *Server) LoadCache(ctx context.Context) error {
	err := s.serializer().Load(ctx, s.DB, s.Filter.Cache().Store())
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		dvid.Infof("No saved cache loaded, starting empty: %v\n", err)
		return nil
	}
}

// SaveCache persists the component cache.
func (s *Server) SaveCache(ctx context.Context) error {
	return s.serializer().Save(ctx, s.DB, s.Filter.Cache().Store())
}

// Run builds the pipeline, restores the cache, exports every configured output on the
// background queue and saves the cache.  Export failures are returned joined.
func (s *Server) Run(ctx context.Context) error {
	data, axes, err := s.InputVolume(ctx)
	if err != nil {
		return err
	}
	if err := s.BuildPipeline(data, axes); err != nil {
		return err
	}
	if err := s.LoadCache(ctx); err != nil {
		return err
	}
	task := s.Exporter.Batch(ctx, s.Control, s.Queue)
	dvid.Infof("Started export job %s\n", task.ID())
	exportErr := task.Err()
	if err := s.SaveCache(ctx); err != nil {
		return errors.Join(exportErr, err)
	}
	return exportErr
}

// Shutdown closes every opened resource.
func (s *Server) Shutdown() {
	for _, unsub := range s.unsubscribe {
		unsub()
	}
	if s.Queue != nil {
		s.Queue.Close()
	}
	if s.DirtyLog != nil {
		s.DirtyLog.Close()
	}
	if s.Bucket != nil {
		if err := s.Bucket.Close(); err != nil {
			dvid.Errorf("Error closing export bucket: %v\n", err)
		}
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			dvid.Errorf("Error closing %s: %v\n", s.DB, err)
		}
	}
}
