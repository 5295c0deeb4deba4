// Command-line interface to the voxflow MRI volume filter pipeline.
// Runs the pipeline described by a TOML configuration, exports its outputs and
// persists the component cache for the next run.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"
	"syscall"

	"github.com/janelia-flyem/voxflow/dvid"
	"github.com/janelia-flyem/voxflow/export"
	"github.com/janelia-flyem/voxflow/server"
	"github.com/janelia-flyem/voxflow/storage"
	_ "github.com/janelia-flyem/voxflow/storage/badger"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Profile CPU usage using standard gotest system.
	cpuprofile = flag.String("cpuprofile", "", "")

	// Number of workers, overriding the [pool] setting.
	numWorkers = flag.Int("workers", 0, "")
)

const helpMessage = `
voxflow runs a lazy, block-cached MRI volume filter and exports its outputs

Usage: voxflow [options] <command>

      -cpuprofile =string   Write CPU profile to this file.
      -workers    =number   Number of request workers; overrides [pool] workers.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Commands:

	about
	help
	run  <config.toml>
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() { fmt.Print(helpMessage) }
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Args()[0]) == "help" {
		*showHelp = true
	}
	if *runVerbose {
		dvid.SetLogLevel(dvid.DebugLevel)
	}
	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	// Capture ctrl+c and other interrupts.  Cancellation is observed between exports.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := DoCommand(ctx, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		pprof.StopCPUProfile()
		os.Exit(1)
	}
}

// DoCommand serves as a switchboard for commands.
func DoCommand(ctx context.Context, args []string) error {
	switch args[0] {
	case "about":
		fmt.Printf("voxflow %s\nStorage engines: %s\n", server.Version, storage.EnginesAvailable())
		return nil
	case "run":
		if len(args) != 2 {
			return fmt.Errorf("run requires a TOML configuration file")
		}
		return DoRun(ctx, args[1])
	default:
		return fmt.Errorf("unknown command %q; try 'voxflow help'", args[0])
	}
}

// DoRun loads the configuration, runs the pipeline and reports export failures.
func DoRun(ctx context.Context, configPath string) error {
	config, err := server.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if *numWorkers != 0 {
		config.Pool.Workers = *numWorkers
	}
	if *runVerbose {
		config.Logging.Level = dvid.DebugLevel.String()
	}

	controls := make(chan export.ControlCommand, 16)
	go func() {
		for cmd := range controls {
			dvid.Debugf("Control command: %s\n", cmd)
		}
	}()

	s, err := server.Initialize(ctx, config, controls)
	if err != nil {
		return err
	}
	defer dvid.Shutdown()
	defer s.Shutdown()

	tlog := dvid.NewTimeLog()
	if err := s.Run(ctx); err != nil {
		tlog.Errorf("Run of %s failed", configPath)
		return err
	}
	tlog.Infof("Exported %v to %s", s.Exporter.Names(), config.Export.Bucket)
	return nil
}
