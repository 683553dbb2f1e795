// gcode-toolpath builds a toolpath model from a G-code file and reports
// its paths and layers, exports extrusion meshes, or serves jobs to a
// preview client.
//
// Usage:
//
//	gcode-toolpath [options] FILE
//
// Examples:
//
//	# Report paths, layers and bounds
//	gcode-toolpath part.gcode
//
//	# Export the third layer as STL
//	gcode-toolpath -l 2 --stl layer2.stl part.gcode
//
//	# Start the preview server
//	gcode-toolpath --serve=:7130
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"gcode-toolpath/pkg/config"
	"gcode-toolpath/pkg/gcode"
	"gcode-toolpath/pkg/log"
	"gcode-toolpath/pkg/metrics"
	"gcode-toolpath/pkg/server"
	"gcode-toolpath/pkg/toolpath"
)

var version = "0.1.0"

// serveDefault marks a bare --serve; the address then comes from config.
const serveDefault = "config"

type options struct {
	configFile     string
	jsonOut        bool
	chunkLines     int
	stlPath        string
	objPath        string
	layer          int
	radialSegments int
	serve          string
	logLevel       string
	showVersion    bool
	help           bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func newFlagSet(opts *options, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("gcode-toolpath", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: gcode-toolpath [options] FILE\n\n")
		fmt.Fprintf(stderr, "Builds a toolpath model from G-code. FILE may be - for stdin.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  gcode-toolpath part.gcode                 # Text report\n")
		fmt.Fprintf(stderr, "  gcode-toolpath -j part.gcode              # JSON summary and layers\n")
		fmt.Fprintf(stderr, "  gcode-toolpath -l 2 --stl l2.stl part.gcode\n")
		fmt.Fprintf(stderr, "  gcode-toolpath --obj all.obj part.gcode   # Every extrusion as OBJ\n")
		fmt.Fprintf(stderr, "  gcode-toolpath --serve                    # Preview server on the configured address\n")
	}

	fs.StringVarP(&opts.configFile, "config", "c", "", "Configuration file (toolpath.cfg)")
	fs.BoolVarP(&opts.jsonOut, "json", "j", false, "Print the summary and layers as JSON")
	fs.IntVarP(&opts.chunkLines, "chunk-lines", "n", server.DefaultChunkLines, "Lines executed per chunk while reading")
	fs.StringVar(&opts.stlPath, "stl", "", "Write extrusion ribbons as binary STL")
	fs.StringVar(&opts.objPath, "obj", "", "Write extrusion ribbons as Wavefront OBJ")
	fs.IntVarP(&opts.layer, "layer", "l", -1, "Export only this layer (-1 for all extrusion)")
	fs.IntVar(&opts.radialSegments, "radial-segments", config.DefaultRadialSegments, "Ribbon ring resolution (overrides [mesh])")
	fs.StringVarP(&opts.serve, "serve", "s", "", "Start the preview server on ADDR")
	fs.Lookup("serve").NoOptDefVal = serveDefault
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides [log])")
	fs.BoolVarP(&opts.showVersion, "version", "V", false, "Print version information")
	fs.BoolVarP(&opts.help, "help", "h", false, "Show this help message")
	return fs
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var opts options
	fs := newFlagSet(&opts, stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if opts.help {
		fs.Usage()
		return 0
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "gcode-toolpath version %s\n", version)
		return 0
	}

	cfg, err := loadConfig(&opts, fs)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	logger := log.New("gcode-toolpath")
	logger.SetWriter(stderr)
	cfg.ConfigureLogger(logger)
	cfg.WarnUnknownSections(logger)
	log.SetDefaultLogger(logger)

	tm := metrics.NewToolpathMetrics()

	if opts.serve != "" {
		addr := opts.serve
		if addr == serveDefault {
			addr = cfg.ServerAddress
		}
		if err := serve(addr, cfg, opts.chunkLines, tm, logger); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	job, err := ingest(fs.Arg(0), stdin, cfg, opts.chunkLines, tm, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if err := export(job, &opts, cfg.RadialSegments); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if opts.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(newReport(job)); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Fprintln(stdout, renderReport(stdout, job, &opts))
	return 0
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(opts *options, fs *pflag.FlagSet) (config.ToolpathConfig, error) {
	cfg := config.DefaultToolpathConfig()
	if opts.configFile != "" {
		var err error
		if cfg, err = config.ParseToolpathConfig(opts.configFile); err != nil {
			return cfg, err
		}
	}
	if fs.Changed("radial-segments") {
		if opts.radialSegments < config.MinRadialSegments || opts.radialSegments > config.MaxRadialSegments {
			return cfg, fmt.Errorf("--radial-segments must be between %d and %d",
				config.MinRadialSegments, config.MaxRadialSegments)
		}
		cfg.RadialSegments = opts.radialSegments
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	return cfg, nil
}

// ingest streams path through a job in chunks of at most chunkLines lines.
func ingest(path string, stdin io.Reader, cfg config.ToolpathConfig, chunkLines int,
	tm *metrics.ToolpathMetrics, logger *log.Logger) (*toolpath.Job, error) {
	var r io.Reader = stdin
	name := "stdin"
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
		name = filepath.Base(path)
	}

	job := toolpath.NewJob(
		toolpath.WithName(name),
		toolpath.WithLayerTolerance(cfg.LayerTolerance),
		toolpath.WithWidth(cfg.Width),
		toolpath.WithHeight(cfg.Height),
		toolpath.WithLogger(logger),
		toolpath.WithMetrics(tm),
	)
	stream := toolpath.NewStream(job)
	if err := gcode.ScanChunks(r, chunkLines, stream.WriteLines); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if err := stream.Close(); err != nil {
		return nil, err
	}

	st := stream.Parser().Stats()
	logger.WithFields(log.Fields{
		"lines":   st.Lines,
		"dropped": st.DroppedTokens,
		"paths":   len(job.Paths()),
	}).Debug("ingest complete")
	return job, nil
}

// export writes the requested mesh files.
func export(job *toolpath.Job, opts *options, radialSegments int) error {
	if opts.stlPath == "" && opts.objPath == "" {
		return nil
	}
	m, err := job.Mesh(opts.layer, radialSegments)
	if err != nil {
		return err
	}
	if opts.stlPath != "" {
		name := job.Name()
		if opts.layer >= 0 {
			name = fmt.Sprintf("%s layer %d", name, opts.layer)
		}
		if err := writeFile(opts.stlPath, func(w io.Writer) error { return m.WriteSTL(w, name) }); err != nil {
			return err
		}
	}
	if opts.objPath != "" {
		if err := writeFile(opts.objPath, m.WriteOBJ); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// serve runs the preview server until SIGINT or SIGTERM.
func serve(addr string, cfg config.ToolpathConfig, chunkLines int,
	tm *metrics.ToolpathMetrics, logger *log.Logger) error {
	s := server.New(server.Config{
		Addr:       addr,
		Toolpath:   cfg,
		ChunkLines: chunkLines,
		Metrics:    tm,
		Logger:     logger.WithPrefix("server"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		return s.Stop()
	}
}
