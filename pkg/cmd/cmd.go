package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lineprof/lineprof/internal/output"
	"github.com/lineprof/lineprof/internal/settings"
	"github.com/lineprof/lineprof/pkg/filter"
	"github.com/lineprof/lineprof/pkg/host"
	"github.com/lineprof/lineprof/pkg/profile"
	"github.com/lineprof/lineprof/pkg/report"
	"github.com/lineprof/lineprof/pkg/source"
)

const (
	formatText         = "text"
	formatCallgrind    = "callgrind"
	formatCallgrindZip = "callgrindzip"
	formatPprof        = "pprof"

	logLevelInfo = "info"

	// Output names starting with this prefix auto-select callgrind format.
	cachegrindPrefix = "cachegrind.out."
)

type Options struct {
	out       string
	format    string
	threads   int
	statistic float64
	module    string
	zipfile   string

	include        []string
	exclude        []string
	excludeSyspath bool

	verbose bool
	status  bool

	*CommonOptions
}

func NewRootCmd(opts *CommonOptions) *cobra.Command {
	o := new(Options)
	o.CommonOptions = opts

	cmd := &cobra.Command{
		Use:   settings.CmdName + " [flags] <program> [args...]",
		Short: settings.CmdName + " is a line-granularity profiler",
		Long: settings.CmdName + ` is a line-granularity, thread-aware deterministic and statistic
profiler. It attributes wall-clock time to individual source lines of the
profiled program and renders annotated source listings or Callgrind-format
profiles.`,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE:              o.Run,
	}
	cmd.Flags().SetInterspersed(false)

	cmd.Flags().StringVarP(&o.out, "out", "o", "-", "Write output to this file. Defaults to stdout")
	cmd.Flags().StringVarP(&o.format, "format", "f", "", "Output format (text, callgrind, callgrindzip, pprof). Auto-detected from the output name, falling back to text")
	cmd.Flags().IntVarP(&o.threads, "threads", "t", 1, "If non-zero, profile threads spawned by the program")
	cmd.Flags().Float64VarP(&o.statistic, "statistic", "s", 0, "Use this period (seconds) for statistic profiling, or deterministic profiling when 0")
	cmd.Flags().StringVarP(&o.module, "module", "m", "", "Run the named module instead of a program path")
	cmd.Flags().StringVarP(&o.zipfile, "zipfile", "z", "", "Also write an archive of all involved source files")

	cmd.Flags().StringArrayVar(&o.include, "include", nil, "Only record files whose path starts with this prefix (repeatable)")
	cmd.Flags().StringArrayVar(&o.exclude, "exclude", nil, "Do not record files whose path starts with this prefix (repeatable)")
	cmd.Flags().BoolVar(&o.excludeSyspath, "exclude-syspath", false, "Exclude all interpreter library directories")

	cmd.Flags().StringVar(&o.LogLevel, "log-level", logLevelInfo, "Log level (trace, debug, info, warn, error, fatal, panic)")
	cmd.Flags().BoolVar(&o.verbose, "verbose", false, "Log every profiler event. Cryptic and verbose")
	cmd.Flags().BoolVar(&o.status, "status", false, "Periodically print a status of the profiling session")

	return cmd
}

// Execute runs the root command. Exit code is the profiled program's; 2 on
// configuration errors.
func Execute(runtime host.Runtime) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(
		log.ConsoleWriter{Out: os.Stderr},
	).With().Timestamp().Logger()

	opts := NewCommonOptions(
		WithContext(ctx),
		WithLogger(logger),
		WithRuntime(runtime),
	)

	if err := NewRootCmd(opts).Execute(); err != nil {
		opts.Logger.Error().Err(err).Msg("profiling failed")
		os.Exit(2)
	}
	os.Exit(opts.ExitCode)
}

func (o *Options) Run(_ *cobra.Command, args []string) error {
	logLevel, err := log.ParseLevel(o.LogLevel)
	if err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	o.Logger = o.Logger.Level(logLevel)

	if o.Runtime == nil {
		return errors.New("no host runtime configured")
	}
	if o.module == "" && len(args) == 0 {
		return errors.New("too few arguments: expected a program path or -m <module>")
	}

	policyOpts := []filter.PolicyOption{
		filter.WithInclude(o.include...),
		filter.WithExclude(o.exclude...),
	}
	if o.excludeSyspath {
		policyOpts = append(policyOpts, filter.WithSyspaths(o.Runtime.SysPaths()...))
	}
	policy := filter.NewPolicy(policyOpts...)

	cmdline := o.module
	if cmdline == "" {
		cmdline = args[0]
	}
	if rest := argvRest(o.module, args); len(rest) > 0 {
		cmdline += " " + strings.Join(rest, " ")
	}

	prof := profile.NewProfiler(
		profile.WithLogger(&o.Logger),
		profile.WithTrackedFunc(policy.Tracked),
		profile.WithCmdline(cmdline),
		profile.WithStatistical(o.statistic > 0),
	)

	code, runErr := o.runTarget(prof, args)
	o.ExitCode = code

	stats := prof.Stats()
	src := source.NewProvider()
	if err := o.write(stats, src); err != nil {
		return err
	}
	if runErr != nil {
		return errors.Wrap(runErr, "failed to run target")
	}

	return nil
}

// runTarget executes the profiled program with either the deterministic
// tracer or the statistical sampler attached.
func (o *Options) runTarget(prof *profile.Profiler, args []string) (int, error) {
	sessionCtx, stop := context.WithCancel(o.Ctx)
	defer stop()

	samplerDone := make(chan error, 1)
	var startSampler func()
	if o.statistic > 0 {
		sampler, err := profile.NewSampler(
			profile.WithSamplerProfiler(prof),
			profile.WithSamplerRuntime(o.Runtime),
			profile.WithSamplerPeriod(time.Duration(o.statistic*float64(time.Second))),
			profile.WithSamplerSingle(o.threads == 0),
		)
		if err != nil {
			return 0, errors.Wrap(err, "failed to init sampler")
		}
		startSampler = func() {
			go func() {
				samplerDone <- sampler.Run(sessionCtx)
			}()
		}
	} else {
		tracer, err := profile.NewTracer(
			profile.WithTracerProfiler(prof),
			profile.WithTracerLogger(&o.Logger),
			profile.WithTracerVerbose(o.verbose),
		)
		if err != nil {
			return 0, errors.Wrap(err, "failed to init tracer")
		}
		if err := o.Runtime.SetTrace(tracer, o.threads != 0); err != nil {
			return 0, errors.Wrap(err, "failed to install trace hook")
		}
		defer o.Runtime.ClearTrace()
		close(samplerDone)
	}

	if o.status {
		go o.printStatusBar(sessionCtx, prof)
	}

	if err := prof.Enable(); err != nil {
		return 0, errors.Wrap(err, "failed to enable profiler")
	}
	if startSampler != nil {
		startSampler()
	}

	var code int
	var runErr error
	if o.module != "" {
		code, runErr = o.Runtime.RunModule(o.module, args)
	} else {
		code, runErr = o.Runtime.RunPath(args[0], args[1:])
	}

	o.Runtime.ClearTrace()
	stop()
	<-samplerDone
	if err := prof.Disable(); err != nil {
		o.Logger.Warn().Err(err).Msg("failed to disable profiler")
	}
	if o.status {
		fmt.Println()
	}

	return code, runErr
}

func (o *Options) printStatusBar(ctx context.Context, prof *profile.Profiler) {
	start := time.Now()
	output.StatusBar(ctx,
		1*time.Second, // bar refresh interval.
		func() {
			output.PrintRight(output.PrettyProfileStatus(
				time.Since(start),
				prof.SwapEventCount(), // events rate reset at each bar refresh.
				prof.ThreadCount(),
			))
		},
	)
}

func (o *Options) write(stats *profile.GlobalProfile, src *source.Provider) error {
	format := o.format
	if format == "" {
		if strings.HasPrefix(filepath.Base(o.out), cachegrindPrefix) {
			format = formatCallgrind
		} else {
			format = formatText
		}
	}

	out, closeOut, err := o.openOut()
	if err != nil {
		return err
	}
	defer closeOut()

	switch format {
	case formatText:
		annotator := report.NewAnnotator(report.WithAnnotatorSource(src))
		err = annotator.Write(out, stats)
	case formatCallgrind:
		writer := report.NewCallgrindWriter(
			report.WithCallgrindCreator(settings.Creator),
			report.WithCallgrindRelativePaths(o.zipfile != ""),
		)
		err = writer.Write(out, stats)
	case formatCallgrindZip:
		err = report.WriteProfileArchive(out, stats, src, cachegrindPrefix+settings.CmdName, settings.Creator)
	case formatPprof:
		err = report.WritePprof(out, stats)
	default:
		return errors.Errorf("unknown format: %s", format)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to write %s output", format)
	}

	if o.zipfile != "" {
		f, err := os.Create(o.zipfile)
		if err != nil {
			return errors.Wrap(err, "failed to create source archive")
		}
		defer f.Close()
		if err := report.WriteSourceArchive(f, stats, src); err != nil {
			return errors.Wrap(err, "failed to write source archive")
		}
	}

	return nil
}

func (o *Options) openOut() (io.Writer, func(), error) {
	if o.out == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(o.out)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to create output file %s", o.out)
	}
	return f, func() { f.Close() }, nil
}

func argvRest(module string, args []string) []string {
	if module != "" {
		return args
	}
	if len(args) > 1 {
		return args[1:]
	}
	return nil
}
