package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/suipack/adapter"
	"github.com/pithecene-io/suipack/adapter/redis"
	"github.com/pithecene-io/suipack/adapter/webhook"
	"github.com/pithecene-io/suipack/archive"
	suipackconfig "github.com/pithecene-io/suipack/cli/config"
	"github.com/pithecene-io/suipack/fetch"
	"github.com/pithecene-io/suipack/lode"
	"github.com/pithecene-io/suipack/log"
	"github.com/pithecene-io/suipack/metrics"
	"github.com/pithecene-io/suipack/runtime"
	"github.com/pithecene-io/suipack/types"
)

// Exit codes of the archiving commands, one per run outcome.
const (
	exitSuccess         = 0
	exitRunError        = 1
	exitFetchError      = 2
	exitDecodeError     = 3
	exitStorageError    = 4
	exitDecompilerError = 5
	exitCanceled        = 130
)

// Artifact names accepted by --skip.
const (
	skipBCS        = "bcs"
	skipBytecode   = "bytecode"
	skipDecompiled = "decompiled"
	skipCallGraph  = "call_graph"
	skipMetadata   = "metadata"
)

// runSetup holds everything an archiving command builds before it runs.
type runSetup struct {
	cfg       *suipackconfig.Config
	meta      *types.RunMeta
	store     *archive.Store
	save      archive.SaveOptions
	logger    *log.Logger
	collector *metrics.Collector
	mirror    *lode.Mirror
	adapter   adapter.Adapter

	checkpointFile string
	report         string
	textfile       string
	quiet          bool

	closers []io.Closer
}

// newRunSetup resolves flags over the config file and opens every sink the
// run writes to. Close must be called when it returns nil error.
func newRunSetup(c *cli.Context, kind types.SourceKind) (_ *runSetup, err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	root := resolveString(c, "archive", configVal(cfg, func(c *suipackconfig.Config) string { return c.Archive }))
	if root == "" {
		return nil, errors.New("--archive is required (flag, SUIPACK_ARCHIVE or config archive)")
	}

	save := configVal(cfg, func(c *suipackconfig.Config) suipackconfig.SaveConfig { return c.Save }).Options()
	if err := applySkips(&save, c.StringSlice("skip")); err != nil {
		return nil, err
	}
	save.Force = resolveBool(c, "force", configVal(cfg, func(c *suipackconfig.Config) bool { return c.Force }))
	if save.Decompiled {
		path := resolveString(c, "decompiler", configVal(cfg, func(c *suipackconfig.Config) string { return c.Decompiler }))
		if path == "" {
			return nil, errors.New("--decompiler is required unless --skip decompiled is given")
		}
		save.Decompiler = &archive.CommandDecompiler{Path: path}
	}

	s := &runSetup{
		cfg:    cfg,
		meta:   &types.RunMeta{RunID: uuid.NewString(), Source: kind},
		store:  archive.New(root),
		save:   save,
		report: c.String("report"),
		quiet:  c.Bool("quiet"),
	}
	s.checkpointFile = resolveString(c, "checkpoint-file",
		configVal(cfg, func(c *suipackconfig.Config) string { return c.CheckpointFile }))
	s.textfile = resolveString(c, "metrics-textfile",
		configVal(cfg, func(c *suipackconfig.Config) string { return c.Metrics.Textfile }))
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	logCfg := configVal(cfg, func(c *suipackconfig.Config) suipackconfig.LogConfig { return c.Log })
	s.logger, err = log.NewLoggerWithFile(s.meta, log.FileConfig{
		Path:       resolveString(c, "log-file", logCfg.File),
		MaxSizeMB:  logCfg.MaxSizeMB,
		MaxBackups: logCfg.MaxBackups,
		MaxAgeDays: logCfg.MaxAgeDays,
		Compress:   logCfg.Compress,
	})
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, s.logger)

	mirrorCfg := resolveMirrorConfig(c, cfg)
	backend := mirrorCfg.Backend
	if backend == "" {
		backend = "none"
	}
	s.collector = metrics.NewCollector(string(kind), backend, s.meta.RunID)

	if mirrorCfg.Backend != "" {
		lc := mirrorCfg.LodeConfig(save.Force)
		if err := lc.Validate(); err != nil {
			return nil, fmt.Errorf("mirror: %w", err)
		}
		s.mirror, err = lode.Open(c.Context, lc, s.collector)
		if err != nil {
			return nil, fmt.Errorf("mirror: %w", err)
		}
		s.closers = append(s.closers, s.mirror)
	}

	s.adapter, err = buildAdapter(c, cfg)
	if err != nil {
		return nil, err
	}
	if s.adapter != nil {
		s.closers = append(s.closers, s.adapter)
	}
	return s, nil
}

// Close releases the mirror, adapter and log file in reverse open order.
func (s *runSetup) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i].Close()
	}
	s.closers = nil
}

// applySkips turns off the artifacts named by --skip.
func applySkips(save *archive.SaveOptions, skips []string) error {
	for _, raw := range skips {
		for _, name := range strings.Split(raw, ",") {
			switch strings.TrimSpace(name) {
			case skipBCS:
				save.BCS = false
			case skipBytecode:
				save.Bytecode = false
			case skipDecompiled:
				save.Decompiled = false
			case skipCallGraph:
				save.CallGraph = false
			case skipMetadata:
				save.Metadata = false
			case "":
			default:
				return fmt.Errorf("invalid --skip %q (must be %s, %s, %s, %s or %s)",
					name, skipBCS, skipBytecode, skipDecompiled, skipCallGraph, skipMetadata)
			}
		}
	}
	return nil
}

func resolveMirrorConfig(c *cli.Context, cfg *suipackconfig.Config) suipackconfig.MirrorConfig {
	m := configVal(cfg, func(c *suipackconfig.Config) suipackconfig.MirrorConfig { return c.Mirror })
	return suipackconfig.MirrorConfig{
		Backend:     resolveString(c, "mirror-backend", m.Backend),
		Path:        resolveString(c, "mirror-path", m.Path),
		Region:      resolveString(c, "mirror-s3-region", m.Region),
		Endpoint:    resolveString(c, "mirror-s3-endpoint", m.Endpoint),
		S3PathStyle: resolveBool(c, "mirror-s3-path-style", m.S3PathStyle),
	}
}

// buildAdapter returns the configured completion adapter, or nil.
func buildAdapter(c *cli.Context, cfg *suipackconfig.Config) (adapter.Adapter, error) {
	ac := configVal(cfg, func(c *suipackconfig.Config) suipackconfig.AdapterConfig { return c.Adapter })
	kind := resolveString(c, "adapter", ac.Type)
	if kind == "" {
		return nil, nil
	}
	url := resolveString(c, "adapter-url", ac.URL)
	if url == "" {
		return nil, fmt.Errorf("--adapter-url is required for the %s adapter", kind)
	}
	timeout := resolveDuration(c, "adapter-timeout", ac.Timeout.Duration)

	switch kind {
	case "webhook":
		retries := webhook.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		return webhook.New(webhook.Config{
			URL:     url,
			Headers: ac.Headers,
			Timeout: timeout,
			Retries: resolveInt(c, "adapter-retries", retries),
		})
	case "redis":
		retries := redis.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		return redis.New(redis.Config{
			URL:     url,
			Channel: resolveString(c, "adapter-channel", ac.Channel),
			Timeout: timeout,
			Retries: resolveInt(c, "adapter-retries", retries),
		})
	default:
		return nil, fmt.Errorf("invalid --adapter %q (must be webhook or redis)", kind)
	}
}

// fetchClient builds a GraphQL client from the endpoint flags and config.
func (s *runSetup) fetchClient(c *cli.Context) (*fetch.Client, error) {
	ep := configVal(s.cfg, func(c *suipackconfig.Config) suipackconfig.EndpointsConfig { return c.Endpoints })
	client, err := fetch.NewClient(fetch.Config{
		GraphQLEndpoint: resolveString(c, "graphql-url", ep.GraphQL),
		RPCEndpoint:     resolveString(c, "rpc-url", ep.RPC),
		PageSize:        resolveInt(c, "page-size", ep.PageSize),
		Timeout:         resolveDuration(c, "timeout", ep.Timeout.Duration),
		UserAgent:       ep.UserAgent,
		Metrics:         s.collector,
	})
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, client)
	return client, nil
}

// execute runs the orchestrator over the source open returns, then writes
// the report and metrics and maps the outcome to an exit code.
func (s *runSetup) execute(c *cli.Context, startCheckpoint uint64, open func(ctx context.Context) runtime.Source) error {
	orchestrator, err := runtime.NewOrchestrator(&runtime.RunConfig{
		RunMeta:         s.meta,
		Store:           s.store,
		Save:            s.save,
		StartCheckpoint: startCheckpoint,
		CheckpointFile:  s.checkpointFile,
		Mirror:          mirrorOrNil(s.mirror),
		Adapter:         s.adapter,
		Collector:       s.collector,
		Logger:          s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	src := open(ctx)
	if closer, ok := src.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}
	result := orchestrator.Run(ctx, src)
	exitCode := outcomeToExitCode(result.Outcome())

	snap := s.collector.Snapshot()
	if s.textfile != "" {
		if err := metrics.WriteTextfile(s.textfile, snap); err != nil {
			s.logger.Warn("metrics textfile write failed", map[string]any{"path": s.textfile, "error": err.Error()})
		}
	}
	if s.report != "" {
		if err := runtime.WriteRunReport(runtime.BuildRunReport(result, snap, exitCode), s.report); err != nil {
			s.logger.Warn("run report write failed", map[string]any{"path": s.report, "error": err.Error()})
		}
	}
	if !s.quiet {
		printRunResult(c.App.Writer, result)
	}

	if exitCode != exitSuccess {
		return cli.Exit(fmt.Sprintf("run %s: %v", result.Outcome(), result.Err), exitCode)
	}
	return nil
}

// mirrorOrNil keeps a nil *lode.Mirror from becoming a non-nil interface.
func mirrorOrNil(m *lode.Mirror) runtime.Mirror {
	if m == nil {
		return nil
	}
	return m
}

// checkpointForFile resolves the start checkpoint recorded when a non-sync
// run archives nothing. Without a checkpoint file it is never used.
func (s *runSetup) checkpointForFile() (uint64, error) {
	if s.checkpointFile == "" {
		return 0, nil
	}
	return runtime.ResolveStartCheckpoint(nil, s.store)
}

func outcomeToExitCode(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomeSuccess:
		return exitSuccess
	case types.OutcomeFetchError:
		return exitFetchError
	case types.OutcomeDecodeError:
		return exitDecodeError
	case types.OutcomeStorageError:
		return exitStorageError
	case types.OutcomeDecompilerError:
		return exitDecompilerError
	case types.OutcomeCanceled:
		return exitCanceled
	default:
		return exitRunError
	}
}

func printRunResult(w io.Writer, result *runtime.RunResult) {
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, "\n=== Run Result ===\n")
	fmt.Fprintf(w, "Run ID:         %s\n", result.RunMeta.RunID)
	fmt.Fprintf(w, "Source:         %s\n", result.RunMeta.Source)
	fmt.Fprintf(w, "Outcome:        %s\n", result.Outcome())
	if result.Err != nil {
		fmt.Fprintf(w, "Error:          %v\n", result.Err)
	}
	fmt.Fprintf(w, "Duration:       %s\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Packages:       %d\n", result.Packages)
	fmt.Fprintf(w, "Written:        %d\n", result.Written)
	fmt.Fprintf(w, "Skipped:        %d\n", result.Skipped)
	fmt.Fprintf(w, "Max Checkpoint: %d\n", result.MaxCheckpoint)
}
