// Package runtime drives one archive run: it pulls packages from a source,
// saves them into the archive, mirrors new artifacts, records metrics and
// publishes a completion event.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/pithecene-io/suipack/adapter"
	"github.com/pithecene-io/suipack/archive"
	"github.com/pithecene-io/suipack/log"
	"github.com/pithecene-io/suipack/metrics"
	"github.com/pithecene-io/suipack/types"
)

// publishTimeout bounds the completion event publish, which runs even
// after the run context is canceled.
const publishTimeout = 30 * time.Second

// Mirror copies artifacts that Save wrote to secondary storage.
// *lode.Mirror implements it.
type Mirror interface {
	MirrorPackage(ctx context.Context, res *archive.SaveResult) (int, error)
}

// RunConfig configures a single run.
type RunConfig struct {
	// RunMeta is the run identity.
	RunMeta *types.RunMeta
	// Store is the archive packages are saved into.
	Store *archive.Store
	// Save selects artifacts, force and the decompiler.
	Save archive.SaveOptions
	// StartCheckpoint is the checkpoint the source starts after. It is
	// written to CheckpointFile when the run processes no package.
	StartCheckpoint uint64
	// CheckpointFile receives the high-water mark after a successful run.
	// Empty disables it.
	CheckpointFile string
	// Mirror is optional.
	Mirror Mirror
	// Adapter is optional. Publish failures are logged, never returned.
	Adapter adapter.Adapter
	// Collector is optional; all Collector methods are nil-safe.
	Collector *metrics.Collector
	// Logger defaults to a stderr logger with the run context.
	Logger *log.Logger
}

// RunResult summarizes a run. Err is the error that stopped it, if any.
type RunResult struct {
	RunMeta       *types.RunMeta
	Packages      int
	Written       int
	Skipped       int
	MaxCheckpoint uint64
	Duration      time.Duration
	Err           error
}

// Outcome classifies the result.
func (r *RunResult) Outcome() types.OutcomeStatus {
	return types.OutcomeFor(r.Err)
}

// Orchestrator runs sources through the archive.
type Orchestrator struct {
	config *RunConfig
	logger *log.Logger
}

// NewOrchestrator validates config and creates an orchestrator.
func NewOrchestrator(config *RunConfig) (*Orchestrator, error) {
	if config.RunMeta == nil {
		return nil, errors.New("run metadata is required")
	}
	if err := config.RunMeta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run metadata: %w", err)
	}
	if config.Store == nil {
		return nil, errors.New("archive store is required")
	}
	if config.Save.Decompiled && config.Save.Decompiler == nil {
		return nil, errors.New("decompiled output requested without a decompiler")
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(config.RunMeta)
	}
	return &Orchestrator{config: config, logger: logger}, nil
}

// Run archives every package src yields, sequentially. The first failure
// stops the run; packages saved before it stay in the archive.
func (o *Orchestrator) Run(ctx context.Context, src Source) *RunResult {
	start := time.Now()
	cfg := o.config
	cfg.Collector.IncRunStarted()

	o.logger.Info("starting run", map[string]any{
		"archive":          cfg.Store.Root(),
		"start_checkpoint": cfg.StartCheckpoint,
		"force":            cfg.Save.Force,
	})

	result := &RunResult{RunMeta: cfg.RunMeta}
	for {
		p, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Err = err
			break
		}
		if err := o.archivePackage(ctx, p, result); err != nil {
			result.Err = err
			break
		}
	}

	if result.Err == nil && cfg.CheckpointFile != "" {
		cp := cfg.StartCheckpoint
		if result.Packages > 0 {
			cp = result.MaxCheckpoint
		}
		result.Err = WriteCheckpointFile(cfg.CheckpointFile, cp)
	}

	result.Duration = time.Since(start)
	o.finish(ctx, result)
	return result
}

func (o *Orchestrator) archivePackage(ctx context.Context, p *types.PackageWithMetadata, result *RunResult) error {
	cfg := o.config
	id := p.Package.ID.String()

	res, err := cfg.Store.Save(ctx, p, cfg.Save)
	if res != nil {
		cfg.Collector.AddDecompilerRuns(res.DecompilerRuns)
		o.count(res, result)
	}
	if err != nil {
		if errors.Is(err, types.ErrSubprocess) {
			cfg.Collector.IncDecompilerFailure()
		}
		o.logger.Error("package failed", map[string]any{
			"package_id": id,
			"version":    p.Package.Version,
			"checkpoint": p.Checkpoint,
			"error":      err.Error(),
		})
		return err
	}

	mirrored := 0
	if cfg.Mirror != nil && len(res.Written) > 0 {
		mirrored, err = cfg.Mirror.MirrorPackage(ctx, res)
		if err != nil {
			o.logger.Error("mirror failed", map[string]any{
				"package_id": id,
				"error":      err.Error(),
			})
			return err
		}
	}

	result.Packages++
	if p.Checkpoint > result.MaxCheckpoint {
		result.MaxCheckpoint = p.Checkpoint
	}
	cfg.Collector.IncPackageArchived()

	o.logger.Info("package archived", map[string]any{
		"package_id": id,
		"version":    p.Package.Version,
		"checkpoint": p.Checkpoint,
		"written":    len(res.Written),
		"skipped":    len(res.Skipped),
		"mirrored":   mirrored,
	})
	return nil
}

func (o *Orchestrator) count(res *archive.SaveResult, result *RunResult) {
	result.Written += len(res.Written)
	result.Skipped += len(res.Skipped)
	for _, rel := range res.Written {
		o.config.Collector.IncArtifactWritten(ArtifactKind(rel))
	}
	o.config.Collector.AddArtifactsSkipped(len(res.Skipped))
}

// finish records the outcome and publishes the completion event.
func (o *Orchestrator) finish(ctx context.Context, result *RunResult) {
	cfg := o.config
	fields := map[string]any{
		"outcome":        result.Outcome(),
		"packages":       result.Packages,
		"written":        result.Written,
		"skipped":        result.Skipped,
		"max_checkpoint": result.MaxCheckpoint,
		"duration":       result.Duration.String(),
	}
	if result.Err != nil {
		cfg.Collector.IncRunFailed()
		fields["error"] = result.Err.Error()
		o.logger.Error("run failed", fields)
	} else {
		cfg.Collector.IncRunCompleted()
		o.logger.Info("run completed", fields)
	}

	if cfg.Adapter == nil {
		return
	}
	event := adapter.NewArchiveCompletedEvent(adapter.RunSummary{
		Meta:          cfg.RunMeta,
		Packages:      result.Packages,
		Written:       result.Written,
		Skipped:       result.Skipped,
		MaxCheckpoint: result.MaxCheckpoint,
		Duration:      result.Duration,
		Err:           result.Err,
	}, time.Now())

	// Publish even when the run was canceled.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := cfg.Adapter.Publish(pubCtx, event); err != nil {
		o.logger.Warn("completion event publish failed", map[string]any{
			"event_id": event.EventID,
			"error":    err.Error(),
		})
	}
}

// Artifact kinds used as metric labels.
const (
	KindBCS        = "bcs"
	KindBytecode   = "bytecode"
	KindDecompiled = "decompiled"
	KindCallGraph  = "call_graph"
	KindMetadata   = "metadata"
	KindOther      = "other"
)

// ArtifactKind maps a path relative to a package directory to its kind.
func ArtifactKind(rel string) string {
	rel = filepath.ToSlash(rel)
	switch {
	case rel == archive.BCSFile:
		return KindBCS
	case rel == archive.CallGraphFile:
		return KindCallGraph
	case rel == archive.MetadataFile:
		return KindMetadata
	case strings.HasPrefix(rel, archive.BytecodeDir+"/"):
		return KindBytecode
	case strings.HasPrefix(rel, archive.DecompiledDir+"/"):
		return KindDecompiled
	default:
		return KindOther
	}
}
