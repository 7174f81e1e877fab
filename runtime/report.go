package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/suipack/iox"
	"github.com/pithecene-io/suipack/metrics"
	"github.com/pithecene-io/suipack/types"
)

// RunReport is the structured JSON report written by --report.
type RunReport struct {
	RunID         string              `json:"run_id"`
	Source        types.SourceKind    `json:"source"`
	Outcome       types.OutcomeStatus `json:"outcome"`
	Message       string              `json:"message"`
	ExitCode      int                 `json:"exit_code"`
	DurationMs    int64               `json:"duration_ms"`
	Packages      int                 `json:"packages"`
	Written       int                 `json:"artifacts_written"`
	Skipped       int                 `json:"artifacts_skipped"`
	MaxCheckpoint uint64              `json:"max_checkpoint"`
	Metrics       *metrics.Snapshot   `json:"metrics"`
}

// BuildRunReport composes a RunReport from a RunResult and metrics snapshot.
// exitCode is the process exit code that will be returned to the caller.
func BuildRunReport(result *RunResult, snap metrics.Snapshot, exitCode int) *RunReport {
	report := &RunReport{
		RunID:         result.RunMeta.RunID,
		Source:        result.RunMeta.Source,
		Outcome:       result.Outcome(),
		Message:       "run completed successfully",
		ExitCode:      exitCode,
		DurationMs:    result.Duration.Milliseconds(),
		Packages:      result.Packages,
		Written:       result.Written,
		Skipped:       result.Skipped,
		MaxCheckpoint: result.MaxCheckpoint,
		Metrics:       &snap,
	}
	if result.Err != nil {
		report.Message = result.Err.Error()
	}
	return report
}

// WriteRunReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteRunReport(report *RunReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}
	if path == "-" {
		return writeRunReportTo(report, os.Stderr)
	}

	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	if err := iox.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

func marshalReport(report *RunReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// writeRunReportTo writes report JSON to any writer.
func writeRunReportTo(report *RunReport, w io.Writer) error {
	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
