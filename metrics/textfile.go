package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "suipack"

// Registry builds a private Prometheus registry holding the values of s.
// Every series carries the source, mirror_backend and run_id labels.
func Registry(s Snapshot) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{
		"source":         s.Source,
		"mirror_backend": s.MirrorBackend,
		"run_id":         s.RunID,
	}

	counters := []struct {
		name  string
		help  string
		value int64
	}{
		{"runs_started_total", "Archive runs started.", s.RunsStarted},
		{"runs_completed_total", "Archive runs completed successfully.", s.RunsCompleted},
		{"runs_failed_total", "Archive runs stopped by an error.", s.RunsFailed},
		{"packages_archived_total", "Packages whose save pipeline completed.", s.PackagesArchived},
		{"artifacts_skipped_total", "Artifacts left in place because they existed.", s.ArtifactsSkipped},
		{"decompiler_runs_total", "Decompiler invocations.", s.DecompilerRuns},
		{"decompiler_failures_total", "Failed decompiler invocations.", s.DecompilerFailures},
		{"pages_fetched_total", "GraphQL pages fetched.", s.PagesFetched},
		{"provenance_fallbacks_total", "Nodes resolved through the RPC provenance fallback.", s.ProvenanceFallbacks},
		{"mirror_uploads_total", "Artifacts copied to the mirror.", s.MirrorUploads},
		{"mirror_failures_total", "Failed mirror writes.", s.MirrorFailures},
	}
	for _, c := range counters {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        c.name,
			Help:        c.help,
			ConstLabels: labels,
		})
		counter.Add(float64(c.value))
		if err := reg.Register(counter); err != nil {
			return nil, fmt.Errorf("register %s: %w", c.name, err)
		}
	}

	written := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "artifacts_written_total",
		Help:        "Artifacts written, by kind.",
		ConstLabels: labels,
	}, []string{"kind"})
	for kind, n := range s.WrittenByKind {
		written.WithLabelValues(kind).Add(float64(n))
	}
	if err := reg.Register(written); err != nil {
		return nil, fmt.Errorf("register artifacts_written_total: %w", err)
	}

	return reg, nil
}

// WriteTextfile exports s to path in the Prometheus text format, for the
// node exporter textfile collector. The file is replaced atomically.
func WriteTextfile(path string, s Snapshot) error {
	reg, err := Registry(s)
	if err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
