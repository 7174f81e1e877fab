// Package metrics provides per-run metrics collection.
//
// The Collector accumulates counters during a single archive run. It is a
// leaf package with no internal dependencies; callers translate their own
// types into the string labels it records.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all run metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Run lifecycle
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64

	// Archive
	PackagesArchived int64
	ArtifactsWritten int64
	ArtifactsSkipped int64
	WrittenByKind    map[string]int64

	// Decompiler
	DecompilerRuns     int64
	DecompilerFailures int64

	// Fetch
	PagesFetched        int64
	ProvenanceFallbacks int64

	// Mirror
	MirrorUploads  int64
	MirrorFailures int64

	// Dimensions (informational, set at construction)
	Source        string
	MirrorBackend string
	RunID         string
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	runsStarted   int64
	runsCompleted int64
	runsFailed    int64

	packagesArchived int64
	artifactsWritten int64
	artifactsSkipped int64
	writtenByKind    map[string]int64

	decompilerRuns     int64
	decompilerFailures int64

	pagesFetched        int64
	provenanceFallbacks int64

	mirrorUploads  int64
	mirrorFailures int64

	source        string
	mirrorBackend string
	runID         string
}

// NewCollector creates a Collector with dimension labels. mirrorBackend is
// "none" when no mirror is configured.
func NewCollector(source, mirrorBackend, runID string) *Collector {
	return &Collector{
		writtenByKind: make(map[string]int64),
		source:        source,
		mirrorBackend: mirrorBackend,
		runID:         runID,
	}
}

func (c *Collector) add(field *int64, n int64) {
	c.mu.Lock()
	*field += n
	c.mu.Unlock()
}

// --- Run lifecycle ---

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() {
	if c == nil {
		return
	}
	c.add(&c.runsStarted, 1)
}

// IncRunCompleted records a successful run completion.
func (c *Collector) IncRunCompleted() {
	if c == nil {
		return
	}
	c.add(&c.runsCompleted, 1)
}

// IncRunFailed records a run that stopped on an error.
func (c *Collector) IncRunFailed() {
	if c == nil {
		return
	}
	c.add(&c.runsFailed, 1)
}

// --- Archive ---

// IncPackageArchived records a package whose save pipeline completed.
func (c *Collector) IncPackageArchived() {
	if c == nil {
		return
	}
	c.add(&c.packagesArchived, 1)
}

// IncArtifactWritten records one written artifact of the given kind
// (bcs, bytecode, decompiled, call_graph, metadata).
func (c *Collector) IncArtifactWritten(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.artifactsWritten++
	c.writtenByKind[kind]++
	c.mu.Unlock()
}

// AddArtifactsSkipped records artifacts left in place because they existed.
func (c *Collector) AddArtifactsSkipped(n int) {
	if c == nil {
		return
	}
	c.add(&c.artifactsSkipped, int64(n))
}

// --- Decompiler ---

// AddDecompilerRuns records decompiler invocations.
func (c *Collector) AddDecompilerRuns(n int) {
	if c == nil {
		return
	}
	c.add(&c.decompilerRuns, int64(n))
}

// IncDecompilerFailure records a failed decompiler invocation.
func (c *Collector) IncDecompilerFailure() {
	if c == nil {
		return
	}
	c.add(&c.decompilerFailures, 1)
}

// --- Fetch ---

// IncPageFetched records one GraphQL response page.
func (c *Collector) IncPageFetched() {
	if c == nil {
		return
	}
	c.add(&c.pagesFetched, 1)
}

// IncProvenanceFallback records a node resolved through the RPC fallback.
func (c *Collector) IncProvenanceFallback() {
	if c == nil {
		return
	}
	c.add(&c.provenanceFallbacks, 1)
}

// --- Mirror ---

// IncMirrorUpload records one artifact copied to the mirror.
func (c *Collector) IncMirrorUpload() {
	if c == nil {
		return
	}
	c.add(&c.mirrorUploads, 1)
}

// IncMirrorFailure records a failed mirror write.
func (c *Collector) IncMirrorFailure() {
	if c == nil {
		return
	}
	c.add(&c.mirrorFailures, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byKind := make(map[string]int64, len(c.writtenByKind))
	for k, v := range c.writtenByKind {
		byKind[k] = v
	}

	return Snapshot{
		RunsStarted:   c.runsStarted,
		RunsCompleted: c.runsCompleted,
		RunsFailed:    c.runsFailed,

		PackagesArchived: c.packagesArchived,
		ArtifactsWritten: c.artifactsWritten,
		ArtifactsSkipped: c.artifactsSkipped,
		WrittenByKind:    byKind,

		DecompilerRuns:     c.decompilerRuns,
		DecompilerFailures: c.decompilerFailures,

		PagesFetched:        c.pagesFetched,
		ProvenanceFallbacks: c.provenanceFallbacks,

		MirrorUploads:  c.mirrorUploads,
		MirrorFailures: c.mirrorFailures,

		Source:        c.source,
		MirrorBackend: c.mirrorBackend,
		RunID:         c.runID,
	}
}
