// Package types defines the core data structures for the episodic memory
// consolidation pipeline: raw session messages, MemCells, the artifacts
// extracted from them, and the cluster index that groups them.
package types

// EnrichmentStatus represents the outcome of a single extractor run.
type EnrichmentStatus string

// Enrichment task status constants
const (
	// EnrichmentPending indicates the extractor has not run yet
	EnrichmentPending EnrichmentStatus = "pending"

	// EnrichmentCompleted indicates the extractor produced its artifact
	EnrichmentCompleted EnrichmentStatus = "completed"

	// EnrichmentFailed indicates the extractor ran but produced nothing
	EnrichmentFailed EnrichmentStatus = "failed"

	// EnrichmentSkipped indicates the extractor had no input to work on
	EnrichmentSkipped EnrichmentStatus = "skipped"
)

// MemCellType is the fixed type tag carried by every MemCell.
const MemCellType = "conversation"

// DefaultMemCellSummary is used when a MemCell is built without a summary.
const DefaultMemCellSummary = "Conversation segment"

// ArchiveSummary is the summary used when a session is archived wholesale.
const ArchiveSummary = "Session archived"

// ForceSplitSummary is the summary used when hard limits close an episode.
const ForceSplitSummary = "Message/token limit reached, forced split"
