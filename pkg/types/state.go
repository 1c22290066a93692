package types

// ConsolidationState is a state of the consolidation state machine.
type ConsolidationState string

// Consolidation state constants
const (
	StateIdle              ConsolidationState = "idle"               // Not consolidating
	StateSelectingSpan     ConsolidationState = "selecting_span"     // Choosing the unconsolidated span
	StateDetectingBoundary ConsolidationState = "detecting_boundary" // Deciding whether the episode ends
	StateWaiting           ConsolidationState = "waiting"            // Episode still open, cursor untouched
	StateBuildingCell      ConsolidationState = "building_cell"      // Packaging the span as a MemCell
	StateClustering        ConsolidationState = "clustering"         // Assigning the MemCell to a cluster
	StateExtracting        ConsolidationState = "extracting"         // Running the four extractors
	StatePersistingDigest  ConsolidationState = "persisting_digest"  // History line and long-term digest
	StateFailed            ConsolidationState = "failed"             // Aborted, cursor untouched
)

// ValidConsolidationStates contains all valid consolidation states
var ValidConsolidationStates = []ConsolidationState{
	StateIdle,
	StateSelectingSpan,
	StateDetectingBoundary,
	StateWaiting,
	StateBuildingCell,
	StateClustering,
	StateExtracting,
	StatePersistingDigest,
	StateFailed,
}

// IsValidConsolidationState checks if the given state is a known state.
func IsValidConsolidationState(state ConsolidationState) bool {
	for _, valid := range ValidConsolidationStates {
		if state == valid {
			return true
		}
	}
	return false
}

// IsValidStateTransition validates state transitions of the consolidation
// state machine.
//
// Valid transitions:
//
//	idle -> selecting_span
//	selecting_span -> detecting_boundary | building_cell | idle | failed
//	detecting_boundary -> waiting | building_cell | failed
//	waiting -> idle
//	building_cell -> clustering | failed
//	clustering -> extracting | failed
//	extracting -> persisting_digest | failed
//	persisting_digest -> idle | failed
//	failed -> idle
//
// selecting_span -> idle covers the no-op case (span shorter than two
// messages); selecting_span -> building_cell is archive mode, which forces the
// boundary without asking the LLM.
func IsValidStateTransition(current, next ConsolidationState) bool {
	switch current {
	case StateIdle:
		return next == StateSelectingSpan

	case StateSelectingSpan:
		return next == StateDetectingBoundary || next == StateBuildingCell ||
			next == StateIdle || next == StateFailed

	case StateDetectingBoundary:
		return next == StateWaiting || next == StateBuildingCell || next == StateFailed

	case StateWaiting:
		return next == StateIdle

	case StateBuildingCell:
		return next == StateClustering || next == StateFailed

	case StateClustering:
		return next == StateExtracting || next == StateFailed

	case StateExtracting:
		return next == StatePersistingDigest || next == StateFailed

	case StatePersistingDigest:
		return next == StateIdle || next == StateFailed

	case StateFailed:
		return next == StateIdle

	default:
		return false
	}
}
