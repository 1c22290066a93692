package engine

import (
	"time"

	"github.com/scrypster/enhancedmem/pkg/types"
)

// Selection is the outcome of span selection.
type Selection struct {
	// Span is the candidate span of unconsolidated messages.
	Span []types.Message

	// NextCursor is the cursor value after the span is consolidated, or after
	// a no-op that advances the cursor.
	NextCursor int

	// Proceed is true when the span holds at least two messages.
	Proceed bool

	// Advance is true when a no-op should still move the cursor to NextCursor.
	Advance bool
}

// SelectSpan chooses the span to consider.
//
// In archive mode the span is every message from the cursor on and the cursor
// moves to the end. In normal mode the most recent window/2 messages are kept
// back; nothing happens when the session is no longer than that or the cursor
// has already reached the kept region. A span shorter than two messages is a
// no-op that advances the cursor past it.
func SelectSpan(messages []types.Message, cursor int, archive bool, window int) Selection {
	n := len(messages)
	if cursor < 0 {
		cursor = 0
	}
	if cursor > n {
		cursor = n
	}

	var sel Selection
	if archive {
		sel = Selection{Span: messages[cursor:], NextCursor: n}
	} else {
		keep := window / 2
		if n <= keep || cursor >= n-keep {
			return Selection{NextCursor: cursor}
		}
		sel = Selection{Span: messages[cursor : n-keep], NextCursor: n - keep}
	}

	if len(sel.Span) < 2 {
		sel.Advance = true
		return sel
	}
	sel.Proceed = true
	return sel
}

// SplitForDetection divides span into the history and new sides of boundary
// detection. A pending user message is the new side and the whole span is
// history; otherwise the last message of span is the new side. A pending
// message without a timestamp is stamped with now.
func SplitForDetection(span []types.Message, pending *types.Message, now time.Time) (history, newMsgs []types.Message) {
	if pending != nil {
		p := *pending
		if p.Role == "" {
			p.Role = types.RoleUser
		}
		if p.Timestamp == "" {
			p.Timestamp = now.Format("2006-01-02T15:04:05.000000")
		}
		return span, []types.Message{p}
	}
	if len(span) < 2 {
		return nil, span
	}
	return span[:len(span)-1], span[len(span)-1:]
}

// AfterBoundary returns the state that follows a boundary decision.
func AfterBoundary(decision types.BoundaryDecision, archive bool) types.ConsolidationState {
	if archive || decision.End {
		return types.StateBuildingCell
	}
	return types.StateWaiting
}

// ArchiveDecision is the forced boundary used in archive mode.
func ArchiveDecision() types.BoundaryDecision {
	return types.BoundaryDecision{End: true, Wait: false, Summary: types.ArchiveSummary}
}
