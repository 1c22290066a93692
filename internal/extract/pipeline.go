// Package extract runs the four best-effort enrichers over a closed MemCell:
// episode narrative, atomic event log, foresight predictions, and life-profile
// updates. Each enricher makes exactly one LLM call and persists its own
// artifact. A failing enricher is logged and never blocks the others.
package extract

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/scrypster/enhancedmem/internal/llm"
	"github.com/scrypster/enhancedmem/internal/memcell"
	"github.com/scrypster/enhancedmem/internal/storage"
	"github.com/scrypster/enhancedmem/pkg/types"
)

// Sampling temperatures per enricher.
const (
	episodeTemperature   = 0.2
	eventLogTemperature  = 0.1
	foresightTemperature = 0.2
	profileTemperature   = 0.2
)

// HistoryAppender appends a free-text entry to the dated history.
type HistoryAppender interface {
	AppendHistory(entry string) error
}

// Stores are the persistence targets of the enrichers.
type Stores struct {
	Episodes   *storage.JSONLLog
	Foresights *storage.JSONLLog
	History    HistoryAppender
	Profile    *storage.ProfileStore
}

// Pipeline runs the enrichers sequentially in a fixed order.
type Pipeline struct {
	stores       Stores
	instructions string
	newID        func() string
}

// NewPipeline creates a pipeline writing to stores.
func NewPipeline(stores Stores) *Pipeline {
	return &Pipeline{
		stores:       stores,
		instructions: llm.DefaultEpisodeInstructions,
		newID:        func() string { return ulid.Make().String() },
	}
}

// Result records the outcome of each enricher for one MemCell.
type Result struct {
	EpisodeStatus types.EnrichmentStatus
	EpisodeError  string
	Episode       *types.Episode

	EventLogStatus types.EnrichmentStatus
	EventLogError  string
	Facts          []string

	ForesightStatus types.EnrichmentStatus
	ForesightError  string
	Foresights      []types.ForesightItem

	ProfileStatus types.EnrichmentStatus
	ProfileError  string
	ProfileLines  []string

	ExecutedAt time.Time
}

// Run invokes the episode, event-log, foresight, and life-profile enrichers
// in that order. It never returns an error: each failure is logged and
// recorded in the Result.
func (p *Pipeline) Run(ctx context.Context, provider llm.Provider, model string, cell types.MemCell) *Result {
	result := &Result{
		EpisodeStatus:   types.EnrichmentPending,
		EventLogStatus:  types.EnrichmentPending,
		ForesightStatus: types.EnrichmentPending,
		ProfileStatus:   types.EnrichmentPending,
	}
	transcript := memcell.FormatTranscript(cell.OriginalData)

	// Call 1: Episode
	log.Printf("Pipeline: Starting episode extraction for %s", cell.EventID)
	if err := guard(func() error {
		ep, err := p.extractEpisode(ctx, provider, model, cell, transcript)
		result.Episode = ep
		return err
	}); err != nil {
		log.Printf("Pipeline: WARNING - Episode extraction failed for %s: %v", cell.EventID, err)
		result.EpisodeStatus = types.EnrichmentFailed
		result.EpisodeError = err.Error()
	} else {
		result.EpisodeStatus = types.EnrichmentCompleted
		log.Printf("Pipeline: Episode %q stored for %s", result.Episode.Title, cell.EventID)
	}

	// Call 2: EventLog
	log.Printf("Pipeline: Starting event log extraction for %s", cell.EventID)
	if err := guard(func() error {
		facts, err := p.extractEventLog(ctx, provider, model, cell, transcript)
		result.Facts = facts
		return err
	}); err != nil {
		log.Printf("Pipeline: WARNING - EventLog extraction failed for %s: %v", cell.EventID, err)
		result.EventLogStatus = types.EnrichmentFailed
		result.EventLogError = err.Error()
	} else {
		result.EventLogStatus = types.EnrichmentCompleted
		log.Printf("Pipeline: Appended %d facts to history for %s", len(result.Facts), cell.EventID)
	}

	// Call 3: Foresight
	log.Printf("Pipeline: Starting foresight extraction for %s", cell.EventID)
	if err := guard(func() error {
		items, err := p.extractForesight(ctx, provider, model, cell, transcript)
		result.Foresights = items
		return err
	}); err != nil {
		log.Printf("Pipeline: WARNING - Foresight extraction failed for %s: %v", cell.EventID, err)
		result.ForesightStatus = types.EnrichmentFailed
		result.ForesightError = err.Error()
	} else {
		result.ForesightStatus = types.EnrichmentCompleted
		log.Printf("Pipeline: Stored %d foresight items for %s", len(result.Foresights), cell.EventID)
	}

	// Call 4: Life profile
	if transcript == "" {
		log.Printf("Pipeline: Skipping life profile extraction (empty conversation)")
		result.ProfileStatus = types.EnrichmentSkipped
	} else {
		log.Printf("Pipeline: Starting life profile extraction for %s", cell.EventID)
		if err := guard(func() error {
			lines, err := p.extractLifeProfile(ctx, provider, model, transcript)
			result.ProfileLines = lines
			return err
		}); err != nil {
			log.Printf("Pipeline: WARNING - Life profile extraction failed for %s: %v", cell.EventID, err)
			result.ProfileStatus = types.EnrichmentFailed
			result.ProfileError = err.Error()
		} else {
			result.ProfileStatus = types.EnrichmentCompleted
			log.Printf("Pipeline: Applied %d profile lines for %s", len(result.ProfileLines), cell.EventID)
		}
	}

	result.ExecutedAt = time.Now()
	return result
}

// guard runs fn and converts a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
