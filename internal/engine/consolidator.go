package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/scrypster/enhancedmem/internal/boundary"
	"github.com/scrypster/enhancedmem/internal/cluster"
	"github.com/scrypster/enhancedmem/internal/digest"
	"github.com/scrypster/enhancedmem/internal/extract"
	"github.com/scrypster/enhancedmem/internal/llm"
	"github.com/scrypster/enhancedmem/internal/memcell"
	"github.com/scrypster/enhancedmem/internal/notify"
	"github.com/scrypster/enhancedmem/internal/storage"
	"github.com/scrypster/enhancedmem/internal/tokens"
	"github.com/scrypster/enhancedmem/pkg/types"
)

// Consolidator runs the consolidation state machine over a workspace.
//
// A Consolidator is not safe for concurrent use over the same workspace;
// callers serialize consolidation per workspace.
type Consolidator struct {
	cfg    Config
	layout storage.Layout

	detector *boundary.Detector
	builder  *memcell.Builder
	assigner *cluster.Assigner
	pipeline *extract.Pipeline
	memcells *storage.JSONLLog
	episodes *storage.JSONLLog
	digests  *storage.DigestStore

	now          func() time.Time
	onTransition func(TraceEvent)
	notifier     Notifier
}

// Notifier publishes consolidation events to other processes.
type Notifier interface {
	Notify(eventType, eventID, clusterID string) error
}

// New creates a Consolidator over layout, recording cluster assignments in
// clusters. The estimator may be nil, in which case the character proxy is
// used.
func New(layout storage.Layout, clusters storage.ClusterStore, cfg Config, estimator tokens.Estimator) (*Consolidator, error) {
	if clusters == nil {
		return nil, errors.New("engine: cluster store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid config: %w", err)
	}
	if err := layout.Ensure(); err != nil {
		return nil, fmt.Errorf("engine: prepare workspace: %w", err)
	}

	c := &Consolidator{
		cfg:      cfg,
		layout:   layout,
		detector: boundary.NewDetector(cfg.Boundary, estimator),
		memcells: storage.NewJSONLLog(layout.MemCellsFile()),
		episodes: storage.NewJSONLLog(layout.EpisodesFile()),
		now:      time.Now,
	}
	clock := func() time.Time { return c.now() }

	c.builder = memcell.NewBuilder()
	c.builder.Now = clock
	c.digests = storage.NewDigestStore(layout, clock)
	c.assigner = cluster.NewAssigner(clusters, clock)
	c.pipeline = extract.NewPipeline(extract.Stores{
		Episodes:   c.episodes,
		Foresights: storage.NewJSONLLog(layout.ForesightsFile()),
		History:    c.digests,
		Profile:    storage.NewProfileStore(layout.UserFile()),
	})
	return c, nil
}

// SetClock replaces the wall clock used for timestamps, cluster fallbacks,
// and history file dates.
func (c *Consolidator) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	c.now = now
}

// SetIDGenerator replaces the MemCell identifier generator.
func (c *Consolidator) SetIDGenerator(newID func() string) {
	c.builder.NewID = newID
}

// OnTransition registers fn to be called after every state transition.
func (c *Consolidator) OnTransition(fn func(TraceEvent)) {
	c.onTransition = fn
}

// SetNotifier registers n to receive memcell_stored and consolidated events.
func (c *Consolidator) SetNotifier(n Notifier) {
	c.notifier = n
}

// Layout returns the workspace layout.
func (c *Consolidator) Layout() storage.Layout {
	return c.layout
}

// Clusters returns the cluster assigner.
func (c *Consolidator) Clusters() *cluster.Assigner {
	return c.assigner
}

// run carries the state of one Consolidate call.
type run struct {
	state     types.ConsolidationState
	sess      Session
	opts      Options
	window    int
	sel       Selection
	decision  types.BoundaryDecision
	cell      types.MemCell
	clusterID string
	result    *extract.Result
}

// Consolidate considers the unconsolidated span of sess and, when the
// boundary detector (or archive mode) closes an episode, persists it as a
// MemCell with its cluster assignment, extracted artifacts, history entry,
// and digest fact. The session cursor advances only after every step has
// succeeded.
//
// Consolidate never panics and never returns an error: it reports false on
// failure, leaving the cursor where it was so the call can be retried.
// Artifacts written before the failure are not rolled back.
func (c *Consolidator) Consolidate(ctx context.Context, sess Session, provider llm.Provider, model string, opts Options) (ok bool) {
	r := &run{state: types.StateIdle, sess: sess, opts: opts, window: opts.MemoryWindow}
	if r.window <= 0 {
		r.window = c.cfg.MemoryWindow
	}

	defer func() {
		if rec := recover(); rec != nil {
			c.fail(ctx, r, fmt.Errorf("panic: %v", rec))
			ok = false
		}
	}()

	if err := c.transition(ctx, r, types.StateSelectingSpan, ""); err != nil {
		c.fail(ctx, r, err)
		return false
	}

	for r.state != types.StateIdle {
		next, detail, err := c.step(ctx, r, provider, model)
		if err != nil {
			c.fail(ctx, r, err)
			return false
		}
		if err := c.transition(ctx, r, next, detail); err != nil {
			c.fail(ctx, r, err)
			return false
		}
	}
	return true
}

// step performs the I/O of the current state and returns the next state.
func (c *Consolidator) step(ctx context.Context, r *run, provider llm.Provider, model string) (types.ConsolidationState, string, error) {
	switch r.state {
	case types.StateSelectingSpan:
		return c.selectSpan(r)
	case types.StateDetectingBoundary:
		return c.detectBoundary(ctx, r, provider, model)
	case types.StateWaiting:
		return types.StateIdle, "episode still open", nil
	case types.StateBuildingCell:
		return c.buildCell(r)
	case types.StateClustering:
		return c.assignCluster(ctx, r)
	case types.StateExtracting:
		return c.extract(ctx, r, provider, model)
	case types.StatePersistingDigest:
		return c.persistDigest(r)
	default:
		return "", "", fmt.Errorf("%w: no step for state %q", ErrInvalidTransition, r.state)
	}
}

func (c *Consolidator) selectSpan(r *run) (types.ConsolidationState, string, error) {
	messages := r.sess.Messages()
	r.sel = SelectSpan(messages, r.sess.LastConsolidated(), r.opts.ArchiveAll, r.window)

	switch {
	case r.sel.Advance:
		r.sess.SetLastConsolidated(r.sel.NextCursor)
		return types.StateIdle, fmt.Sprintf("span of %d, cursor -> %d", len(r.sel.Span), r.sel.NextCursor), nil
	case !r.sel.Proceed:
		return types.StateIdle, "nothing to consolidate", nil
	}

	detail := fmt.Sprintf("span of %d messages", len(r.sel.Span))
	if r.opts.ArchiveAll {
		r.decision = ArchiveDecision()
		return types.StateBuildingCell, detail + ", archiving", nil
	}
	return types.StateDetectingBoundary, detail, nil
}

func (c *Consolidator) detectBoundary(ctx context.Context, r *run, provider llm.Provider, model string) (types.ConsolidationState, string, error) {
	history, newMsgs := SplitForDetection(r.sel.Span, r.opts.PendingUserMessage, c.now())
	r.decision = c.detector.Detect(ctx, provider, model, history, newMsgs)
	next := AfterBoundary(r.decision, r.opts.ArchiveAll)
	return next, fmt.Sprintf("end=%t wait=%t", r.decision.End, r.decision.Wait), nil
}

func (c *Consolidator) buildCell(r *run) (types.ConsolidationState, string, error) {
	r.cell = c.builder.Build(r.sel.Span, r.decision.Summary)
	if err := c.memcells.Append(r.cell); err != nil {
		return "", "", fmt.Errorf("append memcell: %w", err)
	}
	log.Printf("Consolidate: Stored MemCell %s (%d messages)", r.cell.EventID, len(r.cell.OriginalData))
	c.publish(notify.EventMemCellStored, r.cell.EventID, "")
	return types.StateClustering, r.cell.EventID, nil
}

func (c *Consolidator) assignCluster(ctx context.Context, r *run) (types.ConsolidationState, string, error) {
	clusterID, err := c.assigner.Assign(ctx, r.cell.EventID, r.cell.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return "", "", err
	}
	r.clusterID = clusterID
	return types.StateExtracting, "cluster " + clusterID, nil
}

func (c *Consolidator) extract(ctx context.Context, r *run, provider llm.Provider, model string) (types.ConsolidationState, string, error) {
	r.result = c.pipeline.Run(ctx, provider, model, r.cell)
	detail := fmt.Sprintf("episode=%s event_log=%s foresight=%s profile=%s",
		r.result.EpisodeStatus, r.result.EventLogStatus, r.result.ForesightStatus, r.result.ProfileStatus)
	return types.StatePersistingDigest, detail, nil
}

func (c *Consolidator) persistDigest(r *run) (types.ConsolidationState, string, error) {
	minute := types.MinuteStamp(r.cell.Timestamp)
	if err := c.digests.AppendHistory(fmt.Sprintf("[%s] %s", minute, r.cell.Summary)); err != nil {
		return "", "", err
	}

	summary := r.decision.Summary
	if r.opts.ArchiveAll {
		summary = ""
		if r.result != nil && r.result.Episode != nil {
			summary = strings.TrimSpace(r.result.Episode.Summary)
		}
	}

	detail := "digest unchanged"
	if summary != "" {
		current, err := c.digests.ReadLongTerm()
		if err != nil {
			return "", "", err
		}
		updated, changed := digest.Fold(current, digest.FactLine(minute, summary), c.cfg.MaxDigestChars)
		if changed {
			if err := c.digests.WriteLongTerm(updated); err != nil {
				return "", "", err
			}
			detail = "digest updated"
		}
	}

	r.sess.SetLastConsolidated(r.sel.NextCursor)
	c.publish(notify.EventConsolidated, r.cell.EventID, r.clusterID)
	return types.StateIdle, fmt.Sprintf("%s, cursor -> %d", detail, r.sel.NextCursor), nil
}

// publish publishes an event when a notifier is registered. Failures are
// logged and never affect the consolidation.
func (c *Consolidator) publish(eventType, eventID, clusterID string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(eventType, eventID, clusterID); err != nil {
		log.Printf("Consolidate: WARNING - Failed to publish %s for %s: %v", eventType, eventID, err)
	}
}

// transition moves r to next, rejecting transitions the state machine does
// not define.
func (c *Consolidator) transition(ctx context.Context, r *run, next types.ConsolidationState, detail string) error {
	if !types.IsValidStateTransition(r.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.state, next)
	}
	c.emit(ctx, r, next, detail)
	return nil
}

// fail logs err with the run's context and drives the machine through
// failed back to idle. The cursor is left untouched.
func (c *Consolidator) fail(ctx context.Context, r *run, err error) {
	log.Printf("Consolidate: WARNING - Consolidation failed in state %s (cursor=%d, span=%d): %v",
		r.state, safeCursor(r.sess), len(r.sel.Span), err)

	if r.state != types.StateFailed && types.IsValidStateTransition(r.state, types.StateFailed) {
		c.emit(ctx, r, types.StateFailed, err.Error())
	}
	if r.state == types.StateFailed {
		c.emit(ctx, r, types.StateIdle, "")
	}
}

func (c *Consolidator) emit(ctx context.Context, r *run, next types.ConsolidationState, detail string) {
	e := TraceEvent{From: r.state, To: next, At: c.now(), Detail: detail}
	r.state = next
	emitToContext(ctx, e)
	if c.onTransition != nil {
		c.onTransition(e)
	}
}

// safeCursor reads the cursor for logging; a misbehaving session reports -1.
func safeCursor(sess Session) (cursor int) {
	cursor = -1
	if sess == nil {
		return cursor
	}
	defer func() { _ = recover() }()
	return sess.LastConsolidated()
}
