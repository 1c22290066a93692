package extract

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/scrypster/enhancedmem/internal/llm"
	"github.com/scrypster/enhancedmem/pkg/types"
)

// ProfileSectionHeader heads the block of conversation-derived profile lines.
const ProfileSectionHeader = "## Conversation-derived"

const episodeSummaryFallbackChars = 200

func (p *Pipeline) extractEpisode(ctx context.Context, provider llm.Provider, model string, cell types.MemCell, transcript string) (*types.Episode, error) {
	prompt := llm.EpisodePrompt(types.SecondStamp(cell.Timestamp), transcript, p.instructions)
	reply, err := provider.Chat(ctx, llm.UserOnly(prompt), model, episodeTemperature)
	if err != nil {
		return nil, err
	}

	res, ok := llm.DecodeObjectRepair(reply)
	if !ok {
		return nil, llm.ErrNoJSON
	}

	content := res.Get("content").String()
	summary := prefixRunes(content, episodeSummaryFallbackChars)
	if s := res.Get("summary"); s.Exists() {
		summary = s.String()
	}

	ep := &types.Episode{
		EventID:   cell.EventID,
		Title:     res.Get("title").String(),
		Content:   content,
		Summary:   summary,
		Timestamp: cell.Timestamp,
	}
	if err := p.stores.Episodes.Append(ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// extractEventLog accepts {"event_log": {"time", "atomic_fact": [...]}}, the
// same object without the event_log wrapper, or a list whose items are fact
// strings or objects carrying atomic_fact, fact, or content.
func (p *Pipeline) extractEventLog(ctx context.Context, provider llm.Provider, model string, cell types.MemCell, transcript string) ([]string, error) {
	ts := types.SecondStamp(cell.Timestamp)
	reply, err := provider.Chat(ctx, llm.UserOnly(llm.EventLogPrompt(ts, transcript)), model, eventLogTemperature)
	if err != nil {
		return nil, err
	}

	res, ok := llm.DecodeValue(reply)
	if !ok {
		return nil, llm.ErrNoJSON
	}

	el := res
	if res.IsObject() {
		if wrapped := res.Get("event_log"); wrapped.Exists() {
			el = wrapped
		}
	}

	evtTime := types.MinuteStamp(cell.Timestamp)
	var facts []string
	switch {
	case el.IsObject():
		if t := strings.TrimSpace(el.Get("time").String()); t != "" {
			evtTime = prefixRunes(t, 16)
		}
		for _, f := range el.Get("atomic_fact").Array() {
			if f.Type == gjson.String && strings.TrimSpace(f.Str) != "" {
				facts = append(facts, strings.TrimSpace(f.Str))
			}
		}
	case el.IsArray():
		for _, item := range el.Array() {
			if fact := listFact(item); fact != "" {
				facts = append(facts, fact)
			}
		}
	}

	for _, fact := range facts {
		if err := p.stores.History.AppendHistory(fmt.Sprintf("[%s] %s", evtTime, fact)); err != nil {
			return nil, err
		}
	}
	return facts, nil
}

func listFact(item gjson.Result) string {
	if item.Type == gjson.String {
		return strings.TrimSpace(item.Str)
	}
	if !item.IsObject() {
		return ""
	}
	for _, key := range []string{"atomic_fact", "fact", "content"} {
		if v := item.Get(key); v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			return strings.TrimSpace(v.Str)
		}
	}
	return ""
}

func (p *Pipeline) extractForesight(ctx context.Context, provider llm.Provider, model string, cell types.MemCell, transcript string) ([]types.ForesightItem, error) {
	prompt := llm.ForesightPrompt("user", "User", transcript)
	reply, err := provider.Chat(ctx, llm.UserOnly(prompt), model, foresightTemperature)
	if err != nil {
		return nil, err
	}

	res, ok := llm.DecodeArray(reply)
	if !ok {
		return nil, llm.ErrNoJSON
	}

	var items []types.ForesightItem
	for _, raw := range res.Array() {
		if !raw.IsObject() {
			continue
		}
		item := types.ForesightItem{
			ID:           p.newID(),
			EventID:      cell.EventID,
			Content:      raw.Get("content").String(),
			Evidence:     raw.Get("evidence").String(),
			StartTime:    raw.Get("start_time").String(),
			EndTime:      raw.Get("end_time").String(),
			DurationDays: int(raw.Get("duration_days").Int()),
		}
		if err := p.stores.Foresights.Append(item); err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}

// extractLifeProfile applies "add" operations of type explicit_info as bullet
// lines under ProfileSectionHeader. Other actions are accepted and logged but
// change nothing.
func (p *Pipeline) extractLifeProfile(ctx context.Context, provider llm.Provider, model string, transcript string) ([]string, error) {
	current, _, err := p.stores.Profile.Read()
	if err != nil {
		return nil, err
	}

	reply, err := provider.Chat(ctx, llm.UserOnly(llm.LifeProfilePrompt(current, transcript)), model, profileTemperature)
	if err != nil {
		return nil, err
	}

	res, ok := llm.DecodeObject(reply)
	if !ok {
		return nil, llm.ErrNoJSON
	}

	var applied []string
	for _, raw := range res.Get("operations").Array() {
		var op types.ProfileOperation
		if err := llm.Unmarshal(raw, &op); err != nil {
			log.Printf("Pipeline: WARNING - ignoring malformed profile operation: %v", err)
			continue
		}

		if op.Action != types.ProfileActionAdd || op.Type != types.ProfileTypeExplicitInfo {
			if op.Action != types.ProfileActionNone {
				log.Printf("Pipeline: profile operation %q (%s) not applied", op.Action, op.Type)
			}
			continue
		}

		desc := strings.TrimSpace(op.Data.Description)
		if desc == "" {
			continue
		}
		line := "- " + desc
		if strings.HasSuffix(strings.TrimSpace(current), line) {
			continue
		}

		current = appendProfileLine(current, line)
		if err := p.stores.Profile.Write(current); err != nil {
			return applied, err
		}
		applied = append(applied, line)
	}
	return applied, nil
}

// appendProfileLine adds line to doc, creating the section header first if
// the document does not have one yet.
func appendProfileLine(doc, line string) string {
	if !hasLine(doc, ProfileSectionHeader) {
		trimmed := strings.TrimRight(doc, " \t\r\n")
		if trimmed == "" {
			doc = ProfileSectionHeader + "\n\n"
		} else {
			doc = trimmed + "\n\n" + ProfileSectionHeader + "\n\n"
		}
	} else if doc != "" && !strings.HasSuffix(doc, "\n") {
		doc += "\n"
	}
	return doc + line + "\n"
}

func hasLine(doc, line string) bool {
	for _, l := range strings.Split(doc, "\n") {
		if strings.TrimSpace(l) == line {
			return true
		}
	}
	return false
}

func prefixRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
