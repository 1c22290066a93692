package memcell

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/enhancedmem/pkg/types"
)

func fixedBuilder(now time.Time) *Builder {
	return &Builder{
		Now:   func() time.Time { return now },
		NewID: func() string { return "evt-1" },
	}
}

func TestBuild(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	b := fixedBuilder(now)

	cell := b.Build([]types.Message{
		{Role: types.RoleUser, Content: "plan a trip", Timestamp: "2024-03-01T10:00:00Z"},
		{Role: types.RoleTool, Content: ""},
		{Role: types.RoleAssistant, Content: "sure", Timestamp: "2024-03-01T10:01:00Z"},
		{Role: types.RoleUser, Content: "thanks", Timestamp: "2024-03-01T10:02:00Z"},
	}, "Trip planning")

	assert.Equal(t, "evt-1", cell.EventID)
	assert.Equal(t, "Trip planning", cell.Summary)
	assert.Equal(t, types.MemCellType, cell.Type)
	assert.True(t, cell.Timestamp.Equal(time.Date(2024, 3, 1, 10, 2, 0, 0, time.UTC)))
	assert.Equal(t, []types.Role{types.RoleUser, types.RoleTool, types.RoleAssistant}, cell.Participants)

	require.Len(t, cell.OriginalData, 3)
	assert.Equal(t, types.MemCellMessage{Role: types.RoleAssistant, Content: "sure", Timestamp: "2024-03-01T10:01:00Z", SpeakerName: "ASSISTANT"}, cell.OriginalData[1])
}

func TestBuild_Fallbacks(t *testing.T) {
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	b := fixedBuilder(now)

	cell := b.Build([]types.Message{
		{Role: types.RoleUser, Content: "a", Timestamp: "2024-03-01T10:00:00"},
		{Role: types.RoleUser, Content: "b", Timestamp: "not a time"},
	}, "")

	assert.Equal(t, types.DefaultMemCellSummary, cell.Summary)
	assert.True(t, cell.Timestamp.Equal(now))
	assert.Equal(t, []types.Role{types.RoleUser}, cell.Participants)

	empty := b.Build(nil, "")
	assert.True(t, empty.Timestamp.Equal(now))
	assert.Empty(t, empty.OriginalData)
}

func TestNewBuilder_GeneratesUUIDs(t *testing.T) {
	b := NewBuilder()
	msgs := []types.Message{{Role: types.RoleUser, Content: "x"}}

	a := b.Build(msgs, "")
	c := b.Build(msgs, "")
	_, err := uuid.Parse(a.EventID)
	require.NoError(t, err)
	assert.NotEqual(t, a.EventID, c.EventID)
}

func TestFormatTranscript(t *testing.T) {
	got := FormatTranscript([]types.MemCellMessage{
		{Role: types.RoleUser, Content: "hi", Timestamp: "2024-03-01T10:00:00.123456+00:00", SpeakerName: "USER"},
		{Role: types.RoleAssistant, Content: ""},
		{Role: types.RoleAssistant, Content: "hello", Timestamp: "2024-03-01T10:00:05"},
	})
	assert.Equal(t, "[2024-03-01T10:00:00] USER: hi\n[2024-03-01T10:00:05] assistant: hello", got)
}
