package types

import "time"

// MemCellMessage is a message as stored inside a MemCell.
type MemCellMessage struct {
	Role        Role   `json:"role"`
	Content     string `json:"content"`
	Timestamp   string `json:"timestamp"`
	SpeakerName string `json:"speaker_name"`
}

// MemCell is an immutable, closed span of conversation turned into one memory
// unit. Once appended to the MemCell log it is never rewritten.
type MemCell struct {
	EventID      string           `json:"event_id"`
	OriginalData []MemCellMessage `json:"original_data"`
	Timestamp    time.Time        `json:"timestamp"`
	Summary      string           `json:"summary"`
	Participants []Role           `json:"participants"`
	Type         string           `json:"type"`
}

// Episode is the narrative artifact derived from a MemCell. It shares the
// MemCell's event ID.
type Episode struct {
	EventID   string    `json:"event_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// ForesightItem is a predicted future implication derived from a MemCell.
type ForesightItem struct {
	ID           string `json:"id,omitempty"`
	EventID      string `json:"event_id"`
	Content      string `json:"content"`
	Evidence     string `json:"evidence,omitempty"`
	StartTime    string `json:"start_time,omitempty"`
	EndTime      string `json:"end_time,omitempty"`
	DurationDays int    `json:"duration_days,omitempty"`
}

// ProfileOperation is one operation proposed by the life-profile extractor.
type ProfileOperation struct {
	Action string               `json:"action"`
	Type   string               `json:"type,omitempty"`
	Data   ProfileOperationData `json:"data,omitempty"`
}

// ProfileOperationData carries the payload of a ProfileOperation.
type ProfileOperationData struct {
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	Evidence    string `json:"evidence,omitempty"`
}

// Profile operation actions and types.
const (
	ProfileActionAdd    = "add"
	ProfileActionUpdate = "update"
	ProfileActionDelete = "delete"
	ProfileActionNone   = "none"

	ProfileTypeExplicitInfo = "explicit_info"
)

// BoundaryDecision is the result of boundary detection. End and Wait are
// mutually exclusive; Summary is only populated when End is true.
type BoundaryDecision struct {
	End     bool
	Wait    bool
	Summary string
}

// ClusterState is the full cluster index: event -> cluster, cluster -> count,
// cluster -> most recent timestamp.
type ClusterState struct {
	EventIDToCluster map[string]string `json:"eventid_to_cluster"`
	ClusterCounts    map[string]int    `json:"cluster_counts"`
	ClusterLastTS    map[string]string `json:"cluster_last_ts"`
}

// NewClusterState returns an empty ClusterState with all maps allocated.
func NewClusterState() *ClusterState {
	return &ClusterState{
		EventIDToCluster: make(map[string]string),
		ClusterCounts:    make(map[string]int),
		ClusterLastTS:    make(map[string]string),
	}
}

// Normalize allocates any nil maps, e.g. after decoding a partial document.
func (s *ClusterState) Normalize() {
	if s.EventIDToCluster == nil {
		s.EventIDToCluster = make(map[string]string)
	}
	if s.ClusterCounts == nil {
		s.ClusterCounts = make(map[string]int)
	}
	if s.ClusterLastTS == nil {
		s.ClusterLastTS = make(map[string]string)
	}
}
