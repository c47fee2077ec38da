// Package events provides an event system for pipeline run and utilization notifications.
package events

import (
	"time"

	"digest-pipe/internal/metrics"
)

// EventType represents the type of event
type EventType string

const (
	// EventRunStart is emitted when a pipeline run has spawned its stages
	EventRunStart EventType = "run_start"
	// EventStageSample is emitted by the monitor for every stage on every tick
	EventStageSample EventType = "stage_sample"
	// EventRunComplete is emitted when the merger has consumed every item
	EventRunComplete EventType = "run_complete"
	// EventRunFailed is emitted when a run ends without completing
	EventRunFailed EventType = "run_failed"
)

// Event represents a pipeline event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	Items          uint64            `json:"items,omitempty"`
	Stages         int               `json:"stages,omitempty"`
	IdlePercent    float64           `json:"idle_percent,omitempty"`
	BlockedPercent float64           `json:"blocked_percent,omitempty"`
	Elapsed        string            `json:"elapsed,omitempty"`
	Completions    map[string]uint64 `json:"completions,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// NewRunStartEvent creates a run start event
func NewRunStartEvent(runID string, items uint64, stages int) Event {
	return Event{
		Type:      EventRunStart,
		Timestamp: time.Now(),
		RunID:     runID,
		Data: EventData{
			Items:  items,
			Stages: stages,
		},
	}
}

// NewStageSampleEvent creates a utilization sample event for one stage
func NewStageSampleEvent(runID string, u metrics.Utilization) Event {
	return Event{
		Type:      EventStageSample,
		Timestamp: time.Now(),
		RunID:     runID,
		Stage:     u.Stage,
		Data: EventData{
			IdlePercent:    u.IdlePercent,
			BlockedPercent: u.BlockedPercent,
			Elapsed:        u.Elapsed.String(),
		},
	}
}

// NewRunCompleteEvent creates a run complete event
func NewRunCompleteEvent(runID string, elapsed time.Duration, completions map[string]uint64) Event {
	return Event{
		Type:      EventRunComplete,
		Timestamp: time.Now(),
		RunID:     runID,
		Data: EventData{
			Elapsed:     elapsed.String(),
			Completions: completions,
		},
	}
}

// NewRunFailedEvent creates a run failed event
func NewRunFailedEvent(runID string, err error) Event {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return Event{
		Type:      EventRunFailed,
		Timestamp: time.Now(),
		RunID:     runID,
		Data: EventData{
			Error: errMsg,
		},
	}
}
