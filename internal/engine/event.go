package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// EventType classifies log events.
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeTick
	EventTypeAgentAdded
	EventTypeAgentRemoved
	EventTypeAgentMoved
	EventTypeGoalSet
	EventTypeGoalReached
	EventTypeStrategySet
	EventTypeWorldLoaded
)

// EventVersion is bumped when an event payload changes shape.
const EventVersion uint8 = 1

var eventTypeNames = [...]string{
	EventTypeUnknown:      "unknown",
	EventTypeTick:         "tick",
	EventTypeAgentAdded:   "agent_added",
	EventTypeAgentRemoved: "agent_removed",
	EventTypeAgentMoved:   "agent_moved",
	EventTypeGoalSet:      "goal_set",
	EventTypeGoalReached:  "goal_reached",
	EventTypeStrategySet:  "strategy_set",
	EventTypeWorldLoaded:  "world_loaded",
}

// String returns the snake_case name written to the log.
func (t EventType) String() string {
	if int(t) < len(eventTypeNames) {
		return eventTypeNames[t]
	}
	return "unknown"
}

// MarshalText writes the type by name so log lines stay readable.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a name written by MarshalText.
func (t *EventType) UnmarshalText(text []byte) error {
	for i, name := range eventTypeNames {
		if name == string(text) {
			*t = EventType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", text)
}

// Event is one line of the event log.
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`
	TickNum   uint64          `json:"tickNum"`
	AgentID   string          `json:"agentId,omitempty"` // rate-limit key, empty for world events
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// TickPayload summarizes one stepper run.
type TickPayload struct {
	DT         float64 `json:"dt"`
	AgentCount int     `json:"agentCount"`
	Evaluated  int     `json:"evaluated"`
	Moves      int     `json:"moves"`
	Blocked    int     `json:"blocked"`
	Arrived    int     `json:"arrived"`
}

// AgentPayload identifies an agent and its cell.
type AgentPayload struct {
	ID uint32 `json:"id"`
	X  int    `json:"x"`
	Y  int    `json:"y"`
}

// MovePayload is a committed cell-to-cell move.
type MovePayload struct {
	ID    uint32 `json:"id"`
	FromX int    `json:"fromX"`
	FromY int    `json:"fromY"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
}

// GoalPayload is a goal assignment or arrival.
type GoalPayload struct {
	ID uint32 `json:"id"`
	X  int    `json:"x"`
	Y  int    `json:"y"`
}

// StrategyPayload is a strategy assignment. Empty Name means detached.
type StrategyPayload struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

// WorldLoadedPayload describes a world replaced from disk.
type WorldLoadedPayload struct {
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Agents int    `json:"agents"`
}

// EncodePayload marshals a payload, returning nil on failure.
func EncodePayload(payload interface{}) json.RawMessage {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType EventType, tickNum uint64, agentID string, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		TickNum:   tickNum,
		AgentID:   agentID,
		Payload:   EncodePayload(payload),
	}
}

// agentKey is the rate-limit key for an agent.
func agentKey(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}
