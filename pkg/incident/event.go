// Package incident implements the event intake and priority dispatcher: the
// front half of the incident response orchestrator.
package incident

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority ranks an Event's urgency. Lower numeric rank means higher
// urgency, matching the priority-queue convention (rank 1 = highest).
type Priority int

const (
	// PriorityCritical is rank 1: an ALARM whose name signals a severe
	// condition (critical/oom/node/down).
	PriorityCritical Priority = 1
	// PriorityHigh is rank 2: any other ALARM-state event.
	PriorityHigh Priority = 2
	// PriorityMedium is rank 3: a non-ALARM state change.
	PriorityMedium Priority = 3
	// PriorityLow is rank 4, reserved for future use.
	PriorityLow Priority = 4
)

// String renders the priority the way it appears in chat notifications and
// log fields ("CRITICAL", "HIGH", ...).
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

var criticalKeywords = []string{"critical", "oom", "node", "down"}

// Event is an immutable record of one inbound alarm. It lives only inside
// the priority queue and its handler task; nothing persists it past
// handling.
type Event struct {
	ID         string
	Time       string
	Source     string
	DetailType string
	Detail     map[string]interface{}
	Priority   Priority

	insertSeq uint64
}

// Payload is the shape of the inbound submit() body:
// {id, time, source, detail-type, detail:{alarmName, state:{value}, ...}}.
type Payload struct {
	ID         string                 `json:"id"`
	Time       string                 `json:"time"`
	Source     string                 `json:"source"`
	DetailType string                 `json:"detail-type"`
	Detail     map[string]interface{} `json:"detail"`
}

// NewEvent builds an Event from a submitted payload, deriving its priority
// and backfilling a UUID when the payload omits an id.
func NewEvent(payload Payload) *Event {
	id := payload.ID
	if id == "" {
		id = uuid.NewString()
	}
	ts := payload.Time
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}
	detail := payload.Detail
	if detail == nil {
		detail = map[string]interface{}{}
	}

	e := &Event{
		ID:         id,
		Time:       ts,
		Source:     payload.Source,
		DetailType: payload.DetailType,
		Detail:     detail,
	}
	e.Priority = derivePriority(detail)
	return e
}

// derivePriority maps an event's detail to a priority: a pure function,
// so repeated calls always agree.
func derivePriority(detail map[string]interface{}) Priority {
	alarmState := stringField(detail, "state", "value")
	if alarmState != "ALARM" {
		return PriorityMedium
	}

	alarmName := strings.ToLower(stringField(detail, "alarmName"))
	for _, kw := range criticalKeywords {
		if strings.Contains(alarmName, kw) {
			return PriorityCritical
		}
	}
	return PriorityHigh
}

// stringField walks a chain of nested map keys (e.g. "state", "value") and
// returns the leaf as a string, or "" if any segment is missing or not a
// string/map.
func stringField(detail map[string]interface{}, path ...string) string {
	var cur interface{} = detail
	for i, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return ""
		}
		v, ok := m[key]
		if !ok {
			return ""
		}
		if i == len(path)-1 {
			s, _ := v.(string)
			return s
		}
		cur = v
	}
	return ""
}

// IncidentID derives the incident identity from the event id: "INC-" plus
// the first 8 characters, padding-safe for short ids.
func (e *Event) IncidentID() string {
	id := e.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return "INC-" + id
}

// AlarmName returns the lowercased alarmName used for workflow selection and
// priority derivation, or "" if absent.
func (e *Event) AlarmName() string {
	return strings.ToLower(stringField(e.Detail, "alarmName"))
}
