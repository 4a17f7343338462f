package models

import (
	"time"
)

type ConditionKind string

const (
	KindQueueBacklog     ConditionKind = "queue_backlog"
	KindMissingConsumers ConditionKind = "missing_consumers"
	KindHighUnacked      ConditionKind = "high_unacked"
	KindProcessingHalted ConditionKind = "processing_halted"
	KindNodeMemoryHigh   ConditionKind = "node_memory_high"
	KindNodeDiskHigh     ConditionKind = "node_disk_high"
	KindNodeDown         ConditionKind = "node_down"
	KindAPIUnavailable   ConditionKind = "api_unavailable"
	KindMonitorStarted   ConditionKind = "monitor_started"
	KindMonitorError     ConditionKind = "monitor_error"
)

var conditionTitles = map[ConditionKind]string{
	KindQueueBacklog:     "Queue backup detected",
	KindMissingConsumers: "Missing consumers",
	KindHighUnacked:      "High unacknowledged messages",
	KindProcessingHalted: "Processing halted",
	KindNodeMemoryHigh:   "High memory usage",
	KindNodeDiskHigh:     "High disk usage",
	KindNodeDown:         "Node down",
	KindAPIUnavailable:   "API connection failed",
	KindMonitorStarted:   "Monitoring started",
	KindMonitorError:     "Monitoring error",
}

func (k ConditionKind) Title() string {
	if t, ok := conditionTitles[k]; ok {
		return t
	}
	return string(k)
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// SubjectSystem is the subject of findings that are not tied to a queue or node.
const SubjectSystem = "system"

type Finding struct {
	Kind     ConditionKind
	Subject  string
	Severity Severity
	Summary  string
	Details  map[string]any
	// Cooldown overrides the state machine's default repeat window when non-zero.
	Cooldown time.Duration
}

func (f Finding) Key() AlertKey {
	return AlertKey{Kind: f.Kind, Subject: f.Subject}
}

type AlertKey struct {
	Kind    ConditionKind
	Subject string
}

func (k AlertKey) String() string {
	return string(k.Kind) + ":" + k.Subject
}

type AlertRecord struct {
	Firing       bool
	FiringSince  time.Time
	LastNotified time.Time
	Last         Finding
}

type IntentType string

const (
	IntentNew      IntentType = "new"
	IntentRepeat   IntentType = "repeat"
	IntentRecovery IntentType = "recovery"
	IntentStartup  IntentType = "startup"
)

// Intent is a decision to notify, produced by the alert state machine or the
// scheduler's startup announcement.
type Intent struct {
	ID      string
	Type    IntentType
	Finding Finding
	At      time.Time
}
