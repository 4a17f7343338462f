package alerts

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rabbitwatch/internal/metrics"
	"rabbitwatch/internal/models"
)

const DefaultCooldown = 5 * time.Minute

// StateMachine tracks one AlertRecord per (condition, subject) and turns each
// cycle's findings into notification intents. Process is called from the
// polling loop only; the mutex guards readers from the status server.
type StateMachine struct {
	mu       sync.RWMutex
	records  map[models.AlertKey]*models.AlertRecord
	cooldown time.Duration
	log      zerolog.Logger
	newID    func() string
}

type AlertView struct {
	Kind         models.ConditionKind `json:"kind"`
	Subject      string               `json:"subject"`
	Severity     models.Severity      `json:"severity"`
	Summary      string               `json:"summary"`
	FiringSince  time.Time            `json:"firing_since"`
	LastNotified time.Time            `json:"last_notified"`
}

func NewStateMachine(cooldown time.Duration, logger zerolog.Logger) *StateMachine {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &StateMachine{
		records:  map[models.AlertKey]*models.AlertRecord{},
		cooldown: cooldown,
		log:      logger,
		newID:    uuid.NewString,
	}
}

func (m *StateMachine) Process(findings []models.Finding, now time.Time) []models.Intent {
	return m.process(findings, now, nil)
}

// ProcessScoped is Process for a cycle that only evaluated the given kinds.
// Firing alerts of other kinds are left untouched: they neither recover nor
// repeat until a cycle evaluates them again.
func (m *StateMachine) ProcessScoped(findings []models.Finding, now time.Time, kinds ...models.ConditionKind) []models.Intent {
	scope := make(map[models.ConditionKind]bool, len(kinds))
	for _, k := range kinds {
		scope[k] = true
	}
	return m.process(findings, now, scope)
}

func (m *StateMachine) process(findings []models.Finding, now time.Time, scope map[models.ConditionKind]bool) []models.Intent {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := make(map[models.AlertKey]models.Finding, len(findings))
	order := make([]models.AlertKey, 0, len(findings))
	for _, f := range findings {
		k := f.Key()
		if _, dup := current[k]; dup {
			continue
		}
		current[k] = f
		order = append(order, k)
	}

	var out []models.Intent

	recovered := make([]models.AlertKey, 0)
	for k, rec := range m.records {
		if scope != nil && !scope[k.Kind] {
			continue
		}
		if _, still := current[k]; rec.Firing && !still {
			recovered = append(recovered, k)
		}
	}
	sort.Slice(recovered, func(i, j int) bool { return recovered[i].String() < recovered[j].String() })
	for _, k := range recovered {
		rec := m.records[k]
		rec.Firing = false
		out = append(out, m.intent(models.IntentRecovery, rec.Last, now))
		m.log.Info().Str("alert", k.String()).Dur("fired_for", now.Sub(rec.FiringSince)).Msg("alert recovered")
	}

	for _, k := range order {
		f := current[k]
		rec, ok := m.records[k]
		if !ok {
			rec = &models.AlertRecord{}
			m.records[k] = rec
		}
		rec.Last = f
		if !rec.Firing {
			rec.Firing = true
			rec.FiringSince = now
			rec.LastNotified = now
			out = append(out, m.intent(models.IntentNew, f, now))
			m.log.Info().Str("alert", k.String()).Str("severity", string(f.Severity)).Msg("alert firing")
			continue
		}
		cooldown := m.cooldown
		if f.Cooldown > 0 {
			cooldown = f.Cooldown
		}
		if now.Sub(rec.LastNotified) >= cooldown {
			rec.LastNotified = now
			out = append(out, m.intent(models.IntentRepeat, f, now))
			m.log.Info().Str("alert", k.String()).Dur("cooldown", cooldown).Msg("alert still firing, repeating")
			continue
		}
		m.log.Debug().Str("alert", k.String()).Time("last_notified", rec.LastNotified).Msg("notification suppressed by cooldown")
	}

	metrics.ActiveAlerts.Set(float64(m.firingLocked()))
	return out
}

func (m *StateMachine) intent(t models.IntentType, f models.Finding, now time.Time) models.Intent {
	return models.Intent{ID: m.newID(), Type: t, Finding: f, At: now}
}

// Record returns a copy of the record for key.
func (m *StateMachine) Record(key models.AlertKey) (models.AlertRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok {
		return models.AlertRecord{}, false
	}
	return *rec, true
}

// Active lists firing alerts, most severe first.
func (m *StateMachine) Active() []AlertView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AlertView, 0, len(m.records))
	for k, rec := range m.records {
		if !rec.Firing {
			continue
		}
		out = append(out, AlertView{
			Kind:         k.Kind,
			Subject:      k.Subject,
			Severity:     rec.Last.Severity,
			Summary:      rec.Last.Summary,
			FiringSince:  rec.FiringSince,
			LastNotified: rec.LastNotified,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if ri, rj := severityRank(out[i].Severity), severityRank(out[j].Severity); ri != rj {
			return ri < rj
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Subject < out[j].Subject
	})
	return out
}

func (m *StateMachine) firingLocked() int {
	n := 0
	for _, rec := range m.records {
		if rec.Firing {
			n++
		}
	}
	return n
}

func severityRank(s models.Severity) int {
	switch s {
	case models.SeverityCritical:
		return 0
	case models.SeverityWarning:
		return 1
	default:
		return 2
	}
}
