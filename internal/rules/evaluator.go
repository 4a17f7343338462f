package rules

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"rabbitwatch/internal/broker"
	"rabbitwatch/internal/collector"
	"rabbitwatch/internal/metrics"
	"rabbitwatch/internal/models"
)

// memoryCriticalPercent escalates node_memory_high from warning to critical.
const memoryCriticalPercent = 90.0

type Thresholds struct {
	QueueLengthMax   int64
	UnackedMax       int64
	MinConsumers     int64
	MemoryPercentMax float64
	DiskPercentMax   float64
	HaltThreshold    int64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		QueueLengthMax:   1000,
		UnackedMax:       500,
		MinConsumers:     1,
		MemoryPercentMax: 80,
		DiskPercentMax:   85,
		HaltThreshold:    100,
	}
}

// QueueOverride relaxes the backlog threshold and repeat cooldown for queues
// that legitimately hold long-running work.
type QueueOverride struct {
	Name           string
	QueueLengthMax int64
	Cooldown       time.Duration
}

type Evaluator struct {
	th        Thresholds
	overrides map[string]QueueOverride
	seenNodes map[string]struct{}
	log       zerolog.Logger
}

func NewEvaluator(th Thresholds, overrides []QueueOverride, logger zerolog.Logger) *Evaluator {
	byName := make(map[string]QueueOverride, len(overrides))
	for _, o := range overrides {
		byName[o.Name] = o
	}
	return &Evaluator{th: th, overrides: byName, seenNodes: map[string]struct{}{}, log: logger}
}

func (e *Evaluator) Thresholds() Thresholds { return e.th }

// Evaluate runs every rule against snap. Rate-based rules read the previous
// samples from store; the store is rewritten only after all queues have been
// evaluated.
func (e *Evaluator) Evaluate(snap models.Snapshot, store *collector.SampleStore) []models.Finding {
	var out []models.Finding
	for _, q := range snap.Queues {
		rates, ok := store.Rates(q, snap.CapturedAt)
		var r *collector.Rates
		if ok {
			r = &rates
		} else if _, seen := store.Previous(q.Key()); seen {
			e.log.Debug().Str("queue", q.Key().String()).Msg("rate skipped, counters reset or no elapsed time")
		}
		out = append(out, e.evalQueue(q, r)...)
	}
	out = append(out, e.evalNodes(snap.Nodes)...)
	store.Replace(snap.Queues, snap.CapturedAt)
	metrics.TrackedQueues.Set(float64(store.Len()))

	for _, f := range out {
		metrics.FindingsTotal.WithLabelValues(string(f.Kind), string(f.Severity)).Inc()
	}
	e.log.Debug().Int("findings", len(out)).Int("queues", len(snap.Queues)).Int("nodes", len(snap.Nodes)).Msg("evaluation done")
	return out
}

func (e *Evaluator) evalQueue(q models.Queue, rates *collector.Rates) []models.Finding {
	var out []models.Finding
	subject := q.Key().String()
	maxLen := e.th.QueueLengthMax
	var cooldown time.Duration
	if o, ok := e.overrides[q.Name]; ok {
		if o.QueueLengthMax > 0 {
			maxLen = o.QueueLengthMax
		}
		cooldown = o.Cooldown
	}

	if q.Ready >= maxLen {
		out = append(out, models.Finding{
			Kind:     models.KindQueueBacklog,
			Subject:  subject,
			Severity: models.SeverityCritical,
			Summary:  fmt.Sprintf("Queue %s has %s ready messages (threshold: %s)", subject, formatCount(q.Ready), formatCount(maxLen)),
			Details:  map[string]any{"queue": q.Name, "vhost": q.VHost, "messages": q.Ready, "threshold": maxLen},
			Cooldown: cooldown,
		})
	}
	if q.Unacked >= e.th.UnackedMax {
		out = append(out, models.Finding{
			Kind:     models.KindHighUnacked,
			Subject:  subject,
			Severity: models.SeverityWarning,
			Summary:  fmt.Sprintf("Queue %s has %s unacknowledged messages (threshold: %s)", subject, formatCount(q.Unacked), formatCount(e.th.UnackedMax)),
			Details:  map[string]any{"queue": q.Name, "vhost": q.VHost, "unacked": q.Unacked, "threshold": e.th.UnackedMax},
			Cooldown: cooldown,
		})
	}
	if q.Ready > 0 && q.Consumers < e.th.MinConsumers {
		out = append(out, models.Finding{
			Kind:     models.KindMissingConsumers,
			Subject:  subject,
			Severity: models.SeverityWarning,
			Summary:  fmt.Sprintf("Queue %s has %s messages but %d consumers (minimum: %d)", subject, formatCount(q.Ready), q.Consumers, e.th.MinConsumers),
			Details:  map[string]any{"queue": q.Name, "vhost": q.VHost, "messages": q.Ready, "consumers": q.Consumers, "minimum": e.th.MinConsumers},
			Cooldown: cooldown,
		})
	}
	if rates != nil && q.Ready >= e.th.HaltThreshold && rates.Publish > 0 && rates.Consume == 0 {
		out = append(out, models.Finding{
			Kind:     models.KindProcessingHalted,
			Subject:  subject,
			Severity: models.SeverityCritical,
			Summary:  fmt.Sprintf("Queue %s: %s messages, publish %.2f/s, consume %.2f/s", subject, formatCount(q.Ready), rates.Publish, rates.Consume),
			Details: map[string]any{
				"queue":           q.Name,
				"vhost":           q.VHost,
				"messages":        q.Ready,
				"publish_rate":    rates.Publish,
				"consume_rate":    rates.Consume,
				"elapsed_seconds": rates.Elapsed.Seconds(),
				"threshold":       e.th.HaltThreshold,
			},
			Cooldown: cooldown,
		})
	}
	return out
}

func (e *Evaluator) evalNodes(nodes []models.Node) []models.Finding {
	var out []models.Finding
	present := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		present[n.Name] = struct{}{}
		e.seenNodes[n.Name] = struct{}{}

		if !n.Running {
			out = append(out, nodeDown(n.Name, "not running"))
		}
		if n.MemLimit > 0 {
			pct := n.MemoryPercent()
			if pct >= e.th.MemoryPercentMax {
				sev := models.SeverityWarning
				if pct >= memoryCriticalPercent {
					sev = models.SeverityCritical
				}
				out = append(out, models.Finding{
					Kind:     models.KindNodeMemoryHigh,
					Subject:  n.Name,
					Severity: sev,
					Summary:  fmt.Sprintf("Node %s memory at %.1f%% (threshold: %.0f%%)", n.Name, pct, e.th.MemoryPercentMax),
					Details:  map[string]any{"node": n.Name, "mem_used": n.MemUsed, "mem_limit": n.MemLimit, "percent": pct, "threshold": e.th.MemoryPercentMax},
				})
			}
		}
		if n.DiskFreeLimit > 0 {
			freePct := n.DiskFreePercent()
			if n.DiskFree <= n.DiskFreeLimit || freePct <= 100-e.th.DiskPercentMax {
				out = append(out, models.Finding{
					Kind:     models.KindNodeDiskHigh,
					Subject:  n.Name,
					Severity: models.SeverityWarning,
					Summary:  fmt.Sprintf("Node %s disk usage at %.1f%% of alarm headroom, %s bytes free (threshold: %.0f%%)", n.Name, n.DiskUsedPercent(), formatCount(n.DiskFree), e.th.DiskPercentMax),
					Details: map[string]any{
						"node":            n.Name,
						"disk_free":       n.DiskFree,
						"disk_free_limit": n.DiskFreeLimit,
						"percent":         n.DiskUsedPercent(),
						"threshold":       e.th.DiskPercentMax,
					},
				})
			}
		}
	}

	missing := make([]string, 0)
	for name := range e.seenNodes {
		if _, ok := present[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	for _, name := range missing {
		out = append(out, nodeDown(name, "missing from cluster view"))
	}
	return out
}

func nodeDown(name, reason string) models.Finding {
	return models.Finding{
		Kind:     models.KindNodeDown,
		Subject:  name,
		Severity: models.SeverityCritical,
		Summary:  fmt.Sprintf("Node %s is down (%s)", name, reason),
		Details:  map[string]any{"node": name, "reason": reason},
	}
}

// Unavailable converts a failed snapshot into the single finding evaluated
// for that cycle.
func Unavailable(err error, addr string) models.Finding {
	details := map[string]any{"host": addr, "error": err.Error()}
	var ue *broker.UnavailableError
	if errors.As(err, &ue) {
		details["endpoint"] = ue.Endpoint
	}
	return models.Finding{
		Kind:     models.KindAPIUnavailable,
		Subject:  models.SubjectSystem,
		Severity: models.SeverityCritical,
		Summary:  fmt.Sprintf("Management API at %s is unreachable: %v", addr, err),
		Details:  details,
	}
}

// formatCount renders n with thousands separators.
func formatCount(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := false
	if n < 0 {
		neg = true
		s = s[1:]
	}
	var b []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b = append(b, ',')
		}
		b = append(b, s[i])
	}
	if neg {
		return "-" + string(b)
	}
	return string(b)
}
