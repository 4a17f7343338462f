package rules

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rabbitwatch/internal/broker"
	"rabbitwatch/internal/collector"
	"rabbitwatch/internal/models"
)

var t0 = time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

func newEvaluator() *Evaluator {
	return NewEvaluator(DefaultThresholds(), nil, zerolog.Nop())
}

func snapshot(at time.Time, queues ...models.Queue) models.Snapshot {
	return models.Snapshot{Overview: models.Overview{Reachable: true}, Queues: queues, CapturedAt: at}
}

func kinds(fs []models.Finding) []models.ConditionKind {
	out := make([]models.ConditionKind, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Kind)
	}
	return out
}

func findKind(fs []models.Finding, k models.ConditionKind) (models.Finding, bool) {
	for _, f := range fs {
		if f.Kind == k {
			return f, true
		}
	}
	return models.Finding{}, false
}

func TestOrdersBacklogScenario(t *testing.T) {
	e := newEvaluator()
	store := collector.NewSampleStore()
	fs := e.Evaluate(snapshot(t0, models.Queue{Name: "orders", VHost: "/", Ready: 1500, Consumers: 2, Unacked: 10}), store)

	require.Len(t, fs, 1)
	assert.Equal(t, models.KindQueueBacklog, fs[0].Kind)
	assert.Equal(t, models.SeverityCritical, fs[0].Severity)
	assert.Equal(t, "orders", fs[0].Subject)
	assert.Equal(t, int64(1500), fs[0].Details["messages"])
}

func TestThresholdBoundariesAreInclusive(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		name string
		q    models.Queue
		want []models.ConditionKind
	}{
		{"backlog at threshold", models.Queue{Name: "q", Ready: th.QueueLengthMax, Consumers: 1}, []models.ConditionKind{models.KindQueueBacklog}},
		{"backlog below threshold", models.Queue{Name: "q", Ready: th.QueueLengthMax - 1, Consumers: 1}, []models.ConditionKind{}},
		{"unacked at threshold", models.Queue{Name: "q", Unacked: th.UnackedMax, Consumers: 1}, []models.ConditionKind{models.KindHighUnacked}},
		{"unacked below threshold", models.Queue{Name: "q", Unacked: th.UnackedMax - 1, Consumers: 1}, []models.ConditionKind{}},
		{"no consumers with messages", models.Queue{Name: "q", Ready: 1}, []models.ConditionKind{models.KindMissingConsumers}},
		{"no consumers on empty queue", models.Queue{Name: "q"}, []models.ConditionKind{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := newEvaluator().Evaluate(snapshot(t0, tc.q), collector.NewSampleStore())
			assert.ElementsMatch(t, tc.want, kinds(fs))
		})
	}
}

func TestProcessingHalted(t *testing.T) {
	e := newEvaluator()
	store := collector.NewSampleStore()
	q := models.Queue{Name: "jobs", VHost: "/", Ready: 150, Consumers: 1, Published: 100, Consumed: 40}

	fs := e.Evaluate(snapshot(t0, q), store)
	_, ok := findKind(fs, models.KindProcessingHalted)
	assert.False(t, ok, "first cycle never evaluates rates")

	q.Published = 200
	fs = e.Evaluate(snapshot(t0.Add(60*time.Second), q), store)
	f, ok := findKind(fs, models.KindProcessingHalted)
	require.True(t, ok)
	assert.Equal(t, models.SeverityCritical, f.Severity)
	assert.InDelta(t, 1.67, f.Details["publish_rate"].(float64), 0.01)
	assert.Zero(t, f.Details["consume_rate"].(float64))
}

func TestProcessingNotHaltedWithoutPublishes(t *testing.T) {
	e := newEvaluator()
	store := collector.NewSampleStore()
	q := models.Queue{Name: "jobs", Ready: 150, Consumers: 1, Published: 100, Consumed: 40}

	e.Evaluate(snapshot(t0, q), store)
	fs := e.Evaluate(snapshot(t0.Add(60*time.Second), q), store)
	_, ok := findKind(fs, models.KindProcessingHalted)
	assert.False(t, ok)
}

func TestProcessingNotHaltedWhileConsuming(t *testing.T) {
	e := newEvaluator()
	store := collector.NewSampleStore()
	q := models.Queue{Name: "jobs", Ready: 150, Consumers: 1, Published: 100, Consumed: 40}

	e.Evaluate(snapshot(t0, q), store)
	q.Published, q.Consumed = 200, 41
	fs := e.Evaluate(snapshot(t0.Add(60*time.Second), q), store)
	_, ok := findKind(fs, models.KindProcessingHalted)
	assert.False(t, ok)
}

func TestBrokerRestartSkipsRateRules(t *testing.T) {
	e := newEvaluator()
	store := collector.NewSampleStore()
	q := models.Queue{Name: "jobs", Ready: 150, Consumers: 1, Published: 500, Consumed: 0}

	e.Evaluate(snapshot(t0, q), store)
	q.Published = 10
	fs := e.Evaluate(snapshot(t0.Add(60*time.Second), q), store)
	_, ok := findKind(fs, models.KindProcessingHalted)
	assert.False(t, ok)

	// the post-restart counters become the new baseline
	p, ok := store.Previous(q.Key())
	require.True(t, ok)
	assert.Equal(t, int64(10), p.Published)
}

func TestSampleStoreUpdatedAfterEvaluation(t *testing.T) {
	e := newEvaluator()
	store := collector.NewSampleStore()
	e.Evaluate(snapshot(t0, models.Queue{Name: "a"}, models.Queue{Name: "b"}), store)
	require.Equal(t, 2, store.Len())

	e.Evaluate(snapshot(t0.Add(time.Minute), models.Queue{Name: "b"}), store)
	assert.Equal(t, 1, store.Len())
}

func TestQueueOverride(t *testing.T) {
	e := NewEvaluator(DefaultThresholds(), []QueueOverride{{Name: "reports", QueueLengthMax: 1_000_000, Cooldown: 3 * time.Hour}}, zerolog.Nop())
	fs := e.Evaluate(snapshot(t0,
		models.Queue{Name: "reports", Ready: 5000, Consumers: 1, Unacked: 600},
		models.Queue{Name: "orders", Ready: 5000, Consumers: 1},
	), collector.NewSampleStore())

	require.Len(t, fs, 2)
	assert.Equal(t, models.KindHighUnacked, fs[0].Kind)
	assert.Equal(t, "reports", fs[0].Subject)
	assert.Equal(t, 3*time.Hour, fs[0].Cooldown)
	assert.Equal(t, models.KindQueueBacklog, fs[1].Kind)
	assert.Equal(t, "orders", fs[1].Subject)
	assert.Zero(t, fs[1].Cooldown)
}

func TestNodeRules(t *testing.T) {
	e := newEvaluator()
	snap := models.Snapshot{CapturedAt: t0, Nodes: []models.Node{
		{Name: "rabbit@ok", MemUsed: 100, MemLimit: 1000, DiskFree: 10_000, DiskFreeLimit: 50, Running: true},
		{Name: "rabbit@mem", MemUsed: 800, MemLimit: 1000, DiskFree: 10_000, DiskFreeLimit: 50, Running: true},
		{Name: "rabbit@memcrit", MemUsed: 950, MemLimit: 1000, DiskFree: 10_000, DiskFreeLimit: 50, Running: true},
		{Name: "rabbit@disk", MemUsed: 1, MemLimit: 1000, DiskFree: 50, DiskFreeLimit: 50, Running: true},
		{Name: "rabbit@down", MemLimit: 1000, DiskFree: 10_000, DiskFreeLimit: 50, Running: false},
	}}
	fs := e.Evaluate(snap, collector.NewSampleStore())

	got := map[string]models.Finding{}
	for _, f := range fs {
		got[f.Subject+"/"+string(f.Kind)] = f
	}
	require.Len(t, got, 4)
	assert.Equal(t, models.SeverityWarning, got["rabbit@mem/node_memory_high"].Severity)
	assert.Equal(t, models.SeverityCritical, got["rabbit@memcrit/node_memory_high"].Severity)
	assert.Equal(t, models.SeverityWarning, got["rabbit@disk/node_disk_high"].Severity)
	assert.Equal(t, models.SeverityCritical, got["rabbit@down/node_down"].Severity)
}

func TestDiskHeadroomThreshold(t *testing.T) {
	e := newEvaluator()
	// limit/free = 85% of headroom consumed
	n := models.Node{Name: "rabbit@a", MemLimit: 1000, DiskFree: 1000, DiskFreeLimit: 850, Running: true}
	fs := e.Evaluate(models.Snapshot{CapturedAt: t0, Nodes: []models.Node{n}}, collector.NewSampleStore())
	assert.Equal(t, []models.ConditionKind{models.KindNodeDiskHigh}, kinds(fs))

	n.DiskFreeLimit = 840
	fs = e.Evaluate(models.Snapshot{CapturedAt: t0, Nodes: []models.Node{n}}, collector.NewSampleStore())
	assert.Empty(t, fs)
}

func TestMissingNodeIsDown(t *testing.T) {
	e := newEvaluator()
	store := collector.NewSampleStore()
	a := models.Node{Name: "rabbit@a", Running: true}
	b := models.Node{Name: "rabbit@b", Running: true}

	assert.Empty(t, e.Evaluate(models.Snapshot{CapturedAt: t0, Nodes: []models.Node{a, b}}, store))

	fs := e.Evaluate(models.Snapshot{CapturedAt: t0.Add(time.Minute), Nodes: []models.Node{a}}, store)
	require.Len(t, fs, 1)
	assert.Equal(t, models.KindNodeDown, fs[0].Kind)
	assert.Equal(t, "rabbit@b", fs[0].Subject)

	assert.Empty(t, e.Evaluate(models.Snapshot{CapturedAt: t0.Add(2 * time.Minute), Nodes: []models.Node{a, b}}, store))
}

func TestUnavailableFinding(t *testing.T) {
	err := &broker.UnavailableError{Endpoint: broker.EndpointNodes, Err: errors.New("connection refused")}
	f := Unavailable(err, "localhost:15672")
	assert.Equal(t, models.KindAPIUnavailable, f.Kind)
	assert.Equal(t, models.SubjectSystem, f.Subject)
	assert.Equal(t, models.SeverityCritical, f.Severity)
	assert.Equal(t, broker.EndpointNodes, f.Details["endpoint"])
}

func TestFormatCount(t *testing.T) {
	cases := map[int64]string{0: "0", 999: "999", 1000: "1,000", 1500: "1,500", 1234567: "1,234,567", -4200: "-4,200"}
	for in, want := range cases {
		assert.Equal(t, want, formatCount(in))
	}
}
