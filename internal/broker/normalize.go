package broker

import (
	"time"

	"rabbitwatch/internal/models"
)

func NormalizeSnapshot(ov OverviewInfo, nodes []NodeInfo, queues []QueueInfo, at time.Time) models.Snapshot {
	snap := models.Snapshot{
		Overview: models.Overview{
			Version:     overviewVersion(ov),
			ClusterName: ov.ClusterName,
			Reachable:   true,
		},
		Nodes:      make([]models.Node, 0, len(nodes)),
		Queues:     make([]models.Queue, 0, len(queues)),
		CapturedAt: at,
	}
	for _, n := range nodes {
		snap.Nodes = append(snap.Nodes, models.Node{
			Name:          n.Name,
			MemUsed:       n.MemUsed,
			MemLimit:      n.MemLimit,
			DiskFree:      n.DiskFree,
			DiskFreeLimit: n.DiskFreeLimit,
			Running:       n.Running,
		})
	}
	for _, q := range queues {
		snap.Queues = append(snap.Queues, NormalizeQueue(q))
	}
	return snap
}

func NormalizeQueue(q QueueInfo) models.Queue {
	vhost := q.VHost
	if vhost == "" {
		vhost = models.DefaultVHost
	}
	consumed := deref(q.MessageStats.DeliverGet)
	if q.MessageStats.DeliverGet == nil {
		consumed = deref(q.MessageStats.Ack)
	}
	return models.Queue{
		Name:      q.Name,
		VHost:     vhost,
		Ready:     q.Messages,
		Unacked:   q.MessagesUnacknowledged,
		Consumers: q.Consumers,
		Published: deref(q.MessageStats.Publish),
		Consumed:  consumed,
	}
}

func overviewVersion(ov OverviewInfo) string {
	switch {
	case ov.RabbitMQVersion != "":
		return ov.RabbitMQVersion
	case ov.ManagementVersion != "":
		return ov.ManagementVersion
	default:
		return ov.Version
	}
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
