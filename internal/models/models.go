package models

import (
	"time"
)

type Overview struct {
	Version     string
	ClusterName string
	Reachable   bool
}

type Node struct {
	Name          string
	MemUsed       int64
	MemLimit      int64
	DiskFree      int64
	DiskFreeLimit int64
	Running       bool
}

// MemoryPercent is mem_used relative to the node's memory high watermark.
func (n Node) MemoryPercent() float64 {
	if n.MemLimit <= 0 {
		return 0
	}
	return float64(n.MemUsed) * 100 / float64(n.MemLimit)
}

// DiskUsedPercent reports how close free disk space is to the node's
// disk_free_limit alarm: 100 means free space has reached the limit.
// The management API does not expose total disk size.
func (n Node) DiskUsedPercent() float64 {
	if n.DiskFreeLimit <= 0 {
		return 0
	}
	if n.DiskFree <= 0 {
		return 100
	}
	pct := float64(n.DiskFreeLimit) * 100 / float64(n.DiskFree)
	if pct > 100 {
		return 100
	}
	return pct
}

// DiskFreePercent is the complement of DiskUsedPercent.
func (n Node) DiskFreePercent() float64 {
	return 100 - n.DiskUsedPercent()
}

const DefaultVHost = "/"

type QueueKey struct {
	VHost string
	Name  string
}

func (k QueueKey) String() string {
	if k.VHost == "" || k.VHost == DefaultVHost {
		return k.Name
	}
	return k.VHost + "/" + k.Name
}

type Queue struct {
	Name      string
	VHost     string
	Ready     int64
	Unacked   int64
	Consumers int64
	Published int64
	Consumed  int64
}

func (q Queue) Key() QueueKey {
	return QueueKey{VHost: q.VHost, Name: q.Name}
}

type Snapshot struct {
	Overview   Overview
	Nodes      []Node
	Queues     []Queue
	CapturedAt time.Time
}

type Sample struct {
	Published int64
	Consumed  int64
	At        time.Time
}
