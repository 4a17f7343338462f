package broker

// Wire types for the RabbitMQ management API. Only the fields the rules
// consume are decoded.

type OverviewInfo struct {
	RabbitMQVersion   string `json:"rabbitmq_version"`
	ManagementVersion string `json:"management_version"`
	Version           string `json:"version"`
	ClusterName       string `json:"cluster_name"`
}

type NodeInfo struct {
	Name          string `json:"name"`
	MemUsed       int64  `json:"mem_used"`
	MemLimit      int64  `json:"mem_limit"`
	DiskFree      int64  `json:"disk_free"`
	DiskFreeLimit int64  `json:"disk_free_limit"`
	Running       bool   `json:"running"`
}

type QueueInfo struct {
	Name                   string       `json:"name"`
	VHost                  string       `json:"vhost"`
	Messages               int64        `json:"messages"`
	MessagesUnacknowledged int64        `json:"messages_unacknowledged"`
	Consumers              int64        `json:"consumers"`
	MessageStats           MessageStats `json:"message_stats"`
}

// MessageStats holds cumulative counters. The broker omits counters that have
// never moved, hence the pointers.
type MessageStats struct {
	Publish    *int64 `json:"publish"`
	DeliverGet *int64 `json:"deliver_get"`
	Ack        *int64 `json:"ack"`
}
