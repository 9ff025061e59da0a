package worker

import (
	"fmt"
	"os"
	"strings"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/protocol"
	"github.com/denisbrodbeck/machineid"
)

// NodeID returns a stable identifier of the host, derived from its machine
// id. The hostname is used when the machine id cannot be read.
func NodeID() string {
	if id, err := machineid.ProtectedID("ophidia-worker"); err == nil {
		return id[:12]
	}
	if hostname, err := os.Hostname(); err == nil {
		return strings.ReplaceAll(hostname, ".", "-")
	}
	return "unknown"
}

// CancelQueueName returns the name of the queue through which one worker
// instance receives cancellations. Several instances may share a host, so
// the listen port is part of the name.
func CancelQueueName(exchange, node string, port int) string {
	return fmt.Sprintf("%s.%s.%d", exchange, node, port)
}

// Identity returns the key under which the worker is known to the database
// manager.
func (c *WorkerConfig) Identity(node string) protocol.WorkerIdentity {
	identity := protocol.WorkerIdentity{
		Host: c.ListenHost,
		Port: c.ListenPort,
	}
	if c.Cancellation.Enabled {
		identity.DeleteQueue = CancelQueueName(c.DeleteQueue, node, c.ListenPort)
	}
	return identity
}
