package broker

import (
	"time"

	"github.com/nats-io/nats.go"

	"github.com/noah-isme/assessment-workflow-api/pkg/config"
)

// NewNATS returns a connected NATS client for notification fan-out.
func NewNATS(cfg config.NATSConfig) (*nats.Conn, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
