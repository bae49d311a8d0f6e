// Package events publishes workflow lifecycle events to NATS.
//
// Events are JSON-encoded orchestrator.Event values published to
//
//	{prefix}.{run_id}.{event_type}
//
// for example workflows.5f0c….phase.completed. Subscribe to
// {prefix}.{run_id}.> to follow a single run.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/devopsd/internal/config"
	"github.com/fyrsmithlabs/devopsd/internal/logging"
	"github.com/fyrsmithlabs/devopsd/internal/orchestrator"
)

// DefaultSubjectPrefix is used when none is configured.
const DefaultSubjectPrefix = "workflows"

// Subject returns the subject an event is published on.
func Subject(prefix, runID string, t orchestrator.EventType) string {
	return fmt.Sprintf("%s.%s.%s", prefix, runID, t)
}

// RunSubject returns a wildcard matching every event of a run.
func RunSubject(prefix, runID string) string {
	return fmt.Sprintf("%s.%s.>", prefix, runID)
}

// Publisher is an orchestrator.Observer that forwards events to NATS.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *logging.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(nc *nats.Conn, prefix string, logger *logging.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{nc: nc, prefix: prefix, logger: logger}
}

// Publish sends one event.
func (p *Publisher) Publish(event orchestrator.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(Subject(p.prefix, event.RunID, event.Type), data); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}

// Observe implements orchestrator.Observer. Publish failures are logged and
// never interrupt the run.
func (p *Publisher) Observe(ctx context.Context, event orchestrator.Event) {
	if err := p.Publish(event); err != nil {
		p.logger.Warn(ctx, "failed to publish workflow event",
			zap.String("event", string(event.Type)),
			zap.Error(err))
	}
}

// Conn bundles a client connection with the embedded server backing it, if any.
type Conn struct {
	*nats.Conn
	server *natsserver.Server
}

// Close flushes pending messages and stops the embedded server.
func (c *Conn) Close() {
	if c.Conn != nil {
		_ = c.Conn.Flush()
		c.Conn.Close()
	}
	if c.server != nil {
		c.server.Shutdown()
		c.server.WaitForShutdown()
	}
}

// ClientURL is the URL clients should connect to.
func (c *Conn) ClientURL() string {
	if c.server != nil {
		return c.server.ClientURL()
	}
	return c.Conn.ConnectedUrl()
}

// StartEmbedded runs an in-process NATS server on a random local port.
func StartEmbedded() (*natsserver.Server, error) {
	server, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedded nats server: %w", err)
	}

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		server.Shutdown()
		return nil, fmt.Errorf("embedded nats server not ready")
	}
	return server, nil
}

// Connect dials cfg.URL, or starts an embedded server first when
// cfg.Embedded is set.
func Connect(cfg config.NATSConfig) (*Conn, error) {
	conn := &Conn{}
	url := cfg.URL
	if cfg.Embedded {
		server, err := StartEmbedded()
		if err != nil {
			return nil, err
		}
		conn.server = server
		url = server.ClientURL()
	}

	nc, err := nats.Connect(url, nats.Name("devopsd"))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	conn.Conn = nc
	return conn, nil
}
