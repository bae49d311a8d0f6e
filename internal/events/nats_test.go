package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/devopsd/internal/config"
	"github.com/fyrsmithlabs/devopsd/internal/logging"
	"github.com/fyrsmithlabs/devopsd/internal/orchestrator"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func connect(t *testing.T, server *natsserver.Server) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "workflows.run-1.phase.completed", Subject("workflows", "run-1", orchestrator.EventPhaseCompleted))
	assert.Equal(t, "workflows.run-1.>", RunSubject("workflows", "run-1"))
}

func TestPublisher_Publish(t *testing.T) {
	server := startTestNATSServer(t)
	nc := connect(t, server)

	sub, err := nc.SubscribeSync("ops.run-9.>")
	require.NoError(t, err)

	pub := NewPublisher(nc, "ops", nil)
	require.NoError(t, pub.Publish(orchestrator.Event{
		Type:      orchestrator.EventPhaseCompleted,
		RunID:     "run-9",
		Phase:     orchestrator.PhaseCICD,
		Iteration: 1,
		Message:   "CI/CD pipeline for node-app generated successfully",
	}))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ops.run-9.phase.completed", msg.Subject)

	var got orchestrator.Event
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, orchestrator.PhaseCICD, got.Phase)
	assert.Equal(t, 1, got.Iteration)
}

func TestPublisher_DefaultPrefix(t *testing.T) {
	pub := NewPublisher(nil, "", nil)
	assert.Equal(t, DefaultSubjectPrefix, pub.prefix)
}

func TestPublisher_ObserveLogsFailures(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	nc.Close()

	tl := logging.NewTestLogger()
	pub := NewPublisher(nc, "ops", tl.Logger)

	pub.Observe(context.Background(), orchestrator.Event{Type: orchestrator.EventRunStarted, RunID: "r"})

	tl.AssertLogged(t, zapcore.WarnLevel, "failed to publish workflow event")
}

// Every lifecycle event of a run reaches subscribers in order.
func TestPublisher_WorkflowEvents(t *testing.T) {
	server := startTestNATSServer(t)
	nc := connect(t, server)

	sub, err := nc.SubscribeSync("workflows.run-42.>")
	require.NoError(t, err)

	registry, err := orchestrator.NewRegistry(stubAgent{})
	require.NoError(t, err)
	orch := orchestrator.New(registry, orchestrator.WithObserver(NewPublisher(nc, "", nil)))

	result, err := orch.ExecutePhase(context.Background(), orchestrator.PhaseK8s, "deploy to k8s",
		orchestrator.WithRunID("run-42"))
	require.NoError(t, err)
	require.Equal(t, orchestrator.StatusCompleted, result.Status)
	require.NoError(t, nc.Flush())

	var subjects []string
	for {
		msg, err := sub.NextMsg(time.Second)
		if err != nil {
			break
		}
		subjects = append(subjects, msg.Subject)
	}

	assert.Equal(t, []string{
		"workflows.run-42.run.started",
		"workflows.run-42.phase.started",
		"workflows.run-42.phase.completed",
		"workflows.run-42.run.finished",
	}, subjects)
}

func TestConnect_Embedded(t *testing.T) {
	conn, err := Connect(config.NATSConfig{Embedded: true})
	require.NoError(t, err)
	defer conn.Close()

	assert.True(t, conn.IsConnected())
	assert.NotEmpty(t, conn.ClientURL())
}

func TestConnect_External(t *testing.T) {
	server := startTestNATSServer(t)

	conn, err := Connect(config.NATSConfig{URL: server.ClientURL()})
	require.NoError(t, err)
	defer conn.Close()

	assert.True(t, conn.IsConnected())
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(config.NATSConfig{URL: "nats://127.0.0.1:1"})
	assert.Error(t, err)
}

type stubAgent struct{}

func (stubAgent) Phase() orchestrator.Phase { return orchestrator.PhaseK8s }

func (stubAgent) Run(context.Context, orchestrator.AgentInput) (orchestrator.PhaseResult, error) {
	return &orchestrator.PlaceholderResult{Phase: orchestrator.PhaseK8s, Message: "ok"}, nil
}
