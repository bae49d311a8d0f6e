package secrets

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/devopsd/internal/logging"
	"github.com/fyrsmithlabs/devopsd/internal/orchestrator"
)

// Mode selects what the gate does with findings.
type Mode int

const (
	// ModeRedact rewrites artifacts and lets the phase complete.
	ModeRedact Mode = iota
	// ModeBlock fails the phase attempt.
	ModeBlock
)

// Gate is an orchestrator.Gate that scans ArtifactProducer results.
type Gate struct {
	detector Detector
	mode     Mode
	logger   *logging.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithMode sets the gate mode.
func WithMode(m Mode) GateOption {
	return func(g *Gate) { g.mode = m }
}

// WithLogger sets the gate logger.
func WithLogger(l *logging.Logger) GateOption {
	return func(g *Gate) { g.logger = l }
}

// NewGate creates a Gate.
func NewGate(detector Detector, opts ...GateOption) *Gate {
	g := &Gate{detector: detector, mode: ModeRedact, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) Name() string { return "secrets" }

// Check implements orchestrator.Gate. Results without artifacts pass.
func (g *Gate) Check(ctx context.Context, phase orchestrator.Phase, result orchestrator.PhaseResult) error {
	producer, ok := result.(orchestrator.ArtifactProducer)
	if !ok {
		return nil
	}
	artifacts := producer.Artifacts()

	names := make([]string, 0, len(artifacts))
	for name := range artifacts {
		names = append(names, name)
	}
	sort.Strings(names)

	var total int
	for _, name := range names {
		findings, err := g.detector.Scan(name, artifacts[name])
		if err != nil {
			return fmt.Errorf("scanning %s: %w", name, err)
		}
		if len(findings) == 0 {
			continue
		}
		total += len(findings)

		for _, f := range findings {
			g.logger.Warn(ctx, "secret detected in generated artifact",
				zap.String("phase", string(phase)),
				zap.String("file", f.File),
				zap.String("rule_id", f.RuleID),
				zap.Int("line", f.Line))
		}

		if g.mode == ModeBlock {
			return fmt.Errorf("%w: %d in %s", ErrSecretsFound, len(findings), name)
		}
		artifacts[name] = Redact(artifacts[name], findings)
	}

	if total > 0 {
		g.logger.Info(ctx, "redacted secrets from artifacts",
			zap.String("phase", string(phase)),
			zap.Int("count", total))
	}
	return nil
}
