package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/devopsd/internal/logging"
	"github.com/fyrsmithlabs/devopsd/internal/orchestrator"
)

// fakeDetector reports every occurrence of its tokens.
type fakeDetector struct {
	tokens []string
	err    error
}

func (f *fakeDetector) Scan(file, content string) ([]Finding, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Finding
	for i, line := range strings.Split(content, "\n") {
		for _, tok := range f.tokens {
			if strings.Contains(line, tok) {
				out = append(out, Finding{File: file, RuleID: "fake-token", Line: i + 1, Secret: tok})
			}
		}
	}
	return out, nil
}

type artifactResult struct {
	files map[string]string
}

func (r *artifactResult) ResultPhase() orchestrator.Phase { return orchestrator.PhaseCICD }
func (r *artifactResult) Summary() string                 { return "generated" }
func (r *artifactResult) Artifacts() map[string]string    { return r.files }

func TestRedact(t *testing.T) {
	content := "token: abc123\nother: abc12345\n"
	got := Redact(content, []Finding{
		{RuleID: "short", Secret: "abc123"},
		{RuleID: "long", Secret: "abc12345"},
		{RuleID: "empty", Secret: ""},
	})
	assert.Equal(t, "token: [REDACTED:short]\nother: [REDACTED:long]\n", got)
}

func TestGate_RedactsArtifacts(t *testing.T) {
	tl := logging.NewTestLogger()
	gate := NewGate(&fakeDetector{tokens: []string{"hunter2"}}, WithLogger(tl.Logger))

	res := &artifactResult{files: map[string]string{
		".gitlab-ci.yml": "script:\n  - deploy --password hunter2\n",
		"main.tf":        "provider \"aws\" {}\n",
	}}

	require.NoError(t, gate.Check(context.Background(), orchestrator.PhaseCICD, res))
	assert.Equal(t, "script:\n  - deploy --password [REDACTED:fake-token]\n", res.files[".gitlab-ci.yml"])
	assert.Equal(t, "provider \"aws\" {}\n", res.files["main.tf"])

	tl.AssertLogged(t, zapcore.WarnLevel, "secret detected in generated artifact")
	tl.AssertField(t, "secret detected in generated artifact", "file", ".gitlab-ci.yml")
	tl.AssertField(t, "redacted secrets from artifacts", "count", int64(1))
}

func TestGate_BlockMode(t *testing.T) {
	gate := NewGate(&fakeDetector{tokens: []string{"hunter2"}}, WithMode(ModeBlock))
	res := &artifactResult{files: map[string]string{"x": "hunter2"}}

	err := gate.Check(context.Background(), orchestrator.PhaseCICD, res)
	assert.ErrorIs(t, err, ErrSecretsFound)
	assert.Equal(t, "hunter2", res.files["x"])
}

func TestGate_IgnoresResultsWithoutArtifacts(t *testing.T) {
	gate := NewGate(&fakeDetector{err: errors.New("should not be called")})
	res := &orchestrator.PlaceholderResult{Phase: orchestrator.PhaseK8s, Message: "hunter2"}
	assert.NoError(t, gate.Check(context.Background(), orchestrator.PhaseK8s, res))
}

func TestGate_DetectorError(t *testing.T) {
	gate := NewGate(&fakeDetector{err: errors.New("boom")})
	res := &artifactResult{files: map[string]string{"x": "y"}}
	assert.ErrorContains(t, gate.Check(context.Background(), orchestrator.PhaseCICD, res), "boom")
}

// A blocked artifact turns the phase into a failed attempt in the workflow.
func TestGate_InWorkflow(t *testing.T) {
	agent := orchestratorAgent{files: map[string]string{"deploy.sh": "export TOKEN=hunter2"}}
	registry, err := orchestrator.NewRegistry(agent)
	require.NoError(t, err)

	orch := orchestrator.New(registry,
		orchestrator.WithGate(NewGate(&fakeDetector{tokens: []string{"hunter2"}}, WithMode(ModeBlock))),
		orchestrator.WithMaxPhaseAttempts(1))
	result, err := orch.ExecutePhase(context.Background(), orchestrator.PhaseCICD, "ci")
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StatusFailed, result.Status)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, ErrSecretsFound.Error())
}

type orchestratorAgent struct {
	files map[string]string
}

func (orchestratorAgent) Phase() orchestrator.Phase { return orchestrator.PhaseCICD }

func (a orchestratorAgent) Run(context.Context, orchestrator.AgentInput) (orchestrator.PhaseResult, error) {
	files := make(map[string]string, len(a.files))
	for k, v := range a.files {
		files[k] = v
	}
	return &artifactResult{files: files}, nil
}

func TestGitleaksDetector_NoSecrets(t *testing.T) {
	d, err := NewGitleaksDetector(nil)
	require.NoError(t, err)

	findings, err := d.Scan(".gitlab-ci.yml", "stages:\n  - build\n  - test\n")
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestGitleaksDetector_OpenAIKey(t *testing.T) {
	d, err := NewGitleaksDetector(nil)
	require.NoError(t, err)

	content := `const apiKey = "sk-proj-abc123def456ghi789jkl012mno345pqr678stu901xyz"`
	findings, err := d.Scan("app.js", content)
	require.NoError(t, err)
	require.NotEmpty(t, findings)
	assert.Equal(t, "app.js", findings[0].File)
	assert.NotContains(t, Redact(content, findings), "sk-proj-abc123def456ghi789jkl012mno345pqr678stu901xyz")
}

func TestLoadAllowlist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "allowlist.toml")
	require.NoError(t, os.WriteFile(path, []byte("[allowlist]\nregexes = [\n  '''DEMO_API_KEY''',\n  '''EXAMPLE_SECRET_.*'''\n]\n"), 0600))

	allow, err := LoadAllowlist(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"DEMO_API_KEY", "EXAMPLE_SECRET_.*"}, allow.Regexes)

	_, err = NewGitleaksDetector(allow)
	assert.NoError(t, err)
}

func TestLoadAllowlist_Missing(t *testing.T) {
	allow, err := LoadAllowlist(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Empty(t, allow.Regexes)

	allow, err = LoadAllowlist("")
	require.NoError(t, err)
	assert.Empty(t, allow.Regexes)
}

func TestLoadAllowlist_Invalid(t *testing.T) {
	dir := t.TempDir()

	badTOML := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(badTOML, []byte("[allowlist\n"), 0600))
	_, err := LoadAllowlist(badTOML)
	assert.ErrorIs(t, err, ErrInvalidAllowlist)

	badRegex := filepath.Join(dir, "regex.toml")
	require.NoError(t, os.WriteFile(badRegex, []byte("[allowlist]\nregexes = ['''[unclosed''']\n"), 0600))
	_, err = LoadAllowlist(badRegex)
	assert.ErrorIs(t, err, ErrInvalidAllowlist)
}
