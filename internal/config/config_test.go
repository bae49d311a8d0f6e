package config

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	cfg.Workflow.MaxIterations = -1
	cfg.Telemetry.SamplingRate = 2

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.http_port")
	assert.Contains(t, err.Error(), "workflow.max_iterations")
	assert.Contains(t, err.Error(), "telemetry.sampling_rate")
}

func TestValidate_LLMRequiresCredentials(t *testing.T) {
	cfg := Default()
	cfg.LLM.Enabled = true
	assert.ErrorContains(t, cfg.Validate(), "llm.api_key")

	// an OpenAI-compatible endpoint still needs a token
	cfg.LLM.BaseURL = "http://localhost:8000/v1"
	assert.ErrorContains(t, cfg.Validate(), "llm.api_key")

	cfg.LLM.APIKey = "sk-live"
	assert.NoError(t, cfg.Validate())
}

func TestSecret_NeverPrints(t *testing.T) {
	s := Secret("sk-very-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "sk-very-secret")

	data, err := json.Marshal(struct{ Key Secret }{s})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-very-secret")

	assert.Equal(t, "", Secret("").String())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, "1m30s", d.Duration().String())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
