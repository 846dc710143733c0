package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_LLM(t *testing.T) {
	t.Run("GEMINI_API_KEY sets key for gemini provider", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gem-key")
		t.Setenv("GOOGLE_API_KEY", "")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "gem-key", cfg.LLM.APIKey)
		assert.Equal(t, "gemini", cfg.LLM.Provider)
	})

	t.Run("GEMINI_API_KEY wins over GOOGLE_API_KEY", func(t *testing.T) {
		t.Setenv("GOOGLE_API_KEY", "google-key")
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "gem-key", cfg.LLM.APIKey)
	})

	t.Run("GOOGLE_API_KEY is used alone", func(t *testing.T) {
		t.Setenv("GOOGLE_API_KEY", "google-key")
		t.Setenv("GEMINI_API_KEY", "")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "google-key", cfg.LLM.APIKey)
	})

	t.Run("OPENAI_API_KEY ignored for gemini provider", func(t *testing.T) {
		t.Setenv("GOOGLE_API_KEY", "")
		t.Setenv("GEMINI_API_KEY", "")
		t.Setenv("OPENAI_API_KEY", "oa-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Empty(t, cfg.LLM.APIKey)
	})

	t.Run("SetProvider switches key and default model", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gem-key")
		t.Setenv("OPENAI_API_KEY", "oa-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		cfg.SetProvider("openai")

		assert.Equal(t, "openai", cfg.LLM.Provider)
		assert.Equal(t, "oa-key", cfg.LLM.APIKey)
		assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	})

	t.Run("SetProvider keeps a custom model", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "oa-key")

		cfg := DefaultConfig()
		cfg.LLM.Model = "my-model"
		cfg.SetProvider("openai")

		assert.Equal(t, "my-model", cfg.LLM.Model)
	})
}

func TestEnvOverrides_Execution(t *testing.T) {
	t.Setenv("MENDER_PYTHON", "/opt/python/bin/python3.12")
	t.Setenv("MENDER_SANDBOX", "docker")
	t.Setenv("MENDER_MODEL", "gemini-2.0-flash")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "/opt/python/bin/python3.12", cfg.Execution.Python)
	assert.Equal(t, "docker", cfg.Execution.Sandbox)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
}
