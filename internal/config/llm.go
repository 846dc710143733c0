package config

// LLMConfig configures the decomposition and generation collaborators.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // gemini, openai
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"` // openai-compatible endpoints only
	Temperature float32 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`

	// MinInterval spaces consecutive collaborator calls
	MinInterval string `yaml:"min_interval"`
}

// DefaultModel returns the model used when a provider is selected without one.
func DefaultModel(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o-mini"
	default:
		return "gemini-1.5-flash"
	}
}
