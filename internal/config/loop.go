package config

// LoopConfig configures the convergence loop and the CLI request.
type LoopConfig struct {
	// Round budget N
	MaxRounds int `yaml:"max_rounds"`

	// Pause after a non-converging round (Go duration string)
	Pause string `yaml:"pause"`

	// Request used when the CLI is given none
	DefaultRequest string `yaml:"default_request"`
}
