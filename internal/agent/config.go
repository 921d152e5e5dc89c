package agent

import "time"

// Defaults applied by LoopConfig.withDefaults.
const (
	DefaultMaxIterations = 10
	DefaultTokenBudget   = 0 // 0 disables the budget.
	DefaultTimeout       = 5 * time.Minute
	DefaultLoopThreshold = 3
)

// LoopConfig bounds one reasoning run.
type LoopConfig struct {
	// MaxIterations caps the number of reason-act rounds.
	MaxIterations int

	// TokenBudget caps cumulative token spend across the run, input and
	// output combined. Zero disables the cap.
	TokenBudget int

	// Timeout bounds the run's wall-clock duration.
	Timeout time.Duration

	// LoopThreshold is how many identical tool calls, same name and
	// same arguments, the run tolerates before being declared stuck.
	LoopThreshold int
}

// withDefaults fills unset or negative fields with the package defaults.
// TokenBudget is left alone: zero is a meaningful value there.
func (c LoopConfig) withDefaults() LoopConfig {
	out := c
	if out.MaxIterations <= 0 {
		out.MaxIterations = DefaultMaxIterations
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if out.LoopThreshold <= 0 {
		out.LoopThreshold = DefaultLoopThreshold
	}
	return out
}
