package model

import "time"

// ================ Config ================
type ConversationConfig struct {
	// TTL of stored sessions; zero keeps them forever.
	TTL   time.Duration `envconfig:"CONVERSATION_TTL" default:"0s"`
	Store string        `envconfig:"SESSION_STORE" default:"memory"`
	NLU   struct {
		MaxTurns int `envconfig:"CONVERSATION_NLU_MAX_TURNS" default:"6"`
	}
}

type NLUModelConfig struct {
	Model         string        `envconfig:"NLU_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens     int           `envconfig:"NLU_MAX_TOKENS" default:"1024"`
	Temperature   float32       `envconfig:"NLU_TEMPERATURE" default:"0.1"`
	Timeout       time.Duration `envconfig:"NLU_TIMEOUT" default:"4s"`
	MaxRetries    int           `envconfig:"NLU_MAX_RETRIES" default:"1"`
	RetryBackoff  time.Duration `envconfig:"NLU_RETRY_BACKOFF" default:"250ms"`
	RatePerMinute int           `envconfig:"NLU_RATE_PER_MINUTE" default:"60"`
	// Required turns a missing model into a fatal configuration error instead of silent fallback.
	Required bool `envconfig:"NLU_REQUIRED" default:"false"`
}

// Retries caps the configured retry count at one.
func (c NLUModelConfig) Retries() int {
	switch {
	case c.MaxRetries < 0:
		return 0
	case c.MaxRetries > 1:
		return 1
	default:
		return c.MaxRetries
	}
}

type UnderwritingConfig struct {
	MinCreditScore      int     `envconfig:"UNDERWRITING_MIN_CREDIT_SCORE" default:"650"`
	MaxFOIR             float64 `envconfig:"UNDERWRITING_MAX_FOIR" default:"0.5"`
	SalaryMultiple      float64 `envconfig:"UNDERWRITING_SALARY_MULTIPLE" default:"20"`
	ConditionalMultiple float64 `envconfig:"UNDERWRITING_CONDITIONAL_MULTIPLE" default:"2"`
	MaxAutomatedAmount  int64   `envconfig:"UNDERWRITING_MAX_AUTOMATED_AMOUNT" default:"5000000"`
	DefaultRate         float64 `envconfig:"UNDERWRITING_DEFAULT_RATE" default:"10.5"`
	DefaultTenure       int     `envconfig:"UNDERWRITING_DEFAULT_TENURE" default:"60"`
	MinTenure           int     `envconfig:"UNDERWRITING_MIN_TENURE" default:"6"`
	MaxTenure           int     `envconfig:"UNDERWRITING_MAX_TENURE" default:"84"`
	ProcessingFeePct    float64 `envconfig:"UNDERWRITING_PROCESSING_FEE_PCT" default:"2"`
}

// FlowConfig holds the auto-advance delay, in seconds, the caller waits before
// running each stage's work.
type FlowConfig struct {
	VerificationDelay   int           `envconfig:"FLOW_VERIFICATION_DELAY" default:"2"`
	UnderwritingDelay   int           `envconfig:"FLOW_UNDERWRITING_DELAY" default:"2"`
	SanctionDelay       int           `envconfig:"FLOW_SANCTION_DELAY" default:"3"`
	ClosureDelay        int           `envconfig:"FLOW_CLOSURE_DELAY" default:"3"`
	VerificationTimeout time.Duration `envconfig:"VERIFICATION_TIMEOUT" default:"3s"`
}
