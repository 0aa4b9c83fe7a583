package mfa

type Result string

const (
	ResultSuccess       Result = "success"
	ResultInvalidCode   Result = "invalid_code"
	ResultRateLimited   Result = "rate_limited"
	ResultNotConfigured Result = "not_configured"
	ResultNotEnabled    Result = "not_enabled"
)

// Verdict is the structured outcome of a verification path. Domain outcomes
// travel here; only infrastructure failures surface as errors.
type Verdict struct {
	Result            Result `json:"result"`
	Message           string `json:"message"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

func (v *Verdict) OK() bool {
	return v != nil && v.Result == ResultSuccess
}

func successVerdict() *Verdict {
	return &Verdict{Result: ResultSuccess, Message: "verification successful"}
}

func invalidCodeVerdict(remaining int) *Verdict {
	return &Verdict{
		Result:            ResultInvalidCode,
		Message:           "invalid code",
		RemainingAttempts: &remaining,
	}
}

func rateLimitedVerdict() *Verdict {
	return &Verdict{Result: ResultRateLimited, Message: "too many failed attempts, try again later"}
}

func notConfiguredVerdict() *Verdict {
	return &Verdict{Result: ResultNotConfigured, Message: "multi-factor authentication is not configured"}
}

func notEnabledVerdict() *Verdict {
	return &Verdict{Result: ResultNotEnabled, Message: "multi-factor authentication is not enabled"}
}
