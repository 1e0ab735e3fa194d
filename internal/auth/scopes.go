package auth

// OAuth scopes recognised by the baseline service.
const (
	ScopeBaselinesWrite = "baselines:write"
	ScopeBaselinesRead  = "baselines:read"
)
