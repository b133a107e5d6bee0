package executor

// PolicyCode classifies why an execution was refused before generation.
type PolicyCode string

const (
	CodeAgentNotFound       PolicyCode = "agent_not_found"
	CodeSubscriptionInvalid PolicyCode = "subscription_invalid"
	CodeModelNotAllowed     PolicyCode = "model_not_allowed"
	CodeMessageLimit        PolicyCode = "message_limit"
)

// PolicyError is a refusal with a user-facing message. Boundary handlers
// map the code to an HTTP status.
type PolicyError struct {
	Code    PolicyCode
	Message string
}

func (e *PolicyError) Error() string { return e.Message }
