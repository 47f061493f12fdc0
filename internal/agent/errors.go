package agent

// ErrorCode classifies why a step did not do what the model asked. Codes
// travel in step records and log fields, so they stay stable strings.
type ErrorCode string

const (
	// -- Planning errors --
	ErrCodeParseFailure ErrorCode = "PARSE_FAILURE"
	ErrCodePlanning     ErrorCode = "PLANNING_FAILURE"

	// -- Execution errors --
	ErrCodeUnknownAction ErrorCode = "UNKNOWN_ACTION_TYPE"
	ErrCodeUnknownApp    ErrorCode = "UNKNOWN_APP"
	ErrCodeDeviceCommand ErrorCode = "DEVICE_COMMAND_FAILURE"

	// -- Human-in-the-loop outcomes. Not failures; the loop feeds them
	// back to the model as observations. --
	ErrCodeUserDeclined    ErrorCode = "USER_DECLINED"
	ErrCodeSensitiveScreen ErrorCode = "SENSITIVE_SCREEN"
	ErrCodeTakeoverFailed  ErrorCode = "TAKEOVER_FAILURE"
)
