package analysisdto

// DomainError is the transport-facing error shape. Code is a stable machine
// string; Retryable hints whether a later identical request may succeed.
type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "analysis service error"
}

// Stable error codes used by the HTTP layer.
const (
	CodeEngineUnavailable = "ENGINE_UNAVAILABLE"
	CodeMalformedInput    = "MALFORMED_INPUT"
	CodeJobNotFound       = "JOB_NOT_FOUND"
	CodeResultNotFound    = "RESULT_NOT_FOUND"
	CodeQueueClosed       = "QUEUE_CLOSED"
	CodeInternal          = "INTERNAL"
)
