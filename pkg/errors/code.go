package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 13000-13999: Submission & Judge errors
const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed ErrorCode = 10300
	InvalidConfig    ErrorCode = 10304

	// ========== Submission & Judge Errors (13000-13999) ==========

	// Submission (13000-13099)
	EmptySubmission      ErrorCode = 13000
	CodeTooLarge         ErrorCode = 13002
	LanguageNotSupported ErrorCode = 13003

	// Judge (13100-13199)
	JudgeSystemError           ErrorCode = 13101
	RemoteNonZeroExit          ErrorCode = 13103
	OutputMismatch             ErrorCode = 13107
	SubmissionDeadlineExceeded ErrorCode = 13108

	// Remote execution service (13300-13399), retryable
	RemoteRateLimited    ErrorCode = 13300
	RemoteTimeout        ErrorCode = 13301
	RemoteTransportError ErrorCode = 13302
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	CacheError: "Cache operation failed",

	ValidationFailed: "Validation failed",
	InvalidConfig:    "Invalid judge configuration",

	EmptySubmission:      "Submission has no test cases",
	CodeTooLarge:         "Code is too large",
	LanguageNotSupported: "Programming language not supported",

	JudgeSystemError:           "Judge system error",
	RemoteNonZeroExit:          "Program exited with a nonzero status",
	OutputMismatch:             "Output does not match expected output",
	SubmissionDeadlineExceeded: "Submission deadline exceeded",

	RemoteRateLimited:    "Execution service rate limited the request",
	RemoteTimeout:        "Execution service did not respond in time",
	RemoteTransportError: "Execution service request failed",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// Retryable reports whether a failure with this code may succeed on another attempt.
func (c ErrorCode) Retryable() bool {
	switch c {
	case RemoteRateLimited, RemoteTimeout, RemoteTransportError:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound:
		return 404
	case c == TooManyRequests, c == RemoteRateLimited:
		return 429
	case c == ServiceUnavailable:
		return 503
	case c == Timeout, c == SubmissionDeadlineExceeded, c == RemoteTimeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == EmptySubmission, c == CodeTooLarge, c == LanguageNotSupported:
		return 400
	case c == RemoteTransportError:
		return 502
	default:
		return 500
	}
}
