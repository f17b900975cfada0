package middleware

// Error codes and messages shared by the middleware responses. The
// wire shape matches the handler package's error envelope so clients
// see one format regardless of which layer rejected the request.
const (
	ErrorCodeInternal          = "INTERNAL_ERROR"
	ErrorCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrorCodeRequestTimeout    = "REQUEST_TIMEOUT"

	ErrorMessageInternal          = "An internal error occurred"
	ErrorMessageRateLimitExceeded = "Too many requests"
	ErrorMessageRequestTimeout    = "Request timeout"
)
