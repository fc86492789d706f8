package chat

import "errors"

// FallbackContent is committed as the assistant turn whenever a response
// could not be obtained or assembled.
const FallbackContent = "Error getting response from the model."

var (
	// ErrAuth marks a missing or rejected credential. It is never retried.
	ErrAuth = errors.New("authentication failed")

	// ErrTransport marks a network or service failure during one exchange.
	ErrTransport = errors.New("transport failure")

	// ErrShape marks a successful response that lacks the expected fields.
	ErrShape = errors.New("unexpected response shape")

	ErrNoTurns      = errors.New("at least one turn is required")
	ErrEmptyMessage = errors.New("message is empty")
	ErrSessionBusy  = errors.New("session is busy with another request")
)

// Kind names the failure class of err for observability and API payloads.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrShape):
		return "shape"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}
