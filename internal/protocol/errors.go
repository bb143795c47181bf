package protocol

import "errors"

var (
	// ErrAuthRequired indicates the request carried no credential.
	ErrAuthRequired = errors.New("authentication required")
	// ErrInvalidCredential indicates the credential did not match.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrUnreachable indicates connection refused or no route to the host.
	ErrUnreachable = errors.New("host unreachable")
	// ErrTimeout indicates no reply arrived within the deadline.
	ErrTimeout = errors.New("timed out")
	// ErrTransportDisconnected indicates a send on a closed serial link.
	ErrTransportDisconnected = errors.New("transport disconnected")
	// ErrTransportBusy indicates a send while another is in flight.
	ErrTransportBusy = errors.New("transport busy")
	// ErrMalformedResponse indicates a reply that could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrMalformedCommand indicates an inbound serial line that could not be decoded.
	ErrMalformedCommand = errors.New("malformed command")
	// ErrExecutorFailure indicates the host failed to carry out the action.
	ErrExecutorFailure = errors.New("executor failure")
	// ErrUnsupportedAction indicates an unknown action or route.
	ErrUnsupportedAction = errors.New("unsupported action")
	// ErrScanExhausted indicates no host was found after every scan policy.
	ErrScanExhausted = errors.New("no host found")
)

// Describe returns the user-facing message for an error kind.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthRequired):
		return "no key configured: the host requires a key"
	case errors.Is(err, ErrInvalidCredential):
		return "wrong key: the host rejected the credential"
	case errors.Is(err, ErrUnreachable):
		return "cannot reach host"
	case errors.Is(err, ErrTimeout):
		return "host did not answer in time"
	case errors.Is(err, ErrTransportDisconnected):
		return "not connected to the paired device"
	case errors.Is(err, ErrTransportBusy):
		return "another command is still in progress"
	case errors.Is(err, ErrMalformedResponse):
		return "host sent an unreadable reply"
	case errors.Is(err, ErrMalformedCommand):
		return "command could not be understood"
	case errors.Is(err, ErrExecutorFailure):
		return "host rejected the command"
	case errors.Is(err, ErrUnsupportedAction):
		return "host does not support this action"
	case errors.Is(err, ErrScanExhausted):
		return "no host found on the local network"
	default:
		return err.Error()
	}
}
