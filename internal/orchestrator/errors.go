package orchestrator

import "errors"

var (
	// ErrNotInitialized is returned when a control call is attempted for a
	// user that has no bound media server yet.
	ErrNotInitialized = errors.New("media server client not initialized")

	// ErrNoServerAvailable is returned when no active server can take the
	// session. It may wrap ErrServerAtCapacity or ErrServerOverloaded.
	ErrNoServerAvailable = errors.New("no media server available")

	ErrServerAtCapacity = errors.New("media server at capacity")
	ErrServerOverloaded = errors.New("media server overloaded")

	// ErrProvisioningFailed is returned when the application namespace could
	// not be found or created.
	ErrProvisioningFailed = errors.New("application provisioning failed")

	ErrTransportFailure = errors.New("media server transport failure")

	// ErrDestinationConfig marks a single destination that could not be
	// configured. It never fails a session start.
	ErrDestinationConfig = errors.New("destination configuration failed")

	// ErrAccountingDrift marks a counter update that did not persist.
	ErrAccountingDrift = errors.New("active session accounting drift")

	// ErrInvalidRequest marks caller input that cannot be used, such as an
	// identifier that would not survive as a control API path segment.
	ErrInvalidRequest = errors.New("invalid request")

	ErrSessionAlreadyActive = errors.New("session already active")
	ErrInvalidTransition    = errors.New("invalid session state transition")
	ErrRegistryUnavailable  = errors.New("session registry unavailable")
)

// ErrorCode maps err to a stable snake_case code used in responses and
// metric labels.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrServerAtCapacity):
		return "server_at_capacity"
	case errors.Is(err, ErrServerOverloaded):
		return "server_overloaded"
	case errors.Is(err, ErrNoServerAvailable):
		return "no_server_available"
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, ErrProvisioningFailed):
		return "provisioning_failed"
	case errors.Is(err, ErrTransportFailure):
		return "transport_failure"
	case errors.Is(err, ErrDestinationConfig):
		return "destination_config"
	case errors.Is(err, ErrAccountingDrift):
		return "accounting_drift"
	case errors.Is(err, ErrSessionAlreadyActive):
		return "session_already_active"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrRegistryUnavailable):
		return "registry_unavailable"
	default:
		return "internal"
	}
}
