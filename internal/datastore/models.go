package datastore

import (
	"context"
	"errors"
)

// ServerStatus is the provisioning state of a media server row.
type ServerStatus string

const (
	ServerActive   ServerStatus = "active"
	ServerDisabled ServerStatus = "disabled"
)

// MediaServer is one row of the server pool. Rows are owned by the
// provisioning system; this module only reads them and adjusts Active.
type MediaServer struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Host        string       `json:"host"`
	APIPort     int          `json:"api_port"`
	APIUser     string       `json:"-"`
	APIPassword string       `json:"-"`
	Application string       `json:"application"`
	Limit       int          `json:"limit"`
	Active      int          `json:"active"`
	CPULoad     float64      `json:"cpu_load"`
	Status      ServerStatus `json:"status"`
}

var (
	// ErrServerNotFound is returned when no row matches the requested server id.
	ErrServerNotFound = errors.New("media server not found")

	// ErrCapacityExceeded is returned by IncrementActive when the row exists
	// but its active count already reached the limit.
	ErrCapacityExceeded = errors.New("media server capacity exceeded")
)

// Gateway is the data-store boundary used by the orchestrator.
//
// IncrementActive and DecrementActive must be single atomic operations in
// the backing store; callers never read-modify-write the counter.
type Gateway interface {
	// ActiveServers returns servers with status active ordered by active
	// session count ascending, then CPU load ascending.
	ActiveServers(ctx context.Context) ([]MediaServer, error)

	// ServerByID returns the row regardless of status.
	ServerByID(ctx context.Context, id int64) (MediaServer, error)

	// UserServerBinding returns the server explicitly allocated to userID.
	UserServerBinding(ctx context.Context, userID string) (serverID int64, ok bool, err error)

	// IncrementActive adds one to the server's active count only while it is
	// below the limit and returns the new count.
	IncrementActive(ctx context.Context, id int64) (int, error)

	// DecrementActive subtracts one from the server's active count, floored
	// at zero, and returns the new count.
	DecrementActive(ctx context.Context, id int64) (int, error)
}
