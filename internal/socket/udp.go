package socket

import (
	"context"

	"github.com/couriermq/courier/internal/config"
	errspkg "github.com/couriermq/courier/internal/errors"
	"github.com/couriermq/courier/internal/logging"
)

// UDP support is a documented capability gap. The surface exists so callers
// get a stable not-implemented error instead of a missing symbol.

// UDPSocket is a placeholder for a datagram transport endpoint.
type UDPSocket struct{}

// Write fails unconditionally: unicast datagram writes are not implemented.
func (u *UDPSocket) Write(p []byte) (bool, error) {
	return false, errspkg.New(errspkg.KindNotImplemented, "udp.Write", "udp unicast is not implemented")
}

// NewUDPServer fails unconditionally: the datagram server is not implemented.
func NewUDPServer(ctx context.Context, cfg config.Config, logger logging.ServiceLogger) (*Server, error) {
	return nil, errspkg.New(errspkg.KindNotImplemented, "socket.NewUDPServer", "udp server is not implemented")
}
