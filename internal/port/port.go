// Package port picks a free TCP port by bind-probing.
package port

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

const maxPort = 65535

// ErrExhausted is returned when no port from preferred through 65535 could be bound.
var ErrExhausted = errors.New("no free port")

// Allocate returns the first port >= preferred that can be bound on host.
// The probe listener is closed before returning, so another process may
// still take the port before the caller binds it.
func Allocate(host string, preferred int) (int, error) {
	if preferred <= 0 || preferred > maxPort {
		return 0, fmt.Errorf("invalid preferred port %d", preferred)
	}
	for p := preferred; p <= maxPort; p++ {
		if Free(host, p) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%s from %d: %w", host, preferred, ErrExhausted)
}

// Free reports whether host:port can currently be bound.
func Free(host string, port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
