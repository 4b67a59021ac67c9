// Package transport opens the client side of the relay's two TCP
// connections.  What travels over them is the client package's
// business.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound connections.
type Dialer interface {
	Dial(ctx context.Context, network, address string) (net.Conn, error)
}
