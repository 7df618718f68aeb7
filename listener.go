package cdns

import (
	"fmt"
	"net"
)

// Listener is an interface for a DNS listener.
type Listener interface {
	Start() error
	fmt.Stringer
}

// ClientInfo carries information about the client making the request, used
// for access control and logging.
type ClientInfo struct {
	SourceIP net.IP

	// ID of the listener that received the request.
	Listener string
}
