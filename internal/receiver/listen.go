package receiver

import (
	"context"
	"fmt"
	"net"

	"github.com/mattjoyce/pointzerver/internal/netutil"
)

// Listen binds the command socket on all interfaces at port with broadcast
// reception enabled. A failure here is the only fatal receiver error.
func Listen(ctx context.Context, port int) (*net.UDPConn, error) {
	return ListenAddr(ctx, fmt.Sprintf("0.0.0.0:%d", port))
}

// ListenAddr is Listen for an explicit address; tests bind 127.0.0.1:0.
func ListenAddr(ctx context.Context, addr string) (*net.UDPConn, error) {
	conn, err := netutil.ListenBroadcastUDP(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("command listener: %w", err)
	}
	return conn, nil
}
