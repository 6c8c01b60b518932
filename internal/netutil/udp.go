// Package netutil holds the socket setup shared by the command receiver and
// the discovery beacon.
package netutil

import (
	"context"
	"fmt"
	"net"
)

// ListenBroadcastUDP binds an IPv4 datagram socket on addr with SO_BROADCAST
// set, so it can both receive and send broadcast datagrams.
func ListenBroadcastUDP(ctx context.Context, addr string) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: enableBroadcast}
	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("bind udp %s: %w", addr, err)
	}
	return pc.(*net.UDPConn), nil
}

// Port returns the local port of a bound socket.
func Port(conn net.PacketConn) int {
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.Port
	}
	return 0
}

// OutboundIP returns the address the host would use to reach the LAN. No
// packet is sent; connecting a UDP socket only selects a route.
func OutboundIP() (net.IP, error) {
	conn, err := net.Dial("udp4", "192.0.2.1:9")
	if err != nil {
		return nil, fmt.Errorf("select outbound address: %w", err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}
