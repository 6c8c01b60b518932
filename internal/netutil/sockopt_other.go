//go:build !unix

package netutil

import "syscall"

// Broadcast reception needs no socket option outside unix.
func enableBroadcast(_, _ string, _ syscall.RawConn) error { return nil }
