//go:build !linux

package ingest

import "net"

// SO_REUSEPORT is only wired up on Linux; elsewhere the flag is ignored.
func listenConfig(reusePort bool) net.ListenConfig {
	return net.ListenConfig{}
}
