package ingest

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is used when no bind is configured.
const DefaultPort = 8080

// Bind selects the listening address. An empty Host binds every interface.
type Bind struct {
	Host string
	Port string
}

// PortBind listens on port on every interface.
func PortBind(port uint16) Bind {
	return Bind{Port: strconv.FormatUint(uint64(port), 10)}
}

// HostPortBind listens on an explicit address. Both parts are passed as
// strings, the way the embedding host supplies them.
func HostPortBind(host, port string) Bind {
	return Bind{Host: strings.TrimSpace(host), Port: strings.TrimSpace(port)}
}

func (b Bind) Address() string {
	return net.JoinHostPort(b.Host, b.Port)
}

func (b Bind) String() string { return b.Address() }

func (b Bind) validate() error {
	if b.Port == "" {
		return fmt.Errorf("port is required")
	}
	if _, err := strconv.ParseUint(b.Port, 10, 16); err != nil {
		return fmt.Errorf("invalid port %q", b.Port)
	}
	return nil
}

// BindError reports that the listening socket could not be acquired.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("ingest: bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }
