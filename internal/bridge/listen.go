package bridge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/mdlayher/vsock"
)

// Listen opens a listener for addr, one of unix://PATH, tcp://HOST:PORT or
// vsock://PORT. A stale unix socket file at PATH is removed first.
func Listen(addr string) (net.Listener, error) {
	scheme, rest, ok := strings.Cut(addr, "://")
	if !ok || rest == "" {
		return nil, fmt.Errorf("invalid bridge address %q: want unix://, tcp:// or vsock://", addr)
	}

	switch scheme {
	case "unix":
		if err := os.Remove(rest); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
		return net.Listen("unix", rest)
	case "tcp":
		return net.Listen("tcp", rest)
	case "vsock":
		port, err := strconv.ParseUint(rest, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vsock port %q: %w", rest, err)
		}
		l, err := vsock.Listen(uint32(port), nil)
		if err != nil {
			return nil, fmt.Errorf("vsock listen on port %d: %w", port, err)
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unsupported bridge scheme %q", scheme)
	}
}

// dial connects to addr, one of unix://PATH, tcp://HOST:PORT or
// vsock://CID:PORT.
func dial(ctx context.Context, addr string) (net.Conn, error) {
	scheme, rest, ok := strings.Cut(addr, "://")
	if !ok || rest == "" {
		return nil, fmt.Errorf("invalid bridge address %q: want unix://, tcp:// or vsock://", addr)
	}

	var d net.Dialer
	switch scheme {
	case "unix", "tcp":
		return d.DialContext(ctx, scheme, rest)
	case "vsock":
		cidText, portText, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("invalid vsock address %q: want CID:PORT", rest)
		}
		cid, err := strconv.ParseUint(cidText, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vsock context id %q: %w", cidText, err)
		}
		port, err := strconv.ParseUint(portText, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vsock port %q: %w", portText, err)
		}
		return vsock.Dial(uint32(cid), uint32(port), nil)
	default:
		return nil, fmt.Errorf("unsupported bridge scheme %q", scheme)
	}
}
