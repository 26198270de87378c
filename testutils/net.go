package testutils

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

var waitDur = 5 * time.Second

// WaitSuccessfulDial waits for a dial attempt to succeed.
func WaitSuccessfulDial(address string) error {
	ctx, cancel := context.WithTimeout(context.Background(), waitDur)
	defer cancel()
	lastErr := errors.New("timed out dialing")
	var dialer net.Dialer
	for {
		select {
		case <-ctx.Done():
			return lastErr
		default:
		}
		var conn net.Conn
		conn, lastErr = dialer.DialContext(ctx, "tcp", address)
		if lastErr == nil {
			return conn.Close()
		}
		time.Sleep(10 * time.Millisecond)
	}
}
