package scoped

import (
	"net"
	"testing"
	"time"
)

// A status publisher that cannot bind its port must still drain the
// update channel, so configuration calls never block on it.
func TestClientUpdaterDrainsWithoutSocket(t *testing.T) {
	ln, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	messages := make(chan ClientUpdate, 10)
	go RunClientUpdater(messages, port)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			messages <- ClientUpdate{"STATUS", i}
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("status updates blocked with no publisher bound")
	}
}
