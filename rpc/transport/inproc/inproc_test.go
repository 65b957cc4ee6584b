package inproc

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dTX/rpc/common"
)

func startServer(t *testing.T, endpoint string, handler func(uint64, []byte) []byte) {
	t.Helper()
	server := NewServerTransport()
	server.RegisterHandler(handler)
	conf := common.ServerConfig{}
	conf.Transport.Endpoint = endpoint
	go server.Listen(conf)
	t.Cleanup(func() { server.Close() })

	deadline := time.Now().Add(time.Second)
	for !Listening(endpoint) {
		if time.Now().After(deadline) {
			t.Fatalf("server %s did not start", endpoint)
		}
		time.Sleep(time.Millisecond)
	}
}

func connect(t *testing.T, endpoint string, fault Fault) *clientTransport {
	t.Helper()
	c := NewClientTransport(fault)
	conf := common.ClientConfig{}
	conf.Transport.Endpoints = []string{endpoint}
	if err := c.Connect(conf); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c.(*clientTransport)
}

func TestSend(t *testing.T) {
	startServer(t, t.Name(), func(shard uint64, req []byte) []byte { return append(req, byte(shard)) })
	c := connect(t, t.Name(), nil)

	resp, err := c.Send(context.Background(), 9, []byte{1, 2})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !bytes.Equal(resp, []byte{1, 2, 9}) {
		t.Errorf("resp = %v", resp)
	}
}

func TestConnectWithoutServer(t *testing.T) {
	c := NewClientTransport(nil)
	conf := common.ClientConfig{}
	conf.Transport.Endpoints = []string{"nowhere"}
	if err := c.Connect(conf); !errors.Is(err, ErrNoServer) {
		t.Errorf("expected ErrNoServer, got %v", err)
	}
}

func TestDuplicateListen(t *testing.T) {
	startServer(t, t.Name(), func(uint64, []byte) []byte { return nil })
	s := NewServerTransport()
	s.RegisterHandler(func(uint64, []byte) []byte { return nil })
	conf := common.ServerConfig{}
	conf.Transport.Endpoint = t.Name()
	if err := s.Listen(conf); !errors.Is(err, ErrAddressInUse) {
		t.Errorf("expected ErrAddressInUse, got %v", err)
	}
}

func TestFaults(t *testing.T) {
	var handled atomic.Int32
	startServer(t, t.Name(), func(_ uint64, req []byte) []byte {
		handled.Add(1)
		return req
	})

	late := make(chan []byte, 1)
	c := connect(t, t.Name(), func(n uint64, _ uint64, _ []byte) FaultAction {
		switch n {
		case 1:
			return FaultAction{DropRequest: true}
		case 2:
			return FaultAction{DropResponse: true}
		case 3:
			return FaultAction{Delay: 50 * time.Millisecond}
		}
		return FaultAction{}
	})
	c.OnLateResponse(func(_ uint64, resp []byte) { late <- resp })

	send := func(b byte) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := c.Send(ctx, 0, []byte{b})
		return err
	}

	if err := send(1); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("dropped request: %v", err)
	}
	if err := send(2); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("dropped response: %v", err)
	}
	if err := send(3); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("delayed request: %v", err)
	}

	select {
	case resp := <-late:
		if !bytes.Equal(resp, []byte{3}) {
			t.Errorf("late response = %v", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("late response was not delivered")
	}
	if err := send(4); err != nil {
		t.Errorf("undisturbed request: %v", err)
	}
	if got := handled.Load(); got != 3 {
		t.Errorf("server handled %d requests, want 3", got)
	}
}
