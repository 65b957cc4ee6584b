package base

import (
	"bytes"
	"errors"
	"net"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := []byte("hello frame")
	go func() {
		_ = writeFrame(client, 7, 42, payload)
		_ = writeFrame(client, 8, 43, nil)
	}()

	shard, req, data, err := readFrame(server, make([]byte, 4), 0)
	if err != nil {
		t.Fatalf("readFrame failed: %v", err)
	}
	if shard != 7 || req != 42 || !bytes.Equal(data, payload) {
		t.Errorf("got shard=%d req=%d data=%q", shard, req, data)
	}

	shard, req, data, err = readFrame(server, nil, 0)
	if err != nil {
		t.Fatalf("readFrame failed: %v", err)
	}
	if shard != 8 || req != 43 || data == nil || len(data) != 0 {
		t.Errorf("empty frame: got shard=%d req=%d data=%v", shard, req, data)
	}
}

func TestFrameTooLarge(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() { _ = writeFrame(client, 1, 1, make([]byte, 128)) }()

	if _, _, _, err := readFrame(server, nil, 64); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}
