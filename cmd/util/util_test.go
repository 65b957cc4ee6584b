package util

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ValentinKolb/dTX/rpc/common"
)

func TestParseShards(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []common.ServerShard
		wantErr bool
	}{
		{
			name: "local and remote",
			in:   "100=lstore, 200=dstore",
			want: []common.ServerShard{
				{ShardID: 100, Type: common.ShardTypeLocal},
				{ShardID: 200, Type: common.ShardTypeRemote},
			},
		},
		{name: "missing type", in: "100", wantErr: true},
		{name: "bad id", in: "x=lstore", wantErr: true},
		{name: "unknown type", in: "100=lockmgr", wantErr: true},
		{name: "duplicate", in: "1=lstore,1=dstore", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseShards(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseShards(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseShards(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseClusterMembers(t *testing.T) {
	got, err := ParseClusterMembers("node-1=localhost:63001,node-2=localhost:63002")
	if err != nil {
		t.Fatalf("ParseClusterMembers failed: %v", err)
	}
	want := map[uint64]string{
		ReplicaID("node-1"): "localhost:63001",
		ReplicaID("node-2"): "localhost:63002",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if _, err := ParseClusterMembers("node-1"); err == nil {
		t.Error("expected an error for a member without address")
	}
}

func TestLoadClusterFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	path := write("cluster.toml", "[members]\nnode-1 = \"10.0.0.1:63001\"\nnode-2 = \"10.0.0.2:63001\"\n")
	got, err := LoadClusterFile(path)
	if err != nil {
		t.Fatalf("LoadClusterFile failed: %v", err)
	}
	want := map[uint64]string{
		ReplicaID("node-1"): "10.0.0.1:63001",
		ReplicaID("node-2"): "10.0.0.2:63001",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	tests := map[string]string{
		"empty.toml":   "[members]\n",
		"unknown.toml": "[members]\nnode-1 = \"a:1\"\n[raft]\nrtt = 5\n",
		"broken.toml":  "[members\n",
	}
	for name, content := range tests {
		if _, err := LoadClusterFile(write(name, content)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
	if _, err := LoadClusterFile(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestHashString(t *testing.T) {
	// FNV-1a test vectors
	if got := HashString("", 0); got != 14695981039346656037 {
		t.Errorf("HashString(\"\") = %d", got)
	}
	if got := HashString("a", 0); got != 0xaf63dc4c8601ec8c {
		t.Errorf("HashString(\"a\") = %x", got)
	}
	if HashString("node-1", 0) == HashString("node-1", 1) {
		t.Error("seed does not change the hash")
	}
}

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("line %q is longer than %d", line, Wrap)
		}
	}
}
