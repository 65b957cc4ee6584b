package cmd

import "testing"

func TestUpgradeScript(t *testing.T) {
	base := "curl -s " + installScriptURL + " | bash"
	tests := []struct {
		path   string
		source bool
		want   string
	}{
		{want: base},
		{path: "/opt/bin", want: base + " -- --path=/opt/bin"},
		{source: true, want: base + " -- --source"},
		{path: "/opt/bin", source: true, want: base + " -- --path=/opt/bin --source"},
	}

	for _, tt := range tests {
		if got := upgradeScript(tt.path, tt.source); got != tt.want {
			t.Errorf("upgradeScript(%q, %v) = %q, want %q", tt.path, tt.source, got, tt.want)
		}
	}
}
