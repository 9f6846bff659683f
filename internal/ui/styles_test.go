package ui

import (
	"strings"
	"testing"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{512, "512 bytes"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.size); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.size, got, tt.want)
		}
	}
}

func TestTable(t *testing.T) {
	out := Table([]string{"ID", "STATUS"}, [][]string{
		{"2049", "Active"},
		{"12", "Pending"},
	})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[1], "2049  Active") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "12    Pending") {
		t.Errorf("row 2 = %q", lines[2])
	}
}
