package util

import "testing"

func TestBrowserCommands(t *testing.T) {
	url := "http://localhost:8501"
	tests := []struct {
		goos  string
		first string
		count int
	}{
		{"windows", "rundll32", 2},
		{"darwin", "open", 1},
		{"linux", "xdg-open", 5},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			cmds := browserCommands(tt.goos, url)
			if len(cmds) != tt.count {
				t.Fatalf("len=%d, want %d", len(cmds), tt.count)
			}
			if cmds[0][0] != tt.first {
				t.Fatalf("first=%s, want %s", cmds[0][0], tt.first)
			}
			for _, c := range cmds {
				if c[len(c)-1] != url {
					t.Fatalf("url not last argument: %v", c)
				}
			}
		})
	}
}
