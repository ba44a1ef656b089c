package services

import "testing"

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name       string
		syntax     string
		mimeType   string
		filename   string
		wantSyntax string
		wantMime   string
	}{
		{"no hints", "", "", "", "", "text/plain"},
		{"syntax from extension", "", "", "main.go", "go", ""},
		{"explicit syntax wins", "golang", "", "main.go", "golang", ""},
		{"mimetype parameters dropped", "", "text/html; charset=utf-8", "", "", "text/html"},
		{"json by extension", "", "", "config.json", "json", "application/json"},
		{"invalid mimetype falls back", "", "not a type;;", "", "", "text/plain"},
		{"uppercase extension", "", "", "NOTES.MD", "md", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syntax, mimeType := detectFormat(tt.syntax, tt.mimeType, tt.filename)
			if syntax != tt.wantSyntax {
				t.Errorf("syntax = %q, want %q", syntax, tt.wantSyntax)
			}
			// extension lookups depend on the host mime tables
			if tt.wantMime != "" && mimeType != tt.wantMime {
				t.Errorf("mimetype = %q, want %q", mimeType, tt.wantMime)
			}
			if mimeType == "" {
				t.Error("mimetype must never be empty")
			}
		})
	}
}

func TestIsTextContent(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"text/plain", true},
		{"text/html", true},
		{"TEXT/CSS", true},
		{"application/json", true},
		{"application/xml", true},
		{"application/javascript", true},
		{"application/x-sh", true},
		{"application/x-yaml", true},
		{"image/png", false},
		{"application/octet-stream", false},
		{"application/zip", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			if got := IsTextContent(tt.contentType); got != tt.want {
				t.Errorf("IsTextContent(%q) = %v, want %v", tt.contentType, got, tt.want)
			}
		})
	}
}
