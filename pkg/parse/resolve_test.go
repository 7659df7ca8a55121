package parse

import (
	"errors"
	"net/url"
	"testing"

	"tg-scraper/pkg/utils"
)

func TestParsePageURL(t *testing.T) {
	parsed, err := ParsePageURL("https://telegra.ph/Example-01-01")
	if err != nil {
		t.Fatalf("ParsePageURL returned error: %v", err)
	}
	if parsed.Host != "telegra.ph" {
		t.Errorf("Host = %q, want %q", parsed.Host, "telegra.ph")
	}
	if parsed.Path != "/Example-01-01" {
		t.Errorf("Path = %q, want %q", parsed.Path, "/Example-01-01")
	}
}

func TestParsePageURL_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"Empty", ""},
		{"NoScheme", "telegra.ph/Example-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePageURL(tt.input)
			if err == nil {
				t.Fatalf("ParsePageURL(%q) returned no error", tt.input)
			}
			if !errors.Is(err, utils.ErrParsing) {
				t.Errorf("ParsePageURL(%q) error = %v, want ErrParsing", tt.input, err)
			}
		})
	}
}

func TestResolveImageURL(t *testing.T) {
	pageURL, _ := url.Parse("https://telegra.ph/Example-01-01")

	tests := []struct {
		name     string
		src      string
		expected string
	}{
		{"RootRelative", "/file/a.jpg", "https://telegra.ph/file/a.jpg"},
		{"AbsolutePassthrough", "https://cdn.example.com/i.png", "https://cdn.example.com/i.png"},
		{"ProtocolRelative", "//graph.org/file/b.jpg", "https://graph.org/file/b.jpg"},
		{"PageRelative", "a.jpg", "https://telegra.ph/a.jpg"},
		{"FragmentStripped", "/file/a.jpg#section", "https://telegra.ph/file/a.jpg"},
		{"QueryPreserved", "/file/a.jpg?v=2", "https://telegra.ph/file/a.jpg?v=2"},
		{"WhitespaceTrimmed", "  /file/a.jpg  ", "https://telegra.ph/file/a.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := ResolveImageURL(pageURL, tt.src)
			if err != nil {
				t.Fatalf("ResolveImageURL(%q) returned error: %v", tt.src, err)
			}
			if resolved != tt.expected {
				t.Errorf("ResolveImageURL(%q) = %q, want %q", tt.src, resolved, tt.expected)
			}
		})
	}
}

func TestResolveImageURL_Rejected(t *testing.T) {
	pageURL, _ := url.Parse("https://telegra.ph/Example-01-01")

	tests := []struct {
		name string
		src  string
	}{
		{"Empty", ""},
		{"WhitespaceOnly", "   "},
		{"DataURI", "data:image/png;base64,iVBORw0KGgo="},
		{"JavascriptScheme", "javascript:alert(1)"},
		{"BadEscape", "/file/%zz.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveImageURL(pageURL, tt.src)
			if err == nil {
				t.Fatalf("ResolveImageURL(%q) returned no error", tt.src)
			}
			if !errors.Is(err, utils.ErrParsing) {
				t.Errorf("ResolveImageURL(%q) error = %v, want ErrParsing", tt.src, err)
			}
		})
	}
}
