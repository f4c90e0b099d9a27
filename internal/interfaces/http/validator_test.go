package http

import "testing"

func TestValidSlug(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"hot-lead", true},
		{"rule_1", true},
		{"a", true},
		{"", false},
		{"has space", false},
		{"drop;table", false},
		{"semi:colon", false},
	}
	for _, tt := range tests {
		if got := ValidSlug(tt.in); got != tt.want {
			t.Errorf("ValidSlug(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidPhone(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"628123456789", true},
		{"123456", true},
		{"+628123456789", false},
		{"62 812 345", false},
		{"12345", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidPhone(tt.in); got != tt.want {
			t.Errorf("ValidPhone(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("hello\x00world"); got != "helloworld" {
		t.Errorf("null byte survived: %q", got)
	}
	if got := SanitizeString("plain"); got != "plain" {
		t.Errorf("clean string mangled: %q", got)
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("abcdef", 3); got != "abc" {
		t.Errorf("got %q, want abc", got)
	}
	if got := TruncateString("ab", 3); got != "ab" {
		t.Errorf("got %q, want ab", got)
	}
}
