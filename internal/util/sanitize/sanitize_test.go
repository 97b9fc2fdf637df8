package sanitize

import (
	"testing"
)

func TestField(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"BOM on header", "\uFEFFname", "name"},
		{"zero-width space", "PACS\u200B1", "PACS1"},
		{"soft hyphen", "ARCH\u00ADIVE", "ARCHIVE"},
		{"surrounding whitespace", "  10.0.0.5\t", "10.0.0.5"},
		{"inner spaces kept", "Main PACS", "Main PACS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Field(tt.input); got != tt.expected {
				t.Errorf("Field(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestValue(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"space padding", "CT HEAD ", "CT HEAD"},
		{"NUL padded UID", "1.2.840.10008\x00", "1.2.840.10008"},
		{"inner runs", "CHEST   W/O\tCONTRAST", "CHEST W/O CONTRAST"},
		{"word joiner", "DOE^\u2060JOHN", "DOE^JOHN"},
		{"only padding", " \x00", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Value(tt.input); got != tt.expected {
				t.Errorf("Value(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestValues(t *testing.T) {
	got := Values([]string{"CT ", "", " \x00", "MR"})
	if len(got) != 2 || got[0] != "CT" || got[1] != "MR" {
		t.Errorf("Values() = %q, want [CT MR]", got)
	}
}
