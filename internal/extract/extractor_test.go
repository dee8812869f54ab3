package extract

import (
	"errors"
	"testing"
)

func TestText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Atendemos das 9h às 18h", "Atendemos das 9h às 18h"},
		{"  com espaços  \n", "com espaços"},
		{"", ""},
		{"\t\n  ", ""},
	}
	for _, tt := range tests {
		if got := Text(tt.input); got != tt.want {
			t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestExtractionErrorUnwrap(t *testing.T) {
	underlying := errors.New("connection refused")
	err := extractionErrorf(underlying, "não foi possível acessar o site")

	if err.Error() != "não foi possível acessar o site" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, underlying) {
		t.Error("expected Unwrap to expose the underlying error")
	}

	var extractionErr *ExtractionError
	if !errors.As(error(err), &extractionErr) {
		t.Error("expected errors.As to match *ExtractionError")
	}
}
