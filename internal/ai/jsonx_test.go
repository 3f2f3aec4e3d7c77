package ai_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sparkbox-kiosk/sparkbox/internal/ai"
)

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bare object",
			in:   `{"a": 1}`,
			want: `{"a": 1}`,
		},
		{
			name: "fenced object",
			in:   "```json\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "prose around object",
			in:   "Here is the analysis:\n{\"a\": {\"b\": 2}}\nHope that helps!",
			want: `{"a": {"b": 2}}`,
		},
		{
			name: "braces inside strings",
			in:   `{"text": "a } b { c", "n": 1}`,
			want: `{"text": "a } b { c", "n": 1}`,
		},
		{
			name: "escaped quote inside string",
			in:   `{"text": "say \"}\" loudly"}`,
			want: `{"text": "say \"}\" loudly"}`,
		},
		{
			name: "first of two objects wins",
			in:   `{"first": true} {"second": true}`,
			want: `{"first": true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ai.ExtractJSON(tt.in)
			if err != nil {
				t.Fatalf("ExtractJSON(%q): %v", tt.in, err)
			}
			if string(got) != tt.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractJSONIdempotent(t *testing.T) {
	t.Parallel()

	in := "```json\n{\"project_title\": \"风力小车\", \"n\": [1, 2]}\n```"
	first, err := ai.ExtractJSON(in)
	if err != nil {
		t.Fatalf("first extraction: %v", err)
	}
	second, err := ai.ExtractJSON(string(first))
	if err != nil {
		t.Fatalf("second extraction: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("extraction not idempotent: %q then %q", first, second)
	}
}

func TestExtractJSONNoObject(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "no json here", "[1, 2, 3]", "{unbalanced"} {
		_, err := ai.ExtractJSON(in)
		if !errors.Is(err, ai.ErrNoJSON) {
			t.Errorf("ExtractJSON(%q) err = %v, want ErrNoJSON", in, err)
		}
	}
}
