package ai

import "testing"

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Here you go: {"a":{"b":2}} hope it helps {"c":3}`, `{"a":{"b":2}}`},
		{"brace in string", `{"reasoning":"use } carefully","x":1}`, `{"reasoning":"use } carefully","x":1}`},
		{"escaped quote", `{"q":"say \"}\" now"}`, `{"q":"say \"}\" now"}`},
		{"unterminated", `{"a":1`, ""},
		{"none", "no json here", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractJSONObject(tc.input); got != tc.expected {
				t.Fatalf("expected %q got %q", tc.expected, got)
			}
		})
	}
}
