package oracle

import (
	"strings"
	"testing"
)

func TestDecodeOracleJSONQuirks(t *testing.T) {
	type target struct {
		OK bool `json:"ok"`
	}

	cases := []struct {
		name    string
		payload string
	}{
		{"plain object", `{"ok":true}`},
		{"fenced", "```\n{\"ok\":true}\n```"},
		{"fenced with language tag", "```json\n{\"ok\":true}\n```"},
		{"prose wrapped", `Here is the result you asked for: {"ok":true} Hope that helps!`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var parsed target
			if err := DecodeOracleJSON(tc.payload, &parsed); err != nil {
				t.Fatalf("DecodeOracleJSON(%q) = %v", tc.payload, err)
			}
			if !parsed.OK {
				t.Fatalf("expected ok=true from %q", tc.payload)
			}
		})
	}
}

func TestDecodeOracleJSONFailures(t *testing.T) {
	var parsed struct{}
	if err := DecodeOracleJSON("", &parsed); err == nil {
		t.Fatal("expected error for empty payload")
	}
	err := DecodeOracleJSON("the model refuses to answer", &parsed)
	if err == nil {
		t.Fatal("expected error for non-JSON payload")
	}
	if !strings.Contains(err.Error(), "payload snippet") {
		t.Fatalf("expected snippet in error, got %v", err)
	}
}
