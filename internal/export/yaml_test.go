package export

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestExportYAMLRoundTripsThroughRealParser(t *testing.T) {
	s := buildStateWithCards(t)
	out, err := ExportYAML(s)
	if err != nil {
		t.Fatalf("ExportYAML: %v", err)
	}
	if !strings.Contains(out, "name: Widget Factory") {
		t.Errorf("yaml missing name field:\n%s", out)
	}

	var parsed Spec
	if err := yaml.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("yaml.Unmarshal of export output: %v", err)
	}
	if parsed.Name != "Widget Factory" {
		t.Errorf("parsed.Name = %q, want %q", parsed.Name, "Widget Factory")
	}
	if len(parsed.Lanes) < 2 {
		t.Errorf("parsed.Lanes = %v, want at least 2 lanes", parsed.Lanes)
	}
}
