package strategy

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `models:
  gpt-4o:
    label: GPT-4o
    model_id: gpt-4o-2024-08-06
    pricing:
      input_per_mtok: 2.5
      output_per_mtok: 10.0
  mini:
    label: Mini
    model_id: gpt-4o-mini
    pricing:
      input_per_mtok: 0.15
      output_per_mtok: 0.6
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return path
}

func TestLoadRegistry(t *testing.T) {
	reg, err := LoadRegistry(writeSample(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 models, got %d", reg.Len())
	}
	m, ok := reg.Get("gpt-4o")
	if !ok {
		t.Fatal("expected gpt-4o present")
	}
	if m.ModelID != "gpt-4o-2024-08-06" || m.Pricing.OutputPerMTok != 10.0 {
		t.Fatalf("unexpected model config: %+v", m)
	}
	keys := reg.Keys()
	if len(keys) != 2 || keys[0] != "gpt-4o" || keys[1] != "mini" {
		t.Fatalf("expected sorted keys, got %v", keys)
	}
}

func TestLoadRegistryMissingFile(t *testing.T) {
	if _, err := LoadRegistry(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestMoveCostUSD(t *testing.T) {
	reg, err := LoadRegistry(writeSample(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tests := []struct {
		name string
		key  string
		u    Usage
		want float64
	}{
		{"gpt-4o usage", "gpt-4o", Usage{InputTokens: 1000, OutputTokens: 500}, 0.0025 + 0.005},
		{"zero usage", "mini", Usage{}, 0},
		{"unknown key", "missing", Usage{InputTokens: 1000}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reg.MoveCostUSD(tt.key, tt.u); math.Abs(got-tt.want) > 1e-12 {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
