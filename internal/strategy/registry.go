package strategy

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Pricing is USD per million tokens.
type Pricing struct {
	InputPerMTok  float64 `yaml:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok"`
}

type ModelConfig struct {
	Label   string  `yaml:"label"`
	ModelID string  `yaml:"model_id"`
	Pricing Pricing `yaml:"pricing"`
}

// Registry maps strategy keys to the model behind them.
type Registry struct {
	models map[string]ModelConfig
}

func NewRegistry(models map[string]ModelConfig) *Registry {
	if models == nil {
		models = map[string]ModelConfig{}
	}
	return &Registry{models: models}
}

func LoadRegistry(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Models map[string]ModelConfig `yaml:"models"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return NewRegistry(doc.Models), nil
}

func (r *Registry) Get(key string) (ModelConfig, bool) {
	m, ok := r.models[key]
	return m, ok
}

func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.models))
	for k := range r.models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) Len() int { return len(r.models) }

// MoveCostUSD prices one move's token usage. Unknown keys cost zero.
func (r *Registry) MoveCostUSD(key string, u Usage) float64 {
	m, ok := r.models[key]
	if !ok {
		return 0
	}
	return float64(u.InputTokens)*m.Pricing.InputPerMTok/1e6 +
		float64(u.OutputTokens)*m.Pricing.OutputPerMTok/1e6
}
