package engine

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// ThresholdPack resolves per-case similarity thresholds, falling back to the
// global default for cases without an override.
type ThresholdPack struct {
	overrides map[string]float64
	def       float64
}

type thresholdFile struct {
	Cases []caseThreshold `yaml:"cases"`
}

type caseThreshold struct {
	CaseID    string  `yaml:"case_id"`
	Threshold float64 `yaml:"threshold"`
}

// LoadThresholds reads per-case overrides from a YAML pack. An empty or
// missing path yields a pack that always resolves to the default.
func LoadThresholds(path string, defaultThreshold float64) (*ThresholdPack, error) {
	pack := &ThresholdPack{overrides: map[string]float64{}, def: defaultThreshold}
	if path == "" {
		return pack, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return pack, nil
		}
		return nil, err
	}

	var file thresholdFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	for _, entry := range file.Cases {
		if entry.CaseID == "" || entry.Threshold <= 0 {
			continue
		}
		pack.overrides[entry.CaseID] = entry.Threshold
	}
	return pack, nil
}

// Resolve returns the acceptance threshold for the given case id.
func (p *ThresholdPack) Resolve(caseID string) float64 {
	if p == nil {
		return 0
	}
	if t, ok := p.overrides[caseID]; ok {
		return t
	}
	return p.def
}

// Override registers a case-specific threshold, replacing any existing one.
func (p *ThresholdPack) Override(caseID string, threshold float64) {
	if p.overrides == nil {
		p.overrides = map[string]float64{}
	}
	p.overrides[caseID] = threshold
}
