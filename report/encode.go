package report

import (
	"encoding/json"
	"fmt"

	"github.com/goccy/go-yaml"
)

// EncodeJSON is the persisted report format.
func EncodeJSON(r Report) ([]byte, error) {
	if r.Findings == nil {
		r.Findings = []Finding{}
	}
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return append(raw, '\n'), nil
}

func EncodeYAML(r Report) ([]byte, error) {
	if r.Findings == nil {
		r.Findings = []Finding{}
	}
	raw, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report yaml: %w", err)
	}
	return raw, nil
}

// Decode reads a persisted report back.
func Decode(raw []byte) (Report, error) {
	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	if r.Findings == nil {
		r.Findings = []Finding{}
	}
	return r, nil
}
