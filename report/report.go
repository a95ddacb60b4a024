// Package report turns the oracle's final answer into the persisted security report.
package report

import (
	"fmt"
	"strings"
	"time"
)

// Level is the three-step scale used for both severity and confidence.
type Level string

const (
	Low    Level = "Low"
	Medium Level = "Medium"
	High   Level = "High"
)

// ParseLevel maps free-form text onto a Level. ok is false when s is not recognized.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "minor", "info", "informational", "note":
		return Low, true
	case "medium", "moderate", "med", "warning":
		return Medium, true
	case "high", "critical", "severe", "error":
		return High, true
	}
	return "", false
}

type Finding struct {
	Name       string   `json:"name" yaml:"name" validate:"required" jsonschema:"description=Short title of the issue"`
	Severity   Level    `json:"severity" yaml:"severity" validate:"oneof=Low Medium High" jsonschema:"enum=Low,enum=Medium,enum=High"`
	Location   [2]int   `json:"location" yaml:"location" validate:"dive,gte=0" jsonschema:"description=Start and end line in the scanned file"`
	Confidence Level    `json:"confidence_score" yaml:"confidence_score" validate:"oneof=Low Medium High" jsonschema:"enum=Low,enum=Medium,enum=High"`
	Problems   []string `json:"problems" yaml:"problems"`
	Remedies   []string `json:"remedies" yaml:"remedies" jsonschema:"description=Fixes with any reference link placed last"`
}

type Summary struct {
	Count  int `json:"count" yaml:"count"`
	Low    int `json:"low" yaml:"low"`
	Medium int `json:"medium" yaml:"medium"`
	High   int `json:"high" yaml:"high"`
}

// Report is built once per run and not modified afterwards.
type Report struct {
	Name      string    `json:"name" yaml:"name" validate:"required"`
	File      string    `json:"file" yaml:"file"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Summary   Summary   `json:"summary" yaml:"summary"`
	Findings  []Finding `json:"issues" yaml:"issues" validate:"dive"`
}

// Summarize counts findings per severity. Unknown levels count toward Count only.
func Summarize(findings []Finding) Summary {
	s := Summary{Count: len(findings)}
	for _, f := range findings {
		switch f.Severity {
		case Low:
			s.Low++
		case Medium:
			s.Medium++
		case High:
			s.High++
		}
	}
	return s
}

// Build assembles a report from parsed findings. The findings slice is copied.
func Build(name, file string, ts time.Time, findings []Finding) Report {
	copied := make([]Finding, len(findings))
	for i, f := range findings {
		f.Problems = append([]string{}, f.Problems...)
		f.Remedies = append([]string{}, f.Remedies...)
		copied[i] = f
	}
	return Report{
		Name:      name,
		File:      file,
		Timestamp: ts.UTC(),
		Summary:   Summarize(copied),
		Findings:  copied,
	}
}

// Empty is the degraded report used when nothing could be parsed.
func Empty(name, file string, ts time.Time) Report {
	return Build(name, file, ts, nil)
}

func (s Summary) String() string {
	return fmt.Sprintf("count=%d low=%d medium=%d high=%d", s.Count, s.Low, s.Medium, s.High)
}
