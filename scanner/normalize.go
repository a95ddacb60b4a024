package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
)

var ErrUnrecognizedOutput = errors.New("unrecognized scanner output")

// Check is one failed check, normalized across scanners.
type Check struct {
	ID            string `json:"check_id"`
	BCID          string `json:"bc_check_id,omitempty"`
	Name          string `json:"check_name"`
	Severity      string `json:"severity,omitempty"`
	FileLineRange [2]int `json:"file_line_range"`
	Resource      string `json:"resource,omitempty"`
	Guideline     string `json:"guideline,omitempty"`
}

// Normalize accepts a direct list of findings, checkov's results.failed_checks
// (one report or a list of per-framework reports), tfsec's results list, or
// trivy's Results[].Misconfigurations, and returns the failed checks.
func Normalize(raw []byte) ([]Check, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []Check{}, nil
	}
	out := []Check{}
	switch raw[0] {
	case '[':
		var itemErr error
		_, err := jsonparser.ArrayEach(raw, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
			if itemErr != nil || dataType != jsonparser.Object {
				return
			}
			if hasKey(value, "results") || hasKey(value, "Results") {
				nested, err := normalizeObject(value)
				if err != nil {
					itemErr = err
					return
				}
				out = append(out, nested...)
				return
			}
			out = append(out, checkFromRecord(value))
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedOutput, err)
		}
		if itemErr != nil {
			return nil, itemErr
		}
		return out, nil
	case '{':
		return normalizeObject(raw)
	default:
		return nil, fmt.Errorf("%w: expected a JSON list or object", ErrUnrecognizedOutput)
	}
}

func normalizeObject(raw []byte) ([]Check, error) {
	out := []Check{}
	collect := func(keys ...string) error {
		_, err := jsonparser.ArrayEach(raw, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
			if dataType == jsonparser.Object {
				out = append(out, checkFromRecord(value))
			}
		}, keys...)
		return err
	}

	switch {
	case typeOf(raw, "results", "failed_checks") == jsonparser.Array:
		if err := collect("results", "failed_checks"); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedOutput, err)
		}
	case typeOf(raw, "results") == jsonparser.Array:
		if err := collect("results"); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedOutput, err)
		}
	case typeOf(raw, "Results") == jsonparser.Array:
		_, err := jsonparser.ArrayEach(raw, func(result []byte, dataType jsonparser.ValueType, _ int, _ error) {
			if dataType != jsonparser.Object {
				return
			}
			_, _ = jsonparser.ArrayEach(result, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
				if dataType == jsonparser.Object {
					out = append(out, checkFromRecord(value))
				}
			}, "Misconfigurations")
		}, "Results")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedOutput, err)
		}
	case typeOf(raw, "failed_checks") == jsonparser.Array:
		if err := collect("failed_checks"); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedOutput, err)
		}
	case hasKey(raw, "results"), hasKey(raw, "summary"), hasKey(raw, "passed"), hasKey(raw, "ArtifactName"):
		// Scanner summaries with nothing failed.
	default:
		return nil, fmt.Errorf("%w: no findings list", ErrUnrecognizedOutput)
	}
	return out, nil
}

func checkFromRecord(rec []byte) Check {
	c := Check{
		ID:        firstString(rec, []string{"check_id"}, []string{"rule_id"}, []string{"long_id"}, []string{"ID"}, []string{"id"}),
		BCID:      firstString(rec, []string{"bc_check_id"}, []string{"AVDID"}),
		Name:      firstString(rec, []string{"check_name"}, []string{"rule_description"}, []string{"description"}, []string{"Title"}, []string{"name"}),
		Severity:  strings.ToUpper(firstString(rec, []string{"severity"}, []string{"Severity"})),
		Resource:  firstString(rec, []string{"resource"}, []string{"CauseMetadata", "Resource"}),
		Guideline: firstString(rec, []string{"guideline"}, []string{"PrimaryURL"}, []string{"links", "[0]"}, []string{"References", "[0]"}),
	}

	switch {
	case typeOf(rec, "file_line_range") == jsonparser.Array:
		c.FileLineRange = [2]int{intAt(rec, "file_line_range", "[0]"), intAt(rec, "file_line_range", "[1]")}
	case hasKey(rec, "location"):
		c.FileLineRange = [2]int{intAt(rec, "location", "start_line"), intAt(rec, "location", "end_line")}
	case hasKey(rec, "CauseMetadata"):
		c.FileLineRange = [2]int{intAt(rec, "CauseMetadata", "StartLine"), intAt(rec, "CauseMetadata", "EndLine")}
	}
	if c.FileLineRange[1] == 0 {
		c.FileLineRange[1] = c.FileLineRange[0]
	}
	return c
}

func hasKey(data []byte, keys ...string) bool {
	return typeOf(data, keys...) != jsonparser.NotExist
}

func typeOf(data []byte, keys ...string) jsonparser.ValueType {
	_, dataType, _, err := jsonparser.Get(data, keys...)
	if err != nil {
		return jsonparser.NotExist
	}
	return dataType
}

func firstString(data []byte, paths ...[]string) string {
	for _, path := range paths {
		value, dataType, _, err := jsonparser.Get(data, path...)
		if err != nil || dataType != jsonparser.String {
			continue
		}
		s, err := jsonparser.ParseString(value)
		if err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func intAt(data []byte, keys ...string) int {
	value, dataType, _, err := jsonparser.Get(data, keys...)
	if err != nil {
		return 0
	}
	switch dataType {
	case jsonparser.Number:
		n, err := jsonparser.ParseInt(value)
		if err != nil {
			return 0
		}
		return int(n)
	case jsonparser.String:
		n, err := strconv.Atoi(strings.TrimSpace(string(value)))
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}
