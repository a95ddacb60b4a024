package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var ErrReportParse = errors.New("report payload is not valid structured data")

const unnamedFinding = "Unnamed finding"

// Parse extracts findings from raw oracle output and never fails:
// anything it cannot read yields an empty list.
func Parse(raw string) []Finding {
	findings, err := ParseStrict(raw)
	if err != nil {
		return []Finding{}
	}
	return findings
}

// ParseStrict is Parse with the failure reported. A well-formed object with no
// issues/findings key is not a failure and yields an empty list.
func ParseStrict(raw string) ([]Finding, error) {
	payload, ok := ExtractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object found", ErrReportParse)
	}

	var decoded any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReportParse, err)
	}

	var items []any
	switch v := decoded.(type) {
	case []any:
		items = v
	case map[string]any:
		items, _ = findingList(v)
	}

	out := make([]Finding, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, normalizeFinding(obj))
	}
	return out, nil
}

func findingList(obj map[string]any) ([]any, bool) {
	for _, key := range []string{"issues", "findings"} {
		if list, ok := obj[key].([]any); ok {
			return list, true
		}
	}
	if nested, ok := obj["report"].(map[string]any); ok {
		return findingList(nested)
	}
	return nil, false
}

// ExtractJSON returns the first well-formed JSON value in text that looks like
// a report: an object carrying an issues/findings list, or an array of
// objects. Fenced code blocks are searched before the surrounding text. When
// nothing looks like a report, the first well-formed object is returned.
func ExtractJSON(text string) (string, bool) {
	var fallback string
	for _, source := range append(fencedBlocks(text), text) {
		for _, candidate := range jsonValues(source) {
			if looksLikeReport(candidate) {
				return candidate, true
			}
			if fallback == "" && candidate[0] == '{' {
				fallback = candidate
			}
		}
	}
	return fallback, fallback != ""
}

func looksLikeReport(candidate string) bool {
	var decoded any
	if json.Unmarshal([]byte(candidate), &decoded) != nil {
		return false
	}
	switch v := decoded.(type) {
	case map[string]any:
		_, ok := findingList(v)
		return ok
	case []any:
		for _, item := range v {
			if _, ok := item.(map[string]any); ok {
				return true
			}
		}
	}
	return false
}

func fencedBlocks(text string) []string {
	var blocks []string
	rest := text
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			return blocks
		}
		body := rest[start+3:]
		// Drop the info string ("json", "JSON", ...).
		if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
			body = body[nl+1:]
		}
		end := strings.Index(body, "```")
		if end < 0 {
			blocks = append(blocks, body)
			return blocks
		}
		blocks = append(blocks, body[:end])
		rest = body[end+3:]
	}
}

type span struct{ start, end int }

// balancedSpans finds every bracketed region of text in one pass. Brackets
// inside strings are ignored; a mismatched closer drops the open regions.
// Spans come back ordered by start offset.
func balancedSpans(text string) []span {
	var (
		open     []int
		spans    []span
		inString bool
		escaped  bool
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			// Quotes in prose outside any bracket are not JSON strings.
			inString = len(open) > 0
		case '{', '[':
			open = append(open, i)
		case '}', ']':
			if len(open) == 0 {
				continue
			}
			top := open[len(open)-1]
			if closerFor(text[top]) != c {
				open = open[:0]
				continue
			}
			open = open[:len(open)-1]
			spans = append(spans, span{top, i})
		}
	}
	slices.SortFunc(spans, func(a, b span) int { return a.start - b.start })
	return spans
}

func closerFor(opener byte) byte {
	if opener == '[' {
		return ']'
	}
	return '}'
}

// jsonValues returns the outermost well-formed JSON objects and arrays in
// text. A region that is not valid JSON is searched for valid ones inside it.
func jsonValues(text string) []string {
	var (
		values    []string
		coveredTo = -1
	)
	for _, sp := range balancedSpans(text) {
		if sp.start <= coveredTo {
			continue
		}
		candidate := text[sp.start : sp.end+1]
		if json.Valid([]byte(candidate)) {
			values = append(values, candidate)
			coveredTo = sp.end
		}
	}
	return values
}

func normalizeFinding(obj map[string]any) Finding {
	f := Finding{
		Name:       firstText(obj, "name", "title", "check_name", "issue"),
		Severity:   Low,
		Confidence: Medium,
		Location:   parseLocation(firstValue(obj, "location", "lines", "line_range", "file_line_range", "line")),
		Problems:   textList(firstValue(obj, "problems", "problem", "impact", "description")),
		Remedies:   textList(firstValue(obj, "remedies", "remedy", "remediation", "fix")),
	}
	if f.Name == "" {
		f.Name = unnamedFinding
	}
	if lvl, ok := ParseLevel(firstText(obj, "severity", "level")); ok {
		f.Severity = lvl
	}
	if lvl, ok := ParseLevel(firstText(obj, "confidence_score", "confidence")); ok {
		f.Confidence = lvl
	}
	f.Remedies = orderRemedies(f.Remedies, firstText(obj, "reference", "link", "guideline", "url"))
	return f
}

func firstValue(obj map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := obj[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstText(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func textList(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	case []any:
		for _, item := range t {
			switch x := item.(type) {
			case string:
				if s := strings.TrimSpace(x); s != "" {
					out = append(out, s)
				}
			case float64, bool:
				out = append(out, fmt.Sprint(x))
			}
		}
	}
	return out
}

func parseLocation(v any) [2]int {
	var start, end int
	switch t := v.(type) {
	case float64:
		start, end = int(t), int(t)
	case string:
		parts := strings.FieldsFunc(t, func(r rune) bool { return r == '-' || r == ',' || r == ':' || r == ' ' })
		if len(parts) > 0 {
			start, _ = strconv.Atoi(parts[0])
			end = start
		}
		if len(parts) > 1 {
			end, _ = strconv.Atoi(parts[1])
		}
	case []any:
		if len(t) > 0 {
			start = toInt(t[0])
			end = start
		}
		if len(t) > 1 {
			end = toInt(t[1])
		}
	case map[string]any:
		start = toInt(firstValue(t, "start", "start_line", "from"))
		end = toInt(firstValue(t, "end", "end_line", "to"))
		if end == 0 {
			end = start
		}
	}
	if start < 0 {
		start = 0
	}
	if end < 0 {
		end = 0
	}
	if start > end {
		start, end = end, start
	}
	return [2]int{start, end}
}

func toInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(t))
		return n
	}
	return 0
}

// orderRemedies keeps remedies in order but moves reference links to the end,
// adding ref when it is not already present.
func orderRemedies(remedies []string, ref string) []string {
	plain := make([]string, 0, len(remedies)+1)
	links := []string{}
	seen := map[string]bool{}
	for _, r := range remedies {
		if seen[r] {
			continue
		}
		seen[r] = true
		if isLink(r) {
			links = append(links, r)
			continue
		}
		plain = append(plain, r)
	}
	if ref != "" && !seen[ref] {
		links = append(links, ref)
	}
	return append(plain, links...)
}

func isLink(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
