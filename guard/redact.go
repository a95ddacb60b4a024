// Package guard scrubs artifact content before it leaves the process.
package guard

import (
	"regexp"
	"sort"
)

const DefaultReplacement = "[REDACTED]"

// Pattern is one kind of secret the redactor knows about.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
}

// DefaultPatterns covers cloud credentials and the assignment shapes common in
// Terraform, CloudFormation and Kubernetes manifests.
var DefaultPatterns = []Pattern{
	{Name: "aws_access_key", Re: regexp.MustCompile(`\b(AKIA|ABIA|ACCA|ASIA)[0-9A-Z]{16}\b`)},
	{Name: "aws_secret_key", Re: regexp.MustCompile(`(?i)aws[_\-]?secret[_\-]?access[_\-]?key["']?\s*[=:]\s*["']?[A-Za-z0-9/+=]{40}["']?`)},
	{Name: "github_token", Re: regexp.MustCompile(`\b(ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9_]{36,255}\b`)},
	{Name: "google_api_key", Re: regexp.MustCompile(`\bAIza[0-9A-Za-z\-_]{35}\b`)},
	{Name: "slack_token", Re: regexp.MustCompile(`xox[baprs]-[0-9]{10,13}-[0-9]{10,13}[a-zA-Z0-9-]*`)},
	{Name: "stripe_key", Re: regexp.MustCompile(`\b(sk|pk)_(test|live)_[0-9a-zA-Z]{24,}\b`)},
	{Name: "jwt", Re: regexp.MustCompile(`eyJ[A-Za-z0-9\-_]+\.eyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+`)},
	{Name: "bearer_token", Re: regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-_.=]{20,}`)},
	{Name: "private_key", Re: regexp.MustCompile(`-----BEGIN\s+(RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY-----`)},
	{Name: "connection_string", Re: regexp.MustCompile(`(?i)\b(mongodb(\+srv)?|postgres(ql)?|mysql|redis|amqp)://[^:\s/]+:[^@\s]+@`)},
	{Name: "api_key", Re: regexp.MustCompile(`(?i)(api[_\-]?key|apikey)["']?\s*[=:]\s*["']?[A-Za-z0-9\-_]{20,64}["']?`)},
	{Name: "password", Re: regexp.MustCompile(`(?i)(password|passwd|pwd)["']?\s*[=:]\s*["']?[^\s"',}]{8,}["']?`)},
	{Name: "generic_secret", Re: regexp.MustCompile(`(?i)(secret|token|auth[_\-]?token)["']?\s*[=:]\s*["']?[A-Za-z0-9\-_]{16,}["']?`)},
}

// referencePattern matches assignments whose value is an expression, not a literal.
var referencePattern = regexp.MustCompile(`[=:]\s*["']?(var|local|data|module|each)\.|[=:]\s*["']?\$\{`)

type Result struct {
	Text  string
	Count int
	Kinds []string
}

type Redactor struct {
	patterns    []Pattern
	replacement string
}

type Option func(*Redactor)

func WithReplacement(s string) Option {
	return func(r *Redactor) {
		if s != "" {
			r.replacement = s
		}
	}
}

func WithPatterns(patterns ...Pattern) Option {
	return func(r *Redactor) { r.patterns = append(r.patterns, patterns...) }
}

func New(opts ...Option) *Redactor {
	r := &Redactor{
		patterns:    append([]Pattern(nil), DefaultPatterns...),
		replacement: DefaultReplacement,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Redact replaces every detected secret. Matches never span lines, so line
// numbers in the returned text still line up with the original.
func (r *Redactor) Redact(text string) Result {
	out := Result{Text: text}
	seen := map[string]bool{}
	for _, p := range r.patterns {
		out.Text = p.Re.ReplaceAllStringFunc(out.Text, func(match string) string {
			if referencePattern.MatchString(match) {
				return match
			}
			out.Count++
			seen[p.Name] = true
			return r.replacement
		})
	}
	for kind := range seen {
		out.Kinds = append(out.Kinds, kind)
	}
	sort.Strings(out.Kinds)
	return out
}
