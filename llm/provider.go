// Package llm defines the transport boundary to a hosted model.
package llm

import (
	"context"
	"errors"

	"github.com/AnkitD0811/cloud-security-scanner/types"
)

// ErrNotSupported marks a provider that lacks a feature the oracle needs.
var ErrNotSupported = errors.New("llm: not supported by provider")

// Capabilities advertises what a provider can do in one Generate call.
// Tools is required by the decision oracle. Without StructuredOutput the
// report writer falls back to parsing free text.
type Capabilities struct {
	Tools            bool
	StructuredOutput bool
}

// Provider is the remote reasoning service behind the decision oracle.
// Generate must honour ctx cancellation; an empty assistant message is a
// valid answer.
type Provider interface {
	Name() string
	Capabilities() Capabilities
	Generate(ctx context.Context, req types.Request) (types.Response, error)
}
