// Package sink persists finished reports.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/AnkitD0811/cloud-security-scanner/report"
)

// Sink stores one report and returns where it went.
type Sink interface {
	Persist(ctx context.Context, r report.Report) (string, error)
}

type Func func(ctx context.Context, r report.Report) (string, error)

func (f Func) Persist(ctx context.Context, r report.Report) (string, error) {
	return f(ctx, r)
}

// Multi writes to a primary sink and then mirrors to the rest. Only the
// primary's failure fails the write; mirror errors are returned joined with
// the primary location so callers can log them.
type Multi struct {
	primary Sink
	mirrors []Sink
}

func NewMulti(primary Sink, mirrors ...Sink) *Multi {
	m := &Multi{primary: primary}
	for _, s := range mirrors {
		if s != nil {
			m.mirrors = append(m.mirrors, s)
		}
	}
	return m
}

// ErrMirror wraps failures of secondary sinks.
var ErrMirror = errors.New("report mirror failed")

func (m *Multi) Persist(ctx context.Context, r report.Report) (string, error) {
	if m.primary == nil {
		return "", fmt.Errorf("no primary report sink")
	}
	location, err := m.primary.Persist(ctx, r)
	if err != nil {
		return "", err
	}
	var errs []error
	for _, mirror := range m.mirrors {
		if _, err := mirror.Persist(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return location, fmt.Errorf("%w: %w", ErrMirror, errors.Join(errs...))
	}
	return location, nil
}
