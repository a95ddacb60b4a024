package agent

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AnkitD0811/cloud-security-scanner/observe"
	"github.com/AnkitD0811/cloud-security-scanner/report"
	"github.com/AnkitD0811/cloud-security-scanner/state"
	"github.com/AnkitD0811/cloud-security-scanner/types"
)

const (
	statusRunning   = state.StatusRunning
	statusCompleted = state.StatusCompleted
	statusFailed    = state.StatusFailed
)

// enter records the transition into s and returns s unchanged.
func (a *Agent) enter(r *run, s step) step {
	r.trace = append(r.trace, s.state)
	r.seq++
	a.emit(r, types.Event{Type: types.EventStateEntered, State: string(s.state), Iteration: s.iteration})

	if a.store != nil {
		rec := state.StepRecord{
			RunID:        r.id,
			Seq:          r.seq,
			State:        string(s.state),
			Iteration:    s.iteration,
			Messages:     s.conv.Len(),
			Observations: len(r.results),
			Note:         r.note,
			CreatedAt:    a.now().UTC(),
		}
		if err := a.store.SaveStep(r.bg, rec); err != nil {
			a.logger.Warn("failed to save step", append(r.fields(s.state), zap.Error(err))...)
		}
	}
	r.note = ""
	return s
}

// degrade records a problem the run recovers from.
func (a *Agent) degrade(r *run, st State, err error) {
	r.degraded = append(r.degraded, fmt.Sprintf("%s: %v", st, err))
	r.note = err.Error()
	a.logger.Warn("run degraded", append(r.fields(st), zap.Error(err))...)
	a.emit(r, types.Event{Type: types.EventDegraded, State: string(st), Error: err.Error()})
}

func (a *Agent) emit(r *run, event types.Event) {
	if a.observer == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = a.now().UTC()
	}
	event.RunID = r.id
	event.Input = r.input
	event.Provider = a.oracle.ProviderName()
	if err := a.observer.Emit(r.bg, observe.FromRuntimeEvent(event)); err != nil {
		a.logger.Debug("observer rejected event", zap.String("run_id", r.id), zap.String("event", string(event.Type)), zap.Error(err))
	}
}

type runUpdate struct {
	status      string
	reportPath  string
	summary     *report.Summary
	err         error
	completedAt time.Time
}

// saveRun writes the run index entry. Index failures are logged only; the
// report file is the artifact callers depend on.
func (a *Agent) saveRun(r *run, u runUpdate) {
	if a.store == nil {
		return
	}
	createdAt := r.startedAt
	updatedAt := a.now().UTC()
	rec := state.RunRecord{
		RunID:         r.id,
		Provider:      a.oracle.ProviderName(),
		Status:        u.status,
		Input:         r.input,
		InputDigest:   r.digest,
		ReportName:    r.name,
		ReportPath:    u.reportPath,
		Iterations:    r.iterations,
		BoundExceeded: r.boundExceeded,
		Summary:       u.summary,
		Degraded:      append([]string(nil), r.degraded...),
		Usage:         r.usageCopy(),
		CreatedAt:     &createdAt,
		UpdatedAt:     &updatedAt,
	}
	if u.err != nil {
		rec.Error = u.err.Error()
	}
	if !u.completedAt.IsZero() {
		completedAt := u.completedAt
		rec.CompletedAt = &completedAt
	}
	if err := a.store.SaveRun(r.bg, rec); err != nil {
		a.logger.Warn("failed to save run record", zap.String("run_id", r.id), zap.String("input", r.input), zap.Error(err))
	}
}
