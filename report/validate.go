package report

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateFinding, Finding{})
	v.RegisterStructValidation(validateReport, Report{})
	return v
}

// validateFinding: a reference link, when present, must close the remedies list.
func validateFinding(sl validator.StructLevel) {
	f := sl.Current().Interface().(Finding)
	seenPlain := false
	for i := len(f.Remedies) - 1; i >= 0; i-- {
		if !isLink(f.Remedies[i]) {
			seenPlain = true
			continue
		}
		if seenPlain {
			sl.ReportError(f.Remedies, "Remedies", "remedies", "linklast", "")
			return
		}
	}
	if f.Location[0] > f.Location[1] {
		sl.ReportError(f.Location, "Location", "location", "ordered", "")
	}
}

func validateReport(sl validator.StructLevel) {
	r := sl.Current().Interface().(Report)
	s := r.Summary
	if s.Count != len(r.Findings) {
		sl.ReportError(s.Count, "Summary.Count", "count", "findingcount", "")
	}
	if s.Low+s.Medium+s.High != s.Count {
		sl.ReportError(s, "Summary", "summary", "levelsum", "")
	}
}

// Validate checks the report's field enums and summary invariants.
func Validate(r Report) error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid report: %s", strings.Join(msgs, "; "))
}
