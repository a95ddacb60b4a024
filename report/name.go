package report

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// NameFor derives the run's report name from the input file name and start time.
// The millisecond suffix keeps concurrent runs on the same file apart.
func NameFor(path string, ts time.Time) string {
	base := strings.TrimSpace(filepath.Base(path))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "report"
	}
	base = strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', ':':
			return '_'
		}
		return r
	}, base)
	ts = ts.UTC()
	return fmt.Sprintf("%s_%s_%03d", base, ts.Format("2006-01-02_15-04-05"), ts.Nanosecond()/int(time.Millisecond))
}
