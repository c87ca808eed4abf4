// Package errtrack reports operational failures that are handled locally
// and never reach the caller.
package errtrack

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2/log"
)

// Reporter receives failures together with context for operators.
type Reporter interface {
	Report(message string, fields map[string]any)
}

// LogReporter writes reports to the application log.
type LogReporter struct{}

// NewLogReporter creates a log-backed reporter.
func NewLogReporter() *LogReporter {
	return &LogReporter{}
}

func (LogReporter) Report(message string, fields map[string]any) {
	log.Errorf("[ErrorReport] %s%s", message, formatFields(fields))
}

func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}

// Report is a recorded call of Recorder.
type Report struct {
	Message string
	Fields  map[string]any
}

// Recorder keeps reports in memory. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	reports []Report
}

func (r *Recorder) Report(message string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, Report{Message: message, Fields: fields})
}

// Reports returns a copy of the recorded reports.
func (r *Recorder) Reports() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.reports...)
}
