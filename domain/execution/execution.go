// Package execution describes run requests and their structured results.
// A failing user program is a Result, never an error.
package execution

import "code-lab/domain/session"

type Language string

type Request struct {
	Session  session.ID
	Language Language
	Filename string
	Source   string
}

type Result struct {
	Success bool
	Output  string
}

// Outcome classifies a finished request for logs and metrics.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeUnsupported   Outcome = "unsupported"
	OutcomeCompileFailed Outcome = "compile_failed"
	OutcomeRunFailed     Outcome = "run_failed"
	OutcomeTimeout       Outcome = "timeout"
)

const UnsupportedMessage = "Language not supported"
