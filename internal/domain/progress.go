package domain

// Progress receives human-readable milestones of a long job. It is advisory
// and never affects control flow.
type Progress interface {
	Report(message string)
}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(message string)

func (f ProgressFunc) Report(message string) { f(message) }

type noProgress struct{}

func (noProgress) Report(string) {}

// NoProgress discards all milestones.
var NoProgress Progress = noProgress{}
