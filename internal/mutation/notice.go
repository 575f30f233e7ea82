package mutation

import "orgchart/internal/errs"

// Level is the severity of a notice
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a transient message for the user
type Notice struct {
	Level   Level     `json:"level"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Kind    errs.Kind `json:"kind,omitempty"`
}

// Notifier shows notices
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(Notice)

// Notify implements Notifier
func (f NotifierFunc) Notify(n Notice) { f(n) }

// Navigator opens a backing record outside the chart
type Navigator interface {
	Navigate(recordRef string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(string)

// Navigate implements Navigator
func (f NavigatorFunc) Navigate(recordRef string) { f(recordRef) }
