package tools

// ProgressFunc receives interim status lines from a running tool
type ProgressFunc func(message string)

// ProgressReporter adapts a ProgressFunc to a call, tagging each line
// with the call id
type ProgressReporter interface {
	ReportProgress(callID, message string)
}

// ProgressFor binds a reporter to one call. A nil reporter yields nil.
func ProgressFor(r ProgressReporter, callID string) ProgressFunc {
	if r == nil {
		return nil
	}
	return func(message string) {
		r.ReportProgress(callID, message)
	}
}
