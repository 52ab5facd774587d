package port

// ScanProgress is one per-file progress notification.
type ScanProgress struct {
	Path        string
	Description string
	Index       int
	Total       int
}

// ProgressReporter renders scan progress. Report is called once per file,
// in order, before the next file starts.
type ProgressReporter interface {
	Start(total int)
	Report(p ScanProgress)
	Finish()
}
