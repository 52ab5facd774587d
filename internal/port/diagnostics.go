package port

import "codepilot/internal/domain"

// DiagnosticSink is the editor's diagnostic collection.
type DiagnosticSink interface {
	Set(documentID string, diags []domain.Diagnostic)
	Clear(documentID string)
}
