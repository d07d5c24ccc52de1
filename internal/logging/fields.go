package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldAttemptID identifies one update attempt across all of its log lines.
	FieldAttemptID = "attempt_id"
	// FieldState is the installer state a line was logged in.
	FieldState = "state"
	// FieldMode is the installation mode selected from the manifest.
	FieldMode = "mode"
	// FieldSection is the manifest section being processed.
	FieldSection = "section"
	// FieldEventType classifies warnings and errors for later filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to try next.
	FieldErrorHint = "error_hint"
	// FieldErrorCode carries the numeric failure code.
	FieldErrorCode = "error_code"
	// FieldDecisionType names the decision recorded by DecisionAttrs.
	FieldDecisionType = "decision_type"
	// FieldProgressStage and FieldProgressPercent describe sampled progress.
	FieldProgressStage   = "progress_stage"
	FieldProgressPercent = "progress_percent"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)

// debugOnlyKeys are omitted from info-level console lines.
var debugOnlyKeys = map[string]struct{}{
	FieldAttemptID: {},
	"command":      {},
	"stdout":       {},
	"stderr":       {},
}
