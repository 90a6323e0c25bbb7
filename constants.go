// constants.go
package main

// Form processing status values. Transitions are monotonic: a record never
// leaves "completed" or "failed".
const (
	StatusProcessing = "processing" // Form accepted, pipeline running
	StatusCompleted  = "completed"  // AI analysis recorded successfully
	StatusFailed     = "failed"     // Terminal failure at any stage
)

// Pipeline stage names reported on structured failures
const (
	StageOCR           = "ocr"
	StageOCRValidation = "ocr_validation"
	StageAIAnalysis    = "ai_analysis"
	StageUnexpected    = "unexpected_error"
	StageConfirmation  = "confirmation_error"
)

// Risk levels derived from the 1-10 risk score
const (
	RiskLevelLow      = "LOW"
	RiskLevelMedium   = "MEDIUM"
	RiskLevelHigh     = "HIGH"
	RiskLevelCritical = "CRITICAL"
)

// Severity and priority ordinal labels
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// Form completeness states
const (
	CompletenessComplete   = "COMPLETE"
	CompletenessPartial    = "PARTIALLY_COMPLETE"
	CompletenessIncomplete = "INCOMPLETE"
)

// Confidence labels for form type detection
const (
	ConfidenceHigh   = "HIGH"
	ConfidenceMedium = "MEDIUM"
	ConfidenceLow    = "LOW"
)

// Recognized form types. Classification falls back to SAFETY_FORM when the
// text is clearly a safety document but no family matches, else UNKNOWN.
const (
	FormTypeTake5             = "TAKE_5"
	FormTypeJSA               = "JSA"
	FormTypePermitToWork      = "PERMIT_TO_WORK"
	FormTypeToolboxTalk       = "TOOLBOX_TALK"
	FormTypeIncidentReport    = "INCIDENT_REPORT"
	FormTypeVehicleInspection = "VEHICLE_INSPECTION"
	FormTypeSafetyForm        = "SAFETY_FORM"
	FormTypeUnknown           = "UNKNOWN"
)

// Audit event types
const (
	AuditFormProcessingStarted = "form_processing_started"
	AuditOCRCompleted          = "ocr_completed"
	AuditAIAnalysisCompleted   = "ai_analysis_completed"
	AuditProcessingFailed      = "processing_failed"
	AuditFormConfirmed         = "form_confirmed"
)
