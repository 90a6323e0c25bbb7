//models.go
package main

import (
	"time"

	"gorm.io/gorm"
)

// Session represents one user/device journey across form submissions.
// Created on the first submission and never deleted by this service.
type Session struct {
	gorm.Model
	SessionToken      string `gorm:"uniqueIndex;not null"` // Opaque token handed to the client
	UserIdentifier    string // Optional external user identifier
	DeviceInfo        string `gorm:"type:text"` // Free-form device/location metadata, JSON encoded
	StartedAt         time.Time
	EndedAt           *time.Time
	FormsProcessed    int   // Aggregate count of forms processed in this journey
	TotalProcessingMs int64 // Cumulative processing time across forms
}

// FormRecord represents one submitted safety form and the outcome of its
// processing pipeline. SessionID is nullable: tracking degrades gracefully
// when session creation failed.
type FormRecord struct {
	gorm.Model
	SessionID *uint `gorm:"index"`

	// File metadata
	OriginalFileName string
	FileSize         int64
	FileType         string

	// OCR stage
	OCRProvider         string
	OCRConfidence       float64 // 0-100
	OCRTimeMs           int64
	ExtractedTextLength int
	OCRFallbackUsed     bool
	ExtractedText       string `gorm:"type:text"`

	// AI analysis stage
	AIProvider          string `gorm:"column:ai_provider"`
	AITimeMs            int64
	FormType            string
	RiskScore           int // Always in [1,10] once set
	RiskLevel           string
	Escalated           bool // True when rule-based escalation raised the score
	SupervisorFlag      bool
	ReferencedStandards string `gorm:"type:text"` // JSON array of standard references
	ComplianceGapCount  int
	AnalysisJSON        string `gorm:"type:text"` // Full analysis payload
	HazardsJSON         string `gorm:"type:text"` // Flagged issue payload
	RecommendationsJSON string `gorm:"type:text"`

	// Lifecycle
	Status              string `gorm:"index"` // processing, completed, failed
	ErrorJSON           string `gorm:"type:text"`
	ProcessingStartTime time.Time
	TotalProcessingMs   int64

	Hazards []Hazard
}

// Hazard is one detected issue belonging to exactly one FormRecord. Rows are
// created after the AI stage update and never mutated afterward.
type Hazard struct {
	gorm.Model
	FormRecordID      uint `gorm:"index;not null"`
	HazardType        string
	Severity          int // 1-4, mapped from LOW/MEDIUM/HIGH/CRITICAL
	Description       string `gorm:"type:text"`
	FormLocation      string
	Standard          string // Optional violated-standard reference
	RecommendedAction string `gorm:"type:text"`
	Priority          int    // 1-4, same ordinal mapping as Severity
	CostImpact        string
}

// AuditEvent is an append-only log entry referencing a FormRecord and/or
// Session. Writes are best-effort: a failed audit write never aborts the
// owning operation.
type AuditEvent struct {
	gorm.Model
	FormRecordID *uint  `gorm:"index"`
	SessionID    *uint  `gorm:"index"`
	EventType    string `gorm:"index;not null"`
	Details      string `gorm:"type:text"` // Free-form JSON payload
}

// mapSeverityToInteger converts an ordinal severity label to a small integer.
// Unknown or absent labels default to 2 (MEDIUM).
func mapSeverityToInteger(label string) int {
	switch label {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 2
	}
}

// mapPriorityToInteger converts an ordinal priority label to a small integer
// using the same mapping as severities.
func mapPriorityToInteger(label string) int {
	return mapSeverityToInteger(label)
}

// isTerminalStatus reports whether a FormRecord status permits no further
// transitions.
func isTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}
