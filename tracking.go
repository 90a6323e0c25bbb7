// tracking.go
package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tracker owns the processing lifecycle: Session and FormRecord state,
// hazard rows and the append-only audit trail. Tracking is observability,
// not a correctness dependency - every write except the explicit confirm
// path degrades gracefully.
type Tracker struct {
	db *gorm.DB
}

// NewTracker builds a tracker over the given database handle.
func NewTracker(db *gorm.DB) *Tracker {
	return &Tracker{db: db}
}

// CreateSession starts a new user/device journey. Best-effort: on
// persistence failure it logs and returns nil so processing continues
// untracked.
func (t *Tracker) CreateSession(userID string, device map[string]string) *Session {
	deviceJSON, _ := json.Marshal(device)
	session := &Session{
		SessionToken:   uuid.NewString(),
		UserIdentifier: userID,
		DeviceInfo:     string(deviceJSON),
		StartedAt:      time.Now().UTC(),
	}
	if err := t.db.Create(session).Error; err != nil {
		log.Printf("Warning: failed to create session, continuing untracked: %v", err)
		return nil
	}
	return session
}

// FindSessionByToken resolves an opaque session token to its Session row.
func (t *Tracker) FindSessionByToken(token string) (*Session, error) {
	var session Session
	if err := t.db.Where("session_token = ?", token).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// CreateFormRecord opens a FormRecord in the processing state and emits the
// form_processing_started audit event.
func (t *Tracker) CreateFormRecord(sessionID *uint, meta FormMetadata) (*FormRecord, error) {
	record := &FormRecord{
		SessionID:           sessionID,
		OriginalFileName:    meta.FileName,
		FileSize:            meta.FileSize,
		FileType:            meta.FileType,
		Status:              StatusProcessing,
		ProcessingStartTime: time.Now().UTC(),
	}
	if err := t.db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	t.appendAuditEvent(&record.ID, sessionID, AuditFormProcessingStarted, map[string]interface{}{
		"fileName": meta.FileName,
		"fileSize": meta.FileSize,
		"fileType": meta.FileType,
	})
	return record, nil
}

// RecordOCR updates the OCR fields on a FormRecord and emits ocr_completed.
// Terminal records are never updated.
func (t *Tracker) RecordOCR(formID uint, ocrResult *OCRResult) error {
	record, err := t.loadActiveRecord(formID)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"ocr_provider":          ocrResult.Provider,
		"ocr_confidence":        ocrResult.Confidence,
		"ocr_time_ms":           ocrResult.ProcessingTimeMs,
		"extracted_text_length": len(ocrResult.Text),
		"ocr_fallback_used":     ocrResult.FallbackUsed,
		"extracted_text":        ocrResult.Text,
	}
	if err := t.db.Model(record).Updates(updates).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	t.appendAuditEvent(&record.ID, record.SessionID, AuditOCRCompleted, map[string]interface{}{
		"provider":   ocrResult.Provider,
		"confidence": ocrResult.Confidence,
		"textLength": len(ocrResult.Text),
		"fallback":   ocrResult.FallbackUsed,
	})
	return nil
}

// RecordAI stores the analysis outcome, transitions the record to completed,
// stamps the wall-clock total processing time, and writes one Hazard row per
// flagged issue. Session counters are bumped when a session is attached.
func (t *Tracker) RecordAI(formID uint, analysis *AnalysisResult, aiTimeMs int64) error {
	record, err := t.loadActiveRecord(formID)
	if err != nil {
		return err
	}

	analysisJSON, _ := json.Marshal(analysis)
	hazardsJSON, _ := json.Marshal(analysis.FlaggedIssues)
	recommendationsJSON, _ := json.Marshal(analysis.Recommendations)
	standardsJSON, _ := json.Marshal(analysis.referencedStandards())
	totalMs := time.Since(record.ProcessingStartTime).Milliseconds()

	updates := map[string]interface{}{
		"ai_provider":          analysis.Provider,
		"ai_time_ms":           aiTimeMs,
		"form_type":            analysis.FormType,
		"risk_score":           analysis.RiskScore,
		"risk_level":           analysis.RiskLevel,
		"escalated":            analysis.Escalated,
		"supervisor_flag":      analysis.RequiresSupervisorReview,
		"referenced_standards": string(standardsJSON),
		"compliance_gap_count": len(analysis.ComplianceIssues),
		"analysis_json":        string(analysisJSON),
		"hazards_json":         string(hazardsJSON),
		"recommendations_json": string(recommendationsJSON),
		"status":               StatusCompleted,
		"total_processing_ms":  totalMs,
	}
	if err := t.db.Model(record).Updates(updates).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	t.appendAuditEvent(&record.ID, record.SessionID, AuditAIAnalysisCompleted, map[string]interface{}{
		"provider":  analysis.Provider,
		"riskScore": analysis.RiskScore,
		"riskLevel": analysis.RiskLevel,
		"fallback":  analysis.FallbackUsed,
	})

	for _, issue := range analysis.FlaggedIssues {
		hazard := Hazard{
			FormRecordID:      record.ID,
			HazardType:        issue.Type,
			Severity:          mapSeverityToInteger(issue.Severity),
			Description:       issue.Description,
			FormLocation:      issue.Location,
			Standard:          issue.Standard,
			RecommendedAction: issue.Recommendation,
			Priority:          mapPriorityToInteger(issue.Priority),
			CostImpact:        issue.CostImpact,
		}
		if err := t.db.Create(&hazard).Error; err != nil {
			log.Printf("Warning: failed to persist hazard %s for form %d: %v", issue.Type, record.ID, err)
		}
	}

	if record.SessionID != nil {
		err := t.db.Model(&Session{}).Where("id = ?", *record.SessionID).Updates(map[string]interface{}{
			"forms_processed":     gorm.Expr("forms_processed + 1"),
			"total_processing_ms": gorm.Expr("total_processing_ms + ?", totalMs),
		}).Error
		if err != nil {
			log.Printf("Warning: failed to update session counters: %v", err)
		}
	}
	return nil
}

// MarkFailed transitions a record to the terminal failed state with a
// structured error payload. Calling it on an already terminal record is a
// no-op.
func (t *Tracker) MarkFailed(formID uint, stage string, cause error) error {
	record, err := t.loadRecord(formID)
	if err != nil {
		return err
	}
	if isTerminalStatus(record.Status) {
		log.Printf("Form %d already %s, ignoring failure at stage %s", formID, record.Status, stage)
		return nil
	}

	errorJSON, _ := json.Marshal(map[string]string{
		"stage": stage,
		"error": cause.Error(),
	})
	updates := map[string]interface{}{
		"status":              StatusFailed,
		"error_json":          string(errorJSON),
		"total_processing_ms": time.Since(record.ProcessingStartTime).Milliseconds(),
	}
	if err := t.db.Model(record).Updates(updates).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	t.appendAuditEvent(&record.ID, record.SessionID, AuditProcessingFailed, map[string]string{
		"stage": stage,
		"error": cause.Error(),
	})
	return nil
}

// ConfirmForm is the commit half of the two-phase workflow: it creates the
// FormRecord and persists the (possibly corrected) OCR and analysis values,
// then audits the correction diff. This is the one path where persistence
// failure surfaces to the caller.
func (t *Tracker) ConfirmForm(sessionID *uint, meta FormMetadata, ocrResult *OCRResult, analysis *AnalysisResult, aiTimeMs int64, corrections map[string]interface{}) (*FormRecord, error) {
	record, err := t.CreateFormRecord(sessionID, meta)
	if err != nil {
		return nil, err
	}
	if err := t.RecordOCR(record.ID, ocrResult); err != nil {
		return nil, err
	}
	if err := t.RecordAI(record.ID, analysis, aiTimeMs); err != nil {
		return nil, err
	}

	t.appendAuditEvent(&record.ID, sessionID, AuditFormConfirmed, map[string]interface{}{
		"corrections": corrections,
	})
	return t.GetFormRecord(record.ID)
}

// loadRecord fetches a FormRecord by id.
func (t *Tracker) loadRecord(formID uint) (*FormRecord, error) {
	var record FormRecord
	if err := t.db.First(&record, formID).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	return &record, nil
}

// loadActiveRecord fetches a FormRecord and rejects terminal statuses:
// transitions are monotonic.
func (t *Tracker) loadActiveRecord(formID uint) (*FormRecord, error) {
	record, err := t.loadRecord(formID)
	if err != nil {
		return nil, err
	}
	if isTerminalStatus(record.Status) {
		return nil, fmt.Errorf("form %d is already %s and cannot be updated", formID, record.Status)
	}
	return record, nil
}

// appendAuditEvent writes one append-only audit entry. Failures are logged
// and swallowed: the audit trail is a best-effort side channel and must
// never abort the owning operation.
func (t *Tracker) appendAuditEvent(formID, sessionID *uint, eventType string, details interface{}) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		log.Printf("Warning: failed to encode audit details for %s: %v", eventType, err)
		detailsJSON = []byte("{}")
	}
	event := AuditEvent{
		FormRecordID: formID,
		SessionID:    sessionID,
		EventType:    eventType,
		Details:      string(detailsJSON),
	}
	if err := t.db.Create(&event).Error; err != nil {
		log.Printf("Warning: failed to write audit event %s: %v", eventType, err)
	}
}

// GetFormRecord fetches one FormRecord with its hazards.
func (t *Tracker) GetFormRecord(formID uint) (*FormRecord, error) {
	var record FormRecord
	if err := t.db.Preload("Hazards").First(&record, formID).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ListSessionForms returns every FormRecord for a session token, newest
// first.
func (t *Tracker) ListSessionForms(token string) ([]FormRecord, error) {
	session, err := t.FindSessionByToken(token)
	if err != nil {
		return nil, err
	}
	var records []FormRecord
	err = t.db.Where("session_id = ?", session.ID).
		Order("created_at DESC").
		Find(&records).Error
	return records, err
}

// SummaryReport aggregates processing outcomes over a time window.
type SummaryReport struct {
	Since               time.Time        `json:"since"`
	TotalForms          int64            `json:"totalForms"`
	ByStatus            map[string]int64 `json:"byStatus"`
	ByRiskLevel         map[string]int64 `json:"byRiskLevel"`
	AverageRiskScore    float64          `json:"averageRiskScore"`
	AverageProcessingMs float64          `json:"averageProcessingMs"`
	SupervisorFlagged   int64            `json:"supervisorFlagged"`
	DistinctSessions    int64            `json:"distinctSessions"`
}

// Summarize builds the aggregate report for forms created since the given
// time.
func (t *Tracker) Summarize(since time.Time) (*SummaryReport, error) {
	report := &SummaryReport{
		Since:       since,
		ByStatus:    make(map[string]int64),
		ByRiskLevel: make(map[string]int64),
	}

	window := t.db.Model(&FormRecord{}).Where("created_at >= ?", since)
	if err := window.Count(&report.TotalForms).Error; err != nil {
		return nil, err
	}

	var statusCounts []struct {
		Status string
		Count  int64
	}
	err := t.db.Model(&FormRecord{}).
		Select("status, COUNT(*) as count").
		Where("created_at >= ?", since).
		Group("status").
		Scan(&statusCounts).Error
	if err != nil {
		return nil, err
	}
	for _, row := range statusCounts {
		report.ByStatus[row.Status] = row.Count
	}

	var levelCounts []struct {
		RiskLevel string
		Count     int64
	}
	err = t.db.Model(&FormRecord{}).
		Select("risk_level, COUNT(*) as count").
		Where("created_at >= ? AND risk_level <> ''", since).
		Group("risk_level").
		Scan(&levelCounts).Error
	if err != nil {
		return nil, err
	}
	for _, row := range levelCounts {
		report.ByRiskLevel[row.RiskLevel] = row.Count
	}

	var avgScore, avgTime sql.NullFloat64
	row := t.db.Model(&FormRecord{}).
		Select("AVG(risk_score), AVG(total_processing_ms)").
		Where("created_at >= ? AND status = ?", since, StatusCompleted).
		Row()
	if err := row.Scan(&avgScore, &avgTime); err == nil {
		report.AverageRiskScore = avgScore.Float64
		report.AverageProcessingMs = avgTime.Float64
	}

	err = t.db.Model(&FormRecord{}).
		Where("created_at >= ? AND supervisor_flag = ?", since, true).
		Count(&report.SupervisorFlagged).Error
	if err != nil {
		return nil, err
	}

	err = t.db.Model(&FormRecord{}).
		Select("COUNT(DISTINCT session_id)").
		Where("created_at >= ? AND session_id IS NOT NULL", since).
		Scan(&report.DistinctSessions).Error
	if err != nil {
		return nil, err
	}

	return report, nil
}

// HazardTrend is the per-category aggregation over a time window.
type HazardTrend struct {
	HazardType      string  `json:"hazardType"`
	Count           int64   `json:"count"`
	AverageSeverity float64 `json:"averageSeverity"`
}

// HazardTrends aggregates hazard counts and average severity per category
// for hazards created since the given time, most frequent first.
func (t *Tracker) HazardTrends(since time.Time) ([]HazardTrend, error) {
	var trends []HazardTrend
	err := t.db.Model(&Hazard{}).
		Select("hazard_type, COUNT(*) as count, AVG(severity) as average_severity").
		Where("created_at >= ?", since).
		Group("hazard_type").
		Order("count DESC").
		Scan(&trends).Error
	return trends, err
}
