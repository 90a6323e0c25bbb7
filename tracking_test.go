package main

import (
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	testDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := testDB.AutoMigrate(&Session{}, &FormRecord{}, &Hazard{}, &AuditEvent{}); err != nil {
		t.Fatalf("Failed to migrate test schema: %v", err)
	}
	return NewTracker(testDB)
}

func completedAnalysis() *AnalysisResult {
	return &AnalysisResult{
		FormType:  FormTypeTake5,
		RiskScore: 6,
		RiskLevel: RiskLevelMedium,
		Provider:  "anthropic",
		FlaggedIssues: []FlaggedIssue{
			{Type: "h2s_monitor", Severity: SeverityCritical, Standard: "AS 2865", Priority: SeverityCritical},
			{Type: "hand_protection", Severity: SeverityLow, Priority: SeverityLow},
		},
		ComplianceIssues:         []ComplianceIssue{{Issue: "no SWMS reference", Severity: SeverityHigh, Standard: "WHS Reg 299"}},
		RequiresSupervisorReview: true,
		FormCompleteness:         CompletenessComplete,
	}
}

func TestCreateSessionIssuesToken(t *testing.T) {
	tr := newTestTracker(t)

	session := tr.CreateSession("worker-42", map[string]string{"userAgent": "test"})
	if session == nil {
		t.Fatal("Expected a session")
	}
	if session.SessionToken == "" {
		t.Error("Expected a non-empty session token")
	}

	found, err := tr.FindSessionByToken(session.SessionToken)
	if err != nil {
		t.Fatalf("Expected the token to resolve: %v", err)
	}
	if found.ID != session.ID {
		t.Error("Token resolved to the wrong session")
	}
}

func TestFormRecordLifecycle(t *testing.T) {
	tr := newTestTracker(t)
	session := tr.CreateSession("", nil)

	record, err := tr.CreateFormRecord(&session.ID, FormMetadata{FileName: "take5.jpg", FileSize: 1234, FileType: "image/jpeg"})
	if err != nil {
		t.Fatalf("Failed to create form record: %v", err)
	}
	if record.Status != StatusProcessing {
		t.Errorf("New records must start processing, got %s", record.Status)
	}

	ocrResult := &OCRResult{Text: "take 5 checklist text", Confidence: 88, Provider: "tesseract", ProcessingTimeMs: 120}
	if err := tr.RecordOCR(record.ID, ocrResult); err != nil {
		t.Fatalf("Failed to record OCR: %v", err)
	}

	if err := tr.RecordAI(record.ID, completedAnalysis(), 950); err != nil {
		t.Fatalf("Failed to record analysis: %v", err)
	}

	stored, err := tr.GetFormRecord(record.ID)
	if err != nil {
		t.Fatalf("Failed to load record: %v", err)
	}
	if stored.Status != StatusCompleted {
		t.Errorf("Expected completed status, got %s", stored.Status)
	}
	if stored.OCRProvider != "tesseract" || stored.OCRConfidence != 88 {
		t.Errorf("OCR fields not persisted: %s/%f", stored.OCRProvider, stored.OCRConfidence)
	}
	if stored.RiskScore != 6 || stored.FormType != FormTypeTake5 {
		t.Errorf("Analysis fields not persisted: %d/%s", stored.RiskScore, stored.FormType)
	}
	if !stored.SupervisorFlag {
		t.Error("Supervisor flag not persisted")
	}
	if stored.ComplianceGapCount != 1 {
		t.Errorf("Expected 1 compliance gap, got %d", stored.ComplianceGapCount)
	}

	// One Hazard row per flagged issue, with ordinal severities.
	if len(stored.Hazards) != 2 {
		t.Fatalf("Expected 2 hazard rows, got %d", len(stored.Hazards))
	}
	severities := map[string]int{}
	for _, hazard := range stored.Hazards {
		severities[hazard.HazardType] = hazard.Severity
	}
	if severities["h2s_monitor"] != 4 {
		t.Errorf("CRITICAL must map to 4, got %d", severities["h2s_monitor"])
	}
	if severities["hand_protection"] != 1 {
		t.Errorf("LOW must map to 1, got %d", severities["hand_protection"])
	}

	// Session counters were bumped.
	updated, _ := tr.FindSessionByToken(session.SessionToken)
	if updated.FormsProcessed != 1 {
		t.Errorf("Expected 1 form counted on the session, got %d", updated.FormsProcessed)
	}
}

func TestStatusTransitionsAreMonotonic(t *testing.T) {
	tr := newTestTracker(t)
	record, _ := tr.CreateFormRecord(nil, FormMetadata{FileName: "a.jpg"})

	if err := tr.RecordAI(record.ID, completedAnalysis(), 100); err != nil {
		t.Fatalf("Failed to complete record: %v", err)
	}

	// Completed records reject further stage updates.
	if err := tr.RecordOCR(record.ID, &OCRResult{Text: "late"}); err == nil {
		t.Error("Expected an error recording OCR on a completed record")
	}
	if err := tr.RecordAI(record.ID, completedAnalysis(), 100); err == nil {
		t.Error("Expected an error re-recording analysis on a completed record")
	}

	// MarkFailed on a completed record is a no-op, never a regression.
	if err := tr.MarkFailed(record.ID, StageOCR, errors.New("late failure")); err != nil {
		t.Fatalf("MarkFailed on terminal record must not error: %v", err)
	}
	stored, _ := tr.GetFormRecord(record.ID)
	if stored.Status != StatusCompleted {
		t.Errorf("Completed record must stay completed, got %s", stored.Status)
	}
}

func TestMarkFailedIsTerminal(t *testing.T) {
	tr := newTestTracker(t)
	record, _ := tr.CreateFormRecord(nil, FormMetadata{FileName: "a.jpg"})

	if err := tr.MarkFailed(record.ID, StageOCR, errors.New("ocr service unreachable")); err != nil {
		t.Fatalf("Failed to mark record failed: %v", err)
	}

	stored, _ := tr.GetFormRecord(record.ID)
	if stored.Status != StatusFailed {
		t.Errorf("Expected failed status, got %s", stored.Status)
	}
	if stored.ErrorJSON == "" {
		t.Error("Expected a structured error payload")
	}

	// Failed is terminal too.
	if err := tr.RecordAI(record.ID, completedAnalysis(), 100); err == nil {
		t.Error("Expected an error recording analysis on a failed record")
	}
}

func TestAuditTrailAppends(t *testing.T) {
	tr := newTestTracker(t)
	session := tr.CreateSession("", nil)
	record, _ := tr.CreateFormRecord(&session.ID, FormMetadata{FileName: "a.jpg"})
	tr.RecordOCR(record.ID, &OCRResult{Text: "text", Provider: "tesseract"})
	tr.RecordAI(record.ID, completedAnalysis(), 100)

	var events []AuditEvent
	if err := tr.db.Where("form_record_id = ?", record.ID).Order("id").Find(&events).Error; err != nil {
		t.Fatalf("Failed to load audit events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 audit events, got %d", len(events))
	}
	expected := []string{AuditFormProcessingStarted, AuditOCRCompleted, AuditAIAnalysisCompleted}
	for i, event := range events {
		if event.EventType != expected[i] {
			t.Errorf("Event %d: expected %s, got %s", i, expected[i], event.EventType)
		}
	}
}

func TestConfirmFormPersistsOnce(t *testing.T) {
	tr := newTestTracker(t)
	session := tr.CreateSession("", nil)

	ocrResult := &OCRResult{Text: "take 5 checklist", Confidence: 80, Provider: "tesseract"}
	corrections := map[string]interface{}{
		"formType": map[string]string{"from": "UNKNOWN", "to": FormTypeTake5},
	}

	record, err := tr.ConfirmForm(&session.ID, FormMetadata{FileName: "a.jpg"}, ocrResult, completedAnalysis(), 400, corrections)
	if err != nil {
		t.Fatalf("Failed to confirm form: %v", err)
	}
	if record.Status != StatusCompleted {
		t.Errorf("Confirmed records must be completed, got %s", record.Status)
	}

	var count int64
	tr.db.Model(&FormRecord{}).Count(&count)
	if count != 1 {
		t.Errorf("Expected exactly one record after confirm, got %d", count)
	}

	var confirmEvents int64
	tr.db.Model(&AuditEvent{}).Where("event_type = ?", AuditFormConfirmed).Count(&confirmEvents)
	if confirmEvents != 1 {
		t.Errorf("Expected one form_confirmed audit event, got %d", confirmEvents)
	}
}

func TestListSessionFormsNewestFirst(t *testing.T) {
	tr := newTestTracker(t)
	session := tr.CreateSession("", nil)

	first, _ := tr.CreateFormRecord(&session.ID, FormMetadata{FileName: "first.jpg"})
	// Separate creation instants so ordering is deterministic.
	tr.db.Model(&FormRecord{}).Where("id = ?", first.ID).Update("created_at", time.Now().Add(-time.Minute))
	tr.CreateFormRecord(&session.ID, FormMetadata{FileName: "second.jpg"})

	records, err := tr.ListSessionForms(session.SessionToken)
	if err != nil {
		t.Fatalf("Failed to list session forms: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].OriginalFileName != "second.jpg" {
		t.Errorf("Expected newest first, got %s", records[0].OriginalFileName)
	}

	if _, err := tr.ListSessionForms("no-such-token"); err == nil {
		t.Error("Expected an error for an unknown token")
	}
}

func TestSummarizeAggregates(t *testing.T) {
	tr := newTestTracker(t)
	session := tr.CreateSession("", nil)

	done, _ := tr.CreateFormRecord(&session.ID, FormMetadata{FileName: "done.jpg"})
	tr.RecordAI(done.ID, completedAnalysis(), 100)

	broken, _ := tr.CreateFormRecord(&session.ID, FormMetadata{FileName: "broken.jpg"})
	tr.MarkFailed(broken.ID, StageOCR, errors.New("unreadable"))

	since := time.Now().UTC().AddDate(0, 0, -1)
	report, err := tr.Summarize(since)
	if err != nil {
		t.Fatalf("Failed to summarize: %v", err)
	}

	if report.TotalForms != 2 {
		t.Errorf("Expected 2 forms in the window, got %d", report.TotalForms)
	}
	if report.ByStatus[StatusCompleted] != 1 || report.ByStatus[StatusFailed] != 1 {
		t.Errorf("Unexpected status breakdown: %v", report.ByStatus)
	}
	if report.ByRiskLevel[RiskLevelMedium] != 1 {
		t.Errorf("Expected 1 MEDIUM form, got %v", report.ByRiskLevel)
	}
	if report.AverageRiskScore != 6 {
		t.Errorf("Expected average score 6, got %f", report.AverageRiskScore)
	}
	if report.SupervisorFlagged != 1 {
		t.Errorf("Expected 1 flagged form, got %d", report.SupervisorFlagged)
	}
	if report.DistinctSessions != 1 {
		t.Errorf("Expected 1 distinct session, got %d", report.DistinctSessions)
	}
}

func TestHazardTrendsAggregates(t *testing.T) {
	tr := newTestTracker(t)

	for i := 0; i < 2; i++ {
		record, _ := tr.CreateFormRecord(nil, FormMetadata{FileName: "a.jpg"})
		tr.RecordAI(record.ID, completedAnalysis(), 100)
	}

	since := time.Now().UTC().AddDate(0, 0, -1)
	trends, err := tr.HazardTrends(since)
	if err != nil {
		t.Fatalf("Failed to build hazard trends: %v", err)
	}
	if len(trends) != 2 {
		t.Fatalf("Expected 2 hazard categories, got %d", len(trends))
	}

	byType := map[string]HazardTrend{}
	for _, trend := range trends {
		byType[trend.HazardType] = trend
	}
	if byType["h2s_monitor"].Count != 2 {
		t.Errorf("Expected 2 h2s_monitor hazards, got %d", byType["h2s_monitor"].Count)
	}
	if byType["h2s_monitor"].AverageSeverity != 4 {
		t.Errorf("Expected average severity 4, got %f", byType["h2s_monitor"].AverageSeverity)
	}
}
