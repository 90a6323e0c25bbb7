// routes.go
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// healthCheck responds with the server status plus the state of its two hard
// dependencies: the database and the external OCR service.
func healthCheck(c *gin.Context) {
	dbStatus := "online"
	if sqlDB, err := db.DB(); err != nil || sqlDB.Ping() != nil {
		dbStatus = "offline"
	}

	ocrStatus := "offline"
	if isOCRServiceOnline(serverConfig.OCR.HealthCheckURL) {
		ocrStatus = "online"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"time":     time.Now().UTC().Format(time.RFC3339),
		"service":  "safety-forms-app",
		"database": dbStatus,
		"ocr":      ocrStatus,
	})
}

// registerRoutes sets up all the API endpoints for the server
func registerRoutes(r *gin.Engine) {
	// Health check endpoints (no session required)
	r.GET("/", healthCheck)
	r.GET("/health", healthCheck)

	api := r.Group("/api")
	{
		api.POST("/forms/upload", uploadForm)
		api.POST("/forms/upload_batch", uploadFormBatch)
		api.POST("/forms/analyze", analyzeForm)
		api.POST("/forms/confirm", confirmForm)
		api.GET("/forms/:id", getForm)
		api.GET("/sessions/:token/forms", getSessionForms)
		api.GET("/analytics/summary", getAnalyticsSummary)
		api.GET("/analytics/hazards", getHazardTrends)
		api.GET("/stats", getRequestStats)
	}
}

// sanitizeInput cleans the input string to prevent injection attacks
func sanitizeInput(input string) string {
	input = strings.TrimSpace(input)
	re := regexp.MustCompile(`[^\w@.\- ]`)
	return re.ReplaceAllString(input, "")
}

// getOrCreateSession resolves the caller's tracking session from the cookie
// store, creating one on first contact. Returns nil when tracking is
// degraded; processing continues without it.
func getOrCreateSession(c *gin.Context) *Session {
	store := sessions.Default(c)

	if token, ok := store.Get("session_token").(string); ok && token != "" {
		if session, err := tracker.FindSessionByToken(token); err == nil {
			return session
		}
		log.Printf("Session token %s no longer resolves, starting a new session", token)
	}

	userID := sanitizeInput(c.PostForm("user_identifier"))
	session := tracker.CreateSession(userID, map[string]string{
		"userAgent": c.Request.UserAgent(),
		"remoteIP":  c.ClientIP(),
	})
	if session == nil {
		return nil
	}

	store.Set("session_token", session.SessionToken)
	if err := store.Save(); err != nil {
		log.Printf("Warning: failed to save session cookie: %v", err)
	}
	return session
}

// formMetadataFromRequest collects the multipart fields that accompany a form
// image.
func formMetadataFromRequest(c *gin.Context, fileName string, fileSize int64, fileType string) FormMetadata {
	return FormMetadata{
		FileName:     fileName,
		FileSize:     fileSize,
		FileType:     fileType,
		FormTypeHint: strings.ToUpper(sanitizeInput(c.PostForm("form_type"))),
		OCRProvider:  sanitizeInput(c.PostForm("ocr_provider")),
		Capture: CaptureContext{
			CaptureMethod: sanitizeInput(c.PostForm("capture_method")),
			DeviceType:    sanitizeInput(c.PostForm("device_type")),
			ImageQuality:  sanitizeInput(c.PostForm("image_quality")),
		},
	}
}

// readUploadedImage pulls the "image" part out of the multipart request.
func readUploadedImage(c *gin.Context) ([]byte, FormMetadata, error) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		return nil, FormMetadata{}, fmt.Errorf("image file is required: %v", err)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, FormMetadata{}, fmt.Errorf("failed to open uploaded file: %v", err)
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		return nil, FormMetadata{}, fmt.Errorf("failed to read uploaded file: %v", err)
	}

	meta := formMetadataFromRequest(c, fileHeader.Filename, fileHeader.Size, fileHeader.Header.Get("Content-Type"))
	return image, meta, nil
}

// uploadForm is the single-shot pipeline: OCR, analysis, escalation and
// persistence in one request. Tracking failures degrade to logging; the
// caller always gets the analysis.
func uploadForm(c *gin.Context) {
	image, meta, err := readUploadedImage(c)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	session := getOrCreateSession(c)
	var sessionID *uint
	if session != nil {
		sessionID = &session.ID
	}

	record, err := tracker.CreateFormRecord(sessionID, meta)
	if err != nil {
		log.Printf("Warning: tracking unavailable, processing untracked: %v", err)
		record = nil
	}

	result := processor.ProcessForm(c.Request.Context(), image, meta)

	if record != nil {
		persistProcessResult(record.ID, result)
		c.Header("X-Form-Record-ID", strconv.FormatUint(uint64(record.ID), 10))
	}

	response := gin.H{"result": result}
	if record != nil {
		response["formRecordId"] = record.ID
	}
	if session != nil {
		response["sessionToken"] = session.SessionToken
	}

	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// persistProcessResult writes the pipeline outcome onto an open FormRecord.
// Every error here is logged and swallowed.
func persistProcessResult(recordID uint, result *ProcessResult) {
	if result.OCR != nil {
		if err := tracker.RecordOCR(recordID, result.OCR); err != nil {
			log.Printf("Warning: failed to record OCR result for form %d: %v", recordID, err)
		}
	}
	if result.Success {
		if err := tracker.RecordAI(recordID, result.Analysis, result.AnalysisTimeMs); err != nil {
			log.Printf("Warning: failed to record analysis for form %d: %v", recordID, err)
		}
		return
	}
	if err := tracker.MarkFailed(recordID, result.Stage, errors.New(result.Error)); err != nil {
		log.Printf("Warning: failed to mark form %d failed: %v", recordID, err)
	}
}

// uploadFormBatch accepts multiple images under the "images" field and runs
// them through the windowed batch pipeline. Batch items are persisted
// individually with the same degradation rules as single uploads.
func uploadFormBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		RespondBadRequest(c, "multipart form required: "+err.Error())
		return
	}
	files := form.File["images"]
	if len(files) == 0 {
		RespondBadRequest(c, "at least one image is required under the 'images' field")
		return
	}

	session := getOrCreateSession(c)
	var sessionID *uint
	if session != nil {
		sessionID = &session.ID
	}

	items := make([]BatchItem, 0, len(files))
	for _, fileHeader := range files {
		file, err := fileHeader.Open()
		if err != nil {
			RespondBadRequest(c, fmt.Sprintf("failed to open %s: %v", fileHeader.Filename, err))
			return
		}
		image, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			RespondBadRequest(c, fmt.Sprintf("failed to read %s: %v", fileHeader.Filename, err))
			return
		}
		items = append(items, BatchItem{
			Image: image,
			Meta:  formMetadataFromRequest(c, fileHeader.Filename, fileHeader.Size, fileHeader.Header.Get("Content-Type")),
		})
	}

	// Open every record before dispatching so ProcessingStartTime brackets
	// the actual work and per-form totals stay meaningful.
	records := make([]*FormRecord, len(items))
	for i := range items {
		record, err := tracker.CreateFormRecord(sessionID, items[i].Meta)
		if err != nil {
			log.Printf("Warning: tracking unavailable for batch item %d: %v", i, err)
			continue
		}
		records[i] = record
	}

	results := processor.ProcessBatch(c.Request.Context(), items)

	succeeded := 0
	for _, batchResult := range results {
		if batchResult.Result.Success {
			succeeded++
		}
		if record := records[batchResult.Index]; record != nil {
			persistProcessResult(record.ID, batchResult.Result)
		}
	}

	response := gin.H{
		"total":     len(results),
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
		"results":   results,
	}
	if session != nil {
		response["sessionToken"] = session.SessionToken
	}
	c.JSON(http.StatusOK, response)
}

// analyzeForm is the preview half of the two-phase workflow: the full
// pipeline runs but nothing is persisted. The client reviews the result and
// posts it back through confirmForm to commit.
func analyzeForm(c *gin.Context) {
	image, meta, err := readUploadedImage(c)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	session := getOrCreateSession(c)
	result := processor.ProcessForm(c.Request.Context(), image, meta)

	response := gin.H{"result": result}
	if session != nil {
		response["sessionToken"] = session.SessionToken
	}

	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// ConfirmCorrections are the fields a reviewer may override before the
// analysis is committed.
type ConfirmCorrections struct {
	FormType     *string `json:"formType"`
	RiskScore    *int    `json:"riskScore"`
	WorkLocation *string `json:"workLocation"`
	WorkActivity *string `json:"workActivity"`
}

// ConfirmRequest is the commit payload: the previewed OCR and analysis
// results plus any reviewer corrections.
type ConfirmRequest struct {
	FileName       string              `json:"fileName"`
	FileSize       int64               `json:"fileSize"`
	FileType       string              `json:"fileType"`
	OCR            *OCRResult          `json:"ocrResult" binding:"required"`
	Analysis       *AnalysisResult     `json:"analysis" binding:"required"`
	AnalysisTimeMs int64               `json:"analysisTimeMs"`
	Corrections    *ConfirmCorrections `json:"corrections"`
}

// confirmForm commits a previewed analysis. Corrections are applied on top
// of the previewed values and the before/after diff goes into the audit
// trail. This is the one endpoint where persistence failure is a hard error.
func confirmForm(c *gin.Context) {
	var payload ConfirmRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		RespondBadRequest(c, "ocrResult and analysis are required: "+err.Error())
		return
	}

	diff := applyCorrections(payload.Analysis, payload.Corrections)

	session := getOrCreateSession(c)
	var sessionID *uint
	if session != nil {
		sessionID = &session.ID
	}

	meta := FormMetadata{
		FileName: payload.FileName,
		FileSize: payload.FileSize,
		FileType: payload.FileType,
	}
	record, err := tracker.ConfirmForm(sessionID, meta, payload.OCR, payload.Analysis, payload.AnalysisTimeMs, diff)
	if err != nil {
		log.Printf("Failed to confirm form: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "failed to persist confirmed form",
			Code:  ErrCodeInternal,
			Stage: StageConfirmation,
		})
		return
	}

	response := gin.H{
		"formRecordId": record.ID,
		"record":       record,
	}
	if session != nil {
		response["sessionToken"] = session.SessionToken
	}
	c.JSON(http.StatusCreated, response)
}

// applyCorrections overwrites reviewer-corrected fields on the analysis and
// returns the before/after diff for the audit trail. A corrected risk score
// is clamped and re-derives the level and review flag.
func applyCorrections(analysis *AnalysisResult, corrections *ConfirmCorrections) map[string]interface{} {
	diff := map[string]interface{}{}
	if corrections == nil {
		return diff
	}

	if corrections.FormType != nil && *corrections.FormType != analysis.FormType {
		diff["formType"] = map[string]string{"from": analysis.FormType, "to": *corrections.FormType}
		analysis.FormType = *corrections.FormType
		analysis.FormTypeConfidence = ConfidenceHigh
	}
	if corrections.RiskScore != nil && *corrections.RiskScore != analysis.RiskScore {
		corrected := clampScore(*corrections.RiskScore)
		diff["riskScore"] = map[string]int{"from": analysis.RiskScore, "to": corrected}
		analysis.RiskScore = corrected
		analysis.RiskLevel = riskLevelForScore(corrected)
		analysis.RequiresSupervisorReview = supervisorReviewRequired(analysis)
	}
	if corrections.WorkLocation != nil && *corrections.WorkLocation != analysis.WorkLocation {
		diff["workLocation"] = map[string]string{"from": analysis.WorkLocation, "to": *corrections.WorkLocation}
		analysis.WorkLocation = *corrections.WorkLocation
	}
	if corrections.WorkActivity != nil && *corrections.WorkActivity != analysis.WorkActivity {
		diff["workActivity"] = map[string]string{"from": analysis.WorkActivity, "to": *corrections.WorkActivity}
		analysis.WorkActivity = *corrections.WorkActivity
	}
	return diff
}

// getForm returns one FormRecord with its hazards.
func getForm(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		RespondBadRequest(c, "form id must be a positive integer")
		return
	}

	record, err := tracker.GetFormRecord(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			RespondNotFound(c, "form record not found")
			return
		}
		RespondInternalError(c, "failed to load form record")
		return
	}
	c.JSON(http.StatusOK, record)
}

// getSessionForms lists a session's forms, newest first.
func getSessionForms(c *gin.Context) {
	token := sanitizeInput(c.Param("token"))
	if token == "" {
		RespondBadRequest(c, "session token is required")
		return
	}

	records, err := tracker.ListSessionForms(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			RespondNotFound(c, "session not found")
			return
		}
		RespondInternalError(c, "failed to load session forms")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionToken": token, "forms": records})
}

// sinceFromQuery reads the reporting window from the "days" query parameter,
// defaulting to the last 30 days.
func sinceFromQuery(c *gin.Context) (time.Time, error) {
	days := 30
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return time.Time{}, fmt.Errorf("days must be a positive integer")
		}
		days = parsed
	}
	return time.Now().UTC().AddDate(0, 0, -days), nil
}

// getAnalyticsSummary aggregates processing outcomes over the window.
func getAnalyticsSummary(c *gin.Context) {
	since, err := sinceFromQuery(c)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	report, err := tracker.Summarize(since)
	if err != nil {
		log.Printf("Failed to build summary report: %v", err)
		RespondInternalError(c, "failed to build summary report")
		return
	}
	c.JSON(http.StatusOK, report)
}

// getHazardTrends aggregates hazard categories over the window.
func getHazardTrends(c *gin.Context) {
	since, err := sinceFromQuery(c)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	trends, err := tracker.HazardTrends(since)
	if err != nil {
		log.Printf("Failed to build hazard trends: %v", err)
		RespondInternalError(c, "failed to build hazard trends")
		return
	}
	c.JSON(http.StatusOK, gin.H{"since": since, "trends": trends})
}

// getRequestStats exposes the in-process request counters.
func getRequestStats(c *gin.Context) {
	c.JSON(http.StatusOK, requestStats.Snapshot())
}
