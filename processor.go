// processor.go
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FormMetadata carries caller-supplied context for one submission.
type FormMetadata struct {
	FileName     string
	FileSize     int64
	FileType     string
	FormTypeHint string
	OCRProvider  string
	Capture      CaptureContext
}

// ProcessResult is the full outcome of one form's pipeline run. The contract
// is "always produces an analysis": even failures carry a synthetic
// medium-risk, review-required payload so the human workflow keeps moving.
type ProcessResult struct {
	Success        bool            `json:"success"`
	Stage          string          `json:"stage,omitempty"` // Failing stage when Success is false
	Error          string          `json:"error,omitempty"`
	FormType       string          `json:"formType"`
	RiskScore      int             `json:"riskScore"`
	Analysis       *AnalysisResult `json:"analysis"`
	OCR            *OCRResult      `json:"ocrResult,omitempty"`
	OCRTimeMs      int64           `json:"ocrTimeMs"`
	AnalysisTimeMs int64           `json:"analysisTimeMs"`
	TotalTimeMs    int64           `json:"totalTimeMs"`
}

// FormProcessor sequences OCR, validation, analysis and contextual
// re-scoring for one form at a time.
type FormProcessor struct {
	ocr           OCRClient
	orchestrator  *AnalysisOrchestrator
	minTextLength int
	batchWindow   int
	batchPause    time.Duration
}

// NewFormProcessor wires the processor to its collaborators. minTextLength
// is the single configurable threshold below which OCR output is rejected.
func NewFormProcessor(ocr OCRClient, orchestrator *AnalysisOrchestrator, cfg ProcessingSettings) *FormProcessor {
	minLength := cfg.MinTextLength
	if minLength <= 0 {
		minLength = 10
	}
	window := cfg.BatchWindowSize
	if window <= 0 {
		window = 1
	}
	pause := time.Duration(cfg.BatchPauseMs) * time.Millisecond
	if cfg.BatchPauseMs <= 0 {
		pause = 500 * time.Millisecond
	}
	return &FormProcessor{
		ocr:           ocr,
		orchestrator:  orchestrator,
		minTextLength: minLength,
		batchWindow:   window,
		batchPause:    pause,
	}
}

// ProcessForm runs the linear pipeline over raw image bytes. It never
// returns an error: failures come back as structured results with the
// failing stage and any partial OCR context attached.
func (p *FormProcessor) ProcessForm(ctx context.Context, image []byte, meta FormMetadata) *ProcessResult {
	start := time.Now()

	// Step 1: external OCR
	ocrResult, err := p.ocr.ExtractText(ctx, image, meta.OCRProvider, meta.Capture)
	if err != nil {
		return p.failureResult(StageOCR, err, nil, start)
	}

	// Step 1b: reject forms that produced too little signal to analyze
	text := strings.TrimSpace(ocrResult.Text)
	if len(text) < p.minTextLength {
		err := fmt.Errorf("%w: got %d characters, need %d", ErrInsufficientText, len(text), p.minTextLength)
		return p.failureResult(StageOCRValidation, err, ocrResult, start)
	}

	// Step 2: resolve form type from the caller hint or the classifier
	formType := meta.FormTypeHint
	if formType == "" || formType == FormTypeUnknown {
		formType = classifyFormType(text)
	}

	// Step 3: restructure and contextualize the text for the backends
	contextText := buildAnalysisText(formType, text)

	// Step 4: provider orchestration + rule escalation (total, never fails)
	analysisStart := time.Now()
	metadata := map[string]string{}
	if meta.FileName != "" {
		metadata["fileName"] = meta.FileName
	}
	if meta.Capture.CaptureMethod != "" {
		metadata["captureMethod"] = meta.Capture.CaptureMethod
	}
	analysis := p.orchestrator.Analyze(ctx, contextText, formType, metadata)
	analysisTime := time.Since(analysisStart)

	// Step 5: contextual re-scoring, upward only
	p.applyContextualScore(analysis, ocrResult, meta.Capture)

	return &ProcessResult{
		Success:        true,
		FormType:       analysis.FormType,
		RiskScore:      analysis.RiskScore,
		Analysis:       analysis,
		OCR:            ocrResult,
		OCRTimeMs:      ocrResult.ProcessingTimeMs,
		AnalysisTimeMs: analysisTime.Milliseconds(),
		TotalTimeMs:    time.Since(start).Milliseconds(),
	}
}

// ProcessFormFile is the path-based entry point; it converges on the
// bytes-based flow.
func (p *FormProcessor) ProcessFormFile(ctx context.Context, path string, meta FormMetadata) *ProcessResult {
	image, err := os.ReadFile(path)
	if err != nil {
		return p.failureResult(StageUnexpected, fmt.Errorf("failed to read form image: %v", err), nil, time.Now())
	}
	if meta.FileName == "" {
		meta.FileName = filepath.Base(path)
	}
	if meta.FileSize == 0 {
		meta.FileSize = int64(len(image))
	}
	return p.ProcessForm(ctx, image, meta)
}

// applyContextualScore adjusts the pipeline's risk score upward for capture
// and completeness signals. The mobile-capture rule only applies when
// neither low-confidence branch already fired.
func (p *FormProcessor) applyContextualScore(analysis *AnalysisResult, ocrResult *OCRResult, capture CaptureContext) {
	delta := 0
	switch {
	case ocrResult.Confidence < 30:
		delta += 2
	case ocrResult.Confidence < 50:
		delta++
	case capture.CaptureMethod == "mobile_camera" && ocrResult.Confidence < 80:
		delta++
	}
	if analysis.FormCompleteness == CompletenessIncomplete {
		delta++
	}
	if len(analysis.MissingFields) > 2 {
		delta++
	}
	if delta == 0 {
		return
	}

	analysis.RiskScore = clampScore(analysis.RiskScore + delta)
	analysis.RiskLevel = riskLevelForScore(analysis.RiskScore)
	analysis.Escalated = true
	if !analysis.RequiresSupervisorReview {
		analysis.RequiresSupervisorReview = supervisorReviewRequired(analysis)
	}
}

// failureResult packages a pipeline failure with a synthetic analysis so the
// caller still receives a usable risk payload.
func (p *FormProcessor) failureResult(stage string, cause error, ocrResult *OCRResult, start time.Time) *ProcessResult {
	analysis := syntheticFailureAnalysis(stage, cause)
	result := &ProcessResult{
		Success:     false,
		Stage:       stage,
		Error:       cause.Error(),
		FormType:    analysis.FormType,
		RiskScore:   analysis.RiskScore,
		Analysis:    analysis,
		OCR:         ocrResult,
		TotalTimeMs: time.Since(start).Milliseconds(),
	}
	if ocrResult != nil {
		result.OCRTimeMs = ocrResult.ProcessingTimeMs
	}
	return result
}

// syntheticFailureAnalysis is the default payload attached to failed forms:
// medium risk, review required, never a bare error.
func syntheticFailureAnalysis(stage string, cause error) *AnalysisResult {
	result := &AnalysisResult{
		FormType:                 FormTypeUnknown,
		FormTypeConfidence:       ConfidenceLow,
		RiskScore:                5,
		RiskLevel:                RiskLevelMedium,
		RequiresSupervisorReview: true,
		FormCompleteness:         CompletenessIncomplete,
		Summary:                  fmt.Sprintf("Processing failed at the %s stage; defaulting to medium risk pending manual review.", stage),
		FailureReason:            cause.Error(),
	}
	applyDefaults(result)
	return result
}
