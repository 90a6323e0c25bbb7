// batch.go
package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// BatchItem is one form queued for batch processing.
type BatchItem struct {
	Image []byte
	Meta  FormMetadata
}

// BatchResult pairs a processed item with its position in the input batch.
type BatchResult struct {
	Index  int            `json:"index"`
	Result *ProcessResult `json:"result"`
}

// ProcessBatch runs a sequence of forms in fixed-size concurrency windows
// with a short pause between windows so downstream backends are not
// overwhelmed. Per-item failures are isolated: a panic or pipeline failure
// in one form never aborts the batch, and a started form always runs to
// success or failure.
func (p *FormProcessor) ProcessBatch(ctx context.Context, items []BatchItem) []BatchResult {
	results := make([]BatchResult, len(items))

	for windowStart := 0; windowStart < len(items); windowStart += p.batchWindow {
		windowEnd := windowStart + p.batchWindow
		if windowEnd > len(items) {
			windowEnd = len(items)
		}

		var wg sync.WaitGroup
		for i := windowStart; i < windowEnd; i++ {
			wg.Add(1)
			go func(index int) {
				defer wg.Done()
				results[index] = BatchResult{
					Index:  index,
					Result: p.processBatchItem(ctx, items[index]),
				}
			}(i)
		}
		wg.Wait()

		if windowEnd < len(items) {
			time.Sleep(p.batchPause)
		}
	}

	return results
}

// processBatchItem isolates one item's pipeline run, converting panics into
// structured failures.
func (p *FormProcessor) processBatchItem(ctx context.Context, item BatchItem) (result *ProcessResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Batch item %s panicked: %v", item.Meta.FileName, r)
			result = p.failureResult(StageUnexpected, fmt.Errorf("panic during processing: %v", r), nil, time.Now())
		}
	}()
	return p.ProcessForm(ctx, item.Image, item.Meta)
}
