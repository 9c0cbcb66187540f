package record

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"simba/internal/node"
)

// Recorder buffers every step's records in memory and performs a single
// write at termination, for SaveModeConfig{Mode: AtTheEnd}.
//
// Grounded on replay/recorder.go's buffer-then-Roll shape; unlike the
// teacher's Roll (which gzips a per-match JSON envelope), the AtTheEnd
// document is written uncompressed since spec.md §6 names its literal
// shape -- { "config": <config>, "records": [ <Record>... ] } -- as the
// thing a downstream tool parses directly.
type Recorder struct {
	mu      sync.Mutex
	config  any
	records []StepRecord
}

// NewRecorder constructs an empty, in-memory AtTheEnd recorder. config
// is marshaled verbatim into the document's "config" field.
func NewRecorder(config any) *Recorder {
	return &Recorder{config: config}
}

// RecordStep implements scheduler.Recorder.
func (r *Recorder) RecordStep(commonTime float64, nodes map[string]*node.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, stepRecords(commonTime, nodes)...)
	return nil
}

// document is the exact JSON shape spec.md §6 names for the record stream.
type document struct {
	Config  any          `json:"config"`
	Records []StepRecord `json:"records"`
}

// Finalize writes the buffered records to path as one indented JSON
// document and clears the buffer. Safe to call at most once per run.
func (r *Recorder) Finalize(path string) error {
	if path == "" {
		return fmt.Errorf("record: output path must be provided")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := document{Config: r.config, Records: r.records}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	r.records = nil
	return nil
}

// Len reports the number of records buffered so far, for diagnostics.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
