package record

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"simba/internal/node"
)

// snapshotPeriodSeconds is the cadence, in simulated time, at which the
// Writer persists a full-state snapshot frame alongside the per-record
// stream. Grounded on writer.go's fixed frameInterval (200ms of wall
// clock for the teacher's 5Hz world-frame cadence); here the analogous
// quantity is simulated seconds, since record cadence is driven by
// common_time rather than a wall clock.
const snapshotPeriodSeconds = 1.0

// frameHeaderSize is the length of the uint32 length-prefix written
// before every compressed frame, in both sub-streams.
const frameHeaderSize = 4

// Writer streams the record stream to disk for Continuous/Batch(n)/
// Periodic(s) save modes. It keeps two sub-streams, mirroring the
// teacher's writer.go split: every StepRecord is snappy-compressed and
// appended to the records stream (the teacher's events.jsonl.sz), and a
// periodic full-state snapshot of every live node is zstd-compressed and
// appended to the snapshots stream (the teacher's frames.bin.zst).
type Writer struct {
	mu sync.Mutex

	mode SaveModeConfig

	recordsFile *os.File
	records     *bufio.Writer

	snapshotFile    *os.File
	snapshotEncoder *zstd.Encoder

	pendingSinceFlush int
	haveLastFlush     bool
	lastFlushTime     float64
	haveLastSnapshot  bool
	lastSnapshotTime  float64
}

// NewWriter opens (or resumes) the record stream at recordsPath and the
// snapshot stream at snapshotPath. If either file already contains a
// partial frame from a previous crashed run, it is truncated to the last
// complete frame boundary before the Writer resumes appending, per
// spec.md §6's crash-recovery requirement.
func NewWriter(recordsPath, snapshotPath string, mode SaveModeConfig) (*Writer, error) {
	if recordsPath == "" || snapshotPath == "" {
		return nil, fmt.Errorf("record: records and snapshot paths must be provided")
	}
	if err := truncateToLastCompleteFrame(recordsPath); err != nil {
		return nil, err
	}
	if err := truncateToLastCompleteFrame(snapshotPath); err != nil {
		return nil, err
	}

	recordsFile, err := os.OpenFile(recordsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	snapshotFile, err := os.OpenFile(snapshotPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = recordsFile.Close()
		return nil, err
	}
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		_ = recordsFile.Close()
		_ = snapshotFile.Close()
		return nil, err
	}

	return &Writer{
		mode:            mode,
		recordsFile:     recordsFile,
		records:         bufio.NewWriter(recordsFile),
		snapshotFile:    snapshotFile,
		snapshotEncoder: encoder,
	}, nil
}

// RecordStep compresses and frames every record produced by a scheduler
// step, flushing the records stream according to the configured save
// mode, and appends a full-state snapshot frame if the snapshot cadence
// has elapsed. It implements scheduler.Recorder.
func (w *Writer) RecordStep(commonTime float64, nodes map[string]*node.Node) error {
	recs := stepRecords(commonTime, nodes)

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, rec := range recs {
		if err := w.writeFrameLocked(w.records, rec); err != nil {
			return err
		}
	}
	w.pendingSinceFlush += len(recs)

	if err := w.maybeFlushLocked(commonTime); err != nil {
		return err
	}
	if err := w.maybeSnapshotLocked(commonTime, recs); err != nil {
		return err
	}
	return nil
}

// writeFrameLocked snappy-compresses v's JSON encoding and appends it to
// dst as a length-prefixed frame. Callers must hold w.mu.
func (w *Writer) writeFrameLocked(dst *bufio.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	compressed := snappy.Encode(nil, payload)
	return writeFrame(dst, compressed)
}

func writeFrame(dst *bufio.Writer, compressed []byte) error {
	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(compressed)))
	if _, err := dst.Write(header[:]); err != nil {
		return err
	}
	_, err := dst.Write(compressed)
	return err
}

// maybeFlushLocked flushes the records stream per the configured save
// mode: Continuous flushes every record, Batch(n) every n records,
// Periodic(s) every s simulated seconds. Callers must hold w.mu.
func (w *Writer) maybeFlushLocked(commonTime float64) error {
	flush := false
	switch w.mode.Mode {
	case Continuous:
		flush = true
	case Batch:
		n := w.mode.BatchSize
		if n <= 0 {
			n = 1
		}
		flush = w.pendingSinceFlush >= n
	case Periodic:
		period := w.mode.PeriodSeconds
		if period <= 0 {
			period = snapshotPeriodSeconds
		}
		if !w.haveLastFlush || commonTime-w.lastFlushTime >= period {
			flush = true
		}
	default:
		// AtTheEnd records never reach a streaming Writer.
		return nil
	}
	if !flush {
		return nil
	}
	if err := w.records.Flush(); err != nil {
		return err
	}
	w.pendingSinceFlush = 0
	w.haveLastFlush = true
	w.lastFlushTime = commonTime
	return nil
}

// maybeSnapshotLocked appends a zstd-compressed full-state snapshot
// frame once per snapshotPeriodSeconds of simulated time. Callers must
// hold w.mu.
func (w *Writer) maybeSnapshotLocked(commonTime float64, recs []StepRecord) error {
	if w.haveLastSnapshot && commonTime-w.lastSnapshotTime < snapshotPeriodSeconds {
		return nil
	}
	payload, err := json.Marshal(recs)
	if err != nil {
		return err
	}
	compressed := w.snapshotEncoder.EncodeAll(payload, nil)
	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(compressed)))
	if _, err := w.snapshotFile.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.snapshotFile.Write(compressed); err != nil {
		return err
	}
	w.haveLastSnapshot = true
	w.lastSnapshotTime = commonTime
	return nil
}

// Flush forces the records stream to disk regardless of save-mode cadence.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.records.Flush(); err != nil {
		return err
	}
	w.pendingSinceFlush = 0
	return nil
}

// Close flushes and releases every file handle the Writer owns.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	if err := w.records.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.recordsFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.snapshotEncoder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.snapshotFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// truncateToLastCompleteFrame scans path's length-prefixed frame stream
// forward from the start, validating each frame's header against the
// remaining file size, and truncates the file to the end of the last
// frame that validated fully. A missing file is not an error (the
// stream has not been created yet).
func truncateToLastCompleteFrame(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()

	var offset int64
	header := make([]byte, frameHeaderSize)
	for offset < size {
		if _, err := f.ReadAt(header, offset); err != nil {
			break
		}
		length := int64(binary.LittleEndian.Uint32(header))
		frameEnd := offset + frameHeaderSize + length
		if frameEnd > size {
			break
		}
		offset = frameEnd
	}
	if offset == size {
		return nil
	}
	return f.Truncate(offset)
}
