// Package record implements the result/record stream of spec.md §6: a
// JSON record per (node, step) pair, persisted under one of four save
// modes (AtTheEnd, Continuous, Batch(n), Periodic(s)).
//
// Grounded on the teacher's internal/replay package: Recorder mirrors
// replay/recorder.go's buffer-then-Roll shape for AtTheEnd, and Writer
// mirrors writer.go's split between a snappy-compressed append-only
// stream (here: every record) and a klauspost/compress zstd stream (here:
// periodic full-state snapshots). Unlike the teacher, it writes no
// header or sidecar document.
package record

import (
	"sort"

	"simba/internal/node"
)

// NodeRecord is one node's saved state at a step, the JSON shape named
// by spec.md §6 as the record stream's per-entry "node" field.
type NodeRecord struct {
	ID        string         `json:"id"`
	Time      float64        `json:"time"`
	Snapshots map[string]any `json:"snapshots,omitempty"`
	Public    any            `json:"public,omitempty"`
}

// StepRecord is one entry of the record stream: { "time": ..., "node": ... }.
// A single scheduler step yields one StepRecord per live node, all
// sharing the step's elected common_time.
type StepRecord struct {
	Time float64    `json:"time"`
	Node NodeRecord `json:"node"`
}

// stepRecords flattens a step's node snapshots into the per-node record
// list spec.md §6 describes, in a stable (sorted by id) order so the
// record stream is itself deterministic across runs.
func stepRecords(commonTime float64, nodes map[string]*node.Node) []StepRecord {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]StepRecord, 0, len(ids))
	for _, id := range ids {
		n := nodes[id]
		hist := n.History()
		if len(hist) == 0 {
			continue
		}
		last := hist[len(hist)-1].Value
		out = append(out, StepRecord{
			Time: commonTime,
			Node: NodeRecord{
				ID:        id,
				Time:      last.Time,
				Snapshots: last.Snapshots,
				Public:    last.Public,
			},
		})
	}
	return out
}
