package record

import (
	"encoding/json"
	"os"
	"testing"

	"simba/internal/bus"
	"simba/internal/node"
	"simba/internal/quiescence"
	"simba/internal/spatial"
	"simba/internal/strategy"
)

// stubPhysics is the minimal strategy module set needed to let a node
// take a step and save a history record.
type stubPhysics struct{ pos spatial.Position }

func (p *stubPhysics) UpdateState(t float64) error  { return nil }
func (p *stubPhysics) ApplyCommand(t float64) error { return nil }
func (p *stubPhysics) Position() spatial.Position   { return p.pos }

func newSteppedNode(t *testing.T, id string, at float64) *node.Node {
	t.Helper()
	counter := quiescence.New()
	broker := bus.NewBroker(counter)
	modules := strategy.Set{Physics: &stubPhysics{pos: spatial.Position{X: 1, Y: 2, Z: 3}}}
	n, err := node.New(id, modules, 1.0, 100.0, broker, counter)
	if err != nil {
		t.Fatalf("node.New(%s): %v", id, err)
	}
	if err := n.RunStep(at, nil); err != nil {
		t.Fatalf("RunStep(%s, %v): %v", id, at, err)
	}
	return n
}

func TestStepRecordsAreSortedByNodeID(t *testing.T) {
	nodes := map[string]*node.Node{
		"bravo": newSteppedNode(t, "bravo", 1.0),
		"alpha": newSteppedNode(t, "alpha", 1.0),
	}

	recs := stepRecords(1.0, nodes)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Node.ID != "alpha" || recs[1].Node.ID != "bravo" {
		t.Fatalf("expected sorted order [alpha, bravo], got [%s, %s]", recs[0].Node.ID, recs[1].Node.ID)
	}
	for _, r := range recs {
		if r.Time != 1.0 {
			t.Fatalf("node %s: expected step time 1.0, got %v", r.Node.ID, r.Time)
		}
	}
}

func TestStepRecordsSkipsNodesWithoutHistory(t *testing.T) {
	counter := quiescence.New()
	broker := bus.NewBroker(counter)
	modules := strategy.Set{Physics: &stubPhysics{}}
	n, err := node.New("idle", modules, 1.0, 100.0, broker, counter)
	if err != nil {
		t.Fatalf("node.New: %v", err)
	}

	recs := stepRecords(1.0, map[string]*node.Node{"idle": n})
	if len(recs) != 0 {
		t.Fatalf("expected no records for a node with empty history, got %d", len(recs))
	}
}

func TestRecorderFinalizeWritesSpecShapedDocument(t *testing.T) {
	r := NewRecorder(map[string]any{"max_time": 10.0})
	n := newSteppedNode(t, "alpha", 1.0)
	if err := r.RecordStep(1.0, map[string]*node.Node{"alpha": n}); err != nil {
		t.Fatalf("RecordStep: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 buffered record, got %d", r.Len())
	}

	path := t.TempDir() + "/records.json"
	if err := r.Finalize(path); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("expected buffer to be cleared after Finalize, got %d", r.Len())
	}

	var doc document
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("os.ReadFile: %v", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(doc.Records) != 1 || doc.Records[0].Node.ID != "alpha" {
		t.Fatalf("unexpected document: %+v", doc)
	}
}
