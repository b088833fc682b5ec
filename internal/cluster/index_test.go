package cluster

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"mapcore.psimaps.org/internal/geo"
	"mapcore.psimaps.org/internal/models"
)

var world = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

// sampleRecords spreads records over a few dense neighbourhoods and some isolated points.
func sampleRecords() []models.GeoRecord {
	var records []models.GeoRecord
	centers := []struct {
		name     string
		lat, lon float64
	}{
		{"marina", 25.08, 55.14},
		{"downtown", 25.19, 55.27},
		{"saadiyat", 24.54, 54.43},
		{"yas", 24.49, 54.60},
	}
	for _, c := range centers {
		for i := 0; i < 12; i++ {
			lat := c.lat + float64(i%4)*0.002
			lon := c.lon + float64(i/4)*0.003
			records = append(records, models.NewGeoRecord(fmt.Sprintf("%s-%d", c.name, i), lat, lon, c.name))
		}
	}
	records = append(records,
		models.NewGeoRecord("remote-1", 47.37, 8.54, "remote"),
		models.NewGeoRecord("remote-2", -33.86, 151.21, "remote"),
	)
	return records
}

func TestQueryBeforeRebuildPanics(t *testing.T) {
	ix := NewIndex()
	if ix.Built() {
		t.Fatal("new index should not report built")
	}

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrNotBuilt) {
			t.Fatalf("expected ErrNotBuilt panic, got %v", r)
		}
	}()
	ix.Query(world, 5)
}

func TestRebuildEmpty(t *testing.T) {
	ix := NewIndex()
	stats := ix.Rebuild(nil, DefaultOptions())

	if !ix.Built() {
		t.Fatal("expected index to be built")
	}
	if stats.Records != 0 {
		t.Errorf("expected 0 records, got %d", stats.Records)
	}
	if got := ix.Query(world, 3); len(got) != 0 {
		t.Errorf("expected no nodes, got %d", len(got))
	}
}

func TestRebuildSkipsInvalidRecords(t *testing.T) {
	records := []models.GeoRecord{
		models.NewGeoRecord("a", 25.1, 55.2, "x"),
		models.NewGeoRecord("unset", 0, 0, "x"),
		models.NewGeoRecord("bad-lat", 123, 55.2, "x"),
		models.NewGeoRecord("b", 25.2, 55.3, "x"),
	}
	ix := NewIndex()
	stats := ix.Rebuild(records, DefaultOptions())

	if stats.Records != 2 || stats.Rejected != 2 {
		t.Fatalf("expected 2 indexed and 2 rejected, got %+v", stats)
	}
	for _, n := range ix.Query(world, 21) {
		if n.Point.ID == "unset" || n.Point.ID == "bad-lat" {
			t.Errorf("invalid record %q was indexed", n.Point.ID)
		}
	}
}

func TestCountConservation(t *testing.T) {
	records := sampleRecords()
	opts := DefaultOptions()
	ix := NewIndex()
	ix.Rebuild(records, opts)

	for z := 0; z <= opts.MaxZoom+1; z++ {
		t.Run(fmt.Sprintf("zoom %d", z), func(t *testing.T) {
			nodes := ix.Query(world, float64(z))

			var total uint
			seen := make(map[string]int)
			for _, n := range nodes {
				total += n.Count
				leaves, err := ix.Leaves(n.ID)
				if err != nil {
					t.Fatalf("Leaves(%d): %v", n.ID, err)
				}
				if uint(len(leaves)) != n.Count {
					t.Errorf("node %d count %d but %d leaves", n.ID, n.Count, len(leaves))
				}
				for _, l := range leaves {
					seen[l.ID]++
				}
			}

			if total != uint(len(records)) {
				t.Errorf("counts sum to %d, want %d", total, len(records))
			}
			for _, r := range records {
				if seen[r.ID] != 1 {
					t.Errorf("record %s appears %d times", r.ID, seen[r.ID])
				}
			}
		})
	}
}

func TestTopLevelIsAllLeaves(t *testing.T) {
	records := sampleRecords()
	opts := DefaultOptions()
	ix := NewIndex()
	ix.Rebuild(records, opts)

	nodes := ix.Query(world, float64(opts.MaxZoom+1))
	if len(nodes) != len(records) {
		t.Fatalf("expected %d leaves, got %d", len(records), len(nodes))
	}
	for _, n := range nodes {
		if !n.IsLeaf || n.Count != 1 {
			t.Errorf("node %d should be a singleton leaf", n.ID)
		}
	}

	// zooms past the top level clamp to it
	if got := ix.Query(world, 40); len(got) != len(records) {
		t.Errorf("expected clamped zoom to return %d nodes, got %d", len(records), len(got))
	}
}

func TestLowZoomMerges(t *testing.T) {
	ix := NewIndex()
	ix.Rebuild(sampleRecords(), DefaultOptions())

	nodes := ix.Query(world, 0)
	if len(nodes) >= len(sampleRecords()) {
		t.Fatalf("expected clusters at zoom 0, got %d nodes", len(nodes))
	}

	var clusters int
	for _, n := range nodes {
		if !n.IsLeaf {
			clusters++
			if n.Count < 2 {
				t.Errorf("cluster %d has count %d", n.ID, n.Count)
			}
			if len(n.ChildIDs) < 2 {
				t.Errorf("cluster %d has %d children", n.ID, len(n.ChildIDs))
			}
		}
	}
	if clusters == 0 {
		t.Error("expected at least one cluster at zoom 0")
	}
}

func TestFractionalZoomFloors(t *testing.T) {
	ix := NewIndex()
	ix.Rebuild(sampleRecords(), DefaultOptions())

	a := ix.Query(world, 7)
	b := ix.Query(world, 7.9)
	if len(a) != len(b) {
		t.Fatalf("zoom 7.9 should match zoom 7: %d vs %d nodes", len(b), len(a))
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Errorf("node %d differs: %d vs %d", i, a[i].ID, b[i].ID)
		}
	}
}

func TestExpansionZoom(t *testing.T) {
	opts := DefaultOptions()
	ix := NewIndex()
	ix.Rebuild(sampleRecords(), opts)

	for z := 0; z <= opts.MaxZoom; z++ {
		for _, n := range ix.Query(world, float64(z)) {
			if n.IsLeaf {
				continue
			}

			exp, err := ix.ExpansionZoom(n.ID, float64(z))
			if err != nil {
				t.Fatalf("ExpansionZoom(%d): %v", n.ID, err)
			}
			if exp <= float64(z) {
				t.Errorf("cluster %d at zoom %d expands at %v", n.ID, z, exp)
			}

			children, err := ix.Children(n.ID)
			if err != nil {
				t.Fatalf("Children(%d): %v", n.ID, err)
			}
			for _, c := range children {
				if c.IsLeaf {
					continue
				}
				childExp, _ := ix.ExpansionZoom(c.ID, float64(z))
				if childExp > exp {
					t.Errorf("child %d expands at %v after parent %d at %v", c.ID, childExp, n.ID, exp)
				}
			}

			// every member is on its own at the expansion zoom
			leaves, _ := ix.Leaves(n.ID)
			singles := make(map[string]bool)
			for _, m := range ix.Query(world, exp) {
				if m.IsLeaf {
					singles[m.Point.ID] = true
				}
			}
			for _, l := range leaves {
				if !singles[l.ID] {
					t.Errorf("record %s of cluster %d is not a leaf at zoom %v", l.ID, n.ID, exp)
				}
			}
		}
	}
}

func TestExpansionZoomLeafAndUnknown(t *testing.T) {
	ix := NewIndex()
	ix.Rebuild(sampleRecords(), DefaultOptions())

	got, err := ix.ExpansionZoom(0, 12.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 12.5 {
		t.Errorf("leaf expansion zoom = %v, want 12.5", got)
	}

	if _, err := ix.ExpansionZoom(1<<40, 3); !errors.Is(err, geo.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown id, got %v", err)
	}
	if _, err := ix.Leaves(1 << 40); !errors.Is(err, geo.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput from Leaves, got %v", err)
	}
}

func TestQueryAntimeridian(t *testing.T) {
	records := []models.GeoRecord{
		models.NewGeoRecord("east", 10, 179.5, "x"),
		models.NewGeoRecord("west", 10, -179.5, "x"),
		models.NewGeoRecord("far", 10, 20, "x"),
	}
	opts := DefaultOptions()
	ix := NewIndex()
	ix.Rebuild(records, opts)
	top := float64(opts.MaxZoom + 1)

	wrapped := orb.Bound{Min: orb.Point{179, 5}, Max: orb.Point{-179, 15}}
	var ids []string
	for _, n := range ix.Query(wrapped, top) {
		ids = append(ids, n.Point.ID)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "east" || ids[1] != "west" {
		t.Errorf("wrapped query returned %v", ids)
	}

	straight := orb.Bound{Min: orb.Point{-179, 5}, Max: orb.Point{179, 15}}
	for _, n := range ix.Query(straight, top) {
		if n.Point.ID != "far" {
			t.Errorf("unexpected node %q in non-wrapping query", n.Point.ID)
		}
	}
}

func TestRebuildReplacesSnapshot(t *testing.T) {
	ix := NewIndex()
	first := ix.Rebuild(sampleRecords(), DefaultOptions())
	second := ix.Rebuild(sampleRecords()[:5], DefaultOptions())

	if second.Generation != first.Generation+1 {
		t.Errorf("generation did not advance: %d then %d", first.Generation, second.Generation)
	}
	if ix.Len() != 5 {
		t.Errorf("expected 5 records after rebuild, got %d", ix.Len())
	}
}

// TestQueryDuringRebuild runs viewport queries while the record set flips
// between two sizes. Every answer must account for exactly one of the two sets.
func TestQueryDuringRebuild(t *testing.T) {
	full := sampleRecords()
	small := full[:14]

	ix := NewIndex()
	ix.Rebuild(full, DefaultOptions())

	want := map[uint]bool{uint(len(full)): true, uint(len(small)): true}

	stop := make(chan struct{})
	errs := make(chan string, 64)
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(zoom float64) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				var total uint
				for _, n := range ix.Query(world, zoom) {
					total += n.Count
				}
				if !want[total] {
					select {
					case errs <- fmt.Sprintf("zoom %v: query saw %d records", zoom, total):
					default:
					}
				}
			}
		}(float64(w * 5))
	}

	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			ix.Rebuild(small, DefaultOptions())
		} else {
			ix.Rebuild(full, DefaultOptions())
		}
	}
	close(stop)
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}
}
