package cluster

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"
	"mapcore.psimaps.org/internal/geo"
	"mapcore.psimaps.org/internal/models"
)

// ErrNotBuilt is raised (as a panic) when an index is queried before its first Rebuild.
// It signals a wiring bug, distinct from a built index that holds no records.
var ErrNotBuilt = errors.New("spatial index not built")

const maxSupportedZoom = 24

// Options controls clustering. Radius is in screen pixels at a tile of Extent pixels.
type Options struct {
	Radius  float64
	MaxZoom int
	Extent  int
}

// DefaultOptions matches the map the renderer ships with.
func DefaultOptions() Options {
	return Options{Radius: 75, MaxZoom: 20, Extent: 512}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Radius <= 0 {
		o.Radius = d.Radius
	}
	if o.MaxZoom < 0 {
		o.MaxZoom = d.MaxZoom
	}
	if o.MaxZoom > maxSupportedZoom {
		o.MaxZoom = maxSupportedZoom
	}
	if o.Extent <= 0 {
		o.Extent = d.Extent
	}
	return o
}

// ClusterNode is one marker at one zoom level: a leaf wrapping a single record,
// or a cluster positioned at the mean of its members.
type ClusterNode struct {
	ID       uint64          `json:"id"`
	Point    models.GeoPoint `json:"point"`
	Count    uint            `json:"count"`
	IsLeaf   bool            `json:"is_leaf"`
	ChildIDs []uint64        `json:"child_ids,omitempty"`
}

// BuildStats summarizes a Rebuild.
type BuildStats struct {
	Records    int
	Rejected   int
	Levels     int
	Clusters   int
	Generation uint64
}

type node struct {
	id       uint64
	lat, lon float64
	x, y     float64
	count    uint
	record   int // index into snapshot.records, -1 for clusters
	children []uint64
}

type level struct {
	nodes []*node
	tree  *rtree.RTreeG[int]
}

type snapshot struct {
	opts       Options
	generation uint64
	records    []models.GeoRecord
	levels     []level // indexed by zoom, 0..MaxZoom+1
	byID       map[uint64]*node
	expansion  map[uint64]int
}

// Index is a zoom-indexed cluster hierarchy over a record set.
//
// Rebuild replaces the whole hierarchy; there is no incremental insert or delete.
// Readers load an immutable snapshot through an atomic pointer, so a Query that
// races a Rebuild sees either the old or the new hierarchy, never a partial one.
type Index struct {
	snap       atomic.Pointer[snapshot]
	generation atomic.Uint64
}

// NewIndex returns an unbuilt index.
func NewIndex() *Index {
	return &Index{}
}

// Built reports whether Rebuild has been called at least once.
func (ix *Index) Built() bool {
	return ix.snap.Load() != nil
}

// Rebuild groups the valid records into a hierarchy from opts.MaxZoom down to zoom 0.
// Invalid records are skipped. Zero records yield an empty, queryable index.
func (ix *Index) Rebuild(records []models.GeoRecord, opts Options) BuildStats {
	opts = opts.withDefaults()
	s := &snapshot{
		opts:       opts,
		generation: ix.generation.Add(1),
		levels:     make([]level, opts.MaxZoom+2),
		byID:       make(map[uint64]*node),
		expansion:  make(map[uint64]int),
	}

	for _, r := range records {
		if geo.IsValid(r.GeoPoint) {
			s.records = append(s.records, r)
		}
	}

	nodes := make([]*node, len(s.records))
	for i, r := range s.records {
		n := &node{
			id:     uint64(i),
			lat:    r.Lat,
			lon:    r.Lon,
			x:      lonX(r.Lon),
			y:      latY(r.Lat),
			count:  1,
			record: i,
		}
		nodes[i] = n
		s.byID[n.id] = n
	}
	s.levels[opts.MaxZoom+1] = newLevel(nodes)

	nextID := uint64(len(s.records))
	for z := opts.MaxZoom; z >= 0; z-- {
		s.levels[z] = newLevel(s.clusterLevel(s.levels[z+1], z, &nextID))
	}

	ix.snap.Store(s)

	return BuildStats{
		Records:    len(s.records),
		Rejected:   len(records) - len(s.records),
		Levels:     len(s.levels),
		Clusters:   len(s.expansion),
		Generation: s.generation,
	}
}

// clusterLevel greedily merges the nodes of the level above z.
// Each still-unclaimed node claims every unclaimed neighbour within the radius;
// the result is one node per group, so every record stays in exactly one node.
func (s *snapshot) clusterLevel(prev level, z int, nextID *uint64) []*node {
	r := s.opts.Radius / (float64(s.opts.Extent) * math.Pow(2, float64(z)))
	claimed := make([]bool, len(prev.nodes))
	out := make([]*node, 0, len(prev.nodes))

	for i, p := range prev.nodes {
		if claimed[i] {
			continue
		}
		claimed[i] = true
		members := []int{i}

		prev.tree.Search(
			[2]float64{p.x - r, p.y - r},
			[2]float64{p.x + r, p.y + r},
			func(_, _ [2]float64, j int) bool {
				if claimed[j] {
					return true
				}
				q := prev.nodes[j]
				dx, dy := q.x-p.x, q.y-p.y
				if dx*dx+dy*dy <= r*r {
					claimed[j] = true
					members = append(members, j)
				}
				return true
			},
		)

		if len(members) == 1 {
			out = append(out, p)
			continue
		}

		sort.Ints(members)
		c := &node{id: *nextID, record: -1}
		*nextID++

		var sumLat, sumLon float64
		expansion := 0
		for _, j := range members {
			m := prev.nodes[j]
			w := float64(m.count)
			sumLat += m.lat * w
			sumLon += m.lon * w
			c.count += m.count
			c.children = append(c.children, m.id)

			childExpansion := z + 1
			if m.record < 0 {
				childExpansion = s.expansion[m.id]
			}
			if childExpansion > expansion {
				expansion = childExpansion
			}
		}
		c.lat = sumLat / float64(c.count)
		c.lon = sumLon / float64(c.count)
		c.x = lonX(c.lon)
		c.y = latY(c.lat)

		s.byID[c.id] = c
		s.expansion[c.id] = expansion
		out = append(out, c)
	}
	return out
}

func newLevel(nodes []*node) level {
	tree := &rtree.RTreeG[int]{}
	for i, n := range nodes {
		tree.Insert([2]float64{n.x, n.y}, [2]float64{n.x, n.y}, i)
	}
	return level{nodes: nodes, tree: tree}
}

func (ix *Index) load() *snapshot {
	s := ix.snap.Load()
	if s == nil {
		panic(ErrNotBuilt)
	}
	return s
}

// Generation increases by one on every Rebuild.
func (ix *Index) Generation() uint64 {
	return ix.load().generation
}

// Options returns the options of the current hierarchy.
func (ix *Index) Options() Options {
	return ix.load().opts
}

// Len returns the number of indexed (valid) records.
func (ix *Index) Len() int {
	return len(ix.load().records)
}

func (s *snapshot) levelFor(zoom float64) int {
	if math.IsNaN(zoom) || zoom < 0 {
		return 0
	}
	if zoom >= float64(s.opts.MaxZoom+1) {
		return s.opts.MaxZoom + 1
	}
	return int(math.Floor(zoom))
}

// Query returns the nodes intersecting bounds at the nearest indexed zoom at or
// below zoom, ordered by ID. Bounds are in degrees (X = lon, Y = lat); a west
// edge greater than the east edge wraps across the antimeridian.
func (ix *Index) Query(bounds orb.Bound, zoom float64) []ClusterNode {
	s := ix.load()
	lvl := s.levels[s.levelFor(zoom)]

	minLat := clampLat(bounds.Min.Y())
	maxLat := clampLat(bounds.Max.Y())
	minLon, maxLon := bounds.Min.X(), bounds.Max.X()

	var found []*node
	if maxLon-minLon >= 360 {
		found = lvl.search(-180, minLat, 180, maxLat)
	} else {
		minLon, maxLon = wrapLon(minLon), wrapLon(maxLon)
		if minLon > maxLon {
			found = append(lvl.search(minLon, minLat, 180, maxLat), lvl.search(-180, minLat, maxLon, maxLat)...)
		} else {
			found = lvl.search(minLon, minLat, maxLon, maxLat)
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].id < found[j].id })
	out := make([]ClusterNode, len(found))
	for i, n := range found {
		out[i] = s.toClusterNode(n)
	}
	return out
}

func (l level) search(minLon, minLat, maxLon, maxLat float64) []*node {
	var out []*node
	l.tree.Search(
		[2]float64{lonX(minLon), latY(maxLat)},
		[2]float64{lonX(maxLon), latY(minLat)},
		func(_, _ [2]float64, i int) bool {
			out = append(out, l.nodes[i])
			return true
		},
	)
	return out
}

func (s *snapshot) toClusterNode(n *node) ClusterNode {
	if n.record >= 0 {
		return ClusterNode{ID: n.id, Point: s.records[n.record].GeoPoint, Count: 1, IsLeaf: true}
	}
	return ClusterNode{
		ID:       n.id,
		Point:    models.GeoPoint{ID: fmt.Sprintf("cluster-%d", n.id), Lat: n.lat, Lon: n.lon},
		Count:    n.count,
		ChildIDs: append([]uint64(nil), n.children...),
	}
}

func (s *snapshot) lookup(id uint64) (*node, error) {
	n, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("cluster %d: %w", id, geo.ErrInvalidInput)
	}
	return n, nil
}

// ExpansionZoom returns the lowest zoom at which every member of the cluster is
// shown on its own. For a leaf it returns currentZoom unchanged.
func (ix *Index) ExpansionZoom(id uint64, currentZoom float64) (float64, error) {
	s := ix.load()
	n, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	if n.record >= 0 {
		return currentZoom, nil
	}
	return float64(s.expansion[id]), nil
}

// Children returns the direct children of a node; empty for a leaf.
func (ix *Index) Children(id uint64) ([]ClusterNode, error) {
	s := ix.load()
	n, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	out := make([]ClusterNode, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, s.toClusterNode(s.byID[c]))
	}
	return out, nil
}

// Leaves returns every record under a node in ascending leaf order.
func (ix *Index) Leaves(id uint64) ([]models.GeoRecord, error) {
	s := ix.load()
	n, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	var idx []int
	stack := []*node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.record >= 0 {
			idx = append(idx, cur.record)
			continue
		}
		for _, c := range cur.children {
			stack = append(stack, s.byID[c])
		}
	}
	sort.Ints(idx)
	out := make([]models.GeoRecord, len(idx))
	for i, j := range idx {
		out[i] = s.records[j]
	}
	return out, nil
}
