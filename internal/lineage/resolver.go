// Package lineage groups file records connected through parent links into
// lineages and picks the newest record of each lineage as its head.
//
// A Resolver only knows about the records it was built from. Build a new one
// per request so heads never go stale when records change.
package lineage

import (
	"slices"

	"bitwise74/fileshare-api/internal/model"
)

type Resolver struct {
	records []model.FileRecord
	index   map[string]int
	parents map[string]string
	roots   map[string]string

	grouped bool
	heads   map[string]int   // root id -> index of the head record
	order   []string         // root ids in first-seen order
	members map[string][]int // root id -> member indexes in input order
}

// New builds a resolver over records. Parent links pointing at unknown ids or
// at the record itself are ignored, so such records are their own roots.
func New(records []model.FileRecord) *Resolver {
	r := &Resolver{
		records: records,
		index:   make(map[string]int, len(records)),
		parents: make(map[string]string, len(records)),
		roots:   make(map[string]string, len(records)),
	}

	for i, rec := range records {
		if _, dup := r.index[rec.ID]; dup {
			continue
		}
		r.index[rec.ID] = i
	}

	for _, rec := range records {
		if rec.ParentID == nil || *rec.ParentID == rec.ID {
			continue
		}

		if _, ok := r.index[*rec.ParentID]; !ok {
			continue
		}

		if _, set := r.parents[rec.ID]; !set {
			r.parents[rec.ID] = *rec.ParentID
		}
	}

	return r
}

// Root returns the lineage root of id. Every node visited on the way is
// memoized. A walk that runs into a node it has already seen stops there and
// that node becomes the root of the cycle.
func (r *Resolver) Root(id string) string {
	if root, ok := r.roots[id]; ok {
		return root
	}

	visited := make(map[string]struct{})
	path := make([]string, 0, 4)
	cur := id
	root := id

	for {
		if cached, ok := r.roots[cur]; ok {
			root = cached
			break
		}

		if _, seen := visited[cur]; seen {
			root = cur
			break
		}

		visited[cur] = struct{}{}
		path = append(path, cur)

		parent, ok := r.parents[cur]
		if !ok {
			root = cur
			break
		}
		cur = parent
	}

	for _, n := range path {
		r.roots[n] = root
	}

	return root
}

func (r *Resolver) group() {
	if r.grouped {
		return
	}
	r.grouped = true

	r.heads = make(map[string]int)
	r.members = make(map[string][]int)

	for i, rec := range r.records {
		if r.index[rec.ID] != i {
			continue
		}

		root := r.Root(rec.ID)
		head, ok := r.heads[root]
		if !ok {
			r.heads[root] = i
			r.order = append(r.order, root)
		} else if rec.CreatedAt.After(r.records[head].CreatedAt) {
			r.heads[root] = i
		}

		r.members[root] = append(r.members[root], i)
	}
}

// Head returns the newest record of the lineage id belongs to
func (r *Resolver) Head(id string) (model.FileRecord, bool) {
	if _, ok := r.index[id]; !ok {
		return model.FileRecord{}, false
	}

	r.group()
	return r.records[r.heads[r.Root(id)]], true
}

// Heads returns one head per lineage, ordered by first appearance of the lineage
func (r *Resolver) Heads() []model.FileRecord {
	r.group()

	out := make([]model.FileRecord, 0, len(r.order))
	for _, root := range r.order {
		out = append(out, r.records[r.heads[root]])
	}

	return out
}

// HeadsByID maps every record id to the head of its lineage
func (r *Resolver) HeadsByID() map[string]model.FileRecord {
	r.group()

	out := make(map[string]model.FileRecord, len(r.index))
	for id := range r.index {
		out[id] = r.records[r.heads[r.Root(id)]]
	}

	return out
}

// Members returns all records of the lineage id belongs to, oldest first
func (r *Resolver) Members(id string) []model.FileRecord {
	if _, ok := r.index[id]; !ok {
		return nil
	}

	r.group()

	idx := r.members[r.Root(id)]
	out := make([]model.FileRecord, 0, len(idx))
	for _, i := range idx {
		out = append(out, r.records[i])
	}

	slices.SortStableFunc(out, func(a, b model.FileRecord) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return out
}

// ResolveHead maps every record id to its lineage head
func ResolveHead(records []model.FileRecord) map[string]model.FileRecord {
	return New(records).HeadsByID()
}

// LineageOf returns the lineage of targetID, oldest first. Unknown ids yield nil.
func LineageOf(records []model.FileRecord, targetID string) []model.FileRecord {
	return New(records).Members(targetID)
}

// Heads returns one head per lineage
func Heads(records []model.FileRecord) []model.FileRecord {
	return New(records).Heads()
}
