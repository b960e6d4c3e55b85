package tdocs

import (
	"sort"

	"tdocflow/internal/logger"
)

// DefaultMaxDepth bounds lineage traversal.
const DefaultMaxDepth = 10

// KnownIDTypos maps document numbers mistyped in published reports to the
// document actually meant.
var KnownIDTypos = map[string]string{
	"S2-187359":   "S2-1807359",
	"S2-18112881": "S2-1812881",
	"S2-190240":   "S2-1902400",
}

// Resolver computes original/final document closures over a table's
// revision and merge references.
type Resolver struct {
	MaxDepth int
	Typos    map[string]string
	log      *logger.Logger
}

func NewResolver(maxDepth int, log *logger.Logger) *Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Resolver{MaxDepth: maxDepth, Typos: KnownIDTypos, log: logger.OrNop(log)}
}

type direction func(Document) []string

// Resolve fills OriginalDocuments and FinalDocuments for every document.
// References stated only on one side (Y says "Revision of X" but X says
// nothing) are first mirrored onto the other document. Running Resolve again
// on the same table produces the same closures.
func (r *Resolver) Resolve(t *Table) {
	r.link(t)
	for i := 0; i < t.Len(); i++ {
		d := t.At(i)
		d.OriginalDocuments = r.closure(t, d.ID, Document.Predecessors)
		d.FinalDocuments = r.closure(t, d.ID, Document.Successors)
	}
}

func (r *Resolver) lookup(t *Table, id string) (*Document, bool) {
	if d, ok := t.Get(id); ok {
		return d, true
	}
	if fixed, ok := r.Typos[id]; ok {
		return t.Get(fixed)
	}
	return nil, false
}

func (r *Resolver) closure(t *Table, root string, next direction) []string {
	w := &walker{
		r:      r,
		t:      t,
		root:   root,
		next:   next,
		onPath: map[string]bool{},
		memo:   map[walkKey][]string{},
	}
	return w.walk(root, 0)
}

type walkKey struct {
	id    string
	depth int
}

// walker is one depth-first traversal from root. A reference back onto the
// current path is treated like a self-reference, and each (id, depth) pair
// is expanded at most once, so a traversal costs O(V*D) node visits.
type walker struct {
	r      *Resolver
	t      *Table
	root   string
	next   direction
	onPath map[string]bool
	memo   map[walkKey][]string
}

func (w *walker) walk(id string, depth int) []string {
	if depth >= w.r.MaxDepth {
		w.r.log.Warn("lineage depth limit reached", "tdoc", w.root, "stopped_at", id, "max_depth", w.r.MaxDepth)
		return []string{id}
	}
	d, ok := w.r.lookup(w.t, id)
	if !ok {
		return []string{id}
	}
	key := walkKey{id: d.ID, depth: depth}
	if out, ok := w.memo[key]; ok {
		return out
	}
	w.onPath[d.ID] = true
	defer delete(w.onPath, d.ID)

	refs := make([]string, 0, 2)
	for _, ref := range w.next(*d) {
		if ref == "" || ref == d.ID || w.onPath[w.canonical(ref)] {
			continue
		}
		refs = append(refs, ref)
	}
	out := []string{d.ID}
	if len(refs) > 0 {
		set := map[string]struct{}{}
		for _, ref := range refs {
			for _, x := range w.walk(ref, depth+1) {
				set[x] = struct{}{}
			}
		}
		out = make([]string, 0, len(set))
		for x := range set {
			out = append(out, x)
		}
		sort.Strings(out)
	}
	w.memo[key] = out
	return out
}

func (w *walker) canonical(id string) string {
	if d, ok := w.r.lookup(w.t, id); ok {
		return d.ID
	}
	return id
}

// link mirrors one-sided references so that both ends of an edge agree.
func (r *Resolver) link(t *Table) {
	for i := 0; i < t.Len(); i++ {
		d := t.At(i)
		id := d.ID
		if p, ok := r.lookup(t, d.RevisionOf); ok && p.ID != id && p.RevisedTo == "" {
			p.RevisedTo = id
		}
		if s, ok := r.lookup(t, d.RevisedTo); ok && s.ID != id && s.RevisionOf == "" {
			s.RevisionOf = id
		}
		for _, ref := range d.MergeOf {
			if p, ok := r.lookup(t, ref); ok && p.ID != id {
				p.MergedTo = appendUnique(p.MergedTo, id)
			}
		}
		for _, ref := range d.MergedTo {
			if s, ok := r.lookup(t, ref); ok && s.ID != id {
				s.MergeOf = appendUnique(s.MergeOf, id)
			}
		}
	}
}

func appendUnique(list []string, id string) []string {
	for _, x := range list {
		if x == id {
			return list
		}
	}
	return append(list, id)
}
