// Package memstore provides an in-memory nestedset.Store, used as the
// reference backend and as the unit-test substrate for the interval
// engine. A coarse per-store mutex serializes structural operations and
// per-tree snapshots give WithinTree genuine all-or-nothing semantics.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jacentio/arbor/nestedset"
)

type record struct {
	parent   string
	bounds   nestedset.Bounds
	modified time.Time
}

// Store is a map-backed nestedset.Store covering any number of trees.
// The zero value is not usable; call New.
type Store struct {
	mu    sync.Mutex
	trees map[string]map[string]*record
	now   func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		trees: make(map[string]map[string]*record),
		now:   time.Now,
	}
}

func (s *Store) tree(treeID string) map[string]*record {
	t, ok := s.trees[treeID]
	if !ok {
		t = make(map[string]*record)
		s.trees[treeID] = t
	}
	return t
}

// --- record CRUD (the "pre-existing record store" side) ---

// Put creates a node record with unpositioned bounds. A non-empty parent
// must already exist.
func (s *Store) Put(treeID, key, parentKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tree(treeID)
	if _, ok := t[key]; ok {
		return fmt.Errorf("memstore: node %q already exists", key)
	}
	if parentKey != "" {
		if _, ok := t[parentKey]; !ok {
			return fmt.Errorf("memstore: parent %q: %w", parentKey, nestedset.ErrNotFound)
		}
	}
	t[key] = &record{parent: parentKey, modified: s.now()}
	return nil
}

// SetParent rewrites a node's stored parent field. It does not touch the
// interval bounds; run Tree.SyncPosition afterwards.
func (s *Store) SetParent(treeID, key, parentKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tree(treeID)
	rec, ok := t[key]
	if !ok {
		return fmt.Errorf("memstore: node %q: %w", key, nestedset.ErrNotFound)
	}
	if parentKey != "" {
		if _, ok := t[parentKey]; !ok {
			return fmt.Errorf("memstore: parent %q: %w", parentKey, nestedset.ErrNotFound)
		}
	}
	rec.parent = parentKey
	rec.modified = s.now()
	return nil
}

// Parent returns a node's stored parent field.
func (s *Store) Parent(treeID, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tree(treeID)[key]
	if !ok {
		return "", fmt.Errorf("memstore: node %q: %w", key, nestedset.ErrNotFound)
	}
	return rec.parent, nil
}

// Remove deletes a node record. The interval engine never does this
// itself; callers detach via Tree.Remove first.
func (s *Store) Remove(treeID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tree(treeID)
	if _, ok := t[key]; !ok {
		return fmt.Errorf("memstore: node %q: %w", key, nestedset.ErrNotFound)
	}
	delete(t, key)
	return nil
}

// Keys returns all node keys of a tree in lexicographic order.
func (s *Store) Keys(treeID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tree(treeID)
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Modified returns a node's last-modified timestamp.
func (s *Store) Modified(treeID, key string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tree(treeID)[key]
	if !ok {
		return time.Time{}, fmt.Errorf("memstore: node %q: %w", key, nestedset.ErrNotFound)
	}
	return rec.modified, nil
}

// --- nestedset.Store ---

func (s *Store) Bounds(ctx context.Context, treeID, key string) (nestedset.Bounds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bounds(treeID, key)
}

func (s *Store) SetBounds(ctx context.Context, treeID, key string, b nestedset.Bounds) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setBounds(treeID, key, b)
}

func (s *Store) UpdateBounds(ctx context.Context, treeID string, where nestedset.Predicate, set nestedset.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateBounds(treeID, where, set)
}

func (s *Store) Enumerate(ctx context.Context, treeID string, where nestedset.Predicate, order nestedset.Order, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enumerate(treeID, where, order, limit)
}

func (s *Store) Children(ctx context.Context, treeID, parentKey string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.children(treeID, parentKey)
}

func (s *Store) MaxRight(ctx context.Context, treeID string, rootsOnly bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxRight(treeID, rootsOnly)
}

// WithinTree runs fn under the store lock against a live view of the
// tree. On error the tree is restored from a snapshot taken up front,
// so a failed structural operation leaves no partial state.
func (s *Store) WithinTree(ctx context.Context, treeID string, fn func(nestedset.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]*record, len(s.tree(treeID)))
	for k, rec := range s.trees[treeID] {
		cp := *rec
		snapshot[k] = &cp
	}

	if err := fn(&txView{s: s}); err != nil {
		s.trees[treeID] = snapshot
		return err
	}
	return nil
}

// txView is the Store handed to WithinTree callbacks. The outer lock is
// already held, so it dispatches straight to the unlocked internals.
type txView struct {
	s *Store
}

func (v *txView) Bounds(ctx context.Context, treeID, key string) (nestedset.Bounds, error) {
	return v.s.bounds(treeID, key)
}

func (v *txView) SetBounds(ctx context.Context, treeID, key string, b nestedset.Bounds) error {
	return v.s.setBounds(treeID, key, b)
}

func (v *txView) UpdateBounds(ctx context.Context, treeID string, where nestedset.Predicate, set nestedset.Update) error {
	return v.s.updateBounds(treeID, where, set)
}

func (v *txView) Enumerate(ctx context.Context, treeID string, where nestedset.Predicate, order nestedset.Order, limit int) ([]string, error) {
	return v.s.enumerate(treeID, where, order, limit)
}

func (v *txView) Children(ctx context.Context, treeID, parentKey string) ([]string, error) {
	return v.s.children(treeID, parentKey)
}

func (v *txView) MaxRight(ctx context.Context, treeID string, rootsOnly bool) (int64, error) {
	return v.s.maxRight(treeID, rootsOnly)
}

// --- unlocked internals ---

func (s *Store) bounds(treeID, key string) (nestedset.Bounds, error) {
	rec, ok := s.tree(treeID)[key]
	if !ok {
		return nestedset.Bounds{}, fmt.Errorf("memstore: node %q: %w", key, nestedset.ErrNotFound)
	}
	return rec.bounds, nil
}

func (s *Store) setBounds(treeID, key string, b nestedset.Bounds) error {
	rec, ok := s.tree(treeID)[key]
	if !ok {
		return fmt.Errorf("memstore: node %q: %w", key, nestedset.ErrNotFound)
	}
	rec.bounds = b
	rec.modified = s.now()
	return nil
}

func (s *Store) updateBounds(treeID string, where nestedset.Predicate, set nestedset.Update) error {
	now := s.now()
	for _, rec := range s.tree(treeID) {
		if where.Match(rec.bounds) {
			rec.bounds = set.Apply(rec.bounds)
			rec.modified = now
		}
	}
	return nil
}

func (s *Store) enumerate(treeID string, where nestedset.Predicate, order nestedset.Order, limit int) ([]string, error) {
	type row struct {
		key    string
		bounds nestedset.Bounds
	}
	var rows []row
	for k, rec := range s.tree(treeID) {
		if where.Match(rec.bounds) {
			rows = append(rows, row{key: k, bounds: rec.bounds})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		av, bv := a.bounds.Left, b.bounds.Left
		if order.Bound == nestedset.BoundRight {
			av, bv = a.bounds.Right, b.bounds.Right
		}
		if av != bv {
			if order.Desc {
				return av > bv
			}
			return av < bv
		}
		return a.key < b.key // stable tie-break
	})

	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, r.key)
	}
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (s *Store) children(treeID, parentKey string) ([]string, error) {
	var keys []string
	for k, rec := range s.tree(treeID) {
		if rec.parent == parentKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) maxRight(treeID string, rootsOnly bool) (int64, error) {
	var max int64
	first := true
	for _, rec := range s.tree(treeID) {
		if rootsOnly && rec.parent != "" {
			continue
		}
		if first || rec.bounds.Right > max {
			max = rec.bounds.Right
			first = false
		}
	}
	if first {
		return 0, nil
	}
	return max, nil
}

var (
	_ nestedset.Store = (*Store)(nil)
	_ nestedset.Txer  = (*Store)(nil)
	_ nestedset.Store = (*txView)(nil)
)
