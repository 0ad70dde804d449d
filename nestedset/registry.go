package nestedset

// TreeDef declares one managed tree and its policy. Fields that vary per
// tree are resolved once at setup, never via runtime introspection.
type TreeDef struct {
	// TreeID identifies the tree in the backing store.
	TreeID string

	// SingleRoot enables the single-root policy check after a root is
	// attached.
	SingleRoot bool
}

// Registry holds all trees the engine manages. Stream handlers consult
// it to decide which tables' events drive position synchronization.
type Registry struct {
	defs []TreeDef
	byID map[string]TreeDef
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[string]TreeDef),
	}
}

// Register adds a tree definition to the registry.
// This should be called during setup for each managed tree.
func (r *Registry) Register(def TreeDef) {
	r.defs = append(r.defs, def)
	r.byID[def.TreeID] = def
}

// Lookup returns the definition for a tree ID, if registered.
func (r *Registry) Lookup(treeID string) (TreeDef, bool) {
	def, ok := r.byID[treeID]
	return def, ok
}

// Managed reports whether the tree ID is registered.
func (r *Registry) Managed(treeID string) bool {
	_, ok := r.byID[treeID]
	return ok
}

// All returns all registered tree definitions.
func (r *Registry) All() []TreeDef {
	return r.defs
}
