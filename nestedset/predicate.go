package nestedset

// Bound names one of the two interval columns.
type Bound string

const (
	BoundLeft  Bound = "left"
	BoundRight Bound = "right"
)

// Op is a comparison operator in a Cond.
type Op string

const (
	OpEQ Op = "="
	OpLT Op = "<"
	OpLE Op = "<="
	OpGT Op = ">"
	OpGE Op = ">="
)

// Cond compares one bound against a constant.
type Cond struct {
	Bound Bound
	Op    Op
	Value int64
}

func (c Cond) match(b Bounds) bool {
	v := b.Left
	if c.Bound == BoundRight {
		v = b.Right
	}
	switch c.Op {
	case OpEQ:
		return v == c.Value
	case OpLT:
		return v < c.Value
	case OpLE:
		return v <= c.Value
	case OpGT:
		return v > c.Value
	case OpGE:
		return v >= c.Value
	}
	return false
}

// Predicate is a conjunction of conditions over a node's bounds.
// SQL-backed stores compile it into a WHERE clause; other backends
// evaluate it client-side via Match.
type Predicate []Cond

// Match reports whether the bounds satisfy every condition.
func (p Predicate) Match(b Bounds) bool {
	for _, c := range p {
		if !c.match(b) {
			return false
		}
	}
	return true
}

// Affine rewrites a single bound: new = Scale*old + Offset.
// Scale 1 shifts, Scale -1 negates or reflects, Scale 0 assigns.
type Affine struct {
	Scale  int64
	Offset int64
}

// Keep returns the identity rewrite (the bound is left untouched).
func Keep() Affine {
	return Affine{Scale: 1}
}

// Shift returns a rewrite that adds delta to the bound.
func Shift(delta int64) Affine {
	return Affine{Scale: 1, Offset: delta}
}

// Reflect returns a rewrite that negates the bound and adds offset.
// With offset 0 it moves a bound into negative space; with the
// relocation offset it brings it back translated.
func Reflect(offset int64) Affine {
	return Affine{Scale: -1, Offset: offset}
}

// Apply evaluates the rewrite on one value.
func (a Affine) Apply(v int64) int64 {
	return a.Scale*v + a.Offset
}

// Identity reports whether the rewrite leaves the bound unchanged.
func (a Affine) Identity() bool {
	return a.Scale == 1 && a.Offset == 0
}

// Update rewrites both bounds of every matched node. Use Keep for a
// bound that must stay untouched.
type Update struct {
	Left  Affine
	Right Affine
}

// Apply evaluates the update on one node's bounds.
func (u Update) Apply(b Bounds) Bounds {
	return Bounds{
		Left:  u.Left.Apply(b.Left),
		Right: u.Right.Apply(b.Right),
	}
}

// Order describes the sort key of an Enumerate call.
type Order struct {
	Bound Bound
	Desc  bool
}

var (
	// OrderLeftAsc sorts by left bound ascending (document order).
	OrderLeftAsc = Order{Bound: BoundLeft}

	// OrderLeftDesc sorts by left bound descending. This is the default
	// for ancestor and descendant queries: nearest ancestor first.
	OrderLeftDesc = Order{Bound: BoundLeft, Desc: true}
)
