package gadget

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Tree groups classified gadgets by category and subcategory. Every level
// iterates in insertion order, which is the rank order of the gadgets.
type Tree struct {
	categories *orderedmap.OrderedMap[string, *Category]
}

// Category is the top level grouping of a Tree.
type Category struct {
	Name string

	subcategories *orderedmap.OrderedMap[string, *Subcategory]
}

// Subcategory holds the gadgets sharing one description.
type Subcategory struct {
	Description string
	// Mnemonic, Primary and Secondary are the parts Description was built from.
	Mnemonic  string
	Primary   string
	Secondary string

	gadgets *orderedmap.OrderedMap[string, *Gadget]
}

// NewTree returns an empty Tree.
func NewTree() *Tree {
	return &Tree{categories: orderedmap.New[string, *Category]()}
}

// Len returns the number of categories.
func (t *Tree) Len() int {
	return t.categories.Len()
}

// Empty reports whether the tree holds no gadgets.
func (t *Tree) Empty() bool {
	return t.categories.Len() == 0
}

// Category returns the named category.
func (t *Tree) Category(name string) (*Category, bool) {
	return t.categories.Get(name)
}

// Categories returns the categories in insertion order.
func (t *Tree) Categories() []*Category {
	cats := make([]*Category, 0, t.categories.Len())
	for pair := t.categories.Oldest(); pair != nil; pair = pair.Next() {
		cats = append(cats, pair.Value)
	}
	return cats
}

// Lookup returns the subcategory with the given description under category.
func (t *Tree) Lookup(category, description string) (*Subcategory, bool) {
	cat, ok := t.categories.Get(category)
	if !ok {
		return nil, false
	}
	return cat.Subcategory(description)
}

// Count returns the total number of gadgets in the tree.
func (t *Tree) Count() int {
	var n int
	t.Walk(func(*Category, *Subcategory, *Gadget) bool {
		n++
		return true
	})
	return n
}

// Walk calls fn for every gadget in insertion order until fn returns false.
func (t *Tree) Walk(fn func(*Category, *Subcategory, *Gadget) bool) {
	for _, cat := range t.Categories() {
		for _, sub := range cat.Subcategories() {
			for _, g := range sub.Gadgets() {
				if !fn(cat, sub, g) {
					return
				}
			}
		}
	}
}

// insert adds g under category/hit, creating levels as needed, and returns
// the subcategory it landed in.
func (t *Tree) insert(category string, hit Hit, g *Gadget) *Subcategory {
	cat, ok := t.categories.Get(category)
	if !ok {
		cat = &Category{
			Name:          category,
			subcategories: orderedmap.New[string, *Subcategory](),
		}
		t.categories.Set(category, cat)
	}

	desc := hit.Description()
	sub, ok := cat.subcategories.Get(desc)
	if !ok {
		sub = &Subcategory{
			Description: desc,
			Mnemonic:    hit.Mnemonic,
			Primary:     hit.Primary,
			Secondary:   hit.Secondary,
			gadgets:     orderedmap.New[string, *Gadget](),
		}
		cat.subcategories.Set(desc, sub)
	}

	sub.gadgets.Set(g.Address, g)
	return sub
}

// MarshalJSON encodes the tree as nested objects keeping insertion order.
func (t *Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.categories)
}

// Len returns the number of subcategories.
func (c *Category) Len() int {
	return c.subcategories.Len()
}

// Subcategory returns the subcategory with the given description.
func (c *Category) Subcategory(description string) (*Subcategory, bool) {
	return c.subcategories.Get(description)
}

// Subcategories returns the subcategories in insertion order.
func (c *Category) Subcategories() []*Subcategory {
	subs := make([]*Subcategory, 0, c.subcategories.Len())
	for pair := c.subcategories.Oldest(); pair != nil; pair = pair.Next() {
		subs = append(subs, pair.Value)
	}
	return subs
}

func (c *Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.subcategories)
}

// Len returns the number of gadgets.
func (s *Subcategory) Len() int {
	return s.gadgets.Len()
}

// Operands returns the non-empty operands of the subcategory.
func (s *Subcategory) Operands() []string {
	return Hit{Primary: s.Primary, Secondary: s.Secondary}.Operands()
}

// Gadget returns the gadget at address.
func (s *Subcategory) Gadget(address string) (*Gadget, bool) {
	return s.gadgets.Get(address)
}

// Gadgets returns the gadgets in insertion order.
func (s *Subcategory) Gadgets() []*Gadget {
	gs := make([]*Gadget, 0, s.gadgets.Len())
	for pair := s.gadgets.Oldest(); pair != nil; pair = pair.Next() {
		gs = append(gs, pair.Value)
	}
	return gs
}

func (s *Subcategory) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.gadgets)
}
