package gadget

import (
	"errors"
	"fmt"

	"github.com/apex/log"
)

// a gadget with this many separators is a single operation plus its
// terminator; nothing shorter can be found for its subcategory
const minimalCount = 2

// ErrInvalidLimit is returned for a per subcategory limit below one.
var ErrInvalidLimit = errors.New("limit must be at least 1")

// Classifier sorts ranked gadgets into a Tree using an ordered catalog.
type Classifier struct {
	rules Catalog
	limit int
}

// NewClassifier returns a Classifier that places at most limit gadgets in each
// subcategory. The catalog must contain at least one enabled rule.
func NewClassifier(catalog Catalog, limit int) (*Classifier, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{
		rules: catalog.Enabled(),
		limit: limit,
	}, nil
}

// Limit returns the per subcategory gadget limit.
func (c *Classifier) Limit() int {
	return c.limit
}

// Classify matches gadgets, which must already be in rank order, against the
// catalog. The first enabled rule whose subcategory is still open wins. A
// subcategory closes once it holds limit gadgets or receives a minimal gadget.
//
// The input is not modified; the tree holds annotated copies.
func (c *Classifier) Classify(gadgets []Gadget) *Tree {
	p := pass{
		Classifier: c,
		tree:       NewTree(),
		closed:     make(map[string]bool),
	}
	for _, g := range gadgets {
		p.place(g)
	}
	log.WithFields(log.Fields{
		"gadgets":    len(gadgets),
		"classified": p.placed,
		"closed":     len(p.closed),
	}).Debug("Classified gadgets")
	return p.tree
}

// pass is the state of a single Classify call.
type pass struct {
	*Classifier
	tree   *Tree
	closed map[string]bool // subcategory descriptions accepting no more gadgets
	placed int
}

func (p *pass) place(g Gadget) {
	for _, rule := range p.rules {
		hit, ok, err := rule.Match(g.Instructions)
		if err != nil {
			log.WithError(err).WithField("address", g.Address).Debug("Rule failed")
			continue
		}
		if !ok {
			continue
		}

		desc := hit.Description()
		if p.closed[desc] {
			continue
		}

		g.Match = hit.Text
		sub := p.tree.insert(rule.Category, hit, &g)
		p.placed++

		if g.Count == minimalCount || sub.Len() >= p.limit {
			p.closed[desc] = true
		}
		return
	}
}

// Categorize runs the whole pipeline over a raw gadget finder listing: parse,
// filter, rank and classify.
func Categorize(listing string, ignore []string, catalog Catalog, limit int) (*Tree, error) {
	f, err := NewFilter(ignore)
	if err != nil {
		return nil, err
	}
	c, err := NewClassifier(catalog, limit)
	if err != nil {
		return nil, err
	}
	return c.Classify(f.Ranked(listing)), nil
}
