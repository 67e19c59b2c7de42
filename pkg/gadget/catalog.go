package gadget

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dlclark/regexp2"
	"gopkg.in/yaml.v3"
)

// registers are matched as exactly three letters (eax, rsp, ...); memory
// operands are a bracketed register with an optional +0x displacement
const (
	reg     = `[a-zA-Z]{3}`
	mem     = `\[` + reg + `\]`
	memDisp = `\[` + reg + `\+0x[0-9a-fA-F]+\]`
)

const defaultMatchTimeout = time.Second

// ErrEmptyCatalog is returned when a catalog has no enabled rules.
var ErrEmptyCatalog = errors.New("catalog has no enabled rules")

// Rule is one entry of the ordered pattern catalog.
//
// Pattern capture groups are positional: group 1 is the mnemonic, group 2 the
// primary operand and group 4 (when non-empty) or else group 3 the secondary
// operand.
type Rule struct {
	Name     string `yaml:"name" json:"name"`
	Category string `yaml:"category" json:"category"`
	Pattern  string `yaml:"pattern" json:"pattern"`
	Disabled bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`

	re *regexp2.Regexp
}

// Hit is the result of a successful Rule match.
type Hit struct {
	Text      string
	Mnemonic  string
	Primary   string
	Secondary string
}

// Description returns the subcategory description for the hit.
func (h Hit) Description() string {
	return Describe(h.Mnemonic, h.Primary, h.Secondary)
}

// Operands returns the non-empty operands of the hit.
func (h Hit) Operands() []string {
	var ops []string
	for _, op := range []string{h.Primary, h.Secondary} {
		if op != "" {
			ops = append(ops, op)
		}
	}
	return ops
}

// NewRule compiles pattern into an enabled rule.
func NewRule(name, category, pattern string) (*Rule, error) {
	r := &Rule{Name: name, Category: category, Pattern: pattern}
	if err := r.compile(); err != nil {
		return nil, err
	}
	return r, nil
}

func mustRule(name, category, pattern string) *Rule {
	r, err := NewRule(name, category, pattern)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Rule) compile() error {
	if r.Name == "" {
		return fmt.Errorf("rule with pattern %q has no name", r.Pattern)
	}
	if r.Pattern == "" {
		return fmt.Errorf("rule %s has no pattern", r.Name)
	}
	re, err := regexp2.Compile(r.Pattern, regexp2.None)
	if err != nil {
		return fmt.Errorf("rule %s: invalid pattern %q: %w", r.Name, r.Pattern, err)
	}
	re.MatchTimeout = defaultMatchTimeout
	r.re = re
	return nil
}

// Match tries the rule against instructions. A regex runtime error is
// returned alongside a false result.
func (r *Rule) Match(instructions string) (Hit, bool, error) {
	if r.re == nil {
		if err := r.compile(); err != nil {
			return Hit{}, false, err
		}
	}

	m, err := r.re.FindStringMatch(instructions)
	if err != nil {
		return Hit{}, false, fmt.Errorf("rule %s: %w", r.Name, err)
	}
	if m == nil {
		return Hit{}, false, nil
	}

	group := func(n int) string {
		if g := m.GroupByNumber(n); g != nil {
			return g.String()
		}
		return ""
	}

	hit := Hit{
		Text:      m.String(),
		Mnemonic:  group(1),
		Primary:   group(2),
		Secondary: group(4),
	}
	if hit.Secondary == "" {
		hit.Secondary = group(3)
	}
	return hit, true, nil
}

// Catalog is an ordered list of rules. Order is significant: the first
// enabled rule that matches wins.
type Catalog []*Rule

// DefaultCatalog returns a fresh copy of the built-in x86 catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		mustRule("deref-write", "DEREF", `(mov)\s*(`+mem+`),\s*(`+reg+`)`),
		mustRule("deref-read", "DEREF", `(mov)\s*(`+reg+`),\s*(`+mem+`)`),
		mustRule("deref-read-disp", "DEREF", `(mov)\s*(`+reg+`),\s*(`+memDisp+`)`),
		mustRule("deref-write-disp", "DEREF", `(mov)\s*(`+memDisp+`),\s*(`+reg+`)`),
		mustRule("lea-disp", "LEA", `(lea)\s*(`+reg+`),\s*(\[`+reg+`.0x[0-9a-fA-F]+\])`),
		mustRule("zeroing", "ZEROING", `(xor)\s*(`+reg+`),\s*\2`),
		mustRule("or", "OR", `\b(or)\s*(`+reg+`),\s*(`+reg+`)`),
		mustRule("mov", "MOV", `(mov)\s*(`+reg+`),\s*(`+reg+`)`),
		mustRule("swap", "SWAP", `\b(xchg)\s*(`+reg+`),\s*(`+reg+`)`),
		mustRule("swap-deref-write", "SWAP DEREF", `\b(xchg)\s*(`+mem+`),\s*(`+reg+`)`),
		mustRule("swap-deref-read", "SWAP DEREF", `\b(xchg)\s*(`+reg+`),\s*(`+mem+`)`),
		mustRule("sub", "SUB", `\b(sub)\s*(`+reg+`),\s*(`+reg+`)`),
		mustRule("add", "ADD", `\b(add)\s*(`+reg+`),\s*(`+reg+`)`),
		mustRule("pop", "POP", `\b(pop)\s*(`+reg+`)`),
		mustRule("inc", "INC", `\b(inc)\s*(`+reg+`)\b`),
		mustRule("dec", "DEC", `\b(dec)\s*(`+reg+`)\b`),
		mustRule("neg", "NEG", `\b(neg)\s*(`+reg+`)\b`),
		mustRule("push-pop", "PUSH-POP", `\b(push)\s*(`+reg+`\b).*?(pop)\s*(`+reg+`\b)`),
	}
}

// Enabled returns the rules that are not disabled, in catalog order.
func (c Catalog) Enabled() Catalog {
	var rules Catalog
	for _, r := range c {
		if !r.Disabled {
			rules = append(rules, r)
		}
	}
	return rules
}

// Lookup returns the rule with the given name.
func (c Catalog) Lookup(name string) (*Rule, bool) {
	for _, r := range c {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// Disable marks the named rules as disabled. Unknown names are an error and
// leave the catalog untouched.
func (c Catalog) Disable(names ...string) error {
	rules := make([]*Rule, 0, len(names))
	for _, name := range names {
		r, ok := c.Lookup(name)
		if !ok {
			return fmt.Errorf("unknown catalog rule %q", name)
		}
		rules = append(rules, r)
	}
	for _, r := range rules {
		r.Disabled = true
	}
	return nil
}

// Validate compiles every rule and checks names are unique and at least one
// rule is enabled.
func (c Catalog) Validate() error {
	names := make(map[string]bool, len(c))
	for _, r := range c {
		if r == nil {
			return fmt.Errorf("catalog contains a nil rule")
		}
		if err := r.compile(); err != nil {
			return err
		}
		if names[r.Name] {
			return fmt.Errorf("duplicate catalog rule %q", r.Name)
		}
		names[r.Name] = true
	}
	if len(c.Enabled()) == 0 {
		return ErrEmptyCatalog
	}
	return nil
}

type catalogFile struct {
	Rules Catalog `yaml:"rules"`
}

// LoadCatalog decodes a YAML catalog of the form
//
//	rules:
//	  - name: pop
//	    category: POP
//	    pattern: '\b(pop)\s*([a-zA-Z]{3})'
//
// and validates it.
func LoadCatalog(r io.Reader) (Catalog, error) {
	var cf catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyCatalog
		}
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if err := cf.Rules.Validate(); err != nil {
		return nil, err
	}
	return cf.Rules, nil
}

// Encode writes the catalog in the format read by LoadCatalog.
func (c Catalog) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(catalogFile{Rules: c}); err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	return enc.Close()
}
