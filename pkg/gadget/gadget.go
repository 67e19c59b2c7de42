// Package gadget filters, ranks and classifies ROP gadgets found by an external
// gadget finder into a category -> subcategory -> gadget tree.
//
// The package performs no I/O. Callers hand it the raw text listing produced by
// the finder and get back a Tree they can render however they like.
package gadget

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	addressPrefix = "0x"
	addressSep    = ": "
	retTerminator = "; ret ;"
	// retn stack adjustments at or above this value are discarded
	maxRetnOperand = 65
	retnAlignment  = 4
)

// DefaultIgnore are the ignore fragments applied when none are configured.
var DefaultIgnore = []string{"jmp", "call", " byte "}

var reRetn = regexp.MustCompile(`(?i)retn\s*0x([a-f0-9]+)`)

// Gadget is a single instruction sequence at an address.
type Gadget struct {
	Address      string `json:"address"`
	Instructions string `json:"instructions"`
	// Count is the number of ';' separators in Instructions.
	Count int `json:"count"`
	// Match is the part of Instructions that satisfied a catalog rule.
	Match string `json:"match,omitempty"`
}

func (g Gadget) String() string {
	return fmt.Sprintf("%s: %s", g.Address, g.Instructions)
}

// Filter parses raw gadget finder output and drops unusable gadgets.
type Filter struct {
	ignore *regexp.Regexp
}

// NewFilter builds a Filter that discards any line matching one of the ignore
// fragments. Fragments are regular expressions combined into one alternation;
// empty fragments are skipped. A nil or empty list ignores nothing.
func NewFilter(ignore []string) (*Filter, error) {
	var frags []string
	for _, frag := range ignore {
		if frag != "" {
			frags = append(frags, frag)
		}
	}
	f := &Filter{}
	if len(frags) == 0 {
		return f, nil
	}
	re, err := regexp.Compile(strings.Join(frags, "|"))
	if err != nil {
		return nil, fmt.Errorf("invalid ignore list %q: %w", frags, err)
	}
	f.ignore = re
	return f, nil
}

// ParseLine parses a single line of gadget finder output. It reports false if
// the line is malformed or filtered out.
func (f *Filter) ParseLine(line string) (Gadget, bool) {
	if idx := strings.LastIndex(line, "("); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)

	if !strings.HasPrefix(line, addressPrefix) {
		return Gadget{}, false
	}
	if f.ignore != nil && f.ignore.MatchString(line) {
		return Gadget{}, false
	}

	addr, insts, ok := strings.Cut(line, addressSep)
	if !ok {
		return Gadget{}, false
	}

	if m := reRetn.FindStringSubmatch(insts); m != nil {
		operand, err := strconv.ParseUint(m[1], 16, 64)
		if err != nil || operand >= maxRetnOperand || operand%retnAlignment != 0 {
			return Gadget{}, false
		}
	}

	return Gadget{
		Address:      addr,
		Instructions: insts,
		Count:        strings.Count(insts, ";"),
	}, true
}

// Parse parses every line of text and returns the surviving gadgets in
// encounter order. A later line for an already seen address replaces its
// contents but keeps the position of the first occurrence.
func (f *Filter) Parse(text string) []Gadget {
	return f.ParseLines(strings.Split(text, "\n"))
}

// ParseLines is Parse over pre-split lines.
func (f *Filter) ParseLines(lines []string) []Gadget {
	seen := orderedmap.New[string, Gadget]()
	for _, line := range lines {
		g, ok := f.ParseLine(line)
		if !ok {
			continue
		}
		seen.Set(g.Address, g)
	}

	gadgets := make([]Gadget, 0, seen.Len())
	for pair := seen.Oldest(); pair != nil; pair = pair.Next() {
		gadgets = append(gadgets, pair.Value)
	}
	return gadgets
}

// Ranked parses text and returns the surviving gadgets in rank order.
func (f *Filter) Ranked(text string) []Gadget {
	return Rank(f.Parse(text))
}

// Rank returns a copy of gadgets sorted by ascending Count. Among equal counts
// gadgets with a plain "; ret ;" terminator come first; everything else keeps
// its input order.
func Rank(gadgets []Gadget) []Gadget {
	ranked := make([]Gadget, len(gadgets))
	copy(ranked, gadgets)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count < ranked[j].Count
		}
		return ranked[i].hasRet() && !ranked[j].hasRet()
	})
	return ranked
}

func (g Gadget) hasRet() bool {
	return strings.Contains(g.Instructions, retTerminator)
}
