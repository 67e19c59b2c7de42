package rop

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/blacktop/ropcat/internal/colors"
	"github.com/blacktop/ropcat/pkg/gadget"
)

// tree colors
var colorCategory = colors.Bold().SprintFunc()
var colorSubcategory = colors.Red().SprintFunc()
var colorRegister = colors.Cyan().SprintFunc()
var colorAddr = colors.Green().SprintFunc()
var colorMatch = colors.Yellow().SprintFunc()
var colorDisabled = colors.FaintWhite().SprintFunc()

const (
	branchSub    = "│   ├── "
	branchGadget = "│   │   ├── "
)

// RenderTree writes the tree with one block per category
func RenderTree(w io.Writer, tree *gadget.Tree) error {
	for _, cat := range tree.Categories() {
		if _, err := fmt.Fprintln(w, colorCategory(cat.Name)); err != nil {
			return err
		}
		for _, sub := range cat.Subcategories() {
			if _, err := fmt.Fprintf(w, "%s%s\n", branchSub, describe(sub)); err != nil {
				return err
			}
			for _, g := range sub.Gadgets() {
				if _, err := fmt.Fprintf(w, "%s%s  # %s\n", branchGadget, colorAddr(g.Address), highlight(g)); err != nil {
					return err
				}
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

// describe rebuilds the subcategory description with colored registers
func describe(sub *gadget.Subcategory) string {
	if !gadget.Known(sub.Mnemonic) {
		return colorSubcategory(sub.Description)
	}
	var parts []string
	// split around the colored operands so the rest of the phrase stays red
	desc := gadget.Describe(sub.Mnemonic, "\x00"+sub.Primary+"\x00", "\x00"+sub.Secondary+"\x00")
	for i, part := range strings.Split(desc, "\x00") {
		if part == "" {
			continue
		}
		if i%2 == 1 {
			parts = append(parts, colorRegister(part))
		} else {
			parts = append(parts, colorSubcategory(part))
		}
	}
	return strings.Join(parts, "")
}

func highlight(g *gadget.Gadget) string {
	if g.Match == "" {
		return g.Instructions
	}
	return strings.ReplaceAll(g.Instructions, g.Match, colorMatch(g.Match))
}

// RenderJSON writes the tree as indented JSON keeping insertion order
func RenderJSON(w io.Writer, tree *gadget.Tree) error {
	out, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal gadget tree: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// RenderCatalog writes the catalog rules in match order
func RenderCatalog(w io.Writer, catalog gadget.Catalog, asJSON bool) error {
	if asJSON {
		out, err := json.MarshalIndent(catalog, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal catalog: %w", err)
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.DiscardEmptyColumns)
	fmt.Fprintln(tw, "#\tNAME\tCATEGORY\tPATTERN")
	for i, r := range catalog {
		line := fmt.Sprintf("%d\t%s\t%s\t%s", i+1, r.Name, r.Category, r.Pattern)
		if r.Disabled {
			line += "\t" + colorDisabled("(disabled)")
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}
