package gadget

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func readListing(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "rp-x86.txt"))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// entry flattens one gadget of a Tree for comparisons
type entry struct {
	Category    string
	Description string
	Address     string
	Match       string
}

func flatten(tree *Tree) []entry {
	var entries []entry
	tree.Walk(func(c *Category, s *Subcategory, g *Gadget) bool {
		entries = append(entries, entry{c.Name, s.Description, g.Address, g.Match})
		return true
	})
	return entries
}

func newClassifier(t *testing.T, catalog Catalog, limit int) *Classifier {
	t.Helper()
	c, err := NewClassifier(catalog, limit)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func gadgets(lines ...string) []Gadget {
	f, _ := NewFilter(DefaultIgnore)
	return f.Ranked(strings.Join(lines, "\n"))
}

func TestCategorize_Example(t *testing.T) {
	listing := strings.Join([]string{
		"0x1000: pop eax ; ret  (3 found)",
		"0x1001: xor ebx, ebx ; ret  (3 found)",
		"0x1002: mov eax, ebx ; ret  (3 found)",
	}, "\n")

	tree, err := Categorize(listing, DefaultIgnore, DefaultCatalog(), 2)
	if err != nil {
		t.Fatal(err)
	}

	want := []entry{
		{"POP", "Load value to eax", "0x1000", "pop eax"},
		{"ZEROING", "Make ebx zero", "0x1001", "xor ebx, ebx"},
		{"MOV", "Move ebx to eax", "0x1002", "mov eax, ebx"},
	}
	if diff := cmp.Diff(want, flatten(tree)); diff != "" {
		t.Errorf("Categorize() mismatch (-want +got):\n%s", diff)
	}
}

func TestCategorize_Listing(t *testing.T) {
	tree, err := Categorize(readListing(t), DefaultIgnore, DefaultCatalog(), 2)
	if err != nil {
		t.Fatal(err)
	}

	want := []entry{
		{"POP", "Load value to ebx", "0x08049022", "pop ebx"},
		{"POP", "Load value to ebp", "0x08049292", "pop ebp"},
		{"POP", "Load value to edi", "0x08049291", "pop edi"},
		{"POP", "Load value to esi", "0x08049290", "pop esi"},
		{"MOV", "Move ebx to eax", "0x080491b2", "mov eax, ebx"},
		{"MOV", "Move edx to eax", "0x080491c4", "mov eax, edx"},
		{"DEREF", "Move eax to [ecx]", "0x080491d8", "mov [ecx], eax"},
		{"DEREF", "Move [ecx] to eax", "0x080491e0", "mov eax, [ecx]"},
		{"DEREF", "Move [esp+0x04] to eax", "0x080491e8", "mov eax, [esp+0x04]"},
		{"ZEROING", "Make eax zero", "0x08049200", "xor eax, eax"},
		{"ZEROING", "Make edx zero", "0x08049204", "xor edx, edx"},
		{"SWAP", "Swap eax with esp", "0x08049210", "xchg eax, esp"},
		{"INC", "Increase eax", "0x08049220", "inc eax"},
		{"DEC", "Decrease ecx", "0x08049224", "dec ecx"},
		{"NEG", "Negate eax", "0x08049228", "neg eax"},
		{"ADD", "Add ecx to eax", "0x08049230", "add eax, ecx"},
		{"SUB", "Subtract ecx from eax", "0x08049234", "sub eax, ecx"},
		{"PUSH-POP", "Load eax to ebx", "0x08049240", "push eax ; pop ebx"},
	}
	if diff := cmp.Diff(want, flatten(tree)); diff != "" {
		t.Errorf("Categorize() mismatch (-want +got):\n%s", diff)
	}
	if tree.Count() != len(want) {
		t.Errorf("Count() = %d, want %d", tree.Count(), len(want))
	}
}

func TestClassifier_DefaultCatalogRules(t *testing.T) {
	tests := []struct {
		insts    string
		category string
		desc     string
		match    string
	}{
		{"mov [eax], ebx ; ret  ;", "DEREF", "Move ebx to [eax]", "mov [eax], ebx"},
		{"mov eax, [ebx] ; ret  ;", "DEREF", "Move [ebx] to eax", "mov eax, [ebx]"},
		{"mov eax, [ebx+0x10] ; ret  ;", "DEREF", "Move [ebx+0x10] to eax", "mov eax, [ebx+0x10]"},
		{"mov [ebx+0x10], eax ; ret  ;", "DEREF", "Move eax to [ebx+0x10]", "mov [ebx+0x10], eax"},
		{"lea eax, [ebx+0x04] ; ret  ;", "LEA", "Load Result of [ebx+0x04] to eax", "lea eax, [ebx+0x04]"},
		{"lea eax, [ebx-0x04] ; ret  ;", "LEA", "Load Result of [ebx-0x04] to eax", "lea eax, [ebx-0x04]"},
		{"xor rax, rax ; ret  ;", "ZEROING", "Make rax zero", "xor rax, rax"},
		{"or eax, ecx ; ret  ;", "OR", "BitWise OR ecx on eax", "or eax, ecx"},
		{"mov rdi, rsp ; ret  ;", "MOV", "Move rsp to rdi", "mov rdi, rsp"},
		{"xchg eax, esp ; ret  ;", "SWAP", "Swap eax with esp", "xchg eax, esp"},
		{"xchg [eax], ebx ; ret  ;", "SWAP DEREF", "Swap [eax] with ebx", "xchg [eax], ebx"},
		{"xchg ebx, [eax] ; ret  ;", "SWAP DEREF", "Swap ebx with [eax]", "xchg ebx, [eax]"},
		{"sub esp, ebp ; ret  ;", "SUB", "Subtract ebp from esp", "sub esp, ebp"},
		{"add esp, ebp ; ret  ;", "ADD", "Add ebp to esp", "add esp, ebp"},
		{"pop rdi ; ret  ;", "POP", "Load value to rdi", "pop rdi"},
		{"inc ecx ; ret  ;", "INC", "Increase ecx", "inc ecx"},
		{"dec ecx ; ret  ;", "DEC", "Decrease ecx", "dec ecx"},
		{"neg ecx ; ret  ;", "NEG", "Negate ecx", "neg ecx"},
	}
	c := newClassifier(t, DefaultCatalog(), 1)
	for _, tt := range tests {
		t.Run(tt.insts, func(t *testing.T) {
			tree := c.Classify([]Gadget{{Address: "0x1", Instructions: tt.insts, Count: 2}})
			want := []entry{{tt.category, tt.desc, "0x1", tt.match}}
			if diff := cmp.Diff(want, flatten(tree)); diff != "" {
				t.Errorf("Classify(%q) mismatch (-want +got):\n%s", tt.insts, diff)
			}
		})
	}
}

func TestClassifier_NoMatch(t *testing.T) {
	c := newClassifier(t, DefaultCatalog(), 2)
	tree := c.Classify([]Gadget{
		{Address: "0x1", Instructions: "mov dword [eax], edx ; ret  ;", Count: 2},
		{Address: "0x2", Instructions: "xor eax, ebx ; ret  ;", Count: 2},
		{Address: "0x3", Instructions: "leave ; ret  ;", Count: 2},
	})
	if !tree.Empty() {
		t.Errorf("Classify() = %v, want empty tree", flatten(tree))
	}
}

func TestClassifier_Empty(t *testing.T) {
	c := newClassifier(t, DefaultCatalog(), 2)
	tree := c.Classify(nil)
	if !tree.Empty() || tree.Count() != 0 || tree.Len() != 0 {
		t.Error("Classify(nil) should return an empty tree")
	}
}

func TestClassifier_Limit(t *testing.T) {
	c := newClassifier(t, DefaultCatalog(), 2)
	tree := c.Classify(gadgets(
		"0x1: pop eax ; pop ebx ; ret  ;  (1 found)",
		"0x2: pop eax ; pop ecx ; ret  ;  (1 found)",
		"0x3: pop eax ; pop edx ; ret  ;  (1 found)",
	))

	want := []entry{
		{"POP", "Load value to eax", "0x1", "pop eax"},
		{"POP", "Load value to eax", "0x2", "pop eax"},
	}
	if diff := cmp.Diff(want, flatten(tree)); diff != "" {
		t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifier_MinimalGadgetCloses(t *testing.T) {
	c := newClassifier(t, DefaultCatalog(), 5)
	tree := c.Classify(gadgets(
		"0x2: pop eax ; pop ebx ; ret  ;  (1 found)",
		"0x1: pop eax ; ret  ;  (1 found)",
		"0x3: pop eax ; pop ecx ; ret  ;  (1 found)",
	))

	want := []entry{{"POP", "Load value to eax", "0x1", "pop eax"}}
	if diff := cmp.Diff(want, flatten(tree)); diff != "" {
		t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifier_FallsThroughClosedSubcategory(t *testing.T) {
	c := newClassifier(t, DefaultCatalog(), 1)
	tree := c.Classify(gadgets(
		"0x1: mov eax, ebx ; ret  ;  (1 found)",
		"0x2: mov eax, ebx ; pop ecx ; ret  ;  (1 found)",
		"0x3: pop ebx ; ret  ;  (1 found)",
		"0x4: push eax ; pop ebx ; ret  ;  (1 found)",
	))

	want := []entry{
		{"MOV", "Move ebx to eax", "0x1", "mov eax, ebx"},
		{"POP", "Load value to ebx", "0x3", "pop ebx"},
		{"POP", "Load value to ecx", "0x2", "pop ecx"},
		{"PUSH-POP", "Load eax to ebx", "0x4", "push eax ; pop ebx"},
	}
	if diff := cmp.Diff(want, flatten(tree)); diff != "" {
		t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifier_ClosedAcrossCategories(t *testing.T) {
	// the same description closes in every category
	mine, err := NewRule("mine", "MINE", `(pop)\s*([a-zA-Z]{3})`)
	if err != nil {
		t.Fatal(err)
	}
	catalog := append(DefaultCatalog(), mine)
	c := newClassifier(t, catalog, 1)
	tree := c.Classify([]Gadget{
		{Address: "0x1", Instructions: "pop eax ; ret  ;", Count: 2},
		{Address: "0x2", Instructions: "pop eax ; pop ebx ; ret  ;", Count: 3},
	})
	if _, ok := tree.Category("MINE"); ok {
		t.Errorf("closed description re-opened in another category: %v", flatten(tree))
	}
}

func TestClassifier_FirstMatchWins(t *testing.T) {
	c := newClassifier(t, DefaultCatalog(), 3)
	tree := c.Classify(Rank(gadgets(
		"0x1: mov [eax], ebx ; pop ecx ; ret  ;  (1 found)",
		"0x2: xor eax, eax ; mov eax, ebx ; inc ecx ; ret  ;  (1 found)",
		"0x3: pop edx ; inc edx ; ret  ;  (1 found)",
	)))

	seen := make(map[string]string)
	tree.Walk(func(c *Category, s *Subcategory, g *Gadget) bool {
		key := c.Name + "/" + s.Description
		if prev, ok := seen[g.Address]; ok {
			t.Errorf("gadget %s found under %s and %s", g.Address, prev, key)
		}
		seen[g.Address] = key
		return true
	})

	want := map[string]string{
		"0x1": "DEREF/Move ebx to [eax]",
		"0x2": "ZEROING/Make eax zero",
		"0x3": "POP/Load value to edx",
	}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifier_DisabledRule(t *testing.T) {
	catalog := DefaultCatalog()
	if err := catalog.Disable("zeroing"); err != nil {
		t.Fatal(err)
	}
	c := newClassifier(t, catalog, 2)
	tree := c.Classify([]Gadget{{Address: "0x1", Instructions: "xor eax, eax ; ret  ;", Count: 2}})
	if !tree.Empty() {
		t.Errorf("disabled rule matched: %v", flatten(tree))
	}
}

func TestClassifier_UnknownMnemonic(t *testing.T) {
	rule, err := NewRule("leave", "LEAVE", `(leave)`)
	if err != nil {
		t.Fatal(err)
	}
	c := newClassifier(t, Catalog{rule}, 2)
	tree := c.Classify([]Gadget{
		{Address: "0x1", Instructions: "leave ; ret  ;", Count: 2},
		{Address: "0x2", Instructions: "leave ; pop eax ; ret  ;", Count: 3},
	})

	want := []entry{{"LEAVE", "", "0x1", "leave"}}
	if diff := cmp.Diff(want, flatten(tree)); diff != "" {
		t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifier_DoesNotModifyInput(t *testing.T) {
	in := []Gadget{{Address: "0x1", Instructions: "pop eax ; ret  ;", Count: 2}}
	c := newClassifier(t, DefaultCatalog(), 2)
	tree := c.Classify(in)
	if in[0].Match != "" {
		t.Errorf("input gadget annotated with %q", in[0].Match)
	}
	sub, ok := tree.Lookup("POP", "Load value to eax")
	if !ok {
		t.Fatal("missing POP subcategory")
	}
	g, ok := sub.Gadget("0x1")
	if !ok || g.Match != "pop eax" {
		t.Errorf("tree gadget = %+v", g)
	}
	if diff := cmp.Diff([]string{"eax"}, sub.Operands()); diff != "" {
		t.Errorf("Operands mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifier_Deterministic(t *testing.T) {
	c := newClassifier(t, DefaultCatalog(), 2)
	f, err := NewFilter(DefaultIgnore)
	if err != nil {
		t.Fatal(err)
	}
	listing := readListing(t)

	first, err := json.Marshal(c.Classify(f.Ranked(listing)))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		next, err := json.Marshal(c.Classify(f.Ranked(listing)))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, next) {
			t.Fatalf("run %d produced a different tree:\n%s\n%s", i, first, next)
		}
	}
}

func TestClassifier_Saturation(t *testing.T) {
	var lines []string
	for _, reg := range []string{"eax", "ebx", "ecx"} {
		for i := 0; i < 4; i++ {
			lines = append(lines, "0x"+reg+string(rune('0'+i))+": pop "+reg+" ; pop edi ; pop esi ; ret  ;")
		}
	}
	for _, limit := range []int{1, 2, 3} {
		c := newClassifier(t, DefaultCatalog(), limit)
		tree := c.Classify(gadgets(lines...))
		for _, cat := range tree.Categories() {
			for _, sub := range cat.Subcategories() {
				if sub.Len() > limit {
					t.Errorf("limit %d: %s/%s holds %d gadgets", limit, cat.Name, sub.Description, sub.Len())
				}
			}
		}
		if got := tree.Count(); got != 3*limit {
			t.Errorf("limit %d: Count() = %d, want %d", limit, got, 3*limit)
		}
	}
}

func TestNewClassifier_InvalidConfig(t *testing.T) {
	allDisabled := DefaultCatalog()
	for _, r := range allDisabled {
		r.Disabled = true
	}

	tests := []struct {
		name    string
		catalog Catalog
		limit   int
		wantErr error
	}{
		{"zero limit", DefaultCatalog(), 0, ErrInvalidLimit},
		{"negative limit", DefaultCatalog(), -3, ErrInvalidLimit},
		{"nil catalog", nil, 2, ErrEmptyCatalog},
		{"all disabled", allDisabled, 2, ErrEmptyCatalog},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClassifier(tt.catalog, tt.limit)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewClassifier() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCategorize_InvalidIgnore(t *testing.T) {
	if _, err := Categorize("", []string{"["}, DefaultCatalog(), 2); err == nil {
		t.Error("Categorize() expected error for invalid ignore fragment")
	}
}

func TestTree_MarshalJSON(t *testing.T) {
	tree, err := Categorize(strings.Join([]string{
		"0x1000: pop eax ; ret  ;  (1 found)",
		"0x1001: xor ebx, ebx ; ret  ;  (1 found)",
		"0x1002: mov eax, ebx ; ret  ;  (1 found)",
	}, "\n"), DefaultIgnore, DefaultCatalog(), 2)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(tree)
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(data) {
		t.Fatalf("invalid JSON: %s", data)
	}
	out := string(data)
	pop, zero, mov := strings.Index(out, `"POP"`), strings.Index(out, `"ZEROING"`), strings.Index(out, `"MOV"`)
	if pop < 0 || zero < pop || mov < zero {
		t.Errorf("categories out of order: %s", out)
	}
	if !strings.Contains(out, `"match":"xor ebx, ebx"`) {
		t.Errorf("missing match in %s", out)
	}

	var decoded map[string]map[string]map[string]Gadget
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	want := Gadget{Address: "0x1002", Instructions: "mov eax, ebx ; ret  ;", Count: 2, Match: "mov eax, ebx"}
	if diff := cmp.Diff(want, decoded["MOV"]["Move ebx to eax"]["0x1002"]); diff != "" {
		t.Errorf("decoded gadget mismatch (-want +got):\n%s", diff)
	}
}
