package gadget

import "fmt"

// phrase templates indexed by mnemonic; %[1]s is the primary operand and
// %[2]s the secondary one
var descriptions = map[string]string{
	"pop":  "Load value to %[1]s",
	"inc":  "Increase %[1]s",
	"lea":  "Load Result of %[2]s to %[1]s",
	"add":  "Add %[2]s to %[1]s",
	"sub":  "Subtract %[2]s from %[1]s",
	"dec":  "Decrease %[1]s",
	"xor":  "Make %[1]s zero",
	"or":   "BitWise OR %[2]s on %[1]s",
	"mov":  "Move %[2]s to %[1]s",
	"neg":  "Negate %[1]s",
	"xchg": "Swap %[1]s with %[2]s",
	"push": "Load %[1]s to %[2]s",
}

// Describe returns the human readable subcategory description for an
// operation. Unknown mnemonics describe as the empty string.
func Describe(mnemonic, primary, secondary string) string {
	tmpl, ok := descriptions[mnemonic]
	if !ok {
		return ""
	}
	// indexed verbs keep fmt from reporting the unused operand as EXTRA
	return fmt.Sprintf(tmpl, primary, secondary)
}

// Known reports whether mnemonic has a description.
func Known(mnemonic string) bool {
	_, ok := descriptions[mnemonic]
	return ok
}
