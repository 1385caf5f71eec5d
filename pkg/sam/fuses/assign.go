package fuses

import (
	"fmt"
	"strconv"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// assignLexer tokenises "NAME=value" lists separated by commas, semicolons
// or whitespace.
var assignLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},

	// 0x.., 0b.., 0o.. or decimal, with optional '_' separators
	{Name: "Number", Pattern: `0[xX][0-9a-fA-F_]+|0[bB][01_]+|0[oO][0-7_]+|[0-9][0-9_]*`},

	{Name: "Ident", Pattern: `[a-zA-Z][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `[,;=]`},
})

type assignmentList struct {
	Items []*assignmentNode `parser:"@@ ( (',' | ';')? @@ )*"`
}

type assignmentNode struct {
	Pos lexer.Position

	Name  string `parser:"@Ident '='"`
	Value string `parser:"@Number"`
}

var assignParser = participle.MustBuild[assignmentList](
	participle.Lexer(assignLexer),
	participle.Elide("Whitespace"),
)

// Assignment sets one named field.
type Assignment struct {
	Field Field
	Value uint64
}

func (a Assignment) String() string {
	return fmt.Sprintf("%s=0x%X", a.Field.Name, a.Value)
}

// ParseAssignments parses a list like "BOOTPROT=0x7, WDT_ENABLE=0". Field
// names are checked against Fields and values against the field width.
func ParseAssignments(input string) ([]Assignment, error) {
	list, err := assignParser.ParseString("", input)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	out := make([]Assignment, 0, len(list.Items))
	for _, item := range list.Items {
		f, ok := Lookup(item.Name)
		if !ok {
			return nil, fmt.Errorf("%s: %w: %q", item.Pos, ErrUnknownField, item.Name)
		}
		v, err := strconv.ParseUint(item.Value, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid value %q: %w", item.Pos, item.Value, err)
		}
		if v > f.Max() {
			return nil, fmt.Errorf("%s: %w: %s max 0x%X, got 0x%X", item.Pos, ErrOutOfRange, f.Name, f.Max(), v)
		}
		out = append(out, Assignment{Field: f, Value: v})
	}
	return out, nil
}

// Apply returns word with every assignment applied in order.
func Apply(word uint64, assignments []Assignment) (uint64, error) {
	for _, a := range assignments {
		var err error
		if word, err = Set(word, a.Field.Name, a.Value); err != nil {
			return 0, err
		}
	}
	return word, nil
}

// MaskValue folds assignments into a mask of the touched bits and the
// value those bits should take, suitable for a read-modify-write.
func MaskValue(assignments []Assignment) (mask, value uint64, err error) {
	value, err = Apply(0, assignments)
	if err != nil {
		return 0, 0, err
	}
	for _, a := range assignments {
		mask |= a.Field.Mask()
	}
	return mask, value, nil
}
