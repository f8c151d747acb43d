package student

import "fmt"

// IdentifierGenerator derives the public student identifier from the internal key.
// Implementations must be deterministic and must not map two keys to one identifier.
type IdentifierGenerator interface {
	Generate(key int64) string
}

// PrefixGenerator produces identifiers such as STU00042.
type PrefixGenerator struct {
	Prefix string
	Width  int
}

func NewPrefixGenerator(prefix string) PrefixGenerator {
	if prefix == "" {
		prefix = "STU"
	}
	return PrefixGenerator{Prefix: prefix, Width: 5}
}

func (g PrefixGenerator) Generate(key int64) string {
	return fmt.Sprintf("%s%0*d", g.Prefix, g.Width, key)
}
