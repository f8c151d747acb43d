package student

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixGenerator(t *testing.T) {
	gen := NewPrefixGenerator("")

	assert.Equal(t, "STU00001", gen.Generate(1))
	assert.Equal(t, "STU00042", gen.Generate(42))
	assert.Equal(t, "STU123456", gen.Generate(123456))
	assert.Equal(t, gen.Generate(7), gen.Generate(7))

	seen := make(map[string]int64)
	for key := int64(1); key <= 2000; key++ {
		id := gen.Generate(key)
		prev, dup := seen[id]
		assert.False(t, dup, "keys %d and %d collide on %s", prev, key, id)
		seen[id] = key
	}

	assert.Equal(t, "ENG00003", NewPrefixGenerator("ENG").Generate(3))
}
