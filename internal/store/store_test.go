package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUsername(t *testing.T) {
	assert.Equal(t, "alice", NormalizeUsername(" alice\t"))
	assert.Equal(t, "alice", NormalizeUsername("alice"))
	assert.Equal(t, "", NormalizeUsername("   "))
	assert.True(t, ValidUsername(NormalizeUsername("alice \n")))
}

func TestValidUsername(t *testing.T) {
	valid := []string{"alice", "Bob_2", "a.b-c", strings.Repeat("x", 64)}
	invalid := []string{"", ".", "..", "../etc", "a/b", "al ice", "é", strings.Repeat("x", 65)}

	for _, name := range valid {
		assert.True(t, ValidUsername(name), name)
	}
	for _, name := range invalid {
		assert.False(t, ValidUsername(name), name)
	}
}
