package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "Hello my name is Alice", []string{"Hello", "my", "name", "is", "Alice"}},
		{"keeps case and punctuation", "Hello, hello!", []string{"Hello,", "hello!"}},
		{"collapses whitespace", "  a\t\tb\n c  ", []string{"a", "b", "c"}},
		{"repeats kept", "go go go", []string{"go", "go", "go"}},
		{"empty", "", []string{}},
		{"blank", " \t\n", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"b", "a", "c"}, Unique([]string{"b", "a", "b", "c", "a"}))
	assert.Equal(t, []string{"x"}, Unique([]string{"x"}))
	assert.Empty(t, Unique(nil))
}
