package method

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMethod(t *testing.T) {
	for method := GET; method <= Count; method++ {
		assert.Equal(t, method, Parse(method.String()))
	}

	assert.Equal(t, Unknown, Parse("get"))
	assert.Equal(t, Unknown, Parse("BREW"))
	assert.Equal(t, Unknown, Parse(""))
}

func TestServed(t *testing.T) {
	for method := GET; method <= Count; method++ {
		assert.Equal(t, method == GET || method == POST, method.Served(), method.String())
		assert.Equal(t, method == POST, method.AcceptsBody(), method.String())
	}
}
