package xid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	a := New("draft")
	b := New("draft")
	assert.NotEqual(t, a, b)

	require.True(t, strings.HasPrefix(a, "draft-"))
	_, err := uuid.Parse(strings.TrimPrefix(a, "draft-"))
	assert.NoError(t, err)
}
