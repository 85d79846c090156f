package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCounter_StartsAtOne(t *testing.T) {
	c := NewMemoryCounter()
	for want := int64(1); want <= 3; want++ {
		got, err := c.Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestFileCounter_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "counter.json")

	first := NewFileCounter(path)
	a, err := first.Next()
	require.NoError(t, err)
	b, err := first.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(1), a)
	assert.Equal(t, int64(2), b)

	second := NewFileCounter(path)
	c, err := second.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(3), c, "重启之后继续递增")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nextClientEventId":4}`, string(data))
}

func TestFileCounter_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

	_, err := NewFileCounter(path).Next()
	assert.Error(t, err)
}
