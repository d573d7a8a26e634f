package spool

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSpool(t *testing.T, keep int) *Spool {
	t.Helper()
	s, err := New(t.TempDir(), 20, keep, nil)
	require.NoError(t, err)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	s.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return s
}

func TestSpool_StoreAndLatest(t *testing.T) {
	s := newTestSpool(t, 10)

	_, err := s.Latest()
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, s.Store("<<<systemtime>>>\n1\n"))
	require.NoError(t, s.Store("<<<systemtime>>>\n2\n"))
	require.NoError(t, s.Store(""))

	assert.Equal(t, 2, s.Count())
	latest, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, "<<<systemtime>>>\n2\n", latest)
}

func TestSpool_KeepLimit(t *testing.T) {
	s := newTestSpool(t, 2)
	for _, out := range []string{"a\n", "b\n", "c\n", "d\n"} {
		require.NoError(t, s.Store(out))
	}
	assert.Equal(t, 2, s.Count())
	latest, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, "d\n", latest)
}

func TestSpool_SizeLimitKeepsNewest(t *testing.T) {
	s := newTestSpool(t, 0)
	s.maxSizeMB = 1
	big := make([]byte, 700*1024)
	for i := range big {
		big[i] = 'x'
	}
	require.NoError(t, s.Store(string(big)))
	require.NoError(t, s.Store(string(big)))
	assert.Equal(t, 1, s.Count())
}
