package kmsdrm

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertyCacheAcquireAndLookup(t *testing.T) {
	c := newPropertyCache(nil)
	c.getProps = func(_ *os.File, objID, objType uint32) ([]uint32, []uint64, error) {
		return []uint32{10, 11}, []uint64{100, 200}, nil
	}
	c.getPropName = func(_ *os.File, propID uint32) (string, error) {
		names := map[uint32]string{10: "CRTC_ID", 11: "FB_ID"}
		return names[propID], nil
	}

	require.NoError(t, c.acquire(nil, 5, drmModeObjectPlane))
	// idempotent: second acquire for the same id must not duplicate.
	require.NoError(t, c.acquire(nil, 5, drmModeObjectPlane))
	assert.Len(t, c.records, 1)

	id, ok := c.lookupID(5, "FB_ID")
	require.True(t, ok)
	assert.Equal(t, uint32(11), id)

	v, ok := c.getValue(5, "CRTC_ID")
	require.True(t, ok)
	assert.Equal(t, uint64(100), v)

	_, ok = c.lookupID(5, "MISSING")
	assert.False(t, ok)
}

func TestPropertyCacheZeroPropertiesIsNonFatal(t *testing.T) {
	c := newPropertyCache(nil)
	c.getProps = func(_ *os.File, objID, objType uint32) ([]uint32, []uint64, error) {
		return nil, nil, nil
	}
	require.NoError(t, c.acquire(nil, 1, drmModeObjectCRTC))
	_, ok := c.record(1)
	assert.False(t, ok)
}

func TestPropertyCacheDrainFrontOrder(t *testing.T) {
	c := newPropertyCache(nil)
	c.getProps = func(_ *os.File, objID, objType uint32) ([]uint32, []uint64, error) {
		return []uint32{1}, []uint64{1}, nil
	}
	c.getPropName = func(_ *os.File, propID uint32) (string, error) { return "X", nil }

	require.NoError(t, c.acquire(nil, 100, drmModeObjectCRTC))
	require.NoError(t, c.acquire(nil, 200, drmModeObjectPlane))
	require.NoError(t, c.acquire(nil, 300, drmModeObjectConnector))

	assert.True(t, c.drainOne())
	_, ok := c.record(100)
	assert.False(t, ok)
	_, ok = c.record(200)
	assert.True(t, ok)

	assert.True(t, c.drainOne())
	assert.True(t, c.drainOne())
	assert.False(t, c.drainOne())
	assert.Empty(t, c.records)
}
