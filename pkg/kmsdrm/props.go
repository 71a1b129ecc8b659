package kmsdrm

import (
	"log/slog"
	"os"
)

// propertyDescriptor is one cached property id/name/value triple for a
// single DRM object, the Go analogue of the source's
// drmModePropertyRes + its slot in drmModeObjectProperties.
type propertyDescriptor struct {
	ID    uint32
	Name  string
	Value uint64
}

// propertyRecord is spec §3's "Property record": the full set of cached
// descriptors for one object id, plus the object's type tag.
type propertyRecord struct {
	ObjID   uint32
	ObjType uint32
	Props   []propertyDescriptor
}

// propertyCache replaces the source's drm_prop_storage linked list with an
// owned sequence (design note §9): order is acquisition order, and
// teardown pops the front exactly like the original's drain loop.
type propertyCache struct {
	records []*propertyRecord
	index   map[uint32]int
	log     *slog.Logger

	// Seams so tests can exercise acquire()/drainOne() against a fake
	// kernel instead of a real DRM device; default to the real ioctls.
	getProps    func(*os.File, uint32, uint32) ([]uint32, []uint64, error)
	getPropName func(*os.File, uint32) (string, error)
}

func newPropertyCache(log *slog.Logger) *propertyCache {
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &propertyCache{
		index:       make(map[uint32]int),
		log:         log,
		getProps:    objGetProperties,
		getPropName: getPropertyName,
	}
}

// acquire fetches objID's properties and caches every descriptor.
// Idempotent per id: a second acquire for an already-cached id is a no-op.
// An object reporting zero properties is non-fatal and inserts no record.
func (c *propertyCache) acquire(f *os.File, objID, objType uint32) error {
	if _, ok := c.index[objID]; ok {
		return nil
	}

	ids, values, err := c.getProps(f, objID, objType)
	if err != nil {
		return NewKernelError(err, "OBJ_GETPROPERTIES(%d)", objID)
	}
	if len(ids) == 0 {
		return nil
	}

	rec := &propertyRecord{ObjID: objID, ObjType: objType, Props: make([]propertyDescriptor, 0, len(ids))}
	for i, id := range ids {
		name, err := c.getPropName(f, id)
		if err != nil {
			c.log.Warn("property name lookup failed", "obj", objID, "prop", id, "err", err)
			continue
		}
		rec.Props = append(rec.Props, propertyDescriptor{ID: id, Name: name, Value: values[i]})
		c.log.Debug("cached property", "obj", objID, "name", name, "value", values[i])
	}

	c.index[objID] = len(c.records)
	c.records = append(c.records, rec)
	return nil
}

func (c *propertyCache) record(objID uint32) (*propertyRecord, bool) {
	i, ok := c.index[objID]
	if !ok {
		return nil, false
	}
	return c.records[i], true
}

// lookupID is component B's lookup_id(obj_id, name): a linear scan of the
// cached descriptors (property counts per object are small, typically
// under twenty, so this mirrors the source's find_prop_info_idx exactly
// rather than building a secondary name index).
func (c *propertyCache) lookupID(objID uint32, name string) (uint32, bool) {
	rec, ok := c.record(objID)
	if !ok {
		return 0, false
	}
	for _, p := range rec.Props {
		if p.Name == name {
			return p.ID, true
		}
	}
	return 0, false
}

// getValue is component B's get_value(obj_id, name).
func (c *propertyCache) getValue(objID uint32, name string) (uint64, bool) {
	rec, ok := c.record(objID)
	if !ok {
		return 0, false
	}
	for _, p := range rec.Props {
		if p.Name == name {
			return p.Value, true
		}
	}
	return 0, false
}

// drainOne releases exactly one cached record, oldest first, mirroring the
// source's free_drm_prop_storage popping drm_first_prop_store. Returns
// false once the cache is empty.
func (c *propertyCache) drainOne() bool {
	if len(c.records) == 0 {
		return false
	}
	rec := c.records[0]
	c.records = c.records[1:]
	delete(c.index, rec.ObjID)
	for k, v := range c.index {
		c.index[k] = v - 1
	}
	return true
}

// teardown drains every remaining record.
func (c *propertyCache) teardown() {
	for c.drainOne() {
	}
}
