package kmsdrm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	events []Event
}

func (s *recordingSink) Dispatch(e Event) { s.events = append(s.events, e) }

func newTestDevice() *Device {
	return New(Config{})
}

func TestInputBridgeKeyDispatch(t *testing.T) {
	b := &inputBridge{}
	sink := &recordingSink{}
	d := newTestDevice()

	b.dispatch(d, sink, &inputDevice{}, inputEvent{Type: evKey, Code: 30, Value: 1}) // KEY_A down

	require_ := sink.events
	assert.Len(t, require_, 1)
	assert.Equal(t, EventKeyDown, require_[0].Kind)
	assert.Equal(t, Keysym('a'), require_[0].Key)
}

func TestInputBridgeMouseButtonRange(t *testing.T) {
	b := &inputBridge{}
	sink := &recordingSink{}
	d := newTestDevice()

	b.dispatch(d, sink, &inputDevice{}, inputEvent{Type: evKey, Code: btnLeft, Value: 1})
	assert.Equal(t, EventMouseButtonDown, sink.events[0].Kind)
	assert.Equal(t, uint8(1), sink.events[0].Button)
}

func TestInputBridgeWheelEmitsPressAndRelease(t *testing.T) {
	b := &inputBridge{}
	sink := &recordingSink{}
	d := newTestDevice()

	b.dispatch(d, sink, &inputDevice{}, inputEvent{Type: evRel, Code: relWheel, Value: -1})

	assert.Len(t, sink.events, 2)
	assert.Equal(t, EventMouseButtonDown, sink.events[0].Kind)
	assert.Equal(t, EventMouseButtonUp, sink.events[1].Kind)
}

func TestInputBridgeScalingKeyCyclesThreeTimesBackToStart(t *testing.T) {
	b := &inputBridge{scalingKey: 200, hasScaling: true}
	sink := &recordingSink{}
	d := newTestDevice()

	start := d.scalingMode
	for i := 0; i < 3; i++ {
		b.dispatch(d, sink, &inputDevice{}, inputEvent{Type: evKey, Code: 200, Value: 1})
	}
	assert.Equal(t, start, d.scalingMode)
	assert.Empty(t, sink.events)
}
