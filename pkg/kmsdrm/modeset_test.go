package kmsdrm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyScalingFullscreenFillsCRTC(t *testing.T) {
	r := applyScaling(ScalingFullscreen, 320, 240, 640, 480, 1, 1)
	assert.Equal(t, scalingRect{X: 0, Y: 0, W: 640, H: 480}, r)
}

func TestApplyScalingAspectRatioExactMultipleLetterboxesHorizontally(t *testing.T) {
	// 320x240 into an 800x480 CRTC: height-constrained, letterboxed left/right.
	r := applyScaling(ScalingAspectRatio, 320, 240, 800, 480, 1, 1)
	assert.Equal(t, 640, r.W)
	assert.Equal(t, 480, r.H)
	assert.Equal(t, 80, r.X)
	assert.Equal(t, 0, r.Y)
}

func TestApplyScalingAspectRatioIntoExactCRTCSizeHasNoLetterbox(t *testing.T) {
	r := applyScaling(ScalingAspectRatio, 320, 240, 640, 480, 1, 1)
	assert.Equal(t, scalingRect{X: 0, Y: 0, W: 640, H: 480}, r)
}

func TestApplyScalingIntegerScaledPicksWholeFactor(t *testing.T) {
	// 320x240 source, factor 4 fits with remainder to spare in both axes.
	r := applyScaling(ScalingIntegerScaled, 320, 240, 1300, 980, 1, 1)
	assert.Equal(t, 1280, r.W)
	assert.Equal(t, 960, r.H)
	assert.Equal(t, (1300-1280)/2, r.X)
	assert.Equal(t, (980-960)/2, r.Y)
}

func TestApplyScalingIntegerScaledFallsBackToFullscreenWhenLarger(t *testing.T) {
	r := applyScaling(ScalingIntegerScaled, 640, 480, 640, 480, 1, 1)
	assert.Equal(t, scalingRect{X: 0, Y: 0, W: 640, H: 480}, r)
}

func TestApplyScalingZeroFactorsTreatedAsOne(t *testing.T) {
	r := applyScaling(ScalingFullscreen, 320, 240, 640, 480, 0, 0)
	assert.Equal(t, scalingRect{X: 0, Y: 0, W: 640, H: 480}, r)
}

func TestColorFlagFromFlags(t *testing.T) {
	assert.Equal(t, colorDefault, colorFlagFromFlags(0))
	assert.Equal(t, colorYUV, colorFlagFromFlags(surfaceFlagYUV))
	assert.Equal(t, colorSwizzleBGR, colorFlagFromFlags(surfaceFlagSwizzleBGR))
}
