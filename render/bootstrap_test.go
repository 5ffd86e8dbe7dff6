package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cg2go/renderer/gpu"
	"github.com/cg2go/renderer/gpu/gputest"
)

func TestSelectAdapterSkipsSoftware(t *testing.T) {
	warp := gputest.NewAdapter("Basic Render Driver")
	warp.Software = true
	hw := gputest.NewAdapter("Fake GPU")

	adapter, dev, err := SelectAdapter(gputest.NewFactory(warp, hw))
	require.NoError(t, err)
	assert.Equal(t, "Fake GPU", adapter.Desc().Description)
	assert.Equal(t, gpu.FeatureLevel12_2, dev.FeatureLevel())
	assert.Empty(t, warp.Attempts)
}

func TestCreateDeviceProbesFeatureLevels(t *testing.T) {
	a := gputest.NewAdapter("Old GPU")
	a.MaxLevel = gpu.FeatureLevel12_0

	dev, err := CreateDevice(a)
	require.NoError(t, err)
	assert.Equal(t, gpu.FeatureLevel12_0, dev.FeatureLevel())
	assert.Equal(t, []gpu.FeatureLevel{
		gpu.FeatureLevel12_2,
		gpu.FeatureLevel12_1,
		gpu.FeatureLevel12_0,
	}, a.Attempts)
}

func TestSelectAdapterFallsThrough(t *testing.T) {
	tooOld := gputest.NewAdapter("Ancient GPU")
	tooOld.MaxLevel = gpu.FeatureLevel12_0 - 1
	ok := gputest.NewAdapter("Fake GPU")
	ok.MaxLevel = gpu.FeatureLevel12_1

	adapter, dev, err := SelectAdapter(gputest.NewFactory(tooOld, ok))
	require.NoError(t, err)
	assert.Equal(t, "Fake GPU", adapter.Desc().Description)
	assert.Equal(t, gpu.FeatureLevel12_1, dev.FeatureLevel())
	assert.Len(t, tooOld.Attempts, 3)
}

func TestSelectAdapterNone(t *testing.T) {
	warp := gputest.NewAdapter("Basic Render Driver")
	warp.Software = true

	_, _, err := SelectAdapter(gputest.NewFactory(warp))
	assert.ErrorIs(t, err, ErrNoAdapter)

	_, _, err = SelectAdapter(gputest.NewFactory())
	assert.ErrorIs(t, err, ErrNoAdapter)
}

func TestCreateDeviceNoLevel(t *testing.T) {
	a := gputest.NewAdapter("Ancient GPU")
	a.MaxLevel = gpu.FeatureLevel12_0 - 1

	_, err := CreateDevice(a)
	assert.ErrorIs(t, err, ErrNoFeatureLevel)
}

func TestSelectAdapterReleasesOnDeviceError(t *testing.T) {
	warp := gputest.NewAdapter("Basic Render Driver")
	warp.Software = true
	broken := gputest.NewAdapter("Lost GPU")
	broken.CreateErr = gpu.ErrDeviceRemoved
	next := gputest.NewAdapter("Fake GPU")

	_, _, err := SelectAdapter(gputest.NewFactory(warp, broken, next))
	require.ErrorIs(t, err, gpu.ErrDeviceRemoved)
	assert.Equal(t, 1, warp.Releases)
	assert.Equal(t, 1, broken.Releases)
	assert.Equal(t, 1, next.Releases)
	assert.Empty(t, next.Attempts)
}

func TestSelectAdapterKeepsChosen(t *testing.T) {
	first := gputest.NewAdapter("Fake GPU")
	second := gputest.NewAdapter("Other GPU")

	adapter, _, err := SelectAdapter(gputest.NewFactory(first, second))
	require.NoError(t, err)
	assert.Same(t, first, adapter)
	assert.Zero(t, first.Releases)
	assert.Equal(t, 1, second.Releases)
}
