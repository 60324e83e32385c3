package mosaic

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFootprintKey(t *testing.T) {
	b := coarseBounds()
	assert.Equal(t, FootprintKey(boxSite, b), FootprintKey(boxSite, b))
	assert.Contains(t, FootprintKey(boxSite, b), "box:")

	finer := b
	finer.LatStep = 0.5
	assert.NotEqual(t, FootprintKey(boxSite, b), FootprintKey(boxSite, finer))

	other := boxSite
	other.Name = "other"
	assert.NotEqual(t, FootprintKey(boxSite, b), FootprintKey(other, b))
}

func TestFootprintCache_ComputesOnce(t *testing.T) {
	g := coarseGrid(t)
	img := boxCam.image(t0, uniform(1))
	store := newMemStore()
	fc := NewFootprintCache(store, 0)

	const n = 16
	results := make([]*FootprintMap, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fm, err := fc.Get(context.Background(), boxSite, g, img)
			assert.NoError(t, err)
			results[i] = fm
		}(i)
	}
	wg.Wait()

	require.NotNil(t, results[0])
	for _, fm := range results {
		assert.Same(t, results[0], fm)
	}
	assert.Equal(t, 1, store.saves)
	assert.Same(t, results[0], store.entries[FootprintKey(boxSite, g.Bounds)])
}

func TestFootprintCache_ServesFromStore(t *testing.T) {
	g := coarseGrid(t)
	img := boxCam.image(t0, uniform(1))
	stored, err := MapFootprint(boxSite, g, img)
	require.NoError(t, err)

	store := newMemStore()
	store.entries[FootprintKey(boxSite, g.Bounds)] = stored

	fm, err := NewFootprintCache(store, 4).Get(context.Background(), boxSite, g, img)
	require.NoError(t, err)
	assert.Same(t, stored, fm)
	assert.Equal(t, 0, store.saves)
}

func TestFootprintCache_StaleEntryIsReplaced(t *testing.T) {
	g := coarseGrid(t)
	img := boxCam.image(t0, uniform(1))
	stale, err := MapFootprint(boxSite, g, img)
	require.NoError(t, err)
	stale.SrcCols++ // as if the camera's image size had changed

	store := newMemStore()
	key := FootprintKey(boxSite, g.Bounds)
	store.entries[key] = stale

	fm, err := NewFootprintCache(store, 4).Get(context.Background(), boxSite, g, img)
	require.NoError(t, err)
	assert.NotSame(t, stale, fm)
	assert.True(t, fm.FitsImage(img))
	assert.Equal(t, 1, store.saves)
	assert.Same(t, fm, store.entries[key])
}

func TestFootprintCache_StoreFailureIsNotFatal(t *testing.T) {
	g := coarseGrid(t)
	img := boxCam.image(t0, uniform(1))
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	fc := NewFootprintCache(store, 4)

	fm1, err := fc.Get(context.Background(), boxSite, g, img)
	require.NoError(t, err)
	fm2, err := fc.Get(context.Background(), boxSite, g, img)
	require.NoError(t, err)

	assert.Same(t, fm1, fm2)
	assert.Equal(t, 1, store.saves)
	assert.Empty(t, store.entries)
}

func TestFootprintCache_GeometryErrorsAreSticky(t *testing.T) {
	g := coarseGrid(t)
	fc := NewFootprintCache(nil, 4)
	sparse := rect{lon0: 249, lat0: 40, step: 1, nx: 2, ny: 1}.image(t0, uniform(1))
	good := boxCam.image(t0, uniform(1))

	_, err := fc.Get(context.Background(), boxSite, g, sparse)
	require.True(t, errors.Is(err, ErrGeometry))

	_, err = fc.Get(context.Background(), boxSite, g, good)
	assert.True(t, errors.Is(err, ErrGeometry), "a failed site stays failed for the session")

	fc.Forget(boxSite, g.Bounds)
	fm, err := fc.Get(context.Background(), boxSite, g, good)
	require.NoError(t, err)
	assert.Equal(t, 99, fm.Index.CountFinite())
}

func TestFootprintCache_BadFrameIsNotSticky(t *testing.T) {
	g := coarseGrid(t)
	fc := NewFootprintCache(nil, 4)
	bad := boxCam.image(t0, uniform(1))
	bad.Lat = rect{nx: 3, ny: 3}.image(t0, uniform(0)).Lat

	_, err := fc.Get(context.Background(), boxSite, g, bad)
	require.True(t, errors.Is(err, ErrDataUnavailable))

	fm, err := fc.Get(context.Background(), boxSite, g, boxCam.image(t0, uniform(1)))
	require.NoError(t, err, "the next good frame gets a footprint")
	assert.Equal(t, 99, fm.Index.CountFinite())
}

func TestFootprintCache_CorruptEntryIsReplaced(t *testing.T) {
	g := coarseGrid(t)
	img := boxCam.image(t0, uniform(1))
	corrupt, err := MapFootprint(boxSite, g, img)
	require.NoError(t, err)
	c, r, _ := g.CellAt(250, 38)
	corrupt.Index.Set(c, r, -3)

	store := newMemStore()
	store.entries[FootprintKey(boxSite, g.Bounds)] = corrupt

	fm, err := NewFootprintCache(store, 4).Get(context.Background(), boxSite, g, img)
	require.NoError(t, err)
	assert.NotSame(t, corrupt, fm)
	_, err = fm.Regrid(img)
	assert.NoError(t, err)
}

func TestFootprintCache_ConcurrentShapes(t *testing.T) {
	g := coarseGrid(t)
	small := boxCam.image(t0, uniform(1))
	bigger := boxCam
	bigger.border = 5
	big := bigger.image(t0, uniform(2))
	fc := NewFootprintCache(nil, 4)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		img := small
		if i%2 == 1 {
			img = big
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fm, err := fc.Get(context.Background(), boxSite, g, img)
			if assert.NoError(t, err) {
				assert.True(t, fm.FitsImage(img))
				_, err = fm.Regrid(img)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}

func TestFootprintCache_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFootprintCache(nil, 1).Get(ctx, boxSite, coarseGrid(t), boxCam.image(t0, uniform(1)))
	assert.ErrorIs(t, err, context.Canceled)
}
