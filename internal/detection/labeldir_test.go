package detection

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/fitset/internal/geometry"
)

func TestLabelDir_Detect(t *testing.T) {
	images := t.TempDir()
	preds := t.TempDir()

	img := filepath.Join(images, "no_1.png")
	writePNG(t, img, 200, 100)
	require.NoError(t, os.WriteFile(filepath.Join(preds, "no_1.txt"),
		[]byte("2 0.25 0.25 0.5 0.5 0.9\n1 0.75 0.75 0.5 0.5 0.2\n"), 0o644))

	d := &LabelDir{Dir: preds}
	dets, err := d.Detect(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, dets, 2)
	assert.Equal(t, Detection{
		ClassID:    2,
		Confidence: 0.9,
		Box:        geometry.Box{XMin: 0, YMin: 0, XMax: 100, YMax: 50},
	}, dets[0])

	d.MinConfidence = 0.5
	dets, err = d.Detect(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, ClassIDs(dets))
}

func TestLabelDir_MissingOrEmptyFile(t *testing.T) {
	images := t.TempDir()
	preds := t.TempDir()

	// no image on disk either: a missing prediction file never reads it
	dets, err := (&LabelDir{Dir: preds}).Detect(context.Background(), filepath.Join(images, "ab_1.jpg"))
	require.NoError(t, err)
	assert.Empty(t, dets)

	require.NoError(t, os.WriteFile(filepath.Join(preds, "ab_2.txt"), nil, 0o644))
	dets, err = (&LabelDir{Dir: preds}).Detect(context.Background(), filepath.Join(images, "ab_2.jpg"))
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestLabelDir_Errors(t *testing.T) {
	images := t.TempDir()
	preds := t.TempDir()

	// prediction present but image unreadable
	require.NoError(t, os.WriteFile(filepath.Join(preds, "no_3.txt"), []byte("2 0.5 0.5 0.1 0.1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(images, "no_3.jpg"), []byte("junk"), 0o644))
	_, err := (&LabelDir{Dir: preds}).Detect(context.Background(), filepath.Join(images, "no_3.jpg"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = (&LabelDir{Dir: preds}).Detect(ctx, filepath.Join(images, "no_3.jpg"))
	assert.ErrorIs(t, err, context.Canceled)
}
