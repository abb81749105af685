package partition

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/fitset/internal/dataset"
	"github.com/ironsheep/fitset/internal/detection"
)

func TestDominantClass(t *testing.T) {
	lines := func(ids ...int) []detection.LabelLine {
		out := make([]detection.LabelLine, len(ids))
		for i, id := range ids {
			out[i] = detection.LabelLine{ClassID: id}
		}
		return out
	}

	assert.Equal(t, EmptyGroup, DominantClass(nil))
	assert.Equal(t, 2, DominantClass(lines(2, 2, 1)))
	assert.Equal(t, 1, DominantClass(lines(3, 1, 3, 1)), "ties go to the lower id")
	assert.Equal(t, 0, DominantClass(lines(0)))
}

func writeDetectorFixture(t *testing.T, images, labels string, n int, label func(i int) string) {
	t.Helper()
	for i := 0; i < n; i++ {
		stem := fmt.Sprintf("img_%03d", i)
		require.NoError(t, os.WriteFile(filepath.Join(images, stem+".jpg"), []byte(stem), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(labels, stem+".txt"), []byte(label(i)), 0o644))
	}
}

func TestSplitDetector(t *testing.T) {
	images := t.TempDir()
	labels := t.TempDir()
	out := filepath.Join(t.TempDir(), "det")

	// 10 normal-dominant, 10 low-dominant, 5 empty
	writeDetectorFixture(t, images, labels, 25, func(i int) string {
		switch {
		case i < 10:
			return "2 0.5 0.5 0.1 0.1\n2 0.4 0.4 0.1 0.1\n1 0.2 0.2 0.1 0.1\n"
		case i < 20:
			return "1 0.5 0.5 0.1 0.1\n"
		default:
			return ""
		}
	})
	require.NoError(t, os.WriteFile(filepath.Join(images, "orphan.jpg"), []byte("x"), 0o644))

	// stale output is cleared
	stale := filepath.Join(out, "images", "train", "stale.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	report, err := SplitDetector(DetectorSplit{
		ImageDir:  images,
		LabelDir:  labels,
		OutputDir: out,
		Ratio:     0.8,
		Rand:      rand.New(rand.NewSource(1)),
	})
	require.NoError(t, err)

	assert.Equal(t, map[int]int{2: 10, 1: 10, EmptyGroup: 5}, report.Groups)
	assert.Equal(t, 8+8+4, report.Train)
	assert.Equal(t, 2+2+1, report.Val)
	assert.Equal(t, []string{"orphan.jpg"}, report.Unmatched)
	assert.NoFileExists(t, stale)

	trainImgs, err := dataset.ListImages(filepath.Join(out, "images", "train"))
	require.NoError(t, err)
	assert.Len(t, trainImgs, 20)
	valLabels, err := dataset.ListFiles(filepath.Join(out, "labels", "val"), dataset.HasExt(".txt"))
	require.NoError(t, err)
	assert.Len(t, valLabels, 5)

	for _, name := range trainImgs {
		assert.NoFileExists(t, filepath.Join(out, "images", "val", name), "train and val are disjoint")
		assert.FileExists(t, filepath.Join(out, "labels", "train", strings.TrimSuffix(name, ".jpg")+".txt"))
	}

	d, err := dataset.ReadDescriptor(report.Dataset)
	require.NoError(t, err)
	assert.Equal(t, out, d.Path)
	assert.Equal(t, "normal", d.Names[2])
}

func TestSplitDetector_Errors(t *testing.T) {
	_, err := SplitDetector(DetectorSplit{
		ImageDir: filepath.Join(t.TempDir(), "missing"),
		LabelDir: t.TempDir(),
		Ratio:    0.9,
		Rand:     rand.New(rand.NewSource(1)),
	})
	assert.ErrorIs(t, err, dataset.ErrDirNotFound)

	_, err = SplitDetector(DetectorSplit{
		ImageDir: t.TempDir(),
		LabelDir: t.TempDir(),
		Ratio:    1,
		Rand:     rand.New(rand.NewSource(1)),
	})
	assert.ErrorIs(t, err, ErrInvalidRatio)
}

func TestSplitDetector_UnreadableImageIsSkipped(t *testing.T) {
	images := t.TempDir()
	labels := t.TempDir()
	out := filepath.Join(t.TempDir(), "det")

	writeDetectorFixture(t, images, labels, 4, func(int) string { return "2 0.5 0.5 0.1 0.1\n" })
	require.NoError(t, os.Symlink(filepath.Join(images, "gone.png"), filepath.Join(images, "broken.png")))
	require.NoError(t, os.WriteFile(filepath.Join(labels, "broken.txt"), []byte("2 0.5 0.5 0.1 0.1\n"), 0o644))

	report, err := SplitDetector(DetectorSplit{
		ImageDir:  images,
		LabelDir:  labels,
		OutputDir: out,
		Ratio:     0.5,
		Rand:      rand.New(rand.NewSource(7)),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"broken"}, report.Failed)
	assert.Equal(t, 4, report.Train+report.Val)
	assert.FileExists(t, report.Dataset)

	for _, subset := range []string{"train", "val"} {
		assert.NoFileExists(t, filepath.Join(out, "images", subset, "broken.png"))
		assert.NoFileExists(t, filepath.Join(out, "labels", subset, "broken.txt"))
	}
}
