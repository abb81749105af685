package imaging

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ironsheep/fitset/internal/dataset"
	"github.com/ironsheep/fitset/internal/logging"
)

// VerifyReport summarises an integrity sweep.
type VerifyReport struct {
	// Checked is the number of image files decoded.
	Checked int `json:"checked"`

	// Corrupted lists the paths that failed to decode, in walk order.
	Corrupted []string `json:"corrupted"`

	// Removed lists the corrupted paths that were deleted.
	Removed []string `json:"removed,omitempty"`
}

// Verify walks root and fully decodes every file with an image extension.
// Files that fail to decode are reported and, when remove is set, deleted.
//
// Only a missing root or a cancelled ctx aborts the sweep.
func Verify(ctx context.Context, root string, remove bool, logger *slog.Logger) (*VerifyReport, error) {
	logger = logging.OrDiscard(logger)

	if err := dataset.RequireDir(root); err != nil {
		return nil, err
	}

	report := &VerifyReport{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("cannot read path", "path", path, "error", err)
			return nil
		}
		if d.IsDir() || !dataset.IsImage(d.Name()) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		report.Checked++
		_, _, decodeErr := decodeFile(path)
		if decodeErr == nil {
			return nil
		}
		logger.Warn("corrupted image", "path", path, "error", decodeErr)
		report.Corrupted = append(report.Corrupted, path)

		if remove {
			if err := os.Remove(path); err != nil {
				logger.Error("failed to remove corrupted image", "path", path, "error", err)
				return nil
			}
			report.Removed = append(report.Removed, path)
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("verify %s: %w", root, err)
	}

	logger.Info("verification complete",
		"root", root,
		"checked", report.Checked,
		"corrupted", len(report.Corrupted),
		"removed", len(report.Removed))

	return report, nil
}
