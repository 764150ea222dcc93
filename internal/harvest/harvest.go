// Package harvest moves photos written by the capture driver into the
// project's canonical numbered sequence.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nir0k/SunLapse/internal/logging"
	"github.com/nir0k/SunLapse/internal/media"
	"github.com/nir0k/SunLapse/internal/upload"
)

// ErrCollision is returned instead of overwriting an existing canonical file.
var ErrCollision = errors.New("canonical file already exists")

// Order selects how raw files are sequenced within one harvest.
type Order string

const (
	// OrderName sorts by the driver's file names.
	OrderName Order = "name"
	// OrderModTime sorts by file modification time.
	OrderModTime Order = "mtime"
	// OrderCapture sorts by EXIF capture time, falling back to modification time.
	OrderCapture Order = "exif"
)

// ParseOrder validates an ordering key. Empty selects OrderName.
func ParseOrder(raw string) (Order, error) {
	switch o := Order(strings.ToLower(strings.TrimSpace(raw))); o {
	case "":
		return OrderName, nil
	case OrderName, OrderModTime, OrderCapture:
		return o, nil
	default:
		return "", fmt.Errorf("invalid order %q (expected name, mtime or exif)", raw)
	}
}

// Config locates the project directories.
type Config struct {
	Project  string
	PhotoDir string
	RawDir   string
	Order    Order
}

// Harvester renames raw captures into the canonical sequence and submits
// each renamed file to an optional upload sink.
type Harvester struct {
	cfg         Config
	sink        upload.Sink
	log         logging.Logger
	captureTime func(path string) (time.Time, error)
	warnedLimit bool
}

// New returns a Harvester. sink may be nil when uploads are disabled.
func New(cfg Config, sink upload.Sink, log logging.Logger) *Harvester {
	if cfg.Order == "" {
		cfg.Order = OrderName
	}
	if log == nil {
		log = logging.Discard
	}
	return &Harvester{
		cfg:         cfg,
		sink:        sink,
		log:         log,
		captureTime: media.ReadCaptureTime,
	}
}

type rawFile struct {
	name string
	key  time.Time
}

// Harvest claims every file currently in the raw directory and returns the
// counter after the last successful rename. Upload failures are logged and
// never affect numbering. A rename failure stops the cycle; files not yet
// processed stay in the raw directory for the next call. Cancelling ctx does
// not interrupt a cycle that has started: uploads run detached from it.
func (h *Harvester) Harvest(ctx context.Context, counter Counter) (Counter, error) {
	uploadCtx := context.WithoutCancel(ctx)
	files, err := h.pending()
	if err != nil {
		return counter, err
	}

	for _, f := range files {
		if counter > MaxIndex && !h.warnedLimit {
			h.warnedLimit = true
			h.log.Warningf("Sequence passed img%05d.jpg; canonical names now exceed five digits", MaxIndex)
		}

		src := filepath.Join(h.cfg.RawDir, f.name)
		name := CanonicalName(counter)
		dst := filepath.Join(h.cfg.PhotoDir, name)

		if _, err := os.Lstat(dst); err == nil {
			return counter, fmt.Errorf("%w: %s", ErrCollision, dst)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return counter, fmt.Errorf("stat %s: %w", dst, err)
		}
		if err := os.Rename(src, dst); err != nil {
			return counter, fmt.Errorf("rename %s: %w", src, err)
		}
		counter++
		h.log.Infof("Harvested %s -> %s", f.name, name)

		if h.sink == nil {
			continue
		}
		if err := h.sink.Upload(uploadCtx, dst, h.cfg.Project); err != nil {
			h.log.Warningf("Upload of %s failed, keeping local copy: %v", name, err)
			continue
		}
		h.log.Infof("Uploaded %s", name)
	}
	return counter, nil
}

func (h *Harvester) pending() ([]rawFile, error) {
	entries, err := os.ReadDir(h.cfg.RawDir)
	if err != nil {
		return nil, fmt.Errorf("read raw dir %s: %w", h.cfg.RawDir, err)
	}

	files := make([]rawFile, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			h.log.Warningf("Skipping non-regular entry in raw dir: %s", entry.Name())
			continue
		}
		f := rawFile{name: entry.Name()}
		if h.cfg.Order != OrderName {
			f.key = h.orderKey(entry)
		}
		files = append(files, f)
	}

	if h.cfg.Order != OrderName {
		sort.SliceStable(files, func(i, j int) bool {
			if files[i].key.Equal(files[j].key) {
				return files[i].name < files[j].name
			}
			return files[i].key.Before(files[j].key)
		})
	}
	return files, nil
}

func (h *Harvester) orderKey(entry fs.DirEntry) time.Time {
	if h.cfg.Order == OrderCapture {
		ts, err := h.captureTime(filepath.Join(h.cfg.RawDir, entry.Name()))
		if err == nil {
			return ts
		}
		h.log.Warningf("No capture time for %s, ordering by modification time: %v", entry.Name(), err)
	}
	info, err := entry.Info()
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
