package remote

import (
	"path/filepath"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/internal/atomicfile"
	"github.com/yuya-takeyama/srcsync/pkg/metadata"
)

// WatermarkFileName is stored next to the workspace baseline.
const WatermarkFileName = "maxRevision.json"

// Watermark is the last fully synchronized remote revision, plus revisions this workspace
// produced itself above it.
type Watermark struct {
	MaxRevision  int64            `json:"maxRevision"`
	Acknowledged map[string]int64 `json:"acknowledged,omitempty"`
}

// Seen reports whether c is at or below the watermark or was produced by this workspace.
func (w *Watermark) Seen(c ChangeElement) bool {
	if c.Revision <= w.MaxRevision {
		return true
	}
	rev, ok := w.Acknowledged[c.Identity().String()]
	return ok && c.Revision <= rev
}

// FileWatermarkStore keeps the watermark in a JSON file.
type FileWatermarkStore struct {
	path string
}

// NewFileWatermarkStore stores the watermark in dir/maxRevision.json.
func NewFileWatermarkStore(dir string) *FileWatermarkStore {
	return &FileWatermarkStore{path: filepath.Join(dir, WatermarkFileName)}
}

// Path is the watermark file location.
func (s *FileWatermarkStore) Path() string { return s.path }

func (s *FileWatermarkStore) Load() (*Watermark, error) {
	w := &Watermark{}
	if _, err := atomicfile.ReadJSON(s.path, w); err != nil {
		return nil, errUtils.Build(errUtils.ErrBaseline).WithCause(err).WithContext("path", s.path).Err()
	}
	if w.Acknowledged == nil {
		w.Acknowledged = make(map[string]int64)
	}
	return w, nil
}

func (s *FileWatermarkStore) Advance(revision int64) error {
	w, err := s.Load()
	if err != nil {
		return err
	}
	if revision < w.MaxRevision {
		return nil
	}
	w.MaxRevision = revision
	for id, rev := range w.Acknowledged {
		if rev <= revision {
			delete(w.Acknowledged, id)
		}
	}
	return s.save(w)
}

func (s *FileWatermarkStore) Acknowledge(revisions map[metadata.Identity]int64) error {
	if len(revisions) == 0 {
		return nil
	}
	w, err := s.Load()
	if err != nil {
		return err
	}
	for id, rev := range revisions {
		if rev <= w.MaxRevision {
			continue
		}
		if rev > w.Acknowledged[id.String()] {
			w.Acknowledged[id.String()] = rev
		}
	}
	return s.save(w)
}

func (s *FileWatermarkStore) save(w *Watermark) error {
	if err := atomicfile.WriteJSON(s.path, w); err != nil {
		return errUtils.Build(errUtils.ErrBaseline).WithCause(err).Err()
	}
	return nil
}
