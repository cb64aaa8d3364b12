// Package tracker fingerprints every tracked path of the workspace and classifies it against
// the baseline persisted after the last synchronization.
package tracker

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	cp "github.com/otiai10/copy"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/internal/atomicfile"
	"github.com/yuya-takeyama/srcsync/internal/checksum"
	"github.com/yuya-takeyama/srcsync/internal/ignore"
	"github.com/yuya-takeyama/srcsync/internal/walker"
	"github.com/yuya-takeyama/srcsync/pkg/logger"
	"github.com/yuya-takeyama/srcsync/pkg/metadata"
	"github.com/yuya-takeyama/srcsync/pkg/project"
)

const (
	BaselineFileName = "sourcePathInfos.json"
	BackupSuffix     = ".bak"

	baselineVersion = 1
)

// SourcePathInfo is the fingerprint of one tracked path.
type SourcePathInfo struct {
	Path        string         `json:"sourcePath"`
	Hash        string         `json:"contentHash"`
	IsDirectory bool           `json:"isDirectory"`
	IsWorkspace bool           `json:"isWorkspace,omitempty"`
	IsPackage   bool           `json:"isArtifactRoot,omitempty"`
	Package     string         `json:"package"`
	State       metadata.State `json:"state"`
}

type baselineFile struct {
	Version int               `json:"version"`
	Entries []*SourcePathInfo `json:"entries"`
}

// Options configures a Tracker.
type Options struct {
	// Root is the absolute project root.
	Root string
	// Packages are package directories relative to Root, in declared order.
	Packages []string
	// StateDir holds the baseline file. Ignored when Stateless.
	StateDir string
	Ignore   ignore.Predicate
	// Stateless skips persistence and reports every path as New.
	Stateless bool
	Logger    *log.Logger
}

// Tracker holds the current fingerprints and the persisted baseline.
// It is not safe for concurrent use.
type Tracker struct {
	opts     Options
	log      *log.Logger
	baseline map[string]*SourcePathInfo
	current  map[string]*SourcePathInfo
}

// New loads the baseline, walks every package and classifies each path. On the first stateful
// run the baseline is written immediately with every path in state New.
func New(opts Options) (*Tracker, error) {
	if opts.Ignore == nil {
		opts.Ignore = ignore.AcceptAll{}
	}
	t := &Tracker{
		opts:     opts,
		log:      logger.OrNull(opts.Logger),
		baseline: make(map[string]*SourcePathInfo),
	}

	firstRun := false
	if !opts.Stateless {
		found, err := t.loadBaseline()
		if err != nil {
			return nil, err
		}
		firstRun = !found
	}

	if err := t.scan(); err != nil {
		return nil, err
	}

	if firstRun {
		t.log.Debug("no baseline found, tracking all paths as new", "path", t.BaselinePath())
		if err := t.Save(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// BaselinePath is the location of the persisted baseline.
func (t *Tracker) BaselinePath() string {
	return filepath.Join(t.opts.StateDir, BaselineFileName)
}

// Stateless reports whether the tracker persists anything.
func (t *Tracker) Stateless() bool {
	return t.opts.Stateless
}

func (t *Tracker) loadBaseline() (bool, error) {
	var file baselineFile
	found, err := atomicfile.ReadJSON(t.BaselinePath(), &file)
	if err != nil {
		return found, errUtils.Build(errUtils.ErrBaseline).
			WithCause(err).
			WithHintf("remove %s to start tracking from scratch", t.BaselinePath()).
			Err()
	}
	t.baseline = make(map[string]*SourcePathInfo, len(file.Entries))
	for _, e := range file.Entries {
		if e.Path == "" {
			continue
		}
		t.baseline[e.Path] = e
	}
	return found, nil
}

// scan fingerprints the workspace root and every package tree.
func (t *Tracker) scan() error {
	t.current = make(map[string]*SourcePathInfo)

	var present []string
	for _, pkg := range t.opts.Packages {
		dir := filepath.Join(t.opts.Root, pkg)
		if _, err := os.Stat(dir); err != nil {
			if os.IsNotExist(err) {
				t.log.Debug("package directory does not exist", "package", pkg)
				continue
			}
			return errors.Wrapf(err, "stat package %s", pkg)
		}
		present = append(present, pkg)

		if err := t.track(pkg, dir, true); err != nil {
			return err
		}

		w, err := walker.NewWalker(dir, t.opts.Ignore)
		if err != nil {
			return err
		}
		files, err := w.Walk()
		if err != nil {
			return err
		}
		for _, f := range files {
			if err := t.track(pkg, f.Path, f.IsDir); err != nil {
				return err
			}
		}
	}

	root := &SourcePathInfo{
		Path:        t.opts.Root,
		Hash:        checksum.Directory(present),
		IsDirectory: true,
		IsWorkspace: true,
	}
	t.current[root.Path] = root
	t.classify(root)

	for path, b := range t.baseline {
		if _, ok := t.current[path]; ok {
			continue
		}
		if b.State == metadata.StateNew {
			if !exists(path) {
				delete(t.baseline, path)
			}
			continue
		}
		if !t.opts.Ignore.Accepts(path) {
			continue
		}
		// Paths of packages no longer declared are forgotten, not deleted.
		if _, ok := t.packageOf(path); !ok && !b.IsWorkspace {
			continue
		}
		gone := *b
		gone.State = metadata.StateDeleted
		t.current[path] = &gone
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func (t *Tracker) track(pkg, path string, isDir bool) error {
	info, err := fingerprint(path, isDir, t.opts.Ignore)
	if err != nil {
		return err
	}
	info.Package = pkg
	info.IsPackage = path == filepath.Join(t.opts.Root, pkg)
	t.current[path] = info
	t.classify(info)
	return nil
}

func fingerprint(path string, isDir bool, accepts ignore.Predicate) (*SourcePathInfo, error) {
	info := &SourcePathInfo{Path: path, IsDirectory: isDir}
	if isDir {
		names, err := walker.ListNames(path, accepts)
		if err != nil {
			return nil, err
		}
		info.Hash = checksum.Directory(names)
		return info, nil
	}
	hash, err := checksum.File(path)
	if err != nil {
		return nil, errors.Wrapf(err, "fingerprint %s", path)
	}
	info.Hash = hash
	return info, nil
}

func (t *Tracker) classify(info *SourcePathInfo) {
	b, ok := t.baseline[info.Path]
	switch {
	case t.opts.Stateless || !ok || b.State == metadata.StateNew:
		info.State = metadata.StateNew
	case b.Hash != info.Hash:
		info.State = metadata.StateChanged
	default:
		info.State = metadata.StateUnchanged
	}
}

// Get returns the current info for path.
func (t *Tracker) Get(path string) (*SourcePathInfo, bool) {
	info, ok := t.current[path]
	return info, ok
}

// Synced reports whether path has been part of an accepted synchronization.
func (t *Tracker) Synced(path string) bool {
	b, ok := t.baseline[path]
	return ok && b.State != metadata.StateNew
}

// Infos returns every current entry, including Deleted ones, sorted by path.
func (t *Tracker) Infos() []*SourcePathInfo {
	out := make([]*SourcePathInfo, 0, len(t.current))
	for _, info := range t.current {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Changed returns the entries whose state is New, Changed or Deleted, sorted by path.
func (t *Tracker) Changed() []*SourcePathInfo {
	var out []*SourcePathInfo
	for _, info := range t.Infos() {
		if info.State.IsChanged() {
			out = append(out, info)
		}
	}
	return out
}

// Refresh re-fingerprints paths and their parent directories after the workspace was modified.
func (t *Tracker) Refresh(paths ...string) error {
	for _, path := range t.withParents(paths) {
		pkg, ok := t.packageOf(path)
		if !ok {
			continue
		}
		st, err := os.Stat(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return errors.Wrapf(err, "stat %s", path)
			}
			if b, ok := t.baseline[path]; ok && b.State != metadata.StateNew {
				gone := *b
				gone.State = metadata.StateDeleted
				t.current[path] = &gone
			} else {
				// Never synchronized, so nothing is left to report.
				delete(t.baseline, path)
				delete(t.current, path)
			}
			continue
		}
		if !t.opts.Ignore.Accepts(path) {
			continue
		}
		if err := t.track(pkg, path, st.IsDir()); err != nil {
			return err
		}
	}
	return nil
}

// Accept records the current fingerprints of paths (and their parent directories) as the
// synchronized baseline. Deleted paths are dropped from the baseline. Call Save to persist.
func (t *Tracker) Accept(paths ...string) {
	for _, path := range t.withParents(paths) {
		info, ok := t.current[path]
		if !ok {
			delete(t.baseline, path)
			continue
		}
		if info.State == metadata.StateDeleted {
			delete(t.baseline, path)
			delete(t.current, path)
			continue
		}
		accepted := *info
		accepted.State = metadata.StateUnchanged
		t.baseline[path] = &accepted
		info.State = metadata.StateUnchanged
	}
}

// withParents expands paths with every ancestor directory up to the package root.
func (t *Tracker) withParents(paths []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range paths {
		pkg, ok := t.packageOf(p)
		if !ok {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
			continue
		}
		pkgDir := filepath.Join(t.opts.Root, pkg)
		for cur := p; ; cur = filepath.Dir(cur) {
			if !seen[cur] {
				seen[cur] = true
				out = append(out, cur)
			}
			if cur == pkgDir || filepath.Dir(cur) == cur {
				break
			}
		}
	}
	// Deeper paths first so directories see their final children.
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

func (t *Tracker) packageOf(path string) (string, bool) {
	return project.ContainingPackage(t.opts.Root, t.opts.Packages, path)
}

// Save atomically writes the baseline. Paths never accepted are stored in state New.
func (t *Tracker) Save() error {
	if t.opts.Stateless {
		return nil
	}
	entries := make([]*SourcePathInfo, 0, len(t.baseline)+len(t.current))
	for _, b := range t.baseline {
		entries = append(entries, b)
	}
	for path, info := range t.current {
		if _, ok := t.baseline[path]; ok || info.State != metadata.StateNew {
			continue
		}
		pending := *info
		t.baseline[path] = &pending
		entries = append(entries, &pending)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	if err := atomicfile.WriteJSON(t.BaselinePath(), baselineFile{Version: baselineVersion, Entries: entries}); err != nil {
		return errUtils.Build(errUtils.ErrBaseline).WithCause(err).Err()
	}
	t.log.Debug("saved baseline", "path", t.BaselinePath(), "entries", len(entries))
	return nil
}

// Backup copies the persisted baseline aside so a failed operation can Revert to it.
func (t *Tracker) Backup() error {
	if t.opts.Stateless {
		return nil
	}
	if _, err := os.Stat(t.BaselinePath()); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "stat baseline")
	}
	if err := cp.Copy(t.BaselinePath(), t.BaselinePath()+BackupSuffix); err != nil {
		return errUtils.Build(errUtils.ErrBaseline).WithCause(err).WithContext("op", "backup").Err()
	}
	return nil
}

// Revert restores the backup taken by Backup and reclassifies the workspace against it.
func (t *Tracker) Revert() error {
	if t.opts.Stateless {
		return nil
	}
	backup := t.BaselinePath() + BackupSuffix
	if _, err := os.Stat(backup); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "stat baseline backup")
	}
	if err := cp.Copy(backup, t.BaselinePath()); err != nil {
		return errUtils.Build(errUtils.ErrBaseline).WithCause(err).WithContext("op", "revert").Err()
	}
	if _, err := t.loadBaseline(); err != nil {
		return err
	}
	t.log.Warn("restored baseline from backup", "path", backup)
	if err := t.scan(); err != nil {
		return err
	}
	return t.DiscardBackup()
}

// DiscardBackup removes the backup once the dependent operation completed.
func (t *Tracker) DiscardBackup() error {
	if t.opts.Stateless {
		return nil
	}
	if err := os.Remove(t.BaselinePath() + BackupSuffix); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove baseline backup")
	}
	return nil
}
