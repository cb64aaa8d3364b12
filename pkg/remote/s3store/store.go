// Package s3store is a remote store kept in an S3 bucket. Components are stored in aggregate
// layout below <prefix>tree/ and every deploy appends to a revision log at <prefix>revisions.json.
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/beevik/etree"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/pkg/logger"
	"github.com/yuya-takeyama/srcsync/pkg/metadata"
	"github.com/yuya-takeyama/srcsync/pkg/remote"
	"github.com/yuya-takeyama/srcsync/pkg/strategy"
)

const treePrefix = "tree/"

// Options configures a Store.
type Options struct {
	Registry *metadata.Registry
	Logger   *log.Logger
}

// Store implements remote.Remote on top of an S3 bucket.
type Store struct {
	bucket   *bucket
	registry *metadata.Registry
	logger   *log.Logger
}

var _ remote.Remote = (*Store)(nil)

// New creates a store for uri (s3://bucket/prefix) using api.
func New(api API, uri string, opts Options) (*Store, error) {
	name, prefix, err := ParseURI(uri)
	if err != nil {
		return nil, errUtils.Build(errUtils.ErrInvalidProject).WithCause(err).Err()
	}
	reg := opts.Registry
	if reg == nil {
		reg = metadata.DefaultRegistry()
	}
	return &Store{
		bucket:   newBucket(api, name, prefix),
		registry: reg,
		logger:   logger.OrNull(opts.Logger),
	}, nil
}

// NewFromConfig loads the AWS configuration and creates a store for uri.
func NewFromConfig(ctx context.Context, uri string, opts Options, configOpts ...func(*config.LoadOptions) error) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "load AWS config")
	}
	return New(s3.NewFromConfig(cfg), uri, opts)
}

// URI returns the location of the store.
func (s *Store) URI() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket.name, s.bucket.prefix)
}

func treeKey(aggregatePath string) string {
	return treePrefix + aggregatePath
}

// Deploy applies the members of package.xml and the deletions of destructiveChanges.xml.
// The returned job is already complete.
func (s *Store) Deploy(ctx context.Context, zip []byte, opts remote.DeployOptions) (remote.Job[*remote.DeployResult], error) {
	files, err := remote.ReadZip(zip)
	if err != nil {
		return nil, err
	}
	pkgXML, ok := files[remote.ManifestFileName]
	if !ok {
		return nil, errUtils.Build(errUtils.ErrParse).
			WithExplanationf("deploy archive has no %s", remote.ManifestFileName).
			Err()
	}
	manifest, err := remote.ParseManifest(pkgXML)
	if err != nil {
		return nil, err
	}
	var destructive *remote.Manifest
	if data, ok := files[remote.DestructiveFileName]; ok {
		if destructive, err = remote.ParseManifest(data); err != nil {
			return nil, err
		}
	}

	revisions, err := s.loadLog(ctx)
	if err != nil {
		return nil, err
	}

	d := &deployment{store: s, files: files, log: revisions, checkOnly: opts.CheckOnly}
	result := &remote.DeployResult{ID: uuid.NewString()}

	for _, id := range manifest.Identities() {
		c, err := d.upsert(ctx, id)
		if err != nil {
			return nil, err
		}
		result.Components = append(result.Components, c)
	}
	for _, id := range destructive.Identities() {
		c, err := d.remove(ctx, id)
		if err != nil {
			return nil, err
		}
		result.Components = append(result.Components, c)
	}

	if !opts.CheckOnly && revisions.dirty {
		if err := s.saveLog(ctx, revisions); err != nil {
			return nil, err
		}
	}

	result.Recompute()
	s.logger.Info("deploy finished", "job", result.ID, "status", result.Status,
		"components", len(result.Components), "revision", revisions.Counter)
	return &remote.Completed[*remote.DeployResult]{JobID: result.ID, Result: result}, nil
}

type deployment struct {
	store     *Store
	files     map[string][]byte
	log       *revisionLog
	checkOnly bool
}

func failure(id metadata.Identity, fileName, problem string) remote.ComponentResult {
	return remote.ComponentResult{
		Type:     id.Type,
		FullName: id.FullName,
		FileName: fileName,
		Problem:  problem,
	}
}

// upsert stores one component. Problems with the submitted files become failed component
// results; storage errors abort the deploy.
func (d *deployment) upsert(ctx context.Context, id metadata.Identity) (remote.ComponentResult, error) {
	t, child, err := d.store.registry.Resolve(id.Type)
	if err != nil {
		return failure(id, "", err.Error()), nil
	}
	if child != nil {
		return failure(id, "", fmt.Sprintf("%s is deployed through its parent %s", id.Type, t.Name)), nil
	}

	aggPath := t.AggregatePath(id.FullName)
	data, ok := d.files[aggPath]
	if !ok {
		return failure(id, aggPath, "file not found in deploy archive"), nil
	}
	doc, err := strategy.ParseDocument(data, aggPath)
	if err != nil {
		return failure(id, aggPath, err.Error()), nil
	}
	st := strategy.For(t)
	next, err := st.Decompose(doc, id)
	if err != nil {
		return failure(id, aggPath, err.Error()), nil
	}

	var content []byte
	contentPath := t.AggregateContentPath(id.FullName)
	if t.HasContent() {
		if content, ok = d.files[contentPath]; !ok {
			return failure(id, contentPath, "content file not found in deploy archive"), nil
		}
	}

	prevData, found, err := d.store.bucket.get(ctx, treeKey(aggPath))
	if err != nil {
		return remote.ComponentResult{}, err
	}
	var prev *strategy.Decomposed
	if found {
		if prev, err = d.store.decompose(t, id, aggPath, prevData); err != nil {
			return remote.ComponentResult{}, err
		}
	}

	changed := !found || !sameDocument(prev.Container, next.Container)
	if t.HasContent() {
		prevContent, _, err := d.store.bucket.get(ctx, treeKey(contentPath))
		if err != nil {
			return remote.ComponentResult{}, err
		}
		changed = changed || !bytes.Equal(prevContent, content)
	}
	if !t.HasContainer() {
		changed = false
	}

	childChanges, err := diffChildren(id, prev, next)
	if err != nil {
		return remote.ComponentResult{}, err
	}

	if d.checkOnly {
		return remote.ComponentResult{Type: id.Type, FullName: id.FullName, FileName: aggPath, Success: true}, nil
	}

	if !found || !bytes.Equal(prevData, data) {
		if err := d.store.bucket.put(ctx, treeKey(aggPath), data); err != nil {
			return remote.ComponentResult{}, err
		}
	}
	if t.HasContent() {
		if err := d.store.bucket.put(ctx, treeKey(contentPath), content); err != nil {
			return remote.ComponentResult{}, err
		}
	}

	if changed {
		d.log.record(id, false)
	}
	for _, c := range childChanges {
		d.log.record(c.id, c.deleted)
	}
	d.store.logger.Debug("stored component", "type", id.Type, "name", id.FullName,
		"changed", changed, "children", len(childChanges))

	return remote.ComponentResult{Type: id.Type, FullName: id.FullName, FileName: aggPath, Success: true}, nil
}

// remove deletes a component, or a single decomposed child from its parent document.
func (d *deployment) remove(ctx context.Context, id metadata.Identity) (remote.ComponentResult, error) {
	t, child, err := d.store.registry.Resolve(id.Type)
	if err != nil {
		return failure(id, "", err.Error()), nil
	}
	if !t.DeleteSupported {
		return failure(id, "", fmt.Sprintf("deleting %s is not supported", t.Name)), nil
	}

	parent := id
	if child != nil {
		parent = metadata.Identity{Type: t.Name, FullName: metadata.ParentName(id.FullName)}
	}
	aggPath := t.AggregatePath(parent.FullName)
	notFound := failure(id, aggPath, remote.ProblemNotFound)
	notFound.Deleted = true

	data, found, err := d.store.bucket.get(ctx, treeKey(aggPath))
	if err != nil {
		return remote.ComponentResult{}, err
	}
	if !found {
		return notFound, nil
	}
	prev, err := d.store.decompose(t, parent, aggPath, data)
	if err != nil {
		return remote.ComponentResult{}, err
	}

	deleted := remote.ComponentResult{Type: id.Type, FullName: id.FullName, FileName: aggPath, Success: true, Deleted: true}

	if child != nil {
		remaining, ok := withoutChild(prev, child, metadata.ChildName(id.FullName))
		if !ok {
			return notFound, nil
		}
		if d.checkOnly {
			return deleted, nil
		}
		doc, err := strategy.For(t).Compose(prev.Container, remaining)
		if err != nil {
			return remote.ComponentResult{}, errors.Wrapf(err, "recompose %s", parent)
		}
		out, err := strategy.Serialize(doc)
		if err != nil {
			return remote.ComponentResult{}, err
		}
		if err := d.store.bucket.put(ctx, treeKey(aggPath), out); err != nil {
			return remote.ComponentResult{}, err
		}
		d.log.record(id, true)
		return deleted, nil
	}

	if d.checkOnly {
		return deleted, nil
	}
	if err := d.store.bucket.delete(ctx, treeKey(aggPath)); err != nil {
		return remote.ComponentResult{}, err
	}
	if t.HasContent() {
		if err := d.store.bucket.delete(ctx, treeKey(t.AggregateContentPath(id.FullName))); err != nil {
			return remote.ComponentResult{}, err
		}
	}
	for _, g := range prev.Children {
		for _, doc := range g.Documents {
			d.log.record(metadata.Identity{Type: g.Type.Name, FullName: id.FullName + "." + strategy.ChildName(doc)}, true)
		}
	}
	if t.HasContainer() {
		d.log.record(id, true)
	}
	return deleted, nil
}

func (s *Store) decompose(t *metadata.TypeDef, id metadata.Identity, aggPath string, data []byte) (*strategy.Decomposed, error) {
	doc, err := strategy.ParseDocument(data, s.bucket.key(treeKey(aggPath)))
	if err != nil {
		return nil, err
	}
	return strategy.For(t).Decompose(doc, id)
}

type childChange struct {
	id      metadata.Identity
	deleted bool
}

// diffChildren lists decomposed children that were added, changed or dropped between prev and next.
func diffChildren(id metadata.Identity, prev, next *strategy.Decomposed) ([]childChange, error) {
	before, err := childIndex(id, prev)
	if err != nil {
		return nil, err
	}
	after, err := childIndex(id, next)
	if err != nil {
		return nil, err
	}

	var out []childChange
	for key, data := range after {
		if old, ok := before[key]; !ok || !bytes.Equal(old, data) {
			out = append(out, childChange{id: key})
		}
	}
	for key := range before {
		if _, ok := after[key]; !ok {
			out = append(out, childChange{id: key, deleted: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id.String() < out[j].id.String() })
	return out, nil
}

func childIndex(id metadata.Identity, d *strategy.Decomposed) (map[metadata.Identity][]byte, error) {
	out := make(map[metadata.Identity][]byte)
	if d == nil {
		return out, nil
	}
	for _, g := range d.Children {
		for _, doc := range g.Documents {
			data, err := strategy.Serialize(doc)
			if err != nil {
				return nil, err
			}
			out[metadata.Identity{Type: g.Type.Name, FullName: id.FullName + "." + strategy.ChildName(doc)}] = data
		}
	}
	return out, nil
}

func withoutChild(d *strategy.Decomposed, child *metadata.ChildType, name string) ([]strategy.ChildGroup, bool) {
	var out []strategy.ChildGroup
	removed := false
	for _, g := range d.Children {
		group := strategy.ChildGroup{Type: g.Type}
		for _, doc := range g.Documents {
			if g.Type == child && strategy.ChildName(doc) == name {
				removed = true
				continue
			}
			group.Documents = append(group.Documents, doc)
		}
		if len(group.Documents) > 0 {
			out = append(out, group)
		}
	}
	return out, removed
}

func sameDocument(a, b *etree.Document) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	x, err := strategy.Serialize(a)
	if err != nil {
		return false
	}
	y, err := strategy.Serialize(b)
	if err != nil {
		return false
	}
	return bytes.Equal(x, y)
}

// retrieval is the part of one aggregate a manifest asks for.
type retrieval struct {
	typ      *metadata.TypeDef
	id       metadata.Identity
	whole    bool
	children []metadata.Identity
}

// Retrieve zips the requested members in aggregate layout. Requests naming only decomposed
// children yield a parent document holding just those children. The returned job is complete.
func (s *Store) Retrieve(ctx context.Context, manifest *remote.Manifest, _ remote.RetrieveOptions) (remote.Job[*remote.RetrieveResult], error) {
	result := &remote.RetrieveResult{ID: uuid.NewString(), Status: remote.StatusSucceeded}

	requests, err := s.plan(ctx, manifest, result)
	if err != nil {
		return nil, err
	}

	files := make(map[string][]byte)
	for _, r := range requests {
		if err := s.retrieveOne(ctx, r, files, result); err != nil {
			return nil, err
		}
	}

	zip, err := remote.ZipFiles(files)
	if err != nil {
		return nil, err
	}
	result.ZipFile = zip
	sort.Slice(result.FileProperties, func(i, j int) bool {
		a, b := result.FileProperties[i], result.FileProperties[j]
		if a.FileName != b.FileName {
			return a.FileName < b.FileName
		}
		return a.Identity().String() < b.Identity().String()
	})

	s.logger.Info("retrieve finished", "job", result.ID,
		"files", len(result.FileProperties), "messages", len(result.Messages))
	return &remote.Completed[*remote.RetrieveResult]{JobID: result.ID, Result: result}, nil
}

// plan groups manifest members by aggregate and expands "*" members of top-level types.
func (s *Store) plan(ctx context.Context, manifest *remote.Manifest, result *remote.RetrieveResult) ([]*retrieval, error) {
	byID := make(map[metadata.Identity]*retrieval)
	var order []*retrieval
	get := func(t *metadata.TypeDef, id metadata.Identity) *retrieval {
		r, ok := byID[id]
		if !ok {
			r = &retrieval{typ: t, id: id}
			byID[id] = r
			order = append(order, r)
		}
		return r
	}

	for _, id := range manifest.Identities() {
		t, child, err := s.registry.Resolve(id.Type)
		if err != nil {
			result.Messages = append(result.Messages, remote.Message{
				FileName: id.String(),
				Problem:  fmt.Sprintf("unknown type %s", id.Type),
			})
			continue
		}

		switch {
		case child != nil:
			agg := metadata.Identity{Type: t.Name, FullName: metadata.ParentName(id.FullName)}
			r := get(t, agg)
			r.children = append(r.children, id)
		case id.FullName == "*":
			names, err := s.components(ctx, t)
			if err != nil {
				return nil, err
			}
			for _, name := range names {
				get(t, metadata.Identity{Type: t.Name, FullName: name}).whole = true
			}
		default:
			get(t, id).whole = true
		}
	}
	return order, nil
}

// components lists the names of every stored component of t.
func (s *Store) components(ctx context.Context, t *metadata.TypeDef) ([]string, error) {
	dir := treePrefix + t.Directory + "/"
	keys, err := s.bucket.list(ctx, dir)
	if err != nil {
		return nil, errUtils.Build(errUtils.ErrRemote).WithCause(err).Err()
	}
	var names []string
	for _, key := range keys {
		base := strings.TrimPrefix(key, dir)
		if strings.Contains(base, "/") {
			continue
		}
		name, suffix, meta := metadata.SplitFileName(base)
		if suffix == t.Suffix && meta == t.HasContent() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) retrieveOne(ctx context.Context, r *retrieval, files map[string][]byte, result *remote.RetrieveResult) error {
	aggPath := r.typ.AggregatePath(r.id.FullName)
	data, found, err := s.bucket.get(ctx, treeKey(aggPath))
	if err != nil {
		return errUtils.Build(errUtils.ErrRemote).WithCause(err).Err()
	}
	if !found {
		missing := r.children
		if r.whole {
			missing = []metadata.Identity{r.id}
		}
		for _, id := range missing {
			result.Messages = append(result.Messages, notFoundMessage(aggPath, id))
		}
		return nil
	}

	if r.whole {
		files[aggPath] = data
		if r.typ.HasContent() {
			contentPath := r.typ.AggregateContentPath(r.id.FullName)
			content, _, err := s.bucket.get(ctx, treeKey(contentPath))
			if err != nil {
				return errUtils.Build(errUtils.ErrRemote).WithCause(err).Err()
			}
			files[contentPath] = content
		}
		result.FileProperties = append(result.FileProperties, remote.FileProperty{
			Type: r.id.Type, FullName: r.id.FullName, FileName: aggPath,
		})
		return nil
	}

	decomposed, err := s.decompose(r.typ, r.id, aggPath, data)
	if err != nil {
		return err
	}
	var groups []strategy.ChildGroup
	for _, id := range r.children {
		child, _ := r.typ.Child(id.Type)
		doc := findChild(decomposed, child, metadata.ChildName(id.FullName))
		if doc == nil {
			result.Messages = append(result.Messages, notFoundMessage(aggPath, id))
			continue
		}
		groups = append(groups, strategy.ChildGroup{Type: child, Documents: []*etree.Document{doc}})
		result.FileProperties = append(result.FileProperties, remote.FileProperty{
			Type: id.Type, FullName: id.FullName, FileName: aggPath,
		})
	}
	if len(groups) == 0 {
		return nil
	}

	doc, err := strategy.For(r.typ).Compose(nil, groups)
	if err != nil {
		return errors.Wrapf(err, "compose partial %s", r.id)
	}
	out, err := strategy.Serialize(doc)
	if err != nil {
		return err
	}
	files[aggPath] = out
	return nil
}

func findChild(d *strategy.Decomposed, child *metadata.ChildType, name string) *etree.Document {
	for _, g := range d.Children {
		if g.Type != child {
			continue
		}
		for _, doc := range g.Documents {
			if strategy.ChildName(doc) == name {
				return doc
			}
		}
	}
	return nil
}

func notFoundMessage(fileName string, id metadata.Identity) remote.Message {
	return remote.Message{
		FileName: path.Clean(fileName),
		Problem:  fmt.Sprintf("Entity of type '%s' named '%s' cannot be found", id.Type, id.FullName),
	}
}
