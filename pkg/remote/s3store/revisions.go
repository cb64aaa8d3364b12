package s3store

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/cockroachdb/errors"

	errUtils "github.com/yuya-takeyama/srcsync/errors"
	"github.com/yuya-takeyama/srcsync/pkg/metadata"
	"github.com/yuya-takeyama/srcsync/pkg/remote"
)

// RevisionsKey is the change log object below the store prefix.
const RevisionsKey = "revisions.json"

// revisionLog keeps the newest change per identity and the last issued revision.
type revisionLog struct {
	Counter int64                           `json:"counter"`
	Changes map[string]remote.ChangeElement `json:"changes"`

	dirty bool
}

func (l *revisionLog) record(id metadata.Identity, deleted bool) int64 {
	l.Counter++
	l.Changes[id.String()] = remote.ChangeElement{
		Type:     id.Type,
		FullName: id.FullName,
		Revision: l.Counter,
		Deleted:  deleted,
	}
	l.dirty = true
	return l.Counter
}

func (l *revisionLog) since(watermark int64) []remote.ChangeElement {
	var out []remote.ChangeElement
	for _, c := range l.Changes {
		if c.Revision > watermark {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision < out[j].Revision })
	return out
}

func (s *Store) loadLog(ctx context.Context) (*revisionLog, error) {
	l := &revisionLog{Changes: make(map[string]remote.ChangeElement)}
	data, found, err := s.bucket.get(ctx, RevisionsKey)
	if err != nil {
		return nil, errUtils.Build(errUtils.ErrRemote).WithCause(err).Err()
	}
	if !found {
		return l, nil
	}
	if err := json.Unmarshal(data, l); err != nil {
		return nil, errUtils.Build(errUtils.ErrRemote).
			WithCause(err).
			WithExplanationf("corrupt revision log").
			WithContext("key", s.bucket.key(RevisionsKey)).
			Err()
	}
	if l.Changes == nil {
		l.Changes = make(map[string]remote.ChangeElement)
	}
	return l, nil
}

func (s *Store) saveLog(ctx context.Context, l *revisionLog) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode revision log")
	}
	if err := s.bucket.put(ctx, RevisionsKey, data); err != nil {
		return errUtils.Build(errUtils.ErrRemote).WithCause(err).Err()
	}
	l.dirty = false
	return nil
}

// RetrieveOutstandingChanges returns the changes above watermark in revision order.
func (s *Store) RetrieveOutstandingChanges(ctx context.Context, watermark int64) ([]remote.ChangeElement, error) {
	l, err := s.loadLog(ctx)
	if err != nil {
		return nil, err
	}
	return l.since(watermark), nil
}

// LatestRevisions returns the newest change of each identity present in the log.
func (s *Store) LatestRevisions(ctx context.Context, ids []metadata.Identity) ([]remote.ChangeElement, error) {
	l, err := s.loadLog(ctx)
	if err != nil {
		return nil, err
	}
	var out []remote.ChangeElement
	for _, id := range ids {
		if c, ok := l.Changes[id.String()]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}
