// Package registrytest provides in-memory registry collaborators for tests.
package registrytest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/edgeflare/kcp/pkg/registry"
)

// Store is an in-memory registry.Store with the same uniqueness and cascade
// rules as the PostgreSQL schema.
type Store struct {
	mu     sync.Mutex
	topics map[string]registry.Topic
	shares map[registry.ShareKey]registry.TopicShare
	acls   map[int64]registry.AclRule
	nextID int64
	err    error
	now    func() time.Time
}

var _ registry.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		topics: make(map[string]registry.Topic),
		shares: make(map[registry.ShareKey]registry.TopicShare),
		acls:   make(map[int64]registry.AclRule),
		now:    time.Now,
	}
}

// FailWith makes every later call return err until it is called with nil.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// TopicCount returns the number of topic rows.
func (s *Store) TopicCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.topics)
}

func (s *Store) InsertTopic(_ context.Context, t registry.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.topics[t.Key()]; ok {
		return registry.ErrDuplicateTopic
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	s.topics[t.Key()] = t
	return nil
}

func (s *Store) GetTopic(_ context.Context, name string) (registry.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return registry.Topic{}, s.err
	}
	t, ok := s.topics[name]
	if !ok {
		return registry.Topic{}, registry.ErrTopicNotRegistered
	}
	return t, nil
}

func (s *Store) DeleteTopic(_ context.Context, projectID registry.ProjectID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	t, ok := s.topics[name]
	if !ok || t.ProjectID != projectID {
		return registry.ErrTopicNotOwned
	}
	delete(s.topics, name)
	for k := range s.shares {
		if k.TopicName == name {
			delete(s.shares, k)
		}
	}
	for id, a := range s.acls {
		if a.TopicName == name {
			delete(s.acls, id)
		}
	}
	return nil
}

func (s *Store) TopicsByProject(_ context.Context, projectID registry.ProjectID) ([]registry.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := []registry.Topic{}
	for _, t := range s.topics {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) AllTopics(_ context.Context) ([]registry.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]registry.Topic, 0, len(s.topics))
	for _, t := range s.topics {
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) InsertShare(_ context.Context, share registry.TopicShare) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.topics[share.TopicName]; !ok {
		return registry.ErrTopicNotRegistered
	}
	if _, ok := s.shares[share.Key()]; ok {
		return registry.ErrAlreadyShared
	}
	s.shares[share.Key()] = share
	return nil
}

func (s *Store) GetShare(_ context.Context, name string, projectID registry.ProjectID) (registry.TopicShare, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return registry.TopicShare{}, s.err
	}
	share, ok := s.shares[registry.ShareKey{TopicName: name, ProjectID: projectID}]
	if !ok {
		return registry.TopicShare{}, registry.ErrShareNotFound
	}
	return share, nil
}

func (s *Store) DeleteShare(_ context.Context, name string, projectID registry.ProjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	key := registry.ShareKey{TopicName: name, ProjectID: projectID}
	if _, ok := s.shares[key]; !ok {
		return registry.ErrShareNotFound
	}
	delete(s.shares, key)
	for id, a := range s.acls {
		if a.TopicName == name && a.ProjectID == projectID {
			delete(s.acls, id)
		}
	}
	return nil
}

func (s *Store) SharesByProject(_ context.Context, projectID registry.ProjectID) ([]registry.TopicShare, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := []registry.TopicShare{}
	for _, share := range s.shares {
		if share.ProjectID == projectID {
			out = append(out, share)
		}
	}
	return out, nil
}

func (s *Store) SharesByTopic(_ context.Context, name string) ([]registry.TopicShare, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := []registry.TopicShare{}
	for _, share := range s.shares {
		if share.TopicName == name {
			out = append(out, share)
		}
	}
	return out, nil
}

func (s *Store) InsertAcl(_ context.Context, rule registry.AclRule) (registry.AclRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return registry.AclRule{}, s.err
	}
	if _, ok := s.topics[rule.TopicName]; !ok {
		return registry.AclRule{}, registry.ErrTopicNotRegistered
	}
	s.nextID++
	rule.ID = s.nextID
	s.acls[rule.ID] = rule
	return rule, nil
}

func (s *Store) GetAcl(_ context.Context, id int64) (registry.AclRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return registry.AclRule{}, s.err
	}
	rule, ok := s.acls[id]
	if !ok {
		return registry.AclRule{}, registry.ErrAclNotFound
	}
	return rule, nil
}

// ReplaceAcl swaps the rule under the lock, so readers see either the old or
// the new values.
func (s *Store) ReplaceAcl(_ context.Context, rule registry.AclRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.acls[rule.ID]; !ok {
		return registry.ErrAclNotFound
	}
	delete(s.acls, rule.ID)
	s.acls[rule.ID] = rule
	return nil
}

func (s *Store) DeleteAcl(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.acls[id]; !ok {
		return registry.ErrAclNotFound
	}
	delete(s.acls, id)
	return nil
}

func (s *Store) AclsByTopic(_ context.Context, name string) ([]registry.AclRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := []registry.AclRule{}
	for _, a := range s.acls {
		if a.TopicName == name {
			out = append(out, a)
		}
	}
	return out, nil
}

// Principals resolves emails from a fixed map. Lookups ignore case.
type Principals map[string]string

func (p Principals) ResolveUsername(_ context.Context, email string) (string, error) {
	for e, u := range p {
		if strings.EqualFold(e, email) {
			return u, nil
		}
	}
	return "", registry.ErrPrincipalNotFound
}
