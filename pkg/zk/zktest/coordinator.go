// Package zktest provides an in-memory zk.Coordinator for tests.
package zktest

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/edgeflare/kcp/pkg/zk"
)

// Coordinator is a znode tree kept in memory.
type Coordinator struct {
	mu          sync.Mutex
	nodes       map[string][]byte
	unavailable bool
	opened      int
	closed      int
}

var _ zk.Coordinator = (*Coordinator)(nil)

func New() *Coordinator {
	return &Coordinator{nodes: map[string][]byte{"/": nil}}
}

// SetUnavailable makes Open and every session call fail with zk.ErrUnavailable.
func (c *Coordinator) SetUnavailable(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unavailable = v
}

// AddBroker registers a broker the way a Kafka broker advertises itself.
func (c *Coordinator) AddBroker(id int32, host string, port int) {
	payload, _ := json.Marshal(map[string]any{
		"version":   4,
		"host":      host,
		"port":      port,
		"jmx_port":  -1,
		"timestamp": "1700000000000",
		"endpoints": []string{fmt.Sprintf("PLAINTEXT://%s:%d", host, port)},
	})
	c.Put(zk.BrokerPath(id), payload)
}

// Put writes a znode, creating parents and overwriting existing data.
func (c *Coordinator) Put(p string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mkdirs(path.Dir(p))
	c.nodes[p] = data
}

// Remove drops a znode and its descendants.
func (c *Coordinator) Remove(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.nodes {
		if k == p || strings.HasPrefix(k, p+"/") {
			delete(c.nodes, k)
		}
	}
}

// Data returns a znode payload and whether it exists.
func (c *Coordinator) Data(p string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.nodes[p]
	return d, ok
}

// Sessions reports how many sessions were opened and closed.
func (c *Coordinator) Sessions() (opened, closed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened, c.closed
}

func (c *Coordinator) Open(ctx context.Context) (zk.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", zk.ErrUnavailable, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unavailable {
		return nil, fmt.Errorf("%w: connection refused", zk.ErrUnavailable)
	}
	c.opened++
	return &session{c: c}, nil
}

func (c *Coordinator) mkdirs(p string) {
	for p != "/" && p != "." {
		if _, ok := c.nodes[p]; !ok {
			c.nodes[p] = nil
		}
		p = path.Dir(p)
	}
}

type session struct {
	c      *Coordinator
	closed bool
}

func (s *session) check() error {
	if s.closed {
		return fmt.Errorf("%w: session closed", zk.ErrUnavailable)
	}
	if s.c.unavailable {
		return fmt.Errorf("%w: connection lost", zk.ErrUnavailable)
	}
	return nil
}

func (s *session) Children(p string) ([]string, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	if _, ok := s.c.nodes[p]; !ok {
		return nil, fmt.Errorf("%s: %w", p, zk.ErrNoNode)
	}
	prefix := strings.TrimSuffix(p, "/") + "/"
	var children []string
	for k := range s.c.nodes {
		if k == p || !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		if !strings.Contains(rest, "/") {
			children = append(children, rest)
		}
	}
	sort.Strings(children)
	return children, nil
}

func (s *session) Get(p string) ([]byte, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	data, ok := s.c.nodes[p]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, zk.ErrNoNode)
	}
	return data, nil
}

func (s *session) Exists(p string) (bool, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if err := s.check(); err != nil {
		return false, err
	}
	_, ok := s.c.nodes[p]
	return ok, nil
}

func (s *session) Create(p string, data []byte) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if _, ok := s.c.nodes[p]; ok {
		return fmt.Errorf("%s: %w", p, zk.ErrNodeExists)
	}
	s.c.mkdirs(path.Dir(p))
	s.c.nodes[p] = data
	return nil
}

func (s *session) Close() {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.c.closed++
	}
}
