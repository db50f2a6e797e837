// Package zk talks to the Zookeeper ensemble that coordinates a Kafka cluster.
//
// A Coordinator hands out short-lived sessions: every broker lookup or topic
// command opens its own session and closes it before returning. Nothing is
// cached between calls.
package zk

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/samuel/go-zookeeper/zk"
	"go.uber.org/zap"
)

// SessionTimeout bounds session establishment and the Zookeeper session itself.
const SessionTimeout = 10 * time.Second

var (
	ErrUnavailable = errors.New("zookeeper unavailable")
	ErrNoNode      = errors.New("znode does not exist")
	ErrNodeExists  = errors.New("znode already exists")
)

// Coordinator opens sessions against the coordination service.
type Coordinator interface {
	Open(ctx context.Context) (Session, error)
}

// Session is the znode-level capability set the control plane needs.
// Paths are absolute and relative to the coordinator's chroot.
type Session interface {
	Children(p string) ([]string, error)
	Get(p string) ([]byte, error)
	Exists(p string) (bool, error)
	// Create writes a persistent znode, creating missing parents.
	// It fails with ErrNodeExists when p is already present.
	Create(p string, data []byte) error
	Close()
}

// Config describes how to reach the ensemble.
type Config struct {
	Servers []string `mapstructure:"servers"`
	Chroot  string   `mapstructure:"chroot"`
}

// ZkCoordinator implements Coordinator on top of github.com/samuel/go-zookeeper.
type ZkCoordinator struct {
	servers []string
	chroot  string
	logger  *zap.Logger
}

// NewCoordinator returns a Coordinator for the given ensemble.
func NewCoordinator(cfg Config, logger *zap.Logger) *ZkCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZkCoordinator{
		servers: cfg.Servers,
		chroot:  normalizeChroot(cfg.Chroot),
		logger:  logger,
	}
}

// Open connects and waits until the session is established or SessionTimeout elapses.
func (c *ZkCoordinator) Open(ctx context.Context) (Session, error) {
	if len(c.servers) == 0 {
		return nil, fmt.Errorf("%w: no servers configured", ErrUnavailable)
	}

	conn, events, err := zk.Connect(c.servers, SessionTimeout, zk.WithLogger(zkLogger{c.logger.Sugar()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	timer := time.NewTimer(SessionTimeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.Close()
				return nil, fmt.Errorf("%w: event channel closed", ErrUnavailable)
			}
			if ev.Err != nil {
				c.logger.Debug("zk session event", zap.String("state", ev.State.String()), zap.Error(ev.Err))
			}
			if ev.State == zk.StateHasSession {
				c.logger.Debug("zk session established", zap.Strings("servers", c.servers))
				return &session{conn: conn, chroot: c.chroot}, nil
			}
		case <-timer.C:
			conn.Close()
			return nil, fmt.Errorf("%w: no session with %s within %s",
				ErrUnavailable, strings.Join(c.servers, ","), SessionTimeout)
		case <-ctx.Done():
			conn.Close()
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		}
	}
}

type session struct {
	conn   *zk.Conn
	chroot string
}

func (s *session) Children(p string) ([]string, error) {
	children, _, err := s.conn.Children(joinChroot(s.chroot, p))
	if err != nil {
		return nil, translate(p, err)
	}
	return children, nil
}

func (s *session) Get(p string) ([]byte, error) {
	data, _, err := s.conn.Get(joinChroot(s.chroot, p))
	if err != nil {
		return nil, translate(p, err)
	}
	return data, nil
}

func (s *session) Exists(p string) (bool, error) {
	ok, _, err := s.conn.Exists(joinChroot(s.chroot, p))
	if err != nil {
		return false, translate(p, err)
	}
	return ok, nil
}

func (s *session) Create(p string, data []byte) error {
	full := joinChroot(s.chroot, p)
	if err := s.mkdirRecursive(path.Dir(full)); err != nil {
		return translate(path.Dir(p), err)
	}
	if _, err := s.conn.Create(full, data, 0, zk.WorldACL(zk.PermAll)); err != nil {
		return translate(p, err)
	}
	return nil
}

func (s *session) Close() {
	s.conn.Close()
}

func (s *session) mkdirRecursive(node string) error {
	if node == "/" || node == "." {
		return nil
	}
	if ok, _, err := s.conn.Exists(node); err != nil {
		return err
	} else if ok {
		return nil
	}
	if err := s.mkdirRecursive(path.Dir(node)); err != nil {
		return err
	}
	_, err := s.conn.Create(node, nil, 0, zk.WorldACL(zk.PermAll))
	if errors.Is(err, zk.ErrNodeExists) {
		return nil
	}
	return err
}

// translate maps client errors onto this package's sentinels.
func translate(p string, err error) error {
	switch {
	case errors.Is(err, zk.ErrNoNode):
		return fmt.Errorf("%s: %w", p, ErrNoNode)
	case errors.Is(err, zk.ErrNodeExists):
		return fmt.Errorf("%s: %w", p, ErrNodeExists)
	default:
		return fmt.Errorf("%s: %w: %w", p, ErrUnavailable, err)
	}
}

func normalizeChroot(chroot string) string {
	chroot = strings.TrimSuffix(strings.TrimSpace(chroot), "/")
	if chroot == "" {
		return ""
	}
	if !strings.HasPrefix(chroot, "/") {
		chroot = "/" + chroot
	}
	return chroot
}

func joinChroot(chroot, p string) string {
	if chroot == "" {
		return p
	}
	return chroot + p
}

// zkLogger routes client chatter to zap at debug level.
type zkLogger struct {
	*zap.SugaredLogger
}

func (l zkLogger) Printf(format string, args ...interface{}) {
	l.Debugf(format, args...)
}
