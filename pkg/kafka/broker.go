package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/edgeflare/kcp/pkg/zk"
	"go.uber.org/zap"
)

// BrokerEndpoint is a live, advertised broker address. It is derived from
// coordination state on every read and never persisted.
type BrokerEndpoint struct {
	ID       int32  `json:"id"`
	Protocol string `json:"protocol,omitempty"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
}

// Addr is the endpoint's identity: two endpoints are equal when their addresses are.
func (b BrokerEndpoint) Addr() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

func (b BrokerEndpoint) String() string {
	if b.Protocol == "" {
		return b.Addr()
	}
	return b.Protocol + "://" + b.Addr()
}

// brokerRegistration is the JSON payload a broker writes under /brokers/ids/<id>.
type brokerRegistration struct {
	Endpoints []string `json:"endpoints"`
	Host      string   `json:"host"`
	Port      int      `json:"port"`
	Version   int      `json:"version"`
}

// parseBrokerRegistration extracts the endpoint matching listener, or the first
// advertised endpoint when listener is empty. Old registrations without
// endpoints fall back to host/port.
func parseBrokerRegistration(id int32, data []byte, listener string) (BrokerEndpoint, error) {
	var reg brokerRegistration
	if err := json.Unmarshal(data, &reg); err != nil {
		return BrokerEndpoint{}, fmt.Errorf("broker %d: malformed registration: %w", id, err)
	}

	for _, raw := range reg.Endpoints {
		protocol, hostport, ok := strings.Cut(raw, "://")
		if !ok {
			continue
		}
		if listener != "" && !strings.EqualFold(protocol, listener) {
			continue
		}
		host, portStr, err := net.SplitHostPort(hostport)
		if err != nil || host == "" {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 {
			continue
		}
		return BrokerEndpoint{ID: id, Protocol: protocol, Host: host, Port: port}, nil
	}

	if listener == "" && reg.Host != "" && reg.Port > 0 {
		return BrokerEndpoint{ID: id, Host: reg.Host, Port: reg.Port}, nil
	}

	if listener != "" {
		return BrokerEndpoint{}, fmt.Errorf("broker %d: no %s endpoint advertised", id, listener)
	}
	return BrokerEndpoint{}, fmt.Errorf("broker %d: no endpoint advertised", id)
}

// BrokerLister discovers live broker endpoints.
type BrokerLister interface {
	ListBrokers(ctx context.Context) ([]BrokerEndpoint, error)
}

// BrokerDirectory reads the set of live brokers straight from Zookeeper.
// Every call opens its own session; results are never cached.
type BrokerDirectory struct {
	coord    zk.Coordinator
	listener string
	logger   *zap.Logger
}

// NewBrokerDirectory returns a BrokerDirectory. listener may be empty.
func NewBrokerDirectory(coord zk.Coordinator, listener string, logger *zap.Logger) *BrokerDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrokerDirectory{coord: coord, listener: listener, logger: logger}
}

// ListBrokers returns the de-duplicated endpoints of all registered brokers, ordered by broker id.
func (d *BrokerDirectory) ListBrokers(ctx context.Context) ([]BrokerEndpoint, error) {
	sess, err := d.coord.Open(ctx)
	if err != nil {
		return nil, clusterError("list brokers", err)
	}
	defer sess.Close()

	ids, err := brokerIDs(sess)
	if err != nil {
		return nil, clusterError("list brokers", err)
	}

	seen := make(map[string]struct{}, len(ids))
	brokers := make([]BrokerEndpoint, 0, len(ids))
	for _, id := range ids {
		data, err := sess.Get(zk.BrokerPath(id))
		if errors.Is(err, zk.ErrNoNode) {
			// deregistered between Children and Get
			continue
		}
		if err != nil {
			return nil, clusterError("list brokers", err)
		}

		endpoint, err := parseBrokerRegistration(id, data, d.listener)
		if err != nil {
			d.logger.Warn("skipping broker registration", zap.Int32("broker", id), zap.Error(err))
			continue
		}
		if _, dup := seen[endpoint.Addr()]; dup {
			continue
		}
		seen[endpoint.Addr()] = struct{}{}
		brokers = append(brokers, endpoint)
	}

	d.logger.Debug("brokers discovered", zap.Int("count", len(brokers)))
	return brokers, nil
}

// BrokerCount returns the number of registered broker ids.
func (d *BrokerDirectory) BrokerCount(ctx context.Context) (int, error) {
	sess, err := d.coord.Open(ctx)
	if err != nil {
		return 0, clusterError("count brokers", err)
	}
	defer sess.Close()

	ids, err := brokerIDs(sess)
	if err != nil {
		return 0, clusterError("count brokers", err)
	}
	return len(ids), nil
}

// brokerIDs lists registered broker ids in ascending order. A missing
// registration root means no broker has ever registered.
func brokerIDs(sess zk.Session) ([]int32, error) {
	children, err := sess.Children(zk.BrokerIdsPath)
	if errors.Is(err, zk.ErrNoNode) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ids := make([]int32, 0, len(children))
	for _, child := range children {
		id, err := strconv.ParseInt(child, 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, int32(id))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
