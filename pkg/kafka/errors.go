package kafka

import (
	"errors"
	"fmt"

	"github.com/edgeflare/kcp/pkg/zk"
)

var (
	// ErrClusterUnavailable means the coordination service, or every broker, could not be reached.
	ErrClusterUnavailable = errors.New("kafka cluster unavailable")
	// ErrBrokerUnreachable is reported per broker during metadata scatter/gather.
	ErrBrokerUnreachable   = errors.New("kafka broker unreachable")
	ErrTopicAlreadyExists  = errors.New("topic already exists on the cluster")
	ErrTopicNotFound       = errors.New("topic not found on the cluster")
	ErrInsufficientBrokers = errors.New("replication factor exceeds live broker count")
	ErrDeletionInProgress  = errors.New("topic already marked for deletion")
	ErrInvalidTopic        = errors.New("invalid topic")
)

// clusterError maps coordination failures onto ErrClusterUnavailable and
// leaves every other error untouched.
func clusterError(op string, err error) error {
	if errors.Is(err, zk.ErrUnavailable) {
		return fmt.Errorf("%s: %w: %w", op, ErrClusterUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
