package kcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/edgeflare/kcp/pkg/controlplane"
	"github.com/edgeflare/kcp/pkg/kafka"
	"go.uber.org/zap"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withRetry runs fn, retrying with exponential backoff while it fails with
// kafka.ErrClusterUnavailable, at most --retry times. Other errors return at once.
func withRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	if retries == 0 {
		return fn()
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries), ctx)
	return backoff.RetryNotifyWithData(func() (T, error) {
		v, err := fn()
		if err != nil && !errors.Is(err, kafka.ErrClusterUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, b, func(err error, wait time.Duration) {
		logger.Warn("cluster unavailable, retrying", zap.Duration("in", wait), zap.Error(err))
	})
}

// run is withRetry for operations without a result.
func run(ctx context.Context, fn func() error) error {
	_, err := withRetry(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

const (
	exitFailure     = 1
	exitUsage       = 2
	exitNotFound    = 3
	exitConflict    = 4
	exitUnavailable = 5
	exitForbidden   = 6
)

// exitCode maps an error kind to the process exit status.
func exitCode(err error) int {
	if errors.Is(err, errUsage) {
		return exitUsage
	}
	switch controlplane.Kind(err) {
	case "invalid_topic", "invalid_acl", "self_share":
		return exitUsage
	case "topic_not_found", "topic_not_registered", "share_not_found", "acl_not_found", "principal_not_found":
		return exitNotFound
	case "topic_already_exists", "duplicate_topic", "already_shared", "deletion_in_progress",
		"insufficient_brokers", "acl_topic_mismatch":
		return exitConflict
	case "cluster_unavailable", "broker_unreachable", "deadline_exceeded":
		return exitUnavailable
	case "topic_not_owned":
		return exitForbidden
	default:
		return exitFailure
	}
}
