package controlplane

import (
	"context"
	"errors"

	"github.com/edgeflare/kcp/pkg/kafka"
	"github.com/edgeflare/kcp/pkg/registry"
)

// kinds is checked in order; the first match names the error.
var kinds = []struct {
	err  error
	kind string
}{
	{kafka.ErrClusterUnavailable, "cluster_unavailable"},
	{kafka.ErrBrokerUnreachable, "broker_unreachable"},
	{kafka.ErrTopicAlreadyExists, "topic_already_exists"},
	{kafka.ErrTopicNotFound, "topic_not_found"},
	{kafka.ErrInsufficientBrokers, "insufficient_brokers"},
	{kafka.ErrDeletionInProgress, "deletion_in_progress"},
	{kafka.ErrInvalidTopic, "invalid_topic"},
	{registry.ErrTopicNotOwned, "topic_not_owned"},
	{registry.ErrTopicNotRegistered, "topic_not_registered"},
	{registry.ErrDuplicateTopic, "duplicate_topic"},
	{registry.ErrAlreadyShared, "already_shared"},
	{registry.ErrSelfShare, "self_share"},
	{registry.ErrShareNotFound, "share_not_found"},
	{registry.ErrAclNotFound, "acl_not_found"},
	{registry.ErrAclTopicMismatch, "acl_topic_mismatch"},
	{registry.ErrPrincipalNotFound, "principal_not_found"},
	{registry.ErrInvalidAcl, "invalid_acl"},
	{context.Canceled, "canceled"},
	{context.DeadlineExceeded, "deadline_exceeded"},
}

// Kind names the class of err for metrics and callers mapping errors to their
// own codes: "ok" for nil, "internal" for anything unclassified.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}

// Kinds returns every kind Kind can return besides "ok" and "internal".
func Kinds() []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k.kind)
	}
	return out
}
