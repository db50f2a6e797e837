package registry

import "errors"

var (
	// ErrTopicNotRegistered means no project owns or shares the topic: it is
	// orphaned on the cluster or foreign to the platform.
	ErrTopicNotRegistered = errors.New("topic not registered")
	ErrTopicNotOwned      = errors.New("topic not owned by project")
	ErrDuplicateTopic     = errors.New("topic name already registered")
	ErrAlreadyShared      = errors.New("topic already shared with project")
	ErrSelfShare          = errors.New("cannot share topic with its owning project")
	ErrShareNotFound      = errors.New("topic not shared with project")
	ErrAclNotFound        = errors.New("acl not found")
	ErrAclTopicMismatch   = errors.New("acl belongs to a different topic")
	ErrPrincipalNotFound  = errors.New("principal not found")
	ErrInvalidAcl         = errors.New("invalid acl")
)
