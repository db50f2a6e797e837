package registry

import "context"

// Store is the persistence boundary for topic, share and ACL rows.
//
// Uniqueness is the store's job: a duplicate insert fails with the matching
// sentinel rather than being checked by callers beforehand, so concurrent
// requests racing on the same key are settled by the store.
type Store interface {
	// InsertTopic fails with ErrDuplicateTopic when the name exists in any project.
	InsertTopic(ctx context.Context, t Topic) error
	// GetTopic fails with ErrTopicNotRegistered.
	GetTopic(ctx context.Context, name string) (Topic, error)
	// DeleteTopic removes the topic owned by projectID together with its shares
	// and ACL rules. It fails with ErrTopicNotOwned when no such row exists.
	DeleteTopic(ctx context.Context, projectID ProjectID, name string) error
	TopicsByProject(ctx context.Context, projectID ProjectID) ([]Topic, error)
	AllTopics(ctx context.Context) ([]Topic, error)

	// InsertShare fails with ErrAlreadyShared, or ErrTopicNotRegistered when the
	// topic row is gone.
	InsertShare(ctx context.Context, s TopicShare) error
	// GetShare fails with ErrShareNotFound.
	GetShare(ctx context.Context, name string, projectID ProjectID) (TopicShare, error)
	// DeleteShare removes the share and the consuming project's ACL rules on the
	// topic. It fails with ErrShareNotFound.
	DeleteShare(ctx context.Context, name string, projectID ProjectID) error
	// SharesByProject lists shares whose consuming project is projectID.
	SharesByProject(ctx context.Context, projectID ProjectID) ([]TopicShare, error)
	SharesByTopic(ctx context.Context, name string) ([]TopicShare, error)

	// InsertAcl assigns the rule a new id.
	InsertAcl(ctx context.Context, rule AclRule) (AclRule, error)
	// GetAcl fails with ErrAclNotFound.
	GetAcl(ctx context.Context, id int64) (AclRule, error)
	// ReplaceAcl deletes the rule with rule.ID and inserts rule under the same
	// id in one transaction. It fails with ErrAclNotFound.
	ReplaceAcl(ctx context.Context, rule AclRule) error
	// DeleteAcl fails with ErrAclNotFound.
	DeleteAcl(ctx context.Context, id int64) error
	AclsByTopic(ctx context.Context, name string) ([]AclRule, error)
}

// PrincipalResolver maps a user's email to their platform username.
// It fails with ErrPrincipalNotFound.
type PrincipalResolver interface {
	ResolveUsername(ctx context.Context, email string) (string, error)
}
