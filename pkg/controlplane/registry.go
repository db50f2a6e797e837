package controlplane

import (
	"context"

	"github.com/edgeflare/kcp/pkg/registry"
)

// Topics is the topic ownership and sharing registry.
type Topics interface {
	ListTopicsOwned(ctx context.Context, projectID registry.ProjectID) ([]registry.Topic, error)
	ListTopicsShared(ctx context.Context, projectID registry.ProjectID) ([]registry.TopicShare, error)
	FindOwningProjects(ctx context.Context, name string) ([]registry.ProjectID, error)
	RegisterTopic(ctx context.Context, t registry.Topic) error
	UnregisterTopic(ctx context.Context, projectID registry.ProjectID, name string) error
	ShareTopic(ctx context.Context, owner registry.ProjectID, name string, target registry.ProjectID) error
	UnshareTopic(ctx context.Context, name string, target registry.ProjectID, owner ...registry.ProjectID) error
	SharedWith(ctx context.Context, name string, owner registry.ProjectID) ([]registry.ProjectID, error)
	Lookup(ctx context.Context, projectID registry.ProjectID, name string) (registry.Topic, bool, error)
	ListAll(ctx context.Context) ([]registry.Topic, error)
}

// ACLs is the topic access rule registry.
type ACLs interface {
	ListAcls(ctx context.Context, name string, projectID registry.ProjectID) ([]registry.AclRule, error)
	AddAcl(ctx context.Context, name string, projectID registry.ProjectID, spec registry.AclSpec) (registry.AclRule, error)
	GetAcl(ctx context.Context, id int64) (registry.AclRule, error)
	UpdateAcl(ctx context.Context, id int64, spec registry.AclSpec) (registry.AclRule, error)
	RemoveAcl(ctx context.Context, name string, id int64) error
}

var (
	_ Topics = (*registry.TopicRegistry)(nil)
	_ ACLs   = (*registry.ACLRegistry)(nil)
)
