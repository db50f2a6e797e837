package registry

import (
	"fmt"
	"strings"
	"time"
)

// ProjectID identifies a platform project.
type ProjectID int32

// Topic is a registered topic. Topic names are unique across all projects.
type Topic struct {
	Name              string    `json:"name" db:"topic_name"`
	ProjectID         ProjectID `json:"projectId" db:"project_id"`
	Partitions        int32     `json:"partitions" db:"num_partitions"`
	ReplicationFactor int16     `json:"replicationFactor" db:"replication_factor"`
	CreatedAt         time.Time `json:"createdAt" db:"created_at"`
}

// Key is the topic's identity.
func (t Topic) Key() string {
	return t.Name
}

// TopicShare grants ProjectID access to a topic owned by OwnerProjectID.
type TopicShare struct {
	TopicName      string    `json:"topicName" db:"topic_name"`
	OwnerProjectID ProjectID `json:"ownerProjectId" db:"owner_project_id"`
	ProjectID      ProjectID `json:"projectId" db:"project_id"`
}

// ShareKey identifies a share: one per topic and consuming project.
type ShareKey struct {
	TopicName string
	ProjectID ProjectID
}

func (s TopicShare) Key() ShareKey {
	return ShareKey{TopicName: s.TopicName, ProjectID: s.ProjectID}
}

type Permission string

const (
	PermissionAllow Permission = "allow"
	PermissionDeny  Permission = "deny"
)

type Operation string

const (
	OperationRead    Operation = "read"
	OperationWrite   Operation = "write"
	OperationDetails Operation = "details"
	OperationAll     Operation = "*"
)

const (
	RoleDataOwner     = "Data owner"
	RoleDataScientist = "Data scientist"
	RoleAny           = "*"
	HostAny           = "*"
)

// AclRule is a platform-level access rule on a topic. Rules are bookkeeping
// only; they are not pushed to the brokers' authorizer.
type AclRule struct {
	ID         int64      `json:"id" db:"id"`
	TopicName  string     `json:"topicName" db:"topic_name"`
	ProjectID  ProjectID  `json:"projectId" db:"project_id"`
	Principal  string     `json:"principal" db:"username"`
	Permission Permission `json:"permissionType" db:"permission_type"`
	Operation  Operation  `json:"operationType" db:"operation_type"`
	Host       string     `json:"host" db:"host"`
	Role       string     `json:"role" db:"role"`
}

// Key is the rule's identity.
func (a AclRule) Key() int64 {
	return a.ID
}

// AclSpec carries the caller-supplied values of a rule.
type AclSpec struct {
	PrincipalEmail string     `json:"principalEmail"`
	Permission     Permission `json:"permissionType"`
	Operation      Operation  `json:"operationType"`
	Host           string     `json:"host"`
	Role           string     `json:"role"`
}

// Normalize lower-cases enums and fills wildcard defaults, then validates.
func (s AclSpec) Normalize() (AclSpec, error) {
	s.PrincipalEmail = strings.TrimSpace(s.PrincipalEmail)
	s.Permission = Permission(strings.ToLower(strings.TrimSpace(string(s.Permission))))
	s.Operation = Operation(strings.ToLower(strings.TrimSpace(string(s.Operation))))
	s.Host = strings.TrimSpace(s.Host)
	s.Role = strings.TrimSpace(s.Role)
	if s.Host == "" {
		s.Host = HostAny
	}
	if s.Role == "" {
		s.Role = RoleAny
	}

	if s.PrincipalEmail == "" {
		return s, fmt.Errorf("%w: principal email is required", ErrInvalidAcl)
	}
	switch s.Permission {
	case PermissionAllow, PermissionDeny:
	default:
		return s, fmt.Errorf("%w: permission type %q", ErrInvalidAcl, s.Permission)
	}
	switch s.Operation {
	case OperationRead, OperationWrite, OperationDetails, OperationAll:
	default:
		return s, fmt.Errorf("%w: operation type %q", ErrInvalidAcl, s.Operation)
	}
	switch {
	case strings.EqualFold(s.Role, RoleDataOwner):
		s.Role = RoleDataOwner
	case strings.EqualFold(s.Role, RoleDataScientist):
		s.Role = RoleDataScientist
	case s.Role == RoleAny:
	default:
		return s, fmt.Errorf("%w: role %q", ErrInvalidAcl, s.Role)
	}
	return s, nil
}
