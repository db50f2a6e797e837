package registry

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	pgxutil "github.com/edgeflare/kcp/pkg/pgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// PGStore keeps the registry in PostgreSQL.
type PGStore struct {
	conn   pgxutil.Conn
	logger *zap.Logger
}

var _ Store = (*PGStore)(nil)

func NewPGStore(conn pgxutil.Conn, logger *zap.Logger) *PGStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PGStore{conn: conn, logger: logger}
}

// Migrate creates the registry tables when they do not exist yet.
func (s *PGStore) Migrate(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate registry schema: %w", err)
	}
	s.logger.Info("Registry schema ready")
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

const topicColumns = `topic_name, project_id, num_partitions, replication_factor, created_at`

func (s *PGStore) InsertTopic(ctx context.Context, t Topic) error {
	_, err := s.conn.Exec(ctx,
		`INSERT INTO kafka_topics (topic_name, project_id, num_partitions, replication_factor)
		 VALUES ($1, $2, $3, $4)`,
		t.Name, t.ProjectID, t.Partitions, t.ReplicationFactor)
	if pgCode(err) == uniqueViolation {
		return ErrDuplicateTopic
	}
	return err
}

func (s *PGStore) GetTopic(ctx context.Context, name string) (Topic, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+topicColumns+` FROM kafka_topics WHERE topic_name = $1`, name)
	if err != nil {
		return Topic{}, err
	}
	t, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[Topic])
	if errors.Is(err, pgx.ErrNoRows) {
		return Topic{}, ErrTopicNotRegistered
	}
	return t, err
}

func (s *PGStore) DeleteTopic(ctx context.Context, projectID ProjectID, name string) error {
	tag, err := s.conn.Exec(ctx, `DELETE FROM kafka_topics WHERE topic_name = $1 AND project_id = $2`, name, projectID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTopicNotOwned
	}
	return nil
}

func (s *PGStore) TopicsByProject(ctx context.Context, projectID ProjectID) ([]Topic, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+topicColumns+` FROM kafka_topics WHERE project_id = $1 ORDER BY topic_name`, projectID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[Topic])
}

func (s *PGStore) AllTopics(ctx context.Context) ([]Topic, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+topicColumns+` FROM kafka_topics ORDER BY topic_name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[Topic])
}

const shareColumns = `topic_name, owner_project_id, project_id`

func (s *PGStore) InsertShare(ctx context.Context, share TopicShare) error {
	_, err := s.conn.Exec(ctx,
		`INSERT INTO kafka_shared_topics (topic_name, owner_project_id, project_id) VALUES ($1, $2, $3)`,
		share.TopicName, share.OwnerProjectID, share.ProjectID)
	switch pgCode(err) {
	case uniqueViolation:
		return ErrAlreadyShared
	case foreignKeyViolation:
		return ErrTopicNotRegistered
	}
	return err
}

func (s *PGStore) GetShare(ctx context.Context, name string, projectID ProjectID) (TopicShare, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+shareColumns+` FROM kafka_shared_topics WHERE topic_name = $1 AND project_id = $2`,
		name, projectID)
	if err != nil {
		return TopicShare{}, err
	}
	share, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[TopicShare])
	if errors.Is(err, pgx.ErrNoRows) {
		return TopicShare{}, ErrShareNotFound
	}
	return share, err
}

func (s *PGStore) DeleteShare(ctx context.Context, name string, projectID ProjectID) error {
	return pgxutil.WithTx(ctx, s.conn, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM kafka_shared_topics WHERE topic_name = $1 AND project_id = $2`, name, projectID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrShareNotFound
		}
		_, err = tx.Exec(ctx,
			`DELETE FROM kafka_topic_acls WHERE topic_name = $1 AND project_id = $2`, name, projectID)
		return err
	})
}

func (s *PGStore) SharesByProject(ctx context.Context, projectID ProjectID) ([]TopicShare, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+shareColumns+` FROM kafka_shared_topics WHERE project_id = $1 ORDER BY topic_name`, projectID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[TopicShare])
}

func (s *PGStore) SharesByTopic(ctx context.Context, name string) ([]TopicShare, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+shareColumns+` FROM kafka_shared_topics WHERE topic_name = $1 ORDER BY project_id`, name)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[TopicShare])
}

const aclColumns = `id, topic_name, project_id, username, permission_type, operation_type, host, role`

func (s *PGStore) InsertAcl(ctx context.Context, rule AclRule) (AclRule, error) {
	err := s.conn.QueryRow(ctx,
		`INSERT INTO kafka_topic_acls (topic_name, project_id, username, permission_type, operation_type, host, role)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		rule.TopicName, rule.ProjectID, rule.Principal, rule.Permission, rule.Operation, rule.Host, rule.Role,
	).Scan(&rule.ID)
	if pgCode(err) == foreignKeyViolation {
		return AclRule{}, ErrTopicNotRegistered
	}
	if err != nil {
		return AclRule{}, err
	}
	return rule, nil
}

func (s *PGStore) GetAcl(ctx context.Context, id int64) (AclRule, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+aclColumns+` FROM kafka_topic_acls WHERE id = $1`, id)
	if err != nil {
		return AclRule{}, err
	}
	rule, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[AclRule])
	if errors.Is(err, pgx.ErrNoRows) {
		return AclRule{}, ErrAclNotFound
	}
	return rule, err
}

func (s *PGStore) ReplaceAcl(ctx context.Context, rule AclRule) error {
	return pgxutil.WithTx(ctx, s.conn, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM kafka_topic_acls WHERE id = $1`, rule.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrAclNotFound
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO kafka_topic_acls (`+aclColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rule.ID, rule.TopicName, rule.ProjectID, rule.Principal, rule.Permission, rule.Operation, rule.Host, rule.Role)
		if pgCode(err) == foreignKeyViolation {
			return ErrTopicNotRegistered
		}
		return err
	})
}

func (s *PGStore) DeleteAcl(ctx context.Context, id int64) error {
	tag, err := s.conn.Exec(ctx, `DELETE FROM kafka_topic_acls WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAclNotFound
	}
	return nil
}

func (s *PGStore) AclsByTopic(ctx context.Context, name string) ([]AclRule, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+aclColumns+` FROM kafka_topic_acls WHERE topic_name = $1 ORDER BY id`, name)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[AclRule])
}

// PGPrincipalResolver looks usernames up in the platform's users table.
type PGPrincipalResolver struct {
	conn pgxutil.Conn
}

func NewPGPrincipalResolver(conn pgxutil.Conn) *PGPrincipalResolver {
	return &PGPrincipalResolver{conn: conn}
}

func (r *PGPrincipalResolver) ResolveUsername(ctx context.Context, email string) (string, error) {
	var username string
	err := r.conn.QueryRow(ctx, `SELECT username FROM users WHERE email = $1`, email).Scan(&username)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%q: %w", email, ErrPrincipalNotFound)
	}
	if err != nil {
		return "", err
	}
	return username, nil
}
