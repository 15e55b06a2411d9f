package channels

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/francisco-leal/ModBot/rules"
)

const (
	roleInclusion = "inclusion"
	roleExclusion = "exclusion"
)

// PostgresStore implements Store backed by PostgreSQL. Rule sets live in
// their own table keyed by channel and role.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed channel store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a channel together with its rule sets
func (s *PostgresStore) Create(ctx context.Context, channel *rules.ModeratedChannel) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM moderated_channels WHERE id = $1)
	`, channel.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check channel existence: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrExists, channel.ID)
	}

	excluded, err := json.Marshal(channel.ExcludedUserIDs)
	if err != nil {
		return fmt.Errorf("failed to encode bypass list: %w", err)
	}

	now := time.Now().UTC()
	channel.CreatedAt = now
	channel.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO moderated_channels (id, owner_id, url, image_url, active, plan, excluded_user_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, channel.ID, channel.OwnerID, channel.URL, channel.ImageURL, channel.Active, channel.Plan,
		string(excluded), channel.CreatedAt, channel.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert channel: %w", err)
	}

	if err := saveRuleSets(ctx, tx, channel); err != nil {
		return err
	}
	return tx.Commit()
}

// Get retrieves a channel by id
func (s *PostgresStore) Get(ctx context.Context, id string) (*rules.ModeratedChannel, error) {
	return s.getWhere(ctx, "id = $1", id)
}

// GetByURL retrieves the channel whose parent url is url
func (s *PostgresStore) GetByURL(ctx context.Context, url string) (*rules.ModeratedChannel, error) {
	return s.getWhere(ctx, "url = $1 AND url <> ''", url)
}

func (s *PostgresStore) getWhere(ctx context.Context, where string, arg any) (*rules.ModeratedChannel, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, url, image_url, active, plan, excluded_user_ids, created_at, updated_at
		FROM moderated_channels
		WHERE `+where, arg)

	channel, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}

	if err := s.loadRuleSets(ctx, channel); err != nil {
		return nil, err
	}
	return channel, nil
}

// List returns every channel ordered by id
func (s *PostgresStore) List(ctx context.Context) ([]*rules.ModeratedChannel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, url, image_url, active, plan, excluded_user_ids, created_at, updated_at
		FROM moderated_channels
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var list []*rules.ModeratedChannel
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		list = append(list, channel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channels: %w", err)
	}

	for _, channel := range list {
		if err := s.loadRuleSets(ctx, channel); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// Update replaces a channel's configuration and rule sets
func (s *PostgresStore) Update(ctx context.Context, channel *rules.ModeratedChannel) error {
	excluded, err := json.Marshal(channel.ExcludedUserIDs)
	if err != nil {
		return fmt.Errorf("failed to encode bypass list: %w", err)
	}

	channel.UpdatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		UPDATE moderated_channels
		SET owner_id = $1, url = $2, image_url = $3, active = $4, plan = $5, excluded_user_ids = $6, updated_at = $7
		WHERE id = $8
		RETURNING created_at
	`, channel.OwnerID, channel.URL, channel.ImageURL, channel.Active, channel.Plan, string(excluded),
		channel.UpdatedAt, channel.ID).Scan(&channel.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, channel.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}

	if err := saveRuleSets(ctx, tx, channel); err != nil {
		return err
	}
	return tx.Commit()
}

// AddExcludedUser appends fid to the stored bypass list unless present
func (s *PostgresStore) AddExcludedUser(ctx context.Context, channelID string, fid int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE moderated_channels
		SET excluded_user_ids = CASE
				WHEN excluded_user_ids @> to_jsonb($2::bigint) THEN excluded_user_ids
				ELSE excluded_user_ids || to_jsonb($2::bigint)
			END,
			updated_at = NOW()
		WHERE id = $1
	`, channelID, fid)
	if err != nil {
		return fmt.Errorf("failed to add excluded user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, channelID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChannel(row scanner) (*rules.ModeratedChannel, error) {
	var c rules.ModeratedChannel
	var excluded []byte
	if err := row.Scan(&c.ID, &c.OwnerID, &c.URL, &c.ImageURL, &c.Active, &c.Plan,
		&excluded, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ExcludedUserIDs = rules.NewFIDSet()
	if len(excluded) > 0 {
		if err := json.Unmarshal(excluded, &c.ExcludedUserIDs); err != nil {
			return nil, &rules.DeserializationError{What: "bypass list", Err: err}
		}
	}
	return &c, nil
}

func (s *PostgresStore) loadRuleSets(ctx context.Context, channel *rules.ModeratedChannel) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, active, target, logic_type, rule, actions
		FROM rule_sets
		WHERE channel_id = $1
	`, channel.ID)
	if err != nil {
		return fmt.Errorf("failed to load rule sets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rs         rules.RuleSet
			role       string
			ruleDoc    []byte
			actionsDoc []byte
		)
		if err := rows.Scan(&rs.ID, &role, &rs.Active, &rs.Target, &rs.LogicType, &ruleDoc, &actionsDoc); err != nil {
			return fmt.Errorf("failed to scan rule set: %w", err)
		}
		if rs.Rule, err = rules.DecodeRule(ruleDoc); err != nil {
			return fmt.Errorf("channel %s %s rule: %w", channel.ID, role, err)
		}
		if rs.Actions, err = rules.DecodeActions(actionsDoc); err != nil {
			return fmt.Errorf("channel %s %s actions: %w", channel.ID, role, err)
		}

		switch role {
		case roleInclusion:
			channel.InclusionRuleSet = &rs
		case roleExclusion:
			channel.ExclusionRuleSet = &rs
		}
	}
	return rows.Err()
}

func saveRuleSets(ctx context.Context, tx *sql.Tx, channel *rules.ModeratedChannel) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM rule_sets WHERE channel_id = $1`, channel.ID); err != nil {
		return fmt.Errorf("failed to clear rule sets: %w", err)
	}

	for role, rs := range map[string]*rules.RuleSet{
		roleInclusion: channel.InclusionRuleSet,
		roleExclusion: channel.ExclusionRuleSet,
	} {
		if rs == nil {
			continue
		}
		if rs.ID == "" {
			rs.ID = uuid.NewString()
		}
		if rs.Target == "" {
			rs.Target = rules.TargetAll
		}

		ruleDoc, err := rules.EncodeRule(rs.Rule)
		if err != nil {
			return fmt.Errorf("failed to encode %s rule: %w", role, err)
		}
		actions := rs.Actions
		if actions == nil {
			actions = []rules.Action{}
		}
		actionsDoc, err := json.Marshal(actions)
		if err != nil {
			return fmt.Errorf("failed to encode %s actions: %w", role, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO rule_sets (id, channel_id, role, active, target, logic_type, rule, actions)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, rs.ID, channel.ID, role, rs.Active, rs.Target, rs.LogicType, string(ruleDoc), string(actionsDoc))
		if err != nil {
			return fmt.Errorf("failed to insert %s rule set: %w", role, err)
		}
	}
	return nil
}
