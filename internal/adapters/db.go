// Package adapters implements the C2 external collaborators the engine
// treats as black boxes: the tabular database, the Direct Debit vendor,
// the SMS vendor, the address-lookup vendor, and photo storage.
package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/utjfc/reg-agent/internal/retry"
	"github.com/utjfc/reg-agent/pkg/models"
)

// ErrNotFound is returned by lookups that find nothing, distinct from a
// query error (§5 adapter error taxonomy: NotFound vs TransientError).
var ErrNotFound = errors.New("adapters: not found")

// DB is the C2 database adapter contract (§4.2).
type DB interface {
	LookupTeam(ctx context.Context, name, ageGroup string) (*models.Team, error)
	LookupPlayer(ctx context.Context, team, ageGroup, season, firstName, lastName string) (*models.RegistrationRecord, error)
	UpsertRegistration(ctx context.Context, record *models.RegistrationRecord) (string, error)
	ShirtNumberTaken(ctx context.Context, team, ageGroup string, number int) (bool, error)
	WriteKit(ctx context.Context, recordID, size string, number int, kitType string) error
	WritePhotoURL(ctx context.Context, recordID, url string) error
	CheckKitNeeded(ctx context.Context, team, ageGroup, firstName, lastName string) (bool, error)
}

// PoolConfig configures the underlying connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPoolConfig returns sane defaults for a single-process deployment.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// PostgresDB implements DB against a Postgres-family hosted database.
type PostgresDB struct {
	db *sql.DB
}

// NewPostgresDB opens and pings a connection pool for dsn.
func NewPostgresDB(dsn string, cfg *PoolConfig) (*PostgresDB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("adapters: dsn is required")
	}
	if cfg == nil {
		cfg = DefaultPoolConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("adapters: open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("adapters: ping database: %w", err)
	}

	return &PostgresDB{db: db}, nil
}

// Close releases the connection pool.
func (p *PostgresDB) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// LookupTeam looks up a team/age-group pair (§4.4 step 2).
func (p *PostgresDB) LookupTeam(ctx context.Context, name, ageGroup string) (*models.Team, error) {
	var team models.Team
	row := p.db.QueryRowContext(ctx,
		`SELECT name, age_group, supported FROM teams WHERE lower(name) = lower($1) AND lower(age_group) = lower($2)`,
		name, ageGroup,
	)
	if err := row.Scan(&team.Name, &team.AgeGroup, &team.Supported); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("adapters: lookup team: %w", err)
	}
	return &team, nil
}

// LookupPlayer finds an existing registration record for re-registration
// (§4.4 step 100-series, copy-record-to-current-season).
func (p *PostgresDB) LookupPlayer(ctx context.Context, team, ageGroup, season, firstName, lastName string) (*models.RegistrationRecord, error) {
	var r models.RegistrationRecord
	row := p.db.QueryRowContext(ctx, `
		SELECT id, team, age_group, season, parent_first_name, parent_last_name, parent_mobile,
		       parent_email, child_first_name, child_last_name, child_dob, postcode,
		       house_identifier, address_line_1, address_line_2, city, medical_notes,
		       preferred_payment_day, shirt_number, kit_size, kit_type, photo_url,
		       billing_request_id, subscription_active
		FROM registrations
		WHERE lower(team) = lower($1) AND lower(age_group) = lower($2) AND season = $3
		  AND lower(child_first_name) = lower($4) AND lower(child_last_name) = lower($5)`,
		team, ageGroup, season, firstName, lastName,
	)
	if err := row.Scan(
		&r.ID, &r.Team, &r.AgeGroup, &r.Season, &r.ParentFirstName, &r.ParentLastName, &r.ParentMobile,
		&r.ParentEmail, &r.ChildFirstName, &r.ChildLastName, &r.ChildDOB, &r.Postcode,
		&r.HouseIdentifier, &r.AddressLine1, &r.AddressLine2, &r.City, &r.MedicalNotes,
		&r.PreferredPaymentDay, &r.ShirtNumber, &r.KitSize, &r.KitType, &r.PhotoURL,
		&r.BillingRequestID, &r.SubscriptionActive,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("adapters: lookup player: %w", err)
	}
	return &r, nil
}

// UpsertRegistration writes the registration record, retrying idempotent
// writes per the canonical retry table (§5).
func (p *PostgresDB) UpsertRegistration(ctx context.Context, r *models.RegistrationRecord) (string, error) {
	result, err := retry.RetryWithBackoff(ctx, retry.IdempotentWritePolicy(), 3, func(attempt int) (string, error) {
		return p.upsertOnce(ctx, r)
	})
	if err != nil {
		return "", fmt.Errorf("adapters: upsert registration: %w", err)
	}
	return result.Value, nil
}

func (p *PostgresDB) upsertOnce(ctx context.Context, r *models.RegistrationRecord) (string, error) {
	var id string
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO registrations (
			team, age_group, season, parent_first_name, parent_last_name, parent_mobile,
			parent_email, child_first_name, child_last_name, child_dob, postcode,
			house_identifier, address_line_1, address_line_2, city, medical_notes,
			preferred_payment_day, shirt_number, kit_size, kit_type, photo_url,
			billing_request_id, subscription_active
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		ON CONFLICT (team, age_group, season, child_first_name, child_last_name) DO UPDATE SET
			parent_first_name = EXCLUDED.parent_first_name,
			parent_last_name = EXCLUDED.parent_last_name,
			parent_mobile = EXCLUDED.parent_mobile,
			parent_email = EXCLUDED.parent_email,
			child_dob = EXCLUDED.child_dob,
			postcode = EXCLUDED.postcode,
			house_identifier = EXCLUDED.house_identifier,
			address_line_1 = EXCLUDED.address_line_1,
			address_line_2 = EXCLUDED.address_line_2,
			city = EXCLUDED.city,
			medical_notes = EXCLUDED.medical_notes,
			preferred_payment_day = EXCLUDED.preferred_payment_day,
			shirt_number = EXCLUDED.shirt_number,
			kit_size = EXCLUDED.kit_size,
			kit_type = EXCLUDED.kit_type,
			photo_url = EXCLUDED.photo_url,
			billing_request_id = EXCLUDED.billing_request_id,
			subscription_active = EXCLUDED.subscription_active
		RETURNING id`,
		r.Team, r.AgeGroup, r.Season, r.ParentFirstName, r.ParentLastName, r.ParentMobile,
		r.ParentEmail, r.ChildFirstName, r.ChildLastName, r.ChildDOB, r.Postcode,
		r.HouseIdentifier, r.AddressLine1, r.AddressLine2, r.City, r.MedicalNotes,
		r.PreferredPaymentDay, r.ShirtNumber, r.KitSize, r.KitType, r.PhotoURL,
		r.BillingRequestID, r.SubscriptionActive,
	)
	if err := row.Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// ShirtNumberTaken checks shirt-number uniqueness within (team, age group)
// (§3 invariant).
func (p *PostgresDB) ShirtNumberTaken(ctx context.Context, team, ageGroup string, number int) (bool, error) {
	var taken bool
	row := p.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM registrations WHERE lower(team) = lower($1) AND lower(age_group) = lower($2) AND shirt_number = $3)`,
		team, ageGroup, number,
	)
	if err := row.Scan(&taken); err != nil {
		return false, fmt.Errorf("adapters: shirt number taken: %w", err)
	}
	return taken, nil
}

// WriteKit persists the kit size/number/type chosen in the workflow.
func (p *PostgresDB) WriteKit(ctx context.Context, recordID, size string, number int, kitType string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE registrations SET kit_size = $1, shirt_number = $2, kit_type = $3 WHERE id = $4`,
		size, number, kitType, recordID,
	)
	if err != nil {
		return fmt.Errorf("adapters: write kit: %w", err)
	}
	return nil
}

// WritePhotoURL persists the photo store URL after a successful upload
// (§4.8).
func (p *PostgresDB) WritePhotoURL(ctx context.Context, recordID, url string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE registrations SET photo_url = $1 WHERE id = $2`,
		url, recordID,
	)
	if err != nil {
		return fmt.Errorf("adapters: write photo url: %w", err)
	}
	return nil
}

// CheckKitNeeded reports whether a re-registering player still needs a new
// kit for this season (§4.4 100-series: a kit is needed only once per kit
// lifecycle, not every season).
func (p *PostgresDB) CheckKitNeeded(ctx context.Context, team, ageGroup, firstName, lastName string) (bool, error) {
	var needed bool
	row := p.db.QueryRowContext(ctx, `
		SELECT NOT EXISTS(
			SELECT 1 FROM registrations
			WHERE lower(team) = lower($1) AND lower(age_group) = lower($2)
			  AND lower(child_first_name) = lower($3) AND lower(child_last_name) = lower($4)
			  AND kit_size IS NOT NULL
		)`,
		team, ageGroup, firstName, lastName,
	)
	if err := row.Scan(&needed); err != nil {
		return false, fmt.Errorf("adapters: check kit needed: %w", err)
	}
	return needed, nil
}
