package pricing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/database"
	"github.com/aristath/reseller/internal/domain"
)

// BrandMultiplierRepository persists brand multipliers in catalog.db.
type BrandMultiplierRepository struct {
	catalogDB *sql.DB
	validator *Validator
	log       zerolog.Logger
}

const brandMultiplierColumns = `id, brand_id, multiplier, multiplier_type, active, effective_from, effective_until, created_at`

// NewBrandMultiplierRepository creates a new brand multiplier repository
func NewBrandMultiplierRepository(catalogDB *sql.DB, validator *Validator, log zerolog.Logger) *BrandMultiplierRepository {
	return &BrandMultiplierRepository{
		catalogDB: catalogDB,
		validator: validator,
		log:       log.With().Str("repo", "brand_multiplier").Logger(),
	}
}

// Create validates and inserts a multiplier.
func (r *BrandMultiplierRepository) Create(ctx context.Context, m *domain.BrandMultiplier) error {
	if m.MultiplierType == "" {
		m.MultiplierType = domain.MultiplierPremium
	}
	if m.EffectiveFrom.IsZero() {
		m.EffectiveFrom = time.Now().UTC().Truncate(time.Second)
	}
	if err := r.validator.ValidateBrandMultiplier(m); err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Second)
	result, err := r.catalogDB.ExecContext(ctx, `
		INSERT INTO brand_multipliers
		(brand_id, multiplier, multiplier_type, active, effective_from, effective_until, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		m.BrandID,
		m.Multiplier,
		string(m.MultiplierType),
		database.BoolInt(m.Active),
		m.EffectiveFrom.Unix(),
		database.NullUnix(m.EffectiveUntil),
		now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create brand multiplier: %w", err)
	}

	if m.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read brand multiplier id: %w", err)
	}
	m.CreatedAt = now

	r.log.Info().
		Int64("brand_id", m.BrandID).
		Float64("multiplier", m.Multiplier).
		Msg("Brand multiplier created")
	return nil
}

// GetActive returns the multiplier in effect for brandID at now, or nil.
// When several overlap, the most recent effective_from wins.
func (r *BrandMultiplierRepository) GetActive(ctx context.Context, brandID int64, now time.Time) (*domain.BrandMultiplier, error) {
	query := `
		SELECT ` + brandMultiplierColumns + ` FROM brand_multipliers
		WHERE brand_id = ? AND active = 1
		  AND effective_from <= ?
		  AND (effective_until IS NULL OR effective_until > ?)
		ORDER BY effective_from DESC, id DESC
		LIMIT 1
	`

	var (
		m              domain.BrandMultiplier
		mType          string
		active         int
		from, created  int64
		effectiveUntil sql.NullInt64
	)
	err := r.catalogDB.QueryRowContext(ctx, query, brandID, now.Unix(), now.Unix()).Scan(
		&m.ID, &m.BrandID, &m.Multiplier, &mType, &active, &from, &effectiveUntil, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get brand multiplier for brand %d: %w", brandID, err)
	}

	m.MultiplierType = domain.BrandMultiplierType(mType)
	m.Active = active != 0
	m.EffectiveFrom = database.FromUnix(from)
	m.EffectiveUntil = database.TimePtr(effectiveUntil)
	m.CreatedAt = database.FromUnix(created)
	return &m, nil
}
