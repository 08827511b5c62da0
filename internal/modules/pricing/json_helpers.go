package pricing

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aristath/reseller/internal/domain"
)

// Rule maps are stored as JSON text columns; an empty map is stored as NULL.

func serializeConditionMultipliers(m map[domain.ConditionLabel]float64) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize condition multipliers: %w", err)
	}
	return string(b), nil
}

func serializeSeasonalAdjustments(m map[string]float64) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize seasonal adjustments: %w", err)
	}
	return string(b), nil
}

func parseConditionMultipliers(raw sql.NullString) (map[domain.ConditionLabel]float64, error) {
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return nil, nil
	}
	var m map[domain.ConditionLabel]float64
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		return nil, fmt.Errorf("failed to parse condition multipliers: %w", err)
	}
	return m, nil
}

func parseSeasonalAdjustments(raw sql.NullString) (map[string]float64, error) {
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return nil, nil
	}
	var m map[string]float64
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		return nil, fmt.Errorf("failed to parse seasonal adjustments: %w", err)
	}
	return m, nil
}
