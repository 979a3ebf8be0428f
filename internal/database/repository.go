package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Repository handles database operations for the water-management tables.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Ping verifies store connectivity for the health/db-test endpoints.
func (r *Repository) Ping() error {
	return r.db.Ping()
}

// GetUserForLogin fetches the account matching username and MC code, joined
// with the municipal name for the login response. sql.ErrNoRows means
// unknown account, which callers map to an authorization failure.
func (r *Repository) GetUserForLogin(username, mcCode string) (*User, error) {
	stmt, err := r.db.GetPreparedStatement("get_user_login")
	if err != nil {
		return nil, err
	}

	var user User
	err = stmt.QueryRow(username, mcCode).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.MCCode, &user.MCName,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts an MC operator account. Used by seeding and tests.
func (r *Repository) CreateUser(user *User) error {
	_, err := r.db.Exec(`
		INSERT INTO mc_users (id, username, password_hash, mc_code, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.ID, user.Username, user.PasswordHash, user.MCCode, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// ListMunicipals returns all municipal corporations ordered by name.
func (r *Repository) ListMunicipals() ([]Municipal, error) {
	rows, err := r.db.Query(`
		SELECT mc_code, mc_name FROM municipal_data ORDER BY mc_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list municipals: %w", err)
	}
	defer rows.Close()

	var municipals []Municipal
	for rows.Next() {
		var m Municipal
		if err := rows.Scan(&m.MCCode, &m.MCName); err != nil {
			return nil, fmt.Errorf("failed to scan municipal: %w", err)
		}
		municipals = append(municipals, m)
	}
	return municipals, rows.Err()
}

// GetMunicipal returns the full row for one MC, or sql.ErrNoRows.
func (r *Repository) GetMunicipal(mcCode string) (*Municipal, error) {
	stmt, err := r.db.GetPreparedStatement("get_municipal")
	if err != nil {
		return nil, err
	}

	var m Municipal
	var division, action sql.NullString
	var efficiency sql.NullFloat64
	var updated sql.NullTime
	err = stmt.QueryRow(mcCode).Scan(
		&m.MCCode, &m.MCName, &division, &m.Population,
		&m.TotalDemandMLD, &m.CurrentSupplyMLD, &efficiency, &m.CriticalRisk,
		&action, &updated,
	)
	if err != nil {
		return nil, err
	}
	m.DivisionCode = division.String
	m.RecommendedAction = action.String
	if efficiency.Valid {
		m.PredictedEfficiency = &efficiency.Float64
	}
	if updated.Valid {
		m.LastUpdated = &updated.Time
	}
	return &m, nil
}

// UpsertMunicipal inserts or replaces a municipal corporation row. Used by
// seeding and tests.
func (r *Repository) UpsertMunicipal(m *Municipal) error {
	_, err := r.db.Exec(`
		INSERT INTO municipal_data (
			mc_code, mc_name, division_code, population, total_demand_mld,
			current_supply_mld, predicted_efficiency, critical_risk,
			recommended_action, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mc_code) DO UPDATE SET
			mc_name = excluded.mc_name,
			division_code = excluded.division_code,
			population = excluded.population,
			total_demand_mld = excluded.total_demand_mld,
			current_supply_mld = excluded.current_supply_mld,
			predicted_efficiency = excluded.predicted_efficiency,
			critical_risk = excluded.critical_risk,
			recommended_action = excluded.recommended_action,
			last_updated = excluded.last_updated
	`, m.MCCode, m.MCName, m.DivisionCode, m.Population, m.TotalDemandMLD,
		m.CurrentSupplyMLD, m.PredictedEfficiency, m.CriticalRisk,
		m.RecommendedAction, m.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to upsert municipal: %w", err)
	}
	return nil
}

// GetHubsForMC returns the hubs mapped to an MC, ordered by name.
func (r *Repository) GetHubsForMC(mcCode string) ([]Hub, error) {
	stmt, err := r.db.GetPreparedStatement("get_hubs_for_mc")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(mcCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query hubs: %w", err)
	}
	defer rows.Close()

	var hubs []Hub
	for rows.Next() {
		var h Hub
		if err := rows.Scan(&h.HubID, &h.HubName); err != nil {
			return nil, fmt.Errorf("failed to scan hub: %w", err)
		}
		hubs = append(hubs, h)
	}
	return hubs, rows.Err()
}

// AddHub inserts a hub and maps it to an MC. Used by seeding and tests.
func (r *Repository) AddHub(mcCode string, hub Hub) error {
	_, err := r.db.Exec(`
		INSERT INTO hub_table (hub_id, hub_name) VALUES (?, ?)
		ON CONFLICT(hub_id) DO UPDATE SET hub_name = excluded.hub_name
	`, hub.HubID, hub.HubName)
	if err != nil {
		return fmt.Errorf("failed to insert hub: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT OR IGNORE INTO mc_hub_mapping (mc_code, hub_id) VALUES (?, ?)
	`, mcCode, hub.HubID)
	if err != nil {
		return fmt.Errorf("failed to map hub: %w", err)
	}
	return nil
}

// InsertQualityRecord persists a scored quality reading.
func (r *Repository) InsertQualityRecord(rec *QualityRecord) error {
	stmt, err := r.db.GetPreparedStatement("insert_quality_record")
	if err != nil {
		return err
	}

	_, err = stmt.Exec(
		rec.ID, rec.MCCode, rec.HubID,
		rec.Temperature, rec.PH, rec.BOD, rec.FaecalColiform, rec.TotalColiform,
		rec.Nitrate, rec.Conductivity,
		rec.WQI, rec.Category, rec.AnomalyStatus, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert quality record: %w", err)
	}
	return nil
}

// InsertDistributionRecord persists a scored distribution assessment.
func (r *Repository) InsertDistributionRecord(rec *DistributionRecord) error {
	stmt, err := r.db.GetPreparedStatement("insert_distribution_record")
	if err != nil {
		return err
	}

	_, err = stmt.Exec(
		rec.ID, rec.MCCode, rec.HubID,
		rec.TotalDemandMLD, rec.CurrentSupplyMLD, rec.Population,
		rec.DeficitMLD, rec.PerCapitaLPCD, rec.PredictedEfficiency,
		rec.CriticalRisk, rec.RecommendedAction, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert distribution record: %w", err)
	}
	return nil
}

// GetQualityRecords lists an MC's quality records newest first, optionally
// filtered by hub.
func (r *Repository) GetQualityRecords(mcCode, hubID string) ([]QualityRecord, error) {
	query := `
		SELECT id, mc_code, hub_id, temperature, ph, bod, faecal_coliform,
			total_coliform, nitrate, conductivity, wqi, category, anomaly_status,
			created_at, used_for_training
		FROM water_quality_records
		WHERE mc_code = ?`
	args := []interface{}{mcCode}
	if hubID != "" {
		query += " AND hub_id = ?"
		args = append(args, hubID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query quality records: %w", err)
	}
	defer rows.Close()

	var records []QualityRecord
	for rows.Next() {
		var rec QualityRecord
		if err := rows.Scan(
			&rec.ID, &rec.MCCode, &rec.HubID,
			&rec.Temperature, &rec.PH, &rec.BOD, &rec.FaecalColiform,
			&rec.TotalColiform, &rec.Nitrate, &rec.Conductivity,
			&rec.WQI, &rec.Category, &rec.AnomalyStatus,
			&rec.CreatedAt, &rec.UsedForTraining,
		); err != nil {
			return nil, fmt.Errorf("failed to scan quality record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetDistributionRecords lists an MC's distribution records newest first,
// optionally filtered by hub.
func (r *Repository) GetDistributionRecords(mcCode, hubID string) ([]DistributionRecord, error) {
	query := `
		SELECT id, mc_code, hub_id, total_demand_mld, current_supply_mld,
			population, deficit_mld, per_capita_lpcd, predicted_supply_efficiency,
			critical_risk, recommended_action, created_at
		FROM water_distribution_records
		WHERE mc_code = ?`
	args := []interface{}{mcCode}
	if hubID != "" {
		query += " AND hub_id = ?"
		args = append(args, hubID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query distribution records: %w", err)
	}
	defer rows.Close()

	var records []DistributionRecord
	for rows.Next() {
		var rec DistributionRecord
		if err := rows.Scan(
			&rec.ID, &rec.MCCode, &rec.HubID,
			&rec.TotalDemandMLD, &rec.CurrentSupplyMLD, &rec.Population,
			&rec.DeficitMLD, &rec.PerCapitaLPCD, &rec.PredictedEfficiency,
			&rec.CriticalRisk, &rec.RecommendedAction, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan distribution record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetLatestDistributionRecords returns, per hub, the newest distribution
// record for the MC.
func (r *Repository) GetLatestDistributionRecords(mcCode string) ([]DistributionRecord, error) {
	rows, err := r.db.Query(`
		SELECT id, mc_code, hub_id, total_demand_mld, current_supply_mld,
			population, deficit_mld, per_capita_lpcd, predicted_supply_efficiency,
			critical_risk, recommended_action, created_at
		FROM water_distribution_records
		WHERE mc_code = ? AND created_at = (
			SELECT MAX(created_at) FROM water_distribution_records
			WHERE mc_code = ?
		)
	`, mcCode, mcCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest distribution records: %w", err)
	}
	defer rows.Close()

	var records []DistributionRecord
	for rows.Next() {
		var rec DistributionRecord
		if err := rows.Scan(
			&rec.ID, &rec.MCCode, &rec.HubID,
			&rec.TotalDemandMLD, &rec.CurrentSupplyMLD, &rec.Population,
			&rec.DeficitMLD, &rec.PerCapitaLPCD, &rec.PredictedEfficiency,
			&rec.CriticalRisk, &rec.RecommendedAction, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan distribution record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// OverallStats is the statewide aggregate for the dashboard endpoints.
type OverallStats struct {
	TotalMunicipals   int        `json:"total_municipal_corporations"`
	TotalPopulation   int64      `json:"total_population"`
	AverageWQI        *float64   `json:"average_wqi"`
	AverageEfficiency *float64   `json:"average_distribution_efficiency"`
	TotalAnomalies    int        `json:"total_anomalies"`
	TotalCriticalHubs int        `json:"total_critical_hubs"`
	LastUpdated       *time.Time `json:"last_updated"`
}

// GetOverallStats aggregates statewide figures across both record tables.
func (r *Repository) GetOverallStats() (*OverallStats, error) {
	var stats OverallStats

	if err := r.db.QueryRow(`SELECT COUNT(*) FROM municipal_data`).Scan(&stats.TotalMunicipals); err != nil {
		return nil, fmt.Errorf("failed to count municipals: %w", err)
	}

	var population sql.NullInt64
	if err := r.db.QueryRow(`SELECT SUM(population) FROM municipal_data`).Scan(&population); err != nil {
		return nil, fmt.Errorf("failed to sum population: %w", err)
	}
	stats.TotalPopulation = population.Int64

	var avgWQI, avgEff sql.NullFloat64
	if err := r.db.QueryRow(`SELECT AVG(wqi) FROM water_quality_records`).Scan(&avgWQI); err != nil {
		return nil, fmt.Errorf("failed to average wqi: %w", err)
	}
	if avgWQI.Valid {
		stats.AverageWQI = &avgWQI.Float64
	}
	if err := r.db.QueryRow(`SELECT AVG(predicted_supply_efficiency) FROM water_distribution_records`).Scan(&avgEff); err != nil {
		return nil, fmt.Errorf("failed to average efficiency: %w", err)
	}
	if avgEff.Valid {
		stats.AverageEfficiency = &avgEff.Float64
	}

	if err := r.db.QueryRow(`
		SELECT COUNT(*) FROM water_quality_records WHERE anomaly_status = 'Anomaly Detected'
	`).Scan(&stats.TotalAnomalies); err != nil {
		return nil, fmt.Errorf("failed to count anomalies: %w", err)
	}

	if err := r.db.QueryRow(`
		SELECT COUNT(DISTINCT hub_id) FROM water_distribution_records WHERE critical_risk = 1
	`).Scan(&stats.TotalCriticalHubs); err != nil {
		return nil, fmt.Errorf("failed to count critical hubs: %w", err)
	}

	var last sql.NullTime
	if err := r.db.QueryRow(`
		SELECT MAX(created_at) FROM (
			SELECT MAX(created_at) AS created_at FROM water_quality_records
			UNION ALL
			SELECT MAX(created_at) AS created_at FROM water_distribution_records
		)
	`).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to find last update: %w", err)
	}
	if last.Valid {
		stats.LastUpdated = &last.Time
	}

	return &stats, nil
}

// StateTrendRow is one year of the statewide WQI/efficiency trend.
type StateTrendRow struct {
	Year              int      `json:"year"`
	AverageWQI        *float64 `json:"avg_wqi"`
	AverageEfficiency *float64 `json:"avg_efficiency"`
}

// GetStateTrends aggregates the union of both record tables by year.
func (r *Repository) GetStateTrends() ([]StateTrendRow, error) {
	rows, err := r.db.Query(`
		SELECT
			CAST(strftime('%Y', created_at) AS INTEGER) AS year,
			ROUND(AVG(wqi), 2),
			ROUND(AVG(predicted_supply_efficiency), 2)
		FROM (
			SELECT wqi, NULL AS predicted_supply_efficiency, created_at FROM water_quality_records
			UNION ALL
			SELECT NULL AS wqi, predicted_supply_efficiency, created_at FROM water_distribution_records
		)
		WHERE created_at IS NOT NULL
		GROUP BY year
		ORDER BY year ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query state trends: %w", err)
	}
	defer rows.Close()

	var trends []StateTrendRow
	for rows.Next() {
		var row StateTrendRow
		var wqi, eff sql.NullFloat64
		if err := rows.Scan(&row.Year, &wqi, &eff); err != nil {
			return nil, fmt.Errorf("failed to scan state trend row: %w", err)
		}
		if wqi.Valid {
			row.AverageWQI = &wqi.Float64
		}
		if eff.Valid {
			row.AverageEfficiency = &eff.Float64
		}
		trends = append(trends, row)
	}
	return trends, rows.Err()
}

// MarkQualityRecordsTrained flags all unconsumed quality records as used for
// training. Returns the number of rows updated.
func (r *Repository) MarkQualityRecordsTrained() (int64, error) {
	stmt, err := r.db.GetPreparedStatement("mark_quality_trained")
	if err != nil {
		return 0, err
	}

	res, err := stmt.Exec()
	if err != nil {
		return 0, fmt.Errorf("failed to mark records trained: %w", err)
	}
	return res.RowsAffected()
}
