package database

import (
	"time"

	"github.com/google/uuid"
)

// Municipal is one municipal corporation row.
type Municipal struct {
	MCCode              string     `json:"mc_code"`
	MCName              string     `json:"mc_name"`
	DivisionCode        string     `json:"division_code,omitempty"`
	Population          int64      `json:"population"`
	TotalDemandMLD      float64    `json:"total_demand_mld"`
	CurrentSupplyMLD    float64    `json:"current_supply_mld"`
	PredictedEfficiency *float64   `json:"predicted_efficiency,omitempty"`
	CriticalRisk        bool       `json:"critical_risk"`
	RecommendedAction   string     `json:"recommended_action,omitempty"`
	LastUpdated         *time.Time `json:"last_updated,omitempty"`
}

// User is an MC operator account. Passwords are stored as SHA-256 hex digests.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	MCCode       string    `json:"mc_code"`
	MCName       string    `json:"mc_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Hub is a water supply hub.
type Hub struct {
	HubID   string `json:"hub_id"`
	HubName string `json:"hub_name"`
}

// QualityRecord is one scored water-quality reading.
type QualityRecord struct {
	ID              string    `json:"id"`
	MCCode          string    `json:"mc_code"`
	HubID           string    `json:"hub_id"`
	Temperature     float64   `json:"temperature"`
	PH              float64   `json:"ph"`
	BOD             float64   `json:"bod"`
	FaecalColiform  float64   `json:"faecal_coliform"`
	TotalColiform   float64   `json:"total_coliform"`
	Nitrate         float64   `json:"nitrate"`
	Conductivity    float64   `json:"conductivity"`
	WQI             float64   `json:"wqi"`
	Category        string    `json:"category"`
	AnomalyStatus   string    `json:"anomaly_status"`
	CreatedAt       time.Time `json:"created_at"`
	UsedForTraining bool      `json:"used_for_training"`
}

// DistributionRecord is one scored distribution assessment.
type DistributionRecord struct {
	ID                  string    `json:"id"`
	MCCode              string    `json:"mc_code"`
	HubID               string    `json:"hub_id"`
	TotalDemandMLD      float64   `json:"total_demand_mld"`
	CurrentSupplyMLD    float64   `json:"current_supply_mld"`
	Population          int64     `json:"population"`
	DeficitMLD          float64   `json:"deficit_mld"`
	PerCapitaLPCD       float64   `json:"per_capita_lpcd"`
	PredictedEfficiency float64   `json:"predicted_supply_efficiency"`
	CriticalRisk        bool      `json:"critical_risk"`
	RecommendedAction   string    `json:"recommended_action"`
	CreatedAt           time.Time `json:"created_at"`
}

// NewQualityRecord stamps identity and creation time onto a scored reading.
func NewQualityRecord(mcCode, hubID string) *QualityRecord {
	return &QualityRecord{
		ID:        uuid.New().String(),
		MCCode:    mcCode,
		HubID:     hubID,
		CreatedAt: time.Now(),
	}
}

// NewDistributionRecord stamps identity and creation time onto a scored assessment.
func NewDistributionRecord(mcCode, hubID string) *DistributionRecord {
	return &DistributionRecord{
		ID:        uuid.New().String(),
		MCCode:    mcCode,
		HubID:     hubID,
		CreatedAt: time.Now(),
	}
}

// NewUser creates an MC operator account with a generated ID.
func NewUser(username, passwordHash, mcCode string) *User {
	return &User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		MCCode:       mcCode,
		CreatedAt:    time.Now(),
	}
}
