// Package types holds the request and response shapes of the HTTP API.
package types

// QualityInput is the water-quality prediction request. Each parameter is
// reported as a sampling range; scoring uses the midpoint.
type QualityInput struct {
	MCCode            string  `json:"mc_code" binding:"required"`
	HubID             string  `json:"hub_id" binding:"required"`
	TemperatureMin    float64 `json:"temperature_min"`
	TemperatureMax    float64 `json:"temperature_max"`
	PHMin             float64 `json:"ph_min"`
	PHMax             float64 `json:"ph_max"`
	ConductivityMin   float64 `json:"conductivity_min"`
	ConductivityMax   float64 `json:"conductivity_max"`
	BODMin            float64 `json:"bod_min"`
	BODMax            float64 `json:"bod_max"`
	FaecalColiformMin float64 `json:"faecal_coliform_min"`
	FaecalColiformMax float64 `json:"faecal_coliform_max"`
	TotalColiformMin  float64 `json:"total_coliform_min"`
	TotalColiformMax  float64 `json:"total_coliform_max"`
	NitrateMin        float64 `json:"nitrate_min"`
	NitrateMax        float64 `json:"nitrate_max"`
}

// QualityResult is the water-quality prediction response.
type QualityResult struct {
	HubID          string         `json:"hub_id"`
	FinalWQI       float64        `json:"final_wqi"`
	Category       string         `json:"category"`
	AnomalyStatus  string         `json:"anomaly_status"`
	Interpretation string         `json:"interpretation"`
	Action         string         `json:"recommended_action"`
	Details        QualityDetails `json:"details"`
	Summary        string         `json:"summary"`
	Message        string         `json:"message"`
}

// QualityDetails exposes the model-vs-rule breakdown of the hybrid score.
type QualityDetails struct {
	ModelWQI      float64            `json:"model_wqi"`
	RuleWQI       float64            `json:"rule_wqi"`
	HybridModel   string             `json:"hybrid_model"`
	InputFeatures map[string]float64 `json:"input_features"`
}

// DistributionInput is the distribution assessment request.
type DistributionInput struct {
	MCCode           string  `json:"mc_code" binding:"required"`
	HubID            string  `json:"hub_id" binding:"required"`
	TotalDemandMLD   float64 `json:"total_demand_mld"`
	CurrentSupplyMLD float64 `json:"current_supply_mld"`
	Population       int64   `json:"population"`
}

// DistributionResult is the distribution assessment response.
type DistributionResult struct {
	MCCode           string  `json:"mc_code"`
	HubID            string  `json:"hub_id"`
	FinalEfficiency  float64 `json:"final_efficiency"`
	PerformanceGrade string  `json:"performance_grade"`
	Status           string  `json:"status"`
	CriticalRisk     bool    `json:"critical_risk"`
	DeficitMLD       float64 `json:"deficit_mld"`
	PerCapitaLPCD    float64 `json:"per_capita_lpcd"`
	Interpretation   string  `json:"interpretation"`
	Advice           string  `json:"recommended_action"`
	Commentary       string  `json:"commentary"`
	Message          string  `json:"message"`
}

// LoginRequest carries MC operator credentials.
type LoginRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
	MCCode   string `json:"mc_code" form:"mc_code" binding:"required"`
}

// LoginResponse is the successful login payload.
type LoginResponse struct {
	Status      string `json:"status"`
	Token       string `json:"token"`
	MCCode      string `json:"mc_code"`
	MCName      string `json:"mc_name"`
	RedirectURL string `json:"redirect_url"`
	Message     string `json:"message"`
}
