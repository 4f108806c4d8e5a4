package models

// ProjectionStatus is the gate result of a projection request.
type ProjectionStatus string

const (
	StatusCollecting ProjectionStatus = "COLLECTING"
	StatusWarmingUp  ProjectionStatus = "WARMING_UP"
	StatusVeto       ProjectionStatus = "VETO"
	StatusActive     ProjectionStatus = "ACTIVE"
)

// Direction is a coarse directional call.
type Direction string

const (
	DirBullish Direction = "BULLISH"
	DirBearish Direction = "BEARISH"
	DirNeutral Direction = "NEUTRAL"
)

// Horizon identifies a projection mode.
type Horizon string

const (
	Horizon12H   Horizon = "12hr"
	Horizon4H    Horizon = "4hr"
	HorizonDaily Horizon = "daily"
)

// Projection types recorded by the win-rate tracker. The 12 h engine
// records its own type plus the three component types below.
const (
	Type12H         = "12hr"
	TypeDaily       = "daily"
	Type4H          = "4hr"
	Type4HComposite = "4hr-composite"
	TypeOI4H        = "oi-4hr"
	TypeCVD2H       = "cvd-2hr"
)

// Component is one raw factor output carried inside a projection.
type Component struct {
	Score     float64 `json:"score"`
	Signal    string  `json:"signal"`
	Available bool    `json:"available"`
}

// PredictionSummary is the directional call of an ACTIVE projection.
type PredictionSummary struct {
	Bias      string    `json:"bias"`
	Strength  string    `json:"strength"`
	Score     float64   `json:"score"` // [-1, 1]
	Grade     string    `json:"grade,omitempty"`
	Direction Direction `json:"direction"`
}

// Confidence pairs a level label with its [0,1] score.
type Confidence struct {
	Level string  `json:"level"`
	Score float64 `json:"score"`
}

// Invalidation carries the level that would invalidate the call, or a
// breakout range when the bias is non-directional.
type Invalidation struct {
	Level     float64 `json:"level,omitempty"`
	Type      string  `json:"type"`
	RangeLow  float64 `json:"rangeLow,omitempty"`
	RangeHigh float64 `json:"rangeHigh,omitempty"`
}

// Projection is the composite result served over HTTP and cached per
// (coin, horizon). Only ACTIVE projections carry a prediction.
type Projection struct {
	Status       ProjectionStatus     `json:"status"`
	Coin         string               `json:"coin"`
	Horizon      Horizon              `json:"horizon"`
	CurrentPrice float64              `json:"currentPrice,omitempty"`
	Prediction   *PredictionSummary   `json:"prediction,omitempty"`
	Confidence   *Confidence          `json:"confidence,omitempty"`
	Invalidation *Invalidation        `json:"invalidation,omitempty"`
	KeyFactors   []string             `json:"keyFactors,omitempty"`
	Components   map[string]Component `json:"components,omitempty"`
	Warnings     []string             `json:"warnings,omitempty"`
	Reason       string               `json:"reason,omitempty"`
	Performance  *WinRateStats        `json:"historicalPerformance,omitempty"`
	GeneratedAt  int64                `json:"generatedAt"`
	ValidUntil   int64                `json:"validUntil"`
	NextRefresh  int64                `json:"nextRefresh"`
}

// Outcome is the evaluation result of a recorded prediction.
type Outcome string

const (
	OutcomePending      Outcome = "pending"
	OutcomeCorrect      Outcome = "correct"
	OutcomeIncorrect    Outcome = "incorrect"
	OutcomeInconclusive Outcome = "inconclusive"
)

// Prediction is one recorded projection awaiting (or past) evaluation.
// Signals is an open map; the known keys vary per projection type.
type Prediction struct {
	ID                 string             `json:"id"`
	Coin               string             `json:"coin"`
	Type               string             `json:"projectionType"`
	Timestamp          int64              `json:"timestamp"`
	InitialPrice       float64            `json:"initialPrice"`
	PredictedBias      string             `json:"predictedBias"`
	PredictedDirection Direction          `json:"predictedDirection"`
	Score              float64            `json:"score"`
	Strength           string             `json:"strength"`
	Grade              string             `json:"grade,omitempty"`
	ConfidenceLevel    string             `json:"confidenceLevel"`
	Signals            map[string]float64 `json:"signals,omitempty"`
	Evaluated          bool               `json:"evaluated"`
	Outcome            Outcome            `json:"outcome"`
	FinalPrice         float64            `json:"finalPrice,omitempty"`
	ActualChangePct    float64            `json:"actualPriceChangePct,omitempty"`
	EvaluatedAt        int64              `json:"evaluatedAt,omitempty"`
}

// WinRateStats aggregates evaluated predictions for one coin.
type WinRateStats struct {
	Coin          string  `json:"coin"`
	Total         int     `json:"total"`
	Correct       int     `json:"correct"`
	WinRate       float64 `json:"winRate"`
	StrongTotal   int     `json:"strongTotal"`
	StrongCorrect int     `json:"strongCorrect"`
	StrongWinRate float64 `json:"strongWinRate"`
}
