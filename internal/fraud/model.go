// Package fraud scores login attempts for anomalous behaviour.
//
// The package is split along three boundaries: Extract turns raw attempt
// fields into a FeatureVector, an Estimator fits and decodes a Model, and a
// SnapshotStore persists the trained Model between restarts. Scorer ties them
// together and owns the Untrained/Trained lifecycle.
package fraud

import (
	"errors"
	"fmt"
	"math"
)

// ErrInsufficientData is returned when too few rows are supplied for training
var ErrInsufficientData = errors.New("insufficient training data")

// InsufficientDataError carries the row counts behind ErrInsufficientData
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient training data: have %d, need at least %d", e.Have, e.Need)
}

// Is lets errors.Is match ErrInsufficientData
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// Model is a trained anomaly detector. Implementations must be safe for
// concurrent Decision calls and must not mutate themselves while scoring.
type Model interface {
	// Decision returns the raw anomaly score (more negative is more anomalous)
	// and the model's own outlier verdict.
	Decision(x []float64) (raw float64, outlier bool)
	MarshalBinary() ([]byte, error)
}

// Estimator fits new models and restores persisted ones
type Estimator interface {
	Name() string
	Fit(rows [][]float64) (Model, error)
	Decode(data []byte) (Model, error)
}

// ScoreMapper converts a raw anomaly score into a fraud probability
type ScoreMapper interface {
	Map(raw float64) float64
}

// LogisticMapper maps raw scores with 1/(1+exp(Scale*raw)); a raw score of
// zero maps to 0.5 and negative scores map above it.
type LogisticMapper struct {
	Scale float64
}

func (m LogisticMapper) Map(raw float64) float64 {
	return 1 / (1 + math.Exp(m.Scale*raw))
}

// DefaultMapper is the logistic mapping with scale 10
var DefaultMapper ScoreMapper = LogisticMapper{Scale: 10}

// RiskLevel buckets a fraud score
type RiskLevel string

const (
	RiskUnknown RiskLevel = "unknown"
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
)

// RiskLevelFor buckets a trained fraud score
func RiskLevelFor(score float64) RiskLevel {
	switch {
	case score > 0.8:
		return RiskHigh
	case score > 0.6:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Prediction is the scorer's verdict for one feature vector. FraudScore and
// IsSuspicious come from different signals and may disagree.
type Prediction struct {
	FraudScore   float64   `json:"fraud_score"`
	IsSuspicious bool      `json:"is_suspicious"`
	RiskLevel    RiskLevel `json:"risk_level"`
	RawScore     float64   `json:"raw_score"`
}

// UntrainedPrediction is the conservative result returned before any model
// has been trained. Its score never exceeds a sane fraud threshold.
func UntrainedPrediction() Prediction {
	return Prediction{
		FraudScore:   0.5,
		IsSuspicious: false,
		RiskLevel:    RiskUnknown,
	}
}
