package validation

import (
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
)

// Fields is the flat, untyped state of a configuration form. It carries the
// fields of every type at once; a nil pointer means the field was not
// provided.
type Fields struct {
	// liveness
	RequiredMovements   []string `json:"required_movements,omitempty"`
	MovementCount       *int     `json:"movement_count,omitempty"`
	MovementDurationSec *int     `json:"movement_duration_sec,omitempty"`

	// liveness and silent-liveness
	FPS        *int `json:"fps,omitempty"`
	TimeoutSec *int `json:"timeout_sec,omitempty"`

	// matching
	DistanceMethod      *string  `json:"distance_method,omitempty"`
	Threshold           *float64 `json:"threshold,omitempty"`
	MinimumConfidence   *float64 `json:"minimum_confidence,omitempty"`
	MaxAngle            *int     `json:"max_angle,omitempty"`
	EnablePreprocessing *bool    `json:"enable_preprocessing,omitempty"`
	EnableFraudCheck    *bool    `json:"enable_fraud_check,omitempty"`

	// silent-liveness
	MinFrames         *int     `json:"min_frames,omitempty"`
	MinDurationSec    *int     `json:"min_duration_sec,omitempty"`
	DecisionThreshold *float64 `json:"decision_threshold,omitempty"`
}

func Int(v int) *int { return &v }

func Float(v float64) *float64 { return &v }

func Bool(v bool) *bool { return &v }

func String(v string) *string { return &v }

func deref[T any](p *T) (v T) {
	if p != nil {
		v = *p
	}
	return v
}

// FromParams lifts typed params into form fields. Only the fields of the
// params' own type are set.
func FromParams(p domain.Params) Fields {
	return domain.MatchParams(p,
		func(lp domain.LivenessParams) Fields {
			movements := make([]string, 0, len(lp.RequiredMovements))
			for _, m := range lp.RequiredMovements {
				movements = append(movements, string(m))
			}
			return Fields{
				RequiredMovements:   movements,
				MovementCount:       Int(lp.MovementCount),
				MovementDurationSec: Int(lp.MovementDurationSec),
				FPS:                 Int(lp.FPS),
				TimeoutSec:          Int(lp.TimeoutSec),
			}
		},
		func(mp domain.MatchingParams) Fields {
			return Fields{
				DistanceMethod:      String(string(mp.DistanceMethod)),
				Threshold:           Float(mp.Threshold),
				MinimumConfidence:   Float(mp.MinimumConfidence),
				MaxAngle:            Int(mp.MaxAngle),
				EnablePreprocessing: Bool(mp.EnablePreprocessing),
				EnableFraudCheck:    Bool(mp.EnableFraudCheck),
			}
		},
		func(sp domain.SilentLivenessParams) Fields {
			return Fields{
				FPS:               Int(sp.FPS),
				TimeoutSec:        Int(sp.TimeoutSec),
				MinFrames:         Int(sp.MinFrames),
				MinDurationSec:    Int(sp.MinDurationSec),
				DecisionThreshold: Float(sp.DecisionThreshold),
			}
		},
	)
}

// Params projects the fields of type t into typed params. Fields of the
// other types never make it into the result. Call Validate first: missing
// values become zero values here.
func (f Fields) Params(t domain.ConfigType) (domain.Params, error) {
	switch t {
	case domain.ConfigTypeLiveness:
		movements := make([]domain.Movement, 0, len(f.RequiredMovements))
		for _, m := range f.RequiredMovements {
			movements = append(movements, domain.Movement(m))
		}
		return domain.LivenessParams{
			RequiredMovements:   domain.NormalizeMovements(movements),
			MovementCount:       deref(f.MovementCount),
			MovementDurationSec: deref(f.MovementDurationSec),
			FPS:                 deref(f.FPS),
			TimeoutSec:          deref(f.TimeoutSec),
		}, nil
	case domain.ConfigTypeMatching:
		return domain.MatchingParams{
			DistanceMethod:      domain.DistanceMethod(deref(f.DistanceMethod)),
			Threshold:           deref(f.Threshold),
			MinimumConfidence:   deref(f.MinimumConfidence),
			MaxAngle:            deref(f.MaxAngle),
			EnablePreprocessing: deref(f.EnablePreprocessing),
			EnableFraudCheck:    deref(f.EnableFraudCheck),
		}, nil
	case domain.ConfigTypeSilentLiveness:
		return domain.SilentLivenessParams{
			FPS:               deref(f.FPS),
			TimeoutSec:        deref(f.TimeoutSec),
			MinFrames:         deref(f.MinFrames),
			MinDurationSec:    deref(f.MinDurationSec),
			DecisionThreshold: deref(f.DecisionThreshold),
		}, nil
	}
	return nil, domain.ErrUnknownConfigType
}
