// Package presentation maps configurations to edit forms, list summaries,
// read-only detail views and submission payloads.
package presentation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/validation"
)

// Defaults returns a form with harmless values for every type's fields.
func Defaults() validation.Fields {
	return validation.Fields{
		RequiredMovements:   []string{string(domain.MovementBlink)},
		MovementCount:       validation.Int(1),
		MovementDurationSec: validation.Int(3),
		FPS:                 validation.Int(30),
		TimeoutSec:          validation.Int(30),

		DistanceMethod:      validation.String(string(domain.DistanceCosine)),
		Threshold:           validation.Float(0.8),
		MinimumConfidence:   validation.Float(0.9),
		MaxAngle:            validation.Int(30),
		EnablePreprocessing: validation.Bool(true),
		EnableFraudCheck:    validation.Bool(false),

		MinFrames:         validation.Int(10),
		MinDurationSec:    validation.Int(2),
		DecisionThreshold: validation.Float(0.8),
	}
}

// FormFor pre-populates an edit form: the variant's own values, defaults
// for everything else. The defaults are never submitted; see Payload.
func FormFor(cfg domain.Config) validation.Fields {
	form := Defaults()
	if cfg == nil {
		return form
	}

	own := validation.FromParams(cfg.Params())
	domain.MatchConfig(cfg,
		func(*domain.LivenessConfig) struct{} {
			form.RequiredMovements = own.RequiredMovements
			form.MovementCount = own.MovementCount
			form.MovementDurationSec = own.MovementDurationSec
			form.FPS = own.FPS
			form.TimeoutSec = own.TimeoutSec
			return struct{}{}
		},
		func(*domain.MatchingConfig) struct{} {
			form.DistanceMethod = own.DistanceMethod
			form.Threshold = own.Threshold
			form.MinimumConfidence = own.MinimumConfidence
			form.MaxAngle = own.MaxAngle
			form.EnablePreprocessing = own.EnablePreprocessing
			form.EnableFraudCheck = own.EnableFraudCheck
			return struct{}{}
		},
		func(*domain.SilentLivenessConfig) struct{} {
			form.FPS = own.FPS
			form.TimeoutSec = own.TimeoutSec
			form.MinFrames = own.MinFrames
			form.MinDurationSec = own.MinDurationSec
			form.DecisionThreshold = own.DecisionThreshold
			return struct{}{}
		},
	)
	return form
}

// Payload validates the form for type t and returns params holding only
// t's fields. A *domain.ValidationError is returned when the form is invalid.
func Payload(t domain.ConfigType, f validation.Fields) (domain.Params, error) {
	if !t.Valid() {
		return nil, domain.ErrUnknownConfigType.WithError(fmt.Errorf("type %q", t))
	}
	if err := validation.Validate(t, f).Err(); err != nil {
		return nil, err
	}
	return f.Params(t)
}

// Summary is the compact form of a configuration shown in list rows.
type Summary struct {
	Type     domain.ConfigType `json:"type"`
	ClientID int64             `json:"client_id"`
	Headline string            `json:"headline"`
	Metrics  []Metric          `json:"metrics"`
}

type Metric struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

func Summarize(cfg domain.Config) Summary {
	s := Summary{Type: cfg.Type(), ClientID: cfg.Meta().ClientID}

	s.Metrics = domain.MatchConfig(cfg,
		func(c *domain.LivenessConfig) []Metric {
			return []Metric{
				{Label: "movements", Value: joinMovements(c.RequiredMovements)},
				{Label: "movement_count", Value: strconv.Itoa(c.MovementCount)},
			}
		},
		func(c *domain.MatchingConfig) []Metric {
			return []Metric{
				{Label: "distance_method", Value: string(c.DistanceMethod)},
				{Label: "threshold", Value: formatFloat(c.Threshold)},
				{Label: "minimum_confidence", Value: formatFloat(c.MinimumConfidence)},
			}
		},
		func(c *domain.SilentLivenessConfig) []Metric {
			return []Metric{
				{Label: "fps", Value: strconv.Itoa(c.FPS)},
			}
		},
	)

	parts := make([]string, 0, len(s.Metrics))
	for _, m := range s.Metrics {
		parts = append(parts, m.Label+"="+m.Value)
	}
	s.Headline = strings.Join(parts, " ")

	return s
}

// Detail is the read-only view of a single configuration.
type Detail struct {
	ID        uuid.UUID         `json:"id"`
	Type      domain.ConfigType `json:"type"`
	ClientID  int64             `json:"client_id"`
	Fields    []Metric          `json:"fields"`
	Summary   Summary           `json:"summary"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	CreatedBy string            `json:"created_by"`
	UpdatedBy *string           `json:"updated_by,omitempty"`
}

func DetailOf(cfg domain.Config) Detail {
	meta := cfg.Meta()

	fields := domain.MatchConfig(cfg,
		func(c *domain.LivenessConfig) []Metric {
			return []Metric{
				{Label: "required_movements", Value: joinMovements(c.RequiredMovements)},
				{Label: "movement_count", Value: strconv.Itoa(c.MovementCount)},
				{Label: "movement_duration_sec", Value: strconv.Itoa(c.MovementDurationSec)},
				{Label: "fps", Value: strconv.Itoa(c.FPS)},
				{Label: "timeout_sec", Value: strconv.Itoa(c.TimeoutSec)},
			}
		},
		func(c *domain.MatchingConfig) []Metric {
			return []Metric{
				{Label: "distance_method", Value: string(c.DistanceMethod)},
				{Label: "threshold", Value: formatFloat(c.Threshold)},
				{Label: "minimum_confidence", Value: formatFloat(c.MinimumConfidence)},
				{Label: "max_angle", Value: strconv.Itoa(c.MaxAngle)},
				{Label: "enable_preprocessing", Value: strconv.FormatBool(c.EnablePreprocessing)},
				{Label: "enable_fraud_check", Value: strconv.FormatBool(c.EnableFraudCheck)},
			}
		},
		func(c *domain.SilentLivenessConfig) []Metric {
			return []Metric{
				{Label: "fps", Value: strconv.Itoa(c.FPS)},
				{Label: "timeout_sec", Value: strconv.Itoa(c.TimeoutSec)},
				{Label: "min_frames", Value: strconv.Itoa(c.MinFrames)},
				{Label: "min_duration_sec", Value: strconv.Itoa(c.MinDurationSec)},
				{Label: "decision_threshold", Value: formatFloat(c.DecisionThreshold)},
			}
		},
	)

	return Detail{
		ID:        meta.ID,
		Type:      cfg.Type(),
		ClientID:  meta.ClientID,
		Fields:    fields,
		Summary:   Summarize(cfg),
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
		CreatedBy: meta.CreatedBy,
		UpdatedBy: meta.UpdatedBy,
	}
}

func joinMovements(ms []domain.Movement) string {
	parts := make([]string, 0, len(ms))
	for _, m := range ms {
		parts = append(parts, string(m))
	}
	return strings.Join(parts, ",")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
