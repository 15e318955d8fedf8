// Package validation checks candidate configuration values before any
// network effect. It is pure: no I/O and no panics.
package validation

import (
	"fmt"
	"math"
	"strings"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
)

// Field names, shared with the JSON form keys.
const (
	FieldType                = "type"
	FieldRequiredMovements   = "required_movements"
	FieldMovementCount       = "movement_count"
	FieldMovementDurationSec = "movement_duration_sec"
	FieldFPS                 = "fps"
	FieldTimeoutSec          = "timeout_sec"
	FieldDistanceMethod      = "distance_method"
	FieldThreshold           = "threshold"
	FieldMinimumConfidence   = "minimum_confidence"
	FieldMaxAngle            = "max_angle"
	FieldMinFrames           = "min_frames"
	FieldMinDurationSec      = "min_duration_sec"
	FieldDecisionThreshold   = "decision_threshold"
)

const (
	MinTimeoutSec = 5
	MinFPS        = 1
	MaxFPS        = 60
	MaxAngle      = 180
)

const msgRequired = "is required"

// Errors maps field name to a human readable message. Empty means valid.
type Errors map[string]string

func (e Errors) Empty() bool {
	return len(e) == 0
}

// Err returns a *domain.ValidationError, or nil when there is nothing to report.
func (e Errors) Err() error {
	if e.Empty() {
		return nil
	}
	return domain.NewValidationError(e)
}

// Validate checks the fields relevant to t. Fields that belong to other
// types are ignored.
func Validate(t domain.ConfigType, f Fields) Errors {
	errs := Errors{}

	switch t {
	case domain.ConfigTypeLiveness:
		validateLiveness(errs, f)
	case domain.ConfigTypeMatching:
		validateMatching(errs, f)
	case domain.ConfigTypeSilentLiveness:
		validateSilentLiveness(errs, f)
	default:
		errs[FieldType] = fmt.Sprintf("unknown configuration type %q", string(t))
	}

	return errs
}

// ValidateParams validates already typed params, as received by the
// configuration service.
func ValidateParams(p domain.Params) Errors {
	if p == nil {
		return Errors{FieldType: "configuration type is required"}
	}
	return Validate(p.ConfigType(), FromParams(p))
}

func validateLiveness(errs Errors, f Fields) {
	switch {
	case len(f.RequiredMovements) == 0:
		errs[FieldRequiredMovements] = "select at least one movement"
	default:
		for _, m := range f.RequiredMovements {
			if !domain.IsValidMovement(m) {
				errs[FieldRequiredMovements] = fmt.Sprintf("unknown movement %q", m)
				break
			}
		}
	}

	atLeast(errs, FieldMovementCount, f.MovementCount, 1)
	atLeast(errs, FieldMovementDurationSec, f.MovementDurationSec, 1)
	intBetween(errs, FieldFPS, f.FPS, MinFPS, MaxFPS)
	timeout(errs, f.TimeoutSec)
}

func validateMatching(errs Errors, f Fields) {
	switch {
	case f.DistanceMethod == nil || strings.TrimSpace(*f.DistanceMethod) == "":
		errs[FieldDistanceMethod] = msgRequired
	case !domain.IsValidDistanceMethod(*f.DistanceMethod):
		errs[FieldDistanceMethod] = "must be one of cosine, euclidean, manhattan, hamming"
	}

	unitInterval(errs, FieldThreshold, f.Threshold)
	unitInterval(errs, FieldMinimumConfidence, f.MinimumConfidence)
	intBetween(errs, FieldMaxAngle, f.MaxAngle, 0, MaxAngle)
}

func validateSilentLiveness(errs Errors, f Fields) {
	intBetween(errs, FieldFPS, f.FPS, MinFPS, MaxFPS)
	timeout(errs, f.TimeoutSec)
	atLeast(errs, FieldMinFrames, f.MinFrames, 1)
	atLeast(errs, FieldMinDurationSec, f.MinDurationSec, 1)
	unitInterval(errs, FieldDecisionThreshold, f.DecisionThreshold)
}

func timeout(errs Errors, v *int) {
	if v == nil {
		errs[FieldTimeoutSec] = msgRequired
		return
	}
	if *v < MinTimeoutSec {
		errs[FieldTimeoutSec] = fmt.Sprintf("must be at least %d seconds", MinTimeoutSec)
	}
}

func atLeast(errs Errors, field string, v *int, lower int) {
	if v == nil {
		errs[field] = msgRequired
		return
	}
	if *v < lower {
		errs[field] = fmt.Sprintf("must be at least %d", lower)
	}
}

func intBetween(errs Errors, field string, v *int, lower, upper int) {
	if v == nil {
		errs[field] = msgRequired
		return
	}
	if *v < lower || *v > upper {
		errs[field] = fmt.Sprintf("must be between %d and %d", lower, upper)
	}
}

func unitInterval(errs Errors, field string, v *float64) {
	if v == nil {
		errs[field] = msgRequired
		return
	}
	if math.IsNaN(*v) || *v < 0 || *v > 1 {
		errs[field] = "must be between 0 and 1"
	}
}
