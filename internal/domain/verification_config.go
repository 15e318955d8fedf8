package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ConfigType discrimina as três variantes de configuração de verificação.
type ConfigType string

const (
	ConfigTypeLiveness       ConfigType = "liveness"
	ConfigTypeMatching       ConfigType = "matching"
	ConfigTypeSilentLiveness ConfigType = "silent-liveness"
)

// configTypes is also the canonical ordering used when listing.
var configTypes = []ConfigType{
	ConfigTypeLiveness,
	ConfigTypeMatching,
	ConfigTypeSilentLiveness,
}

// ConfigTypes returns the closed set of variant types in canonical order.
func ConfigTypes() []ConfigType {
	out := make([]ConfigType, len(configTypes))
	copy(out, configTypes)
	return out
}

// ParseConfigType rejects anything outside the closed set instead of
// falling back to a default variant.
func ParseConfigType(s string) (ConfigType, error) {
	t := ConfigType(s)
	if !t.Valid() {
		return "", ErrUnknownConfigType.WithError(fmt.Errorf("type %q", s))
	}
	return t, nil
}

func (t ConfigType) Valid() bool {
	switch t {
	case ConfigTypeLiveness, ConfigTypeMatching, ConfigTypeSilentLiveness:
		return true
	}
	return false
}

func (t ConfigType) String() string {
	return string(t)
}

// Movement is a motion the user must perform during an active liveness check.
type Movement string

const (
	MovementBlink       Movement = "blink"
	MovementSmile       Movement = "smile"
	MovementLookingLeft Movement = "looking_left"
	MovementFacingUp    Movement = "facing_up"
	MovementFacingDown  Movement = "facing_down"
)

var validMovements = map[Movement]bool{
	MovementBlink:       true,
	MovementSmile:       true,
	MovementLookingLeft: true,
	MovementFacingUp:    true,
	MovementFacingDown:  true,
}

func IsValidMovement(m string) bool {
	return validMovements[Movement(m)]
}

// NormalizeMovements turns a movement list into a sorted set.
func NormalizeMovements(in []Movement) []Movement {
	seen := make(map[Movement]bool, len(in))
	out := make([]Movement, 0, len(in))
	for _, m := range in {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DistanceMethod is the embedding distance used by face matching.
type DistanceMethod string

const (
	DistanceCosine    DistanceMethod = "cosine"
	DistanceEuclidean DistanceMethod = "euclidean"
	DistanceManhattan DistanceMethod = "manhattan"
	DistanceHamming   DistanceMethod = "hamming"
)

var validDistanceMethods = map[DistanceMethod]bool{
	DistanceCosine:    true,
	DistanceEuclidean: true,
	DistanceManhattan: true,
	DistanceHamming:   true,
}

func IsValidDistanceMethod(m string) bool {
	return validDistanceMethods[DistanceMethod(m)]
}

// ConfigMeta holds the fields shared by every variant.
type ConfigMeta struct {
	ID        uuid.UUID `json:"id"`
	ClientID  int64     `json:"client_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by"`
	UpdatedBy *string   `json:"updated_by,omitempty"`
}

func (m ConfigMeta) Meta() ConfigMeta {
	return m
}

// ConfigKey addresses a configuration. A client owns at most one
// configuration per type, so the key is unique.
type ConfigKey struct {
	Type     ConfigType `json:"type"`
	ClientID int64      `json:"client_id"`
}

func (k ConfigKey) String() string {
	return fmt.Sprintf("%s:%d", k.Type, k.ClientID)
}

// Params is the type-specific part of a configuration, as submitted on
// create and update.
type Params interface {
	ConfigType() ConfigType
	isParams()
}

type LivenessParams struct {
	RequiredMovements   []Movement `json:"required_movements"`
	MovementCount       int        `json:"movement_count"`
	MovementDurationSec int        `json:"movement_duration_sec"`
	FPS                 int        `json:"fps"`
	TimeoutSec          int        `json:"timeout_sec"`
}

func (LivenessParams) ConfigType() ConfigType { return ConfigTypeLiveness }
func (LivenessParams) isParams()              {}

type MatchingParams struct {
	DistanceMethod      DistanceMethod `json:"distance_method"`
	Threshold           float64        `json:"threshold"`
	MinimumConfidence   float64        `json:"minimum_confidence"`
	MaxAngle            int            `json:"max_angle"`
	EnablePreprocessing bool           `json:"enable_preprocessing"`
	EnableFraudCheck    bool           `json:"enable_fraud_check"`
}

func (MatchingParams) ConfigType() ConfigType { return ConfigTypeMatching }
func (MatchingParams) isParams()              {}

type SilentLivenessParams struct {
	FPS               int     `json:"fps"`
	TimeoutSec        int     `json:"timeout_sec"`
	MinFrames         int     `json:"min_frames"`
	MinDurationSec    int     `json:"min_duration_sec"`
	DecisionThreshold float64 `json:"decision_threshold"`
}

func (SilentLivenessParams) ConfigType() ConfigType { return ConfigTypeSilentLiveness }
func (SilentLivenessParams) isParams()              {}

// Config is the sealed union of the three variants. Only *LivenessConfig,
// *MatchingConfig and *SilentLivenessConfig implement it; branch with
// MatchConfig rather than ad hoc type assertions.
type Config interface {
	Type() ConfigType
	Meta() ConfigMeta
	Key() ConfigKey
	Params() Params
	isConfig()
}

type LivenessConfig struct {
	ConfigMeta
	LivenessParams
}

func (c *LivenessConfig) Type() ConfigType { return ConfigTypeLiveness }
func (c *LivenessConfig) Key() ConfigKey   { return ConfigKey{Type: c.Type(), ClientID: c.ClientID} }
func (c *LivenessConfig) Params() Params   { return c.LivenessParams }
func (c *LivenessConfig) isConfig()        {}

func (c *LivenessConfig) MarshalJSON() ([]byte, error) {
	type alias LivenessConfig
	return json.Marshal(struct {
		Type ConfigType `json:"type"`
		*alias
	}{c.Type(), (*alias)(c)})
}

type MatchingConfig struct {
	ConfigMeta
	MatchingParams
}

func (c *MatchingConfig) Type() ConfigType { return ConfigTypeMatching }
func (c *MatchingConfig) Key() ConfigKey   { return ConfigKey{Type: c.Type(), ClientID: c.ClientID} }
func (c *MatchingConfig) Params() Params   { return c.MatchingParams }
func (c *MatchingConfig) isConfig()        {}

func (c *MatchingConfig) MarshalJSON() ([]byte, error) {
	type alias MatchingConfig
	return json.Marshal(struct {
		Type ConfigType `json:"type"`
		*alias
	}{c.Type(), (*alias)(c)})
}

type SilentLivenessConfig struct {
	ConfigMeta
	SilentLivenessParams
}

func (c *SilentLivenessConfig) Type() ConfigType { return ConfigTypeSilentLiveness }
func (c *SilentLivenessConfig) Key() ConfigKey {
	return ConfigKey{Type: c.Type(), ClientID: c.ClientID}
}
func (c *SilentLivenessConfig) Params() Params { return c.SilentLivenessParams }
func (c *SilentLivenessConfig) isConfig()      {}

func (c *SilentLivenessConfig) MarshalJSON() ([]byte, error) {
	type alias SilentLivenessConfig
	return json.Marshal(struct {
		Type ConfigType `json:"type"`
		*alias
	}{c.Type(), (*alias)(c)})
}

// MatchConfig branches on the variant of cfg. Every consumer goes through
// it, so adding a variant breaks each call site at compile time.
// A nil cfg yields the zero value of R.
func MatchConfig[R any](
	cfg Config,
	onLiveness func(*LivenessConfig) R,
	onMatching func(*MatchingConfig) R,
	onSilentLiveness func(*SilentLivenessConfig) R,
) R {
	switch c := cfg.(type) {
	case *LivenessConfig:
		return onLiveness(c)
	case *MatchingConfig:
		return onMatching(c)
	case *SilentLivenessConfig:
		return onSilentLiveness(c)
	}
	var zero R
	return zero
}

// MatchParams is the Params counterpart of MatchConfig.
func MatchParams[R any](
	p Params,
	onLiveness func(LivenessParams) R,
	onMatching func(MatchingParams) R,
	onSilentLiveness func(SilentLivenessParams) R,
) R {
	switch v := p.(type) {
	case LivenessParams:
		return onLiveness(v)
	case MatchingParams:
		return onMatching(v)
	case SilentLivenessParams:
		return onSilentLiveness(v)
	}
	var zero R
	return zero
}

// NewConfig assembles a variant from shared metadata and typed params.
func NewConfig(meta ConfigMeta, params Params) (Config, error) {
	if params == nil {
		return nil, ErrUnknownConfigType.WithError(fmt.Errorf("nil params"))
	}
	cfg := MatchParams(params,
		func(p LivenessParams) Config {
			p.RequiredMovements = NormalizeMovements(p.RequiredMovements)
			return &LivenessConfig{ConfigMeta: meta, LivenessParams: p}
		},
		func(p MatchingParams) Config {
			return &MatchingConfig{ConfigMeta: meta, MatchingParams: p}
		},
		func(p SilentLivenessParams) Config {
			return &SilentLivenessConfig{ConfigMeta: meta, SilentLivenessParams: p}
		},
	)
	if cfg == nil {
		return nil, ErrUnknownConfigType.WithError(fmt.Errorf("params %T", params))
	}
	return cfg, nil
}

// DecodeConfig decodes a configuration whose type is already known from
// the route that produced it. The payload shape is never used to guess it.
func DecodeConfig(t ConfigType, data []byte) (Config, error) {
	var cfg Config
	switch t {
	case ConfigTypeLiveness:
		cfg = &LivenessConfig{}
	case ConfigTypeMatching:
		cfg = &MatchingConfig{}
	case ConfigTypeSilentLiveness:
		cfg = &SilentLivenessConfig{}
	default:
		return nil, ErrUnknownConfigType.WithError(fmt.Errorf("type %q", t))
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", t, err)
	}
	return cfg, nil
}

// DecodeParams decodes a create or update body for type t.
func DecodeParams(t ConfigType, data []byte) (Params, error) {
	switch t {
	case ConfigTypeLiveness:
		var p LivenessParams
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode liveness params: %w", err)
		}
		return p, nil
	case ConfigTypeMatching:
		var p MatchingParams
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode matching params: %w", err)
		}
		return p, nil
	case ConfigTypeSilentLiveness:
		var p SilentLivenessParams
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode silent-liveness params: %w", err)
		}
		return p, nil
	}
	return nil, ErrUnknownConfigType.WithError(fmt.Errorf("type %q", t))
}
