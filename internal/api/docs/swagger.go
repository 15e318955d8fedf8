package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string            `json:"code" example:"VALIDATION_FAILED"`
	Message string            `json:"message" example:"Request validation failed"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// EmptyResponse represents no content response (204)
type EmptyResponse struct{}

// ConfigMetaData holds the fields shared by every configuration type
type ConfigMetaData struct {
	ID        string `json:"id" example:"6f1c2d4e-8a7b-4c3d-9e8f-1a2b3c4d5e6f"`
	Type      string `json:"type" example:"matching"`
	ClientID  int64  `json:"client_id" example:"42"`
	CreatedBy string `json:"created_by" example:"ops@rekko.io"`
	UpdatedBy string `json:"updated_by,omitempty" example:"ops@rekko.io"`
	CreatedAt string `json:"created_at" example:"2024-01-01T00:00:00Z"`
	UpdatedAt string `json:"updated_at" example:"2024-01-01T00:00:00Z"`
}

// LivenessConfigResponse represents an active liveness configuration
type LivenessConfigResponse struct {
	ConfigMetaData
	RequiredMovements   []string `json:"required_movements" example:"blink,smile"`
	MovementCount       int      `json:"movement_count" example:"2"`
	MovementDurationSec int      `json:"movement_duration_sec" example:"3"`
	FPS                 int      `json:"fps" example:"30"`
	TimeoutSec          int      `json:"timeout_sec" example:"15"`
}

// MatchingConfigResponse represents a face matching configuration
type MatchingConfigResponse struct {
	ConfigMetaData
	DistanceMethod      string  `json:"distance_method" example:"cosine"`
	Threshold           float64 `json:"threshold" example:"0.6"`
	MinimumConfidence   float64 `json:"minimum_confidence" example:"0.8"`
	MaxAngle            int     `json:"max_angle" example:"30"`
	EnablePreprocessing bool    `json:"enable_preprocessing" example:"true"`
	EnableFraudCheck    bool    `json:"enable_fraud_check" example:"false"`
}

// SilentLivenessConfigResponse represents a passive liveness configuration
type SilentLivenessConfigResponse struct {
	ConfigMetaData
	FPS               int     `json:"fps" example:"30"`
	TimeoutSec        int     `json:"timeout_sec" example:"10"`
	MinFrames         int     `json:"min_frames" example:"15"`
	MinDurationSec    int     `json:"min_duration_sec" example:"2"`
	DecisionThreshold float64 `json:"decision_threshold" example:"0.7"`
}

// ConfigListResponse represents a filtered list of configurations
type ConfigListResponse struct {
	Configs []MatchingConfigResponse `json:"configs"`
	Total   int                      `json:"total" example:"1"`
}

// ValidateResponse is returned when parameters pass validation
type ValidateResponse struct {
	Valid bool `json:"valid" example:"true"`
}

// ClientResponse represents a client account
type ClientResponse struct {
	ID        int64  `json:"id" example:"42"`
	Name      string `json:"name" example:"Acme Events"`
	Status    string `json:"status" example:"ACTIVE"`
	CreatedAt string `json:"created_at" example:"2024-01-01T00:00:00Z"`
	UpdatedAt string `json:"updated_at" example:"2024-01-01T00:00:00Z"`
}

// ClientListResponse represents every client account
type ClientListResponse struct {
	Clients []ClientResponse `json:"clients"`
	Total   int              `json:"total" example:"1"`
}

// MeResponse describes the authenticated operator
type MeResponse struct {
	UserID    string `json:"user_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Email     string `json:"email" example:"ops@rekko.io"`
	Role      string `json:"role" example:"operator"`
	CanMutate bool   `json:"can_mutate" example:"true"`
}

// TokenResponse carries a refreshed bearer token
type TokenResponse struct {
	Token string `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
}

var (
	errUnauthorized = response.New(ErrorResponse{Code: "UNAUTHORIZED", Message: "Invalid or missing token"}, "401", "Unauthorized")
	errForbidden    = response.New(ErrorResponse{Code: "FORBIDDEN", Message: "Role cannot modify configurations"}, "403", "Forbidden")
	errInternal     = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")
	errBadRequest   = response.New(ErrorResponse{Code: "HTTP_ERROR", Message: "invalid request body"}, "400", "Bad Request")
	errValidation   = response.New(ErrorResponse{
		Code:    "VALIDATION_FAILED",
		Message: "Request validation failed",
		Fields:  map[string]string{"threshold": "must be between 0 and 1"},
	}, "422", "Unprocessable Entity")
	errConfigNotFound = response.New(ErrorResponse{Code: "CONFIG_NOT_FOUND", Message: "Configuration not found"}, "404", "Not Found")
	errClientNotFound = response.New(ErrorResponse{Code: "CLIENT_NOT_FOUND", Message: "Client not found"}, "404", "Not Found")

	bearer = endpoint.WithSecurity([]map[string][]string{{"BearerAuth": {}}})

	configAddress = endpoint.WithParams(
		parameter.StrParam("type", parameter.Path, parameter.WithDescription("Configuration type: liveness, matching or silent-liveness")),
		parameter.IntParam("clientId", parameter.Path, parameter.WithDescription("Client identifier")),
	)
)

func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Rekko Configuration API",
		Version:     "v1.0.0",
		Description: "Verification configurations (liveness, matching, silent liveness) per client account",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	endpoints := []*endpoint.EndPoint{
		// Configurations

		endpoint.New(
			endpoint.GET,
			"/configs",
			endpoint.WithTags("Configurations"),
			endpoint.WithSummary("List configurations"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.IntParam("client_id", parameter.Query, parameter.WithDescription("Only configurations of this client")),
				parameter.StrParam("type", parameter.Query, parameter.WithDescription("Only configurations of this type")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ConfigListResponse{}, "200", "Configurations listed"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized, errInternal}),
			bearer,
		),

		endpoint.New(
			endpoint.POST,
			"/configs/{type}/validate",
			endpoint.WithTags("Configurations"),
			endpoint.WithSummary("Validate configuration parameters"),
			endpoint.WithDescription("Runs the validation rules of the type without storing anything"),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("type", parameter.Path, parameter.WithDescription("Configuration type")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ValidateResponse{}, "200", "Parameters are valid"),
			}),
			endpoint.WithErrors([]response.Response{errBadRequest, errUnauthorized, errValidation}),
			bearer,
		),

		endpoint.New(
			endpoint.GET,
			"/configs/{type}/{clientId}",
			endpoint.WithTags("Configurations"),
			endpoint.WithSummary("Get a configuration"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			configAddress,
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(MatchingConfigResponse{}, "200", "Configuration found"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized, errConfigNotFound, errInternal}),
			bearer,
		),

		endpoint.New(
			endpoint.POST,
			"/configs/{type}/{clientId}",
			endpoint.WithTags("Configurations"),
			endpoint.WithSummary("Create a configuration"),
			endpoint.WithDescription("A client holds at most one configuration of each type"),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			configAddress,
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(LivenessConfigResponse{}, "201", "Configuration created"),
			}),
			endpoint.WithErrors([]response.Response{
				errBadRequest,
				errUnauthorized,
				errForbidden,
				errClientNotFound,
				response.New(ErrorResponse{Code: "CONFIG_ALREADY_EXISTS", Message: "Configuration already exists"}, "409", "Conflict"),
				errValidation,
				errInternal,
			}),
			bearer,
		),

		endpoint.New(
			endpoint.PUT,
			"/configs/{type}/{clientId}",
			endpoint.WithTags("Configurations"),
			endpoint.WithSummary("Replace a configuration"),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			configAddress,
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SilentLivenessConfigResponse{}, "200", "Configuration updated"),
			}),
			endpoint.WithErrors([]response.Response{errBadRequest, errUnauthorized, errForbidden, errConfigNotFound, errValidation, errInternal}),
			bearer,
		),

		endpoint.New(
			endpoint.DELETE,
			"/configs/{type}/{clientId}",
			endpoint.WithTags("Configurations"),
			endpoint.WithSummary("Delete a configuration"),
			configAddress,
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "204", "Configuration deleted"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized, errForbidden, errConfigNotFound, errInternal}),
			bearer,
		),

		// Clients

		endpoint.New(
			endpoint.GET,
			"/clients",
			endpoint.WithTags("Clients"),
			endpoint.WithSummary("List client accounts"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ClientListResponse{}, "200", "Clients listed"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized, errInternal}),
			bearer,
		),

		endpoint.New(
			endpoint.POST,
			"/clients",
			endpoint.WithTags("Clients"),
			endpoint.WithSummary("Create a client account"),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ClientResponse{}, "201", "Client created"),
			}),
			endpoint.WithErrors([]response.Response{errBadRequest, errUnauthorized, errForbidden, errValidation, errInternal}),
			bearer,
		),

		endpoint.New(
			endpoint.GET,
			"/clients/{id}",
			endpoint.WithTags("Clients"),
			endpoint.WithSummary("Get a client account"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.IntParam("id", parameter.Path, parameter.WithDescription("Client identifier")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ClientResponse{}, "200", "Client found"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized, errClientNotFound, errInternal}),
			bearer,
		),

		endpoint.New(
			endpoint.PUT,
			"/clients/{id}/status",
			endpoint.WithTags("Clients"),
			endpoint.WithSummary("Change the status of a client account"),
			endpoint.WithDescription("Status is one of ACTIVE, SUSPENDED or INACTIVE"),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.IntParam("id", parameter.Path, parameter.WithDescription("Client identifier")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ClientResponse{}, "200", "Status changed"),
			}),
			endpoint.WithErrors([]response.Response{errBadRequest, errUnauthorized, errForbidden, errClientNotFound, errInternal}),
			bearer,
		),

		// Auth

		endpoint.New(
			endpoint.GET,
			"/auth/me",
			endpoint.WithTags("Auth"),
			endpoint.WithSummary("Describe the authenticated operator"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(MeResponse{}, "200", "Operator claims"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized}),
			bearer,
		),

		endpoint.New(
			endpoint.POST,
			"/auth/refresh",
			endpoint.WithTags("Auth"),
			endpoint.WithSummary("Refresh the bearer token"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(TokenResponse{}, "200", "Token refreshed"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized}),
			bearer,
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
