// Package v1 registers the HTTP API operations over the monitoring engine.
package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/sentinel/internal/credential"
	"github.com/gosuda/sentinel/internal/domain"
	"github.com/gosuda/sentinel/internal/server/middleware"
)

type LoginInput struct {
	Body struct {
		PrincipalID uuid.UUID `json:"principal_id" doc:"Principal identifier"`
		Password    string    `json:"password" minLength:"1" maxLength:"128" doc:"Password"` //nolint:gosec // G117: login credential DTO
	}
}

type LoginOutput struct {
	Body struct {
		Token     string    `json:"token"` //nolint:gosec // G117: auth response DTO
		SessionID uuid.UUID `json:"session_id"`
		ExpiresAt time.Time `json:"expires_at"`
	}
}

type LogoutOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

type ChangePasswordInput struct {
	Body struct {
		Password string `json:"password" minLength:"1" maxLength:"128" doc:"New password"` //nolint:gosec // G117: credential DTO
	}
}

type ChangePasswordOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func RegisterAuthRoutes(api huma.API, eng MonitorEngine) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Authenticate and open a session",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *LoginInput) (*LoginOutput, error) {
		client, _ := middleware.ClientFromContext(ctx)

		session, token, err := eng.Authenticate(ctx, input.Body.PrincipalID, input.Body.Password, client)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrAccountLocked):
				return nil, huma.Error403Forbidden("account temporarily locked")
			case errors.Is(err, domain.ErrPasswordExpired):
				return nil, huma.Error403Forbidden("password expired, change required")
			case errors.Is(err, credential.ErrInvalidCredentials):
				return nil, huma.Error401Unauthorized("invalid credentials")
			default:
				return nil, huma.Error500InternalServerError("login failed", err)
			}
		}

		out := &LoginOutput{}
		out.Body.Token = token
		out.Body.SessionID = session.ID
		out.Body.ExpiresAt = session.ExpiresAt
		return out, nil
	})
}

func RegisterSessionRoutes(api huma.API, eng MonitorEngine) {
	huma.Register(api, huma.Operation{
		OperationID: "logout",
		Method:      http.MethodPost,
		Path:        "/auth/logout",
		Summary:     "Terminate the current session",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, _ *struct{}) (*LogoutOutput, error) {
		token, ok := middleware.TokenFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("missing session")
		}

		if err := eng.Logout(ctx, token); err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				return nil, huma.Error404NotFound("session not found")
			}
			return nil, huma.Error500InternalServerError("logout failed", err)
		}

		out := &LogoutOutput{}
		out.Body.Status = "logged_out"
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-password",
		Method:      http.MethodPost,
		Path:        "/auth/password",
		Summary:     "Change the current principal's password",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *ChangePasswordInput) (*ChangePasswordOutput, error) {
		principalID, ok := middleware.PrincipalIDFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("missing session")
		}

		if err := eng.ChangePassword(ctx, principalID, input.Body.Password); err != nil {
			var policyErr *credential.PolicyError
			switch {
			case errors.As(err, &policyErr):
				return nil, huma.Error422UnprocessableEntity(
					"password rejected by policy: " + joinReasons(policyErr.Reasons))
			case errors.Is(err, domain.ErrPasswordCompromised):
				return nil, huma.Error422UnprocessableEntity("password appears in a known breach corpus")
			case errors.Is(err, domain.ErrStorageUnavailable):
				return nil, huma.Error503ServiceUnavailable("audit storage unavailable, password unchanged")
			default:
				return nil, huma.Error500InternalServerError("password change failed", err)
			}
		}

		out := &ChangePasswordOutput{}
		out.Body.Status = "changed"
		return out, nil
	})
}

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += "; "
		}
		out += r
	}
	return out
}
