package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/juicerq/witch/internal/domain"
)

const (
	envClientID     = "TWITCH_CLIENT_ID"
	envClientSecret = "TWITCH_CLIENT_SECRET"
	envUsePKCE      = "TWITCH_USE_PKCE"
)

// SetupService manages the Twitch application credentials kept in the env
// file. Changes take effect on the next process start.
type SetupService struct {
	envPath   string
	validator domain.CredentialValidator
}

func NewSetupService(envPath string, validator domain.CredentialValidator) *SetupService {
	return &SetupService{envPath: envPath, validator: validator}
}

func (s *SetupService) Status() domain.SetupStatus {
	env := s.readEnv()

	status := domain.SetupStatus{
		HasClientID:     strings.TrimSpace(env[envClientID]) != "",
		HasClientSecret: strings.TrimSpace(env[envClientSecret]) != "",
		UsePKCE:         strings.EqualFold(env[envUsePKCE], "true"),
		EnvPath:         s.envPath,
	}
	if id, ok := env[envClientID]; ok {
		status.ClientID = &id
	}
	return status
}

// Validate never fails; problems are reported in the result message.
func (s *SetupService) Validate(ctx context.Context, input domain.SetupInput) domain.ValidationResult {
	clientID := strings.TrimSpace(input.ClientID)
	if clientID == "" {
		return domain.ValidationResult{Message: "Client ID is required."}
	}

	if input.UsePKCE {
		return domain.ValidationResult{OK: true, Message: "PKCE mode selected. We'll validate during login."}
	}

	secret := ""
	if input.ClientSecret != nil {
		secret = strings.TrimSpace(*input.ClientSecret)
	}
	if secret == "" {
		return domain.ValidationResult{Message: "Client Secret is required unless PKCE is enabled."}
	}

	err := s.validator.ValidateClientCredentials(ctx, clientID, secret)
	if err == nil {
		return domain.ValidationResult{OK: true, Message: "Credentials validated successfully."}
	}
	if apiErr, ok := errors.AsType[*domain.UpstreamAPIError](err); ok {
		return domain.ValidationResult{Message: fmt.Sprintf("Validation failed (%d): %s", apiErr.Status, apiErr.Body)}
	}
	return domain.ValidationResult{Message: fmt.Sprintf("Failed to reach Twitch: %v", err)}
}

// Save merges input into the env file and returns its path.
func (s *SetupService) Save(input domain.SetupInput) (string, error) {
	env := s.readEnv()

	env[envClientID] = strings.TrimSpace(input.ClientID)

	secret := ""
	if input.ClientSecret != nil {
		secret = strings.TrimSpace(*input.ClientSecret)
	}
	if secret != "" {
		env[envClientSecret] = secret
	} else {
		delete(env, envClientSecret)
	}

	if input.UsePKCE {
		env[envUsePKCE] = "true"
	} else {
		delete(env, envUsePKCE)
	}

	if err := os.MkdirAll(filepath.Dir(s.envPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create env directory: %w", err)
	}
	if err := godotenv.Write(env, s.envPath); err != nil {
		return "", fmt.Errorf("failed to write env file: %w", err)
	}

	slog.Info("Saved Twitch credentials", "path", s.envPath, "pkce", input.UsePKCE)
	return s.envPath, nil
}

func (s *SetupService) readEnv() map[string]string {
	env, err := godotenv.Read(s.envPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to read env file", "path", s.envPath, "error", err)
		}
		return map[string]string{}
	}
	return env
}
