package config

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for configuration validation
var (
	ErrConfigNotFound     = goerr.New("configuration file not found")
	ErrInvalidConfig      = goerr.New("invalid configuration")
	ErrDuplicateTeamID    = goerr.New("duplicate team ID")
	ErrCredentialsMissing = goerr.New("credentials file not found")
	ErrUnknownBackend     = goerr.New("unknown backend")
)

// Context keys for error values
const (
	ConfigPathKey      = "config_path"
	TeamIDKey          = "team_id"
	OrganizationIdxKey = "organization_index"
	BackendKey         = "backend"
)
