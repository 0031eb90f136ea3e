package domain

type SetupStatus struct {
	HasClientID     bool    `json:"has_client_id"`
	HasClientSecret bool    `json:"has_client_secret"`
	UsePKCE         bool    `json:"use_pkce"`
	ClientID        *string `json:"client_id"`
	EnvPath         string  `json:"env_path"`
}

type SetupInput struct {
	ClientID     string  `json:"clientId"`
	ClientSecret *string `json:"clientSecret"`
	UsePKCE      bool    `json:"usePkce"`
}

// ValidationResult reports credential validation inline instead of as an error.
type ValidationResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}
