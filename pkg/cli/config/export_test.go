package config

// NewRepositoryForTest creates a Repository config for testing purposes
func NewRepositoryForTest(backend, sessionBackend, redisURL string) *Repository {
	return &Repository{
		backend:        backend,
		sessionBackend: sessionBackend,
		redisURL:       redisURL,
	}
}

// NewSlackForTest creates a Slack config for testing purposes
func NewSlackForTest(botToken, signingSecret string) *Slack {
	s := &Slack{
		botToken:      botToken,
		signingSecret: signingSecret,
	}
	s.setDefaultCommands()
	return s
}

// NewOrganizationsForTest creates an Organizations config for testing purposes
func NewOrganizationsForTest(path string) *Organizations {
	return &Organizations{path: path}
}

// NewSheetsForTest creates a Sheets config for testing purposes
func NewSheetsForTest(backend, credentialsFile string) *Sheets {
	return &Sheets{backend: backend, credentialsFile: credentialsFile}
}
