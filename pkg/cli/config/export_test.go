package config

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{
		level:  level,
		format: format,
		output: output,
	}
}

// NewProvidersForTest creates a Providers config for testing purposes
func NewProvidersForTest(redirectURL, googleClientID, googleClientSecret, googleBaseURL string) *Providers {
	return &Providers{
		redirectURL:        redirectURL,
		googleClientID:     googleClientID,
		googleClientSecret: googleClientSecret,
		googleBaseURL:      googleBaseURL,
	}
}

// NewRepositoryForTest creates a Repository config for testing purposes
func NewRepositoryForTest(backend, projectID, databaseID string) *Repository {
	return &Repository{
		backend:    backend,
		projectID:  projectID,
		databaseID: databaseID,
	}
}
