package config

const (
	defaultTimeoutSeconds     = 30
	defaultItemTypeTitle      = "Patient"
	defaultTemplateTitle      = "Clinical Analysis"
	defaultFallbackTemplateID = 1
	defaultBind               = "127.0.0.1:8080"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultDatabaseFile       = "elabgate.db"
)

// Default returns a Config populated with built-in defaults.
func Default() Config {
	return Config{
		Elab: Elab{
			VerifyTLS:          true,
			TimeoutSeconds:     defaultTimeoutSeconds,
			ItemTypeTitle:      defaultItemTypeTitle,
			TemplateTitle:      defaultTemplateTitle,
			FallbackTemplateID: defaultFallbackTemplateID,
			SampleTemplates:    map[string]string{},
		},
		Server: Server{
			Bind: defaultBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
