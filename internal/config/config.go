package config

// Config represents the main Nocturne configuration
type Config struct {
	// Accounts seeds the session pool
	Accounts []AccountConfig `json:"accounts" mapstructure:"accounts"`

	// Upstream holds the Venice.ai endpoint configuration
	Upstream UpstreamConfig `json:"upstream" mapstructure:"upstream"`

	// Chat holds model and prompt defaults
	Chat ChatConfig `json:"chat" mapstructure:"chat"`

	// Pool holds session pool tuning
	Pool PoolConfig `json:"pool" mapstructure:"pool"`

	// Server holds the HTTP boundary configuration
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Admin guards the administrative endpoints
	Admin AdminConfig `json:"admin" mapstructure:"admin"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// AccountConfig is one immutable credential pair
type AccountConfig struct {
	Email    string `json:"email" mapstructure:"email"`
	Password string `json:"password" mapstructure:"password"`
}

// UpstreamConfig holds the identity provider and chat API base URLs
type UpstreamConfig struct {
	ClerkBase     string `json:"clerk_base" mapstructure:"clerk_base"`
	OuterfaceBase string `json:"outerface_base" mapstructure:"outerface_base"`
	UserAgent     string `json:"user_agent" mapstructure:"user_agent"`
}

// ChatConfig holds model and prompt defaults
type ChatConfig struct {
	DefaultModel string `json:"default_model" mapstructure:"default_model"`
	SystemPrompt string `json:"system_prompt" mapstructure:"system_prompt"`
}

// PoolConfig holds session pool tuning
type PoolConfig struct {
	// DefaultBudget is the assumed per-account call budget after login
	DefaultBudget int `json:"default_budget" mapstructure:"default_budget"`

	// ReviveSchedule is an optional cron expression that periodically
	// reinstates exhausted accounts. Empty disables revival: the pool
	// then shrinks monotonically until restart, matching the upstream's
	// undocumented reset timing being unknown.
	ReviveSchedule string `json:"revive_schedule" mapstructure:"revive_schedule"`
}

// ServerConfig holds the HTTP boundary configuration
type ServerConfig struct {
	Host               string `json:"host" mapstructure:"host"`
	Port               int    `json:"port" mapstructure:"port"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
}

// AdminConfig guards the administrative endpoints
type AdminConfig struct {
	// Secret is compared against the X-Admin-Secret request header.
	// Empty disables the admin endpoints entirely.
	Secret string `json:"secret" mapstructure:"secret"`

	// DefaultPassword is used when an added account omits its password
	DefaultPassword string `json:"default_password" mapstructure:"default_password"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultSystemPrompt is attached to every upstream request unless
// overridden in the config file.
const DefaultSystemPrompt = `You are Nocturne, an AI assistant by Alphy.
* If asked your name or identity, say you are Nocturne by Alphy. Do NOT introduce yourself unless asked.
* Match the user's language (e.g., reply in Russian if they write in Russian).
* Be accurate and concise. If uncertain, say so.
* Never claim to be another AI system.`

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			ClerkBase:     "https://clerk.venice.ai/v1",
			OuterfaceBase: "https://outerface.venice.ai/api",
			UserAgent:     "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
		},
		Chat: ChatConfig{
			DefaultModel: "zai-org-glm-4.7-flash",
			SystemPrompt: DefaultSystemPrompt,
		},
		Pool: PoolConfig{
			DefaultBudget: 10,
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			RateLimitPerMinute: 100,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    false,
			Redaction: true,
		},
	}
}
