package link

// Config carries the process-wide secrets and collaborator endpoints. It is
// built once at startup and read-only afterwards.
type Config struct {
	// TokenSecret keys the HMAC derivation of user tokens.
	TokenSecret string `json:"token_secret"`

	// Discord authority credentials.
	DiscordToken string            `json:"discord_token"`
	GuildID      string            `json:"guild_id"`
	RoleIDs      map[string]string `json:"role_ids"`

	// WebhookURL is the audit sink destination.
	WebhookURL string `json:"webhook_url"`

	DatabaseURL string `json:"database_url"`
	SQLitePath  string `json:"sqlite_path"`
	DBDriver    string `json:"db_driver"`

	RedisHost string `json:"redis_host"`
	Port      string `json:"port"`
}

// Defaults fills in every optional field that was left empty.
func (c *Config) Defaults() {
	if c.Port == "" {
		c.Port = ":8080"
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "gamelink.db"
	}
	if c.RoleIDs == nil {
		c.RoleIDs = map[string]string{}
	}
}
