package notify

// Config controls the optional ntfy push notifications.
type Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	ServerURL string `mapstructure:"server_url"`
	Topic     string `mapstructure:"topic"`
	Priority  string `mapstructure:"priority"`
	Tags      string `mapstructure:"tags"`
}
