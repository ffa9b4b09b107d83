package worker

// DriveWorkerConfig holds the Google OAuth application credentials used to
// build per-account Drive clients from stored refresh tokens.
type DriveWorkerConfig struct {
	ClientID     string `mapstructure:"client_id"     yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"  yaml:"redirect_url"`
}
