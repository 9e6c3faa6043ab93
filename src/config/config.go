// Package config loads TransportParams and service credentials via
// spf13/viper, supporting environment variables and an optional YAML file.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/square-key-labs/strawpipe/src/transport"
)

// ServiceCredentials holds the API keys for the three reference service
// adapters.
type ServiceCredentials struct {
	DeepgramAPIKey string
	OpenAIAPIKey   string
	CartesiaAPIKey string
}

// Config is the top-level configuration surface: transport tuning plus
// service credentials, both loadable from the environment or a YAML file.
type Config struct {
	Transport   TransportConfig
	Credentials ServiceCredentials
}

// TransportConfig mirrors the subset of transport.Params a deployment
// typically wants to override from the environment. VADAnalyzer and
// TurnAnalyzer are concrete implementations wired by the caller, not
// config-loadable values.
type TransportConfig struct {
	AudioOutEnabled    bool
	AudioOutSampleRate int
	AudioOutChannels   int
	AudioOut10msChunks int

	AudioInEnabled     bool
	AudioInPassthrough bool
	AudioInSampleRate  int
	AudioInChannels    int

	VADEnabled bool
}

// Load reads configuration from environment variables prefixed STRAWPIPE_
// (e.g. STRAWPIPE_TRANSPORT_AUDIOINSAMPLERATE, DEEPGRAM_API_KEY) and, if
// configPath is non-empty, merges in a YAML file. Env vars always win over
// the file.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STRAWPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := transport.DefaultParams()
	v.SetDefault("transport.audiooutenabled", defaults.AudioOutEnabled)
	v.SetDefault("transport.audiooutchannels", defaults.AudioOutChannels)
	v.SetDefault("transport.audioout10mschunks", defaults.AudioOut10msChunks)
	v.SetDefault("transport.audioinenabled", defaults.AudioInEnabled)
	v.SetDefault("transport.audioinpassthrough", defaults.AudioInPassthrough)
	v.SetDefault("transport.audioinchannels", defaults.AudioInChannels)
	v.SetDefault("transport.vadenabled", defaults.VADEnabled)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configPath, err)
		}
	}

	// Service credentials are read as bare environment variables (not under
	// the STRAWPIPE_ prefix) since that's the convention every reference
	// adapter's API expects (DEEPGRAM_API_KEY, OPENAI_API_KEY, CARTESIA_API_KEY).
	v.BindEnv("credentials.deepgramapikey", "DEEPGRAM_API_KEY")
	v.BindEnv("credentials.openaiapikey", "OPENAI_API_KEY")
	v.BindEnv("credentials.cartesiaapikey", "CARTESIA_API_KEY")

	cfg := &Config{
		Transport: TransportConfig{
			AudioOutEnabled:    v.GetBool("transport.audiooutenabled"),
			AudioOutSampleRate: v.GetInt("transport.audiooutsamplerate"),
			AudioOutChannels:   v.GetInt("transport.audiooutchannels"),
			AudioOut10msChunks: v.GetInt("transport.audioout10mschunks"),
			AudioInEnabled:     v.GetBool("transport.audioinenabled"),
			AudioInPassthrough: v.GetBool("transport.audioinpassthrough"),
			AudioInSampleRate:  v.GetInt("transport.audioinsamplerate"),
			AudioInChannels:    v.GetInt("transport.audioinchannels"),
			VADEnabled:         v.GetBool("transport.vadenabled"),
		},
		Credentials: ServiceCredentials{
			DeepgramAPIKey: v.GetString("credentials.deepgramapikey"),
			OpenAIAPIKey:   v.GetString("credentials.openaiapikey"),
			CartesiaAPIKey: v.GetString("credentials.cartesiaapikey"),
		},
	}

	return cfg, nil
}

// ToTransportParams builds a transport.Params from the loaded config,
// starting from transport.DefaultParams() and overlaying the loaded fields.
// VADAnalyzer and TurnAnalyzer are left for the caller to set.
func (c *Config) ToTransportParams() transport.Params {
	params := transport.DefaultParams()
	params.AudioOutEnabled = c.Transport.AudioOutEnabled
	params.AudioOutSampleRate = c.Transport.AudioOutSampleRate
	params.AudioOutChannels = c.Transport.AudioOutChannels
	params.AudioOut10msChunks = c.Transport.AudioOut10msChunks
	params.AudioInEnabled = c.Transport.AudioInEnabled
	params.AudioInPassthrough = c.Transport.AudioInPassthrough
	params.AudioInSampleRate = c.Transport.AudioInSampleRate
	params.AudioInChannels = c.Transport.AudioInChannels
	params.VADEnabled = c.Transport.VADEnabled
	return params
}
