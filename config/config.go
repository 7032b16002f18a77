// Package config loads client settings with viper.
//
// Keys may come from a config file, from IPFSHTTP_* environment variables
// (IPFSHTTP_API_URL, IPFSHTTP_TIMEOUT, ...) or from bound flags. The API
// endpoint additionally honors IpfsHttpApi and IPFS_HTTP_API.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"xdao.co/ipfshttp/rpc"
)

const (
	KeyAPIURL           = "api_url"
	KeyUserAgent        = "user_agent"
	KeyTimeout          = "timeout"
	KeyLogLevel         = "log_level"
	KeyLogFormat        = "log_format"
	KeyMetricsNamespace = "metrics_namespace"

	EnvPrefix = "IPFSHTTP"
)

var (
	ErrInvalidAPIURL = errors.New("config: invalid api url")
	ErrInvalidValue  = errors.New("config: invalid value")
)

// Settings is everything needed to build a client.
type Settings struct {
	APIURL           string
	UserAgent        string
	Timeout          time.Duration
	LogLevel         string
	LogFormat        string
	MetricsNamespace string
}

// Bind registers defaults and environment lookups on v.
func Bind(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyAPIURL, rpc.DefaultAPIURL)
	v.SetDefault(KeyUserAgent, rpc.DefaultUserAgent)
	v.SetDefault(KeyTimeout, time.Duration(0))
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyMetricsNamespace, "")

	_ = v.BindEnv(KeyAPIURL, EnvPrefix+"_API_URL", "IpfsHttpApi", "IPFS_HTTP_API")
}

// Load binds v and reads Settings from it.
func Load(v *viper.Viper) (Settings, error) {
	Bind(v)
	s := Settings{
		APIURL:           strings.TrimSpace(v.GetString(KeyAPIURL)),
		UserAgent:        v.GetString(KeyUserAgent),
		Timeout:          v.GetDuration(KeyTimeout),
		LogLevel:         strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:        strings.ToLower(v.GetString(KeyLogFormat)),
		MetricsNamespace: v.GetString(KeyMetricsNamespace),
	}
	return s, s.Validate()
}

// Validate checks the values Load cannot coerce.
func (s Settings) Validate() error {
	u, err := url.Parse(s.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidAPIURL, s.APIURL)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %s", ErrInvalidValue, s.Timeout)
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log level %q", ErrInvalidValue, s.LogLevel)
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalidValue, s.LogFormat)
	}
	return nil
}

// ClientOptions turns Settings into rpc options. extra options are applied
// last.
func (s Settings) ClientOptions(extra ...rpc.Option) []rpc.Option {
	opts := []rpc.Option{
		rpc.WithAPIURL(s.APIURL),
		rpc.WithUserAgent(s.UserAgent),
		rpc.WithTimeout(s.Timeout),
	}
	return append(opts, extra...)
}
