package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/ipfshttp/rpc"
)

func TestDefaults(t *testing.T) {
	s, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, rpc.DefaultAPIURL, s.APIURL)
	assert.Equal(t, rpc.DefaultUserAgent, s.UserAgent)
	assert.Zero(t, s.Timeout)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, "text", s.LogFormat)
}

func TestAPIURLEnvironmentNames(t *testing.T) {
	t.Setenv("IPFS_HTTP_API", "http://node-b:5001")
	s, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "http://node-b:5001", s.APIURL)

	t.Setenv("IpfsHttpApi", "http://node-a:5001")
	s, err = Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "http://node-a:5001", s.APIURL)

	t.Setenv("IPFSHTTP_API_URL", "https://node-p:5001")
	s, err = Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "https://node-p:5001", s.APIURL)
}

func TestPrefixedEnvironment(t *testing.T) {
	t.Setenv("IPFSHTTP_TIMEOUT", "45s")
	t.Setenv("IPFSHTTP_LOG_LEVEL", "DEBUG")
	t.Setenv("IPFSHTTP_LOG_FORMAT", "json")
	s, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, s.Timeout)
	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, "json", s.LogFormat)
}

func TestConfigFile(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader("api_url: http://10.0.0.5:5001\nuser_agent: tests/1\nmetrics_namespace: ipfs\n")))

	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:5001", s.APIURL)
	assert.Equal(t, "tests/1", s.UserAgent)
	assert.Equal(t, "ipfs", s.MetricsNamespace)

	c := rpc.New(s.ClientOptions()...)
	assert.Equal(t, "http://10.0.0.5:5001", c.APIURL())
}

func TestValidate(t *testing.T) {
	base := Settings{APIURL: "http://localhost:5001", LogLevel: "info", LogFormat: "text"}
	require.NoError(t, base.Validate())

	bad := base
	bad.APIURL = "localhost:5001"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidAPIURL)

	bad = base
	bad.LogLevel = "loud"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidValue)

	bad = base
	bad.LogFormat = "xml"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidValue)

	bad = base
	bad.Timeout = -time.Second
	assert.ErrorIs(t, bad.Validate(), ErrInvalidValue)
}
