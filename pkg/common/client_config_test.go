package common

import (
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  ClientConfig
		wantErr bool
	}{
		{"valid", ClientConfig{Addr: "127.0.0.1:6379", DialTimeout: time.Second}, false},
		{"hostname", ClientConfig{Addr: "localhost:6380"}, false},
		{"missing port", ClientConfig{Addr: "127.0.0.1"}, true},
		{"bad port", ClientConfig{Addr: "127.0.0.1:http"}, true},
		{"port out of range", ClientConfig{Addr: "127.0.0.1:70000"}, true},
		{"negative timeout", ClientConfig{Addr: "127.0.0.1:6379", Timeout: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestServerConfigFromFlags(t *testing.T) {
	var config ServerConfig
	parser, err := kong.New(&config)
	require.NoError(t, err)
	_, err = parser.Parse([]string{"--port=7000", "--service-port=7001", "--metrics.enable", "--metrics.sink=all"})
	require.NoError(t, err)

	assert.Equal(t, 7000, config.Port)
	assert.Equal(t, "tcp://127.0.0.1:7000", config.Addr())
	assert.Equal(t, "127.0.0.1:7000", config.ListenAddr())
	assert.True(t, config.Metrics.EnableMetrics)
	assert.Equal(t, "/metrics", config.Metrics.MetricsPath)
	assert.NoError(t, config.Validate())
}

func TestServerConfigValidate(t *testing.T) {
	config := ServerConfig{Host: "127.0.0.1", Port: 6380, ServicePort: 6380}
	assert.Error(t, config.Validate())

	config.ServicePort = 0
	assert.NoError(t, config.Validate())

	config.Metrics = MetricsConfig{EnableMetrics: true, MetricsPath: "metrics", MetricsSinkType: "prometheus"}
	assert.Error(t, config.Validate())
	config.Metrics.MetricsPath = "/metrics"
	config.Metrics.MetricsSinkType = "statsd"
	assert.Error(t, config.Validate())
}

func TestGNetOptions(t *testing.T) {
	config := ServerConfig{}
	assert.Empty(t, config.GNetOptions())
	config.MultiCore = true
	config.CoreNum = 4
	assert.Len(t, config.GNetOptions(), 2)
}

func TestBenchConfigDefaults(t *testing.T) {
	var config BenchConfig
	parser, err := kong.New(&config)
	require.NoError(t, err)
	_, err = parser.Parse([]string{"-n", "50"})
	require.NoError(t, err)
	assert.Equal(t, 50, config.Requests)
	assert.Equal(t, 4, config.Conns)
	assert.NoError(t, config.Validate())

	config.Keyspace = 0
	assert.Error(t, config.Validate())
}
