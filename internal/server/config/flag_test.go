package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{
				"-a", "127.0.0.1:9090", "-l", "127.0.0.1:9091", "-d", "db", "-k", "email", "-i", "X-User",
				"-f", "nickname,fullname", "-n", "200000", "-j", "8", "-w", "http://hooks", "-v", "debug",
				"-o", "http://otel:4318", "-u", "user", "-p", "password", "-b", "bucket", "-g", "us-west-1",
				"-e", "http://endpoint",
			},
			expected: &Config{
				EndpointAddrGRPC:       "127.0.0.1:9090",
				EndpointAddrHTTP:       "127.0.0.1:9091",
				DatabaseDSN:            "db",
				LoginKeyField:          "email",
				IdentityHeader:         "X-User",
				ProfileFields:          []string{"nickname", "fullname"},
				PasswordIterations:     200000,
				HashConcurrency:        8,
				WebhookOnCreateAccount: "http://hooks",
				LogLevel:               "debug",
				OtelEndpoint:           "http://otel:4318",
				S3RootUser:             "user",
				S3RootPassword:         "password",
				S3Bucket:               "bucket",
				S3Region:               "us-west-1",
				S3BaseEndpoint:         "http://endpoint",
			},
		},
		{
			name:     "unknown flags are ignored",
			args:     []string{"-c", "cfg.json", "-x", "1", "-a", ":1"},
			expected: &Config{EndpointAddrGRPC: ":1"},
		},
		{
			name:        "bad integer",
			args:        []string{"-n", "lots"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config, tt.args) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config, tt.args) })
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
