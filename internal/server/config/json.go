package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/okaeri/internal/flagx"
)

// duration accepts both "5s" style strings and integer nanoseconds.
type duration time.Duration

func (d *duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = duration(time.Duration(value))
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = duration(parsed)
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// JsonConfig is the on-disk shape of the configuration file. Keys that are
// absent keep the value they had before the file was read.
type JsonConfig struct {
	EndpointAddrGRPC       string   `json:"endpoint_addr_grpc"`
	EndpointAddrHTTP       string   `json:"endpoint_addr_http"`
	DatabaseDSN            string   `json:"database_dsn"`
	LoginKeyField          string   `json:"login_key_field"`
	IdentityHeader         string   `json:"identity_header"`
	ProfileFields          []string `json:"profile_fields"`
	PasswordIterations     int      `json:"password_iterations"`
	HashConcurrency        int      `json:"hash_concurrency"`
	WebhookOnCreateAccount string   `json:"webhook_on_create_account"`
	WebhookTimeout         duration `json:"webhook_timeout"`
	WebhookAllowPrivate    bool     `json:"webhook_allow_private"`
	LogLevel               string   `json:"log_level"`
	LogFormat              string   `json:"log_format"`
	OtelEndpoint           string   `json:"otel_endpoint"`
	S3RootUser             string   `json:"s3_root_user"`
	S3RootPassword         string   `json:"s3_root_password"`
	S3Bucket               string   `json:"s3_bucket"`
	S3Region               string   `json:"s3_region"`
	S3BaseEndpoint         string   `json:"s3_base_endpoint"`
}

// parseJson overlays the JSON file named by -c or -config in args. Nothing
// happens when neither flag is given. An unreadable or invalid file panics.
func parseJson(config *Config, args []string) {
	jsonConfigFile := flagx.ConfigPath(args)

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{
		EndpointAddrGRPC:       config.EndpointAddrGRPC,
		EndpointAddrHTTP:       config.EndpointAddrHTTP,
		DatabaseDSN:            config.DatabaseDSN,
		LoginKeyField:          config.LoginKeyField,
		IdentityHeader:         config.IdentityHeader,
		ProfileFields:          config.ProfileFields,
		PasswordIterations:     config.PasswordIterations,
		HashConcurrency:        config.HashConcurrency,
		WebhookOnCreateAccount: config.WebhookOnCreateAccount,
		WebhookTimeout:         duration(config.WebhookTimeout),
		WebhookAllowPrivate:    config.WebhookAllowPrivate,
		LogLevel:               config.LogLevel,
		LogFormat:              config.LogFormat,
		OtelEndpoint:           config.OtelEndpoint,
		S3RootUser:             config.S3RootUser,
		S3RootPassword:         config.S3RootPassword,
		S3Bucket:               config.S3Bucket,
		S3Region:               config.S3Region,
		S3BaseEndpoint:         config.S3BaseEndpoint,
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddrGRPC = c.EndpointAddrGRPC
	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.LoginKeyField = c.LoginKeyField
	config.IdentityHeader = c.IdentityHeader
	config.ProfileFields = c.ProfileFields
	config.PasswordIterations = c.PasswordIterations
	config.HashConcurrency = c.HashConcurrency
	config.WebhookOnCreateAccount = c.WebhookOnCreateAccount
	config.WebhookTimeout = time.Duration(c.WebhookTimeout)
	config.WebhookAllowPrivate = c.WebhookAllowPrivate
	config.LogLevel = c.LogLevel
	config.LogFormat = c.LogFormat
	config.OtelEndpoint = c.OtelEndpoint
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
}
