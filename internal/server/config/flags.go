package config

import (
	"flag"

	"github.com/dmitrijs2005/okaeri/internal/flagx"
)

var serverFlags = []string{
	"-a", "-l", "-d", "-k", "-i", "-f", "-n", "-j", "-w", "-v", "-o", "-u", "-p", "-b", "-g", "-e",
}

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-l string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-k string   login key field name
//	-i string   identity header
//	-f list     profile fields, comma separated; replaces the configured list
//	-n int      PBKDF2 iterations
//	-j int      concurrent password derivations
//	-w string   webhook URL notified on account creation
//	-v string   log level
//	-o string   OTLP/HTTP traces endpoint
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// Arguments are filtered to the flags above first so that -c/-config and
// flags of other components do not collide.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, serverFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.EndpointAddrHTTP, "l", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.LoginKeyField, "k", config.LoginKeyField, "login key field")
	fs.StringVar(&config.IdentityHeader, "i", config.IdentityHeader, "identity header")

	var profile flagx.StringList
	fs.Var(&profile, "f", "profile fields, comma separated")

	fs.IntVar(&config.PasswordIterations, "n", config.PasswordIterations, "PBKDF2 iterations")
	fs.IntVar(&config.HashConcurrency, "j", config.HashConcurrency, "concurrent password derivations")
	fs.StringVar(&config.WebhookOnCreateAccount, "w", config.WebhookOnCreateAccount, "webhook URL on account creation")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")
	fs.StringVar(&config.OtelEndpoint, "o", config.OtelEndpoint, "OTLP traces endpoint")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if len(profile) > 0 {
		config.ProfileFields = []string(profile)
	}
}
