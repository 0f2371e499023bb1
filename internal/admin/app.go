// Package admin implements okaeri-admin, the operator tool that works on
// the store directly: creating accounts, reconciling memberships and
// exporting accounts.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/okaeri/internal/common"
	"github.com/dmitrijs2005/okaeri/internal/flagx"
	"github.com/dmitrijs2005/okaeri/internal/logging"
	"github.com/dmitrijs2005/okaeri/internal/server"
	"github.com/dmitrijs2005/okaeri/internal/server/config"
	"github.com/dmitrijs2005/okaeri/internal/server/export"
	"github.com/dmitrijs2005/okaeri/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/okaeri/internal/server/services"
)

const usage = `usage: okaeri-admin <command> [flags]

commands:
  create-account -name <login key> [-set field=value ...]
  reconcile
  export [-filter expr] [-out file] [-s3-key key [-presign ttl]]

server configuration flags (-c, -d, -k, ...) are accepted as well`

// App runs one admin command against the services.
type App struct {
	config     *config.Config
	accounts   *services.AccountService
	membership *services.MembershipService
	out        io.Writer

	// newUploader is a seam for the S3 client used by export.
	newUploader func(ctx context.Context, opts export.S3Options) (*s3.Client, error)
}

func NewApp(c *config.Config, accounts *services.AccountService, membership *services.MembershipService, out io.Writer) *App {
	return &App{
		config:      c,
		accounts:    accounts,
		membership:  membership,
		out:         out,
		newUploader: export.NewS3Client,
	}
}

// openRepositories is a seam for tests.
var openRepositories = func(ctx context.Context, dsn string) (repomanager.RepositoryManager, error) {
	db, err := repomanager.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	m := repomanager.NewPostgresRepositoryManager(db)
	if err := m.RunMigrations(ctx); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

// Main loads the configuration, opens the store and runs the command named
// by args[0]. It returns the process exit code.
func Main(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	cfg, err := loadConfig(args[1:])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	logger, err := logging.NewFromConfig(cfg.LogLevel, cfg.LogFormat, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	repos, err := openRepositories(ctx, cfg.DatabaseDSN)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer repos.Close()

	accounts, _, membership, err := server.Services(cfg, repos, nil, nil, logger)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	app := NewApp(cfg, accounts, membership, stdout)
	if err := app.Run(ctx, args[0], args[1:]); err != nil {
		fmt.Fprintln(stderr, describe(err))
		return 1
	}
	return 0
}

func loadConfig(args []string) (cfg *config.Config, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("configuration: %v", r)
		}
	}()
	return config.LoadConfig(args)
}

// describe renders store outcomes for an operator.
func describe(err error) string {
	var ve *common.ValidationError
	var ce *common.ConflictError
	switch {
	case errors.As(err, &ve):
		parts := make([]string, len(ve.Violations))
		for i, v := range ve.Violations {
			parts[i] = v.String()
		}
		return "invalid input: " + strings.Join(parts, ", ")
	case errors.As(err, &ce):
		return fmt.Sprintf("%s %q is already taken", ce.Field, ce.Value)
	default:
		return err.Error()
	}
}

// Run dispatches one command.
func (a *App) Run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "create-account":
		return a.createAccount(ctx, args)
	case "reconcile":
		return a.reconcile(ctx)
	case "export":
		return a.export(ctx, args)
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func (a *App) createAccount(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-account", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	name := fs.String("name", "", "login key of the new account")
	var set flagx.StringList
	fs.Var(&set, "set", "profile field as field=value")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-name", "-set"})); err != nil {
		return err
	}

	profile := make(map[string]any, len(set))
	for _, kv := range set {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return fmt.Errorf("profile field %q: expected field=value", kv)
		}
		profile[k] = v
	}

	password, err := getNewPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	id, err := a.accounts.Create(ctx, services.NewAccount{
		LoginKey: *name,
		Password: string(password),
		Profile:  profile,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, id.String())
	return nil
}

func (a *App) reconcile(ctx context.Context) error {
	rep, err := a.membership.Reconcile(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func (a *App) export(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	filter := fs.String("filter", "", "AIP-160 filter over public fields")
	out := fs.String("out", "", "write to this file instead of stdout")
	key := fs.String("s3-key", "", "upload to this object key in the configured bucket")
	presign := fs.Duration("presign", 0, "print a download URL valid for this long")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-filter", "-out", "-s3-key", "-presign"})); err != nil {
		return err
	}

	if *key != "" {
		return a.exportToS3(ctx, *filter, *key, *presign)
	}

	w := a.out
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	n, err := export.NDJSON(ctx, a.accounts, *filter, w)
	if err != nil {
		return err
	}
	if *out != "" {
		fmt.Fprintf(a.out, "exported %d accounts to %s\n", n, *out)
	}
	return nil
}

func (a *App) exportToS3(ctx context.Context, filter, key string, presign time.Duration) error {
	client, err := a.newUploader(ctx, export.S3Options{
		Region:       a.config.S3Region,
		AccessKey:    a.config.S3RootUser,
		SecretKey:    a.config.S3RootPassword,
		BaseEndpoint: a.config.S3BaseEndpoint,
		Bucket:       a.config.S3Bucket,
	})
	if err != nil {
		return fmt.Errorf("s3 client: %w", err)
	}

	n, err := export.ToS3(ctx, a.accounts, filter, client, a.config.S3Bucket, key)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "exported %d accounts to s3://%s/%s\n", n, a.config.S3Bucket, key)

	if presign > 0 {
		url, err := export.PresignDownload(ctx, client, a.config.S3Bucket, key, presign)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, url)
	}
	return nil
}
