package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/okaeri/internal/common"
	"github.com/dmitrijs2005/okaeri/internal/cryptox"
	"github.com/dmitrijs2005/okaeri/internal/logging"
	"github.com/dmitrijs2005/okaeri/internal/server/models"
	"github.com/dmitrijs2005/okaeri/internal/server/query"
	"github.com/dmitrijs2005/okaeri/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/okaeri/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/okaeri/internal/validation"
	"github.com/google/uuid"
)

// NewAccount is the account creation payload.
type NewAccount struct {
	LoginKey string         `json:"login_key" validate:"required"`
	Password string         `json:"password" validate:"required,min=8,max=128"`
	Profile  map[string]any `json:"profile"`
}

// AccountPatch is the account update payload. Only profile fields can be
// changed this way; a nil value removes the field.
type AccountPatch struct {
	Profile map[string]any `json:"profile"`
}

// AccountOptions configure an AccountService.
type AccountOptions struct {
	// LoginKeyField is the external name of the login key.
	LoginKeyField string
	// ProfileFields is the allow-list of profile field names.
	ProfileFields []string
	Notifier      AccountNotifier
	Metrics       Metrics
}

// AccountService is the account store: registration, credential checks,
// reads, profile updates and listings.
type AccountService struct {
	repos         repomanager.RepositoryManager
	hasher        PasswordHasher
	notifier      AccountNotifier
	metrics       Metrics
	validate      *validation.Validator
	schema        *query.Schema
	loginKeyField string
	profile       []string
	log           logging.Logger
}

// NewAccountService builds the account store over repos.
func NewAccountService(repos repomanager.RepositoryManager, hasher PasswordHasher, opts AccountOptions, log logging.Logger) (*AccountService, error) {
	if opts.LoginKeyField == "" {
		opts.LoginKeyField = "name"
	}
	schema, err := query.AccountSchema(opts.LoginKeyField, opts.ProfileFields)
	if err != nil {
		return nil, fmt.Errorf("account schema: %w", err)
	}
	s := &AccountService{
		repos:         repos,
		hasher:        hasher,
		notifier:      opts.Notifier,
		metrics:       opts.Metrics,
		validate:      validation.New(map[string]string{"login_key": opts.LoginKeyField}),
		schema:        schema,
		loginKeyField: opts.LoginKeyField,
		profile:       slices.Clone(opts.ProfileFields),
		log:           log.With("module", "accounts"),
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	return s, nil
}

// LoginKeyField returns the external name of the login key.
func (s *AccountService) LoginKeyField() string {
	return s.loginKeyField
}

func (s *AccountService) checkProfileKeys(profile map[string]any) error {
	var violations []common.Violation
	for k := range profile {
		if !slices.Contains(s.profile, k) {
			violations = append(violations, common.Violation{Field: k, Rule: "unknown_field"})
		}
	}
	if len(violations) == 0 {
		return nil
	}
	slices.SortFunc(violations, func(a, b common.Violation) int {
		if a.Field < b.Field {
			return -1
		}
		if a.Field > b.Field {
			return 1
		}
		return 0
	})
	return &common.ValidationError{Violations: violations}
}

func (s *AccountService) conflict(loginKey string) error {
	return &common.ConflictError{Field: s.loginKeyField, Value: loginKey}
}

// Create registers a new account and returns its id. The password is stored
// only as a salted digest. Subscribers are notified after the insert.
func (s *AccountService) Create(ctx context.Context, in NewAccount) (uuid.UUID, error) {
	if err := validation.Merge(s.validate.Struct(in), s.checkProfileKeys(in.Profile)); err != nil {
		return uuid.Nil, err
	}

	exists, err := s.repos.Accounts().ExistsByLoginKey(ctx, in.LoginKey)
	if err != nil {
		return uuid.Nil, fmt.Errorf("check login key: %w", err)
	}
	if exists {
		return uuid.Nil, s.conflict(in.LoginKey)
	}

	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return uuid.Nil, err
	}
	hash, err := s.hasher.Hash(ctx, in.Password, salt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hash password: %w", err)
	}
	id, err := common.NewID()
	if err != nil {
		return uuid.Nil, err
	}

	profile := map[string]any{}
	for k, v := range in.Profile {
		if v != nil {
			profile[k] = v
		}
	}

	acc := models.Account{
		ID:       id,
		LoginKey: in.LoginKey,
		Salt:     salt,
		Hash:     hash,
		Groups:   []uuid.UUID{},
		Profile:  profile,
		Creation: now(),
	}
	if err := s.repos.Accounts().Create(ctx, &acc); err != nil {
		if errors.Is(err, common.ErrConflict) {
			return uuid.Nil, s.conflict(in.LoginKey)
		}
		return uuid.Nil, fmt.Errorf("create account: %w", err)
	}

	s.log.Info(ctx, "account created", "account_id", id.String(), s.loginKeyField, in.LoginKey)
	s.metrics.AccountCreated()
	s.notifier.AccountCreated(ctx, acc.Public())

	return id, nil
}

// CheckCredentials returns the id of the account owning loginKey when
// password matches. A missing account and a wrong password are reported
// identically as common.ErrWrongCredentials. No account has an empty login
// key, so one is treated as missing.
func (s *AccountService) CheckCredentials(ctx context.Context, loginKey, password string) (uuid.UUID, error) {
	acc, err := s.lookupCredentials(ctx, loginKey)
	if errors.Is(err, common.ErrUnknown) {
		s.burnHash(ctx, password)
		s.metrics.CredentialCheck(false)
		return uuid.Nil, common.ErrWrongCredentials
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("load credentials: %w", err)
	}

	ok, err := s.hasher.Verify(ctx, password, acc.Salt, acc.Hash)
	if err != nil {
		return uuid.Nil, fmt.Errorf("verify password: %w", err)
	}
	s.metrics.CredentialCheck(ok)
	if !ok {
		return uuid.Nil, common.ErrWrongCredentials
	}
	return acc.ID, nil
}

func (s *AccountService) lookupCredentials(ctx context.Context, loginKey string) (*models.Account, error) {
	if loginKey == "" {
		return nil, common.ErrUnknown
	}
	return s.repos.Accounts().GetCredentials(ctx, loginKey)
}

// burnHash spends one derivation so unknown login keys take as long as wrong
// passwords.
func (s *AccountService) burnHash(ctx context.Context, password string) {
	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return
	}
	_, _ = s.hasher.Hash(ctx, password, salt)
}

// Read returns the public record of the account.
func (s *AccountService) Read(ctx context.Context, id string) (*models.Account, error) {
	uid, err := common.ParseID(id)
	if err != nil {
		return nil, err
	}
	acc, err := s.repos.Accounts().GetByID(ctx, uid)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// Update applies a profile patch and refreshes last_update.
func (s *AccountService) Update(ctx context.Context, id string, patch AccountPatch) error {
	if err := s.checkProfileKeys(patch.Profile); err != nil {
		return err
	}
	uid, err := common.ParseID(id)
	if err != nil {
		return err
	}

	set := map[string]any{}
	var unset []string
	for k, v := range patch.Profile {
		if v == nil {
			unset = append(unset, k)
			continue
		}
		set[k] = v
	}
	slices.Sort(unset)

	if err := s.repos.Accounts().UpdateProfile(ctx, uid, set, unset, now()); err != nil {
		return err
	}
	s.log.Debug(ctx, "account updated", "account_id", id)
	return nil
}

// ChangePassword replaces the account's salt and digest.
func (s *AccountService) ChangePassword(ctx context.Context, id, password string) error {
	if err := s.validate.Var("password", password, "required,min=8,max=128"); err != nil {
		return err
	}
	uid, err := common.ParseID(id)
	if err != nil {
		return err
	}
	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(ctx, password, salt)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repos.Accounts().SetCredentials(ctx, uid, salt, hash, now()); err != nil {
		return err
	}
	s.log.Info(ctx, "password changed", "account_id", id)
	return nil
}

// ChangeLoginKey renames the account, keeping login keys unique.
func (s *AccountService) ChangeLoginKey(ctx context.Context, id, loginKey string) error {
	if err := s.validate.Var(s.loginKeyField, loginKey, "required"); err != nil {
		return err
	}
	uid, err := common.ParseID(id)
	if err != nil {
		return err
	}
	if err := s.repos.Accounts().SetLoginKey(ctx, uid, loginKey, now()); err != nil {
		if errors.Is(err, common.ErrConflict) {
			return s.conflict(loginKey)
		}
		return err
	}
	s.log.Info(ctx, "login key changed", "account_id", id, s.loginKeyField, loginKey)
	return nil
}

// Query returns one page of public accounts.
func (s *AccountService) Query(ctx context.Context, q Query) ([]models.Account, error) {
	c, err := s.schema.Compile(q.Filter, q.OrderBy)
	if err != nil {
		return nil, err
	}
	return s.repos.Accounts().Query(ctx, c, query.PageSize, query.Offset(q.Page))
}

// Iterate streams every public account matching filter in id order, which
// is creation order.
func (s *AccountService) Iterate(ctx context.Context, filter string) (accounts.Cursor, error) {
	c, err := s.schema.Compile(filter, "")
	if err != nil {
		return nil, err
	}
	return s.repos.Accounts().Iterate(ctx, c)
}
