package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/okaeri/internal/common"
	"github.com/dmitrijs2005/okaeri/internal/logging"
	"github.com/dmitrijs2005/okaeri/internal/server/models"
	"github.com/dmitrijs2005/okaeri/internal/server/query"
	"github.com/dmitrijs2005/okaeri/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/okaeri/internal/validation"
	"github.com/google/uuid"
)

// NewGroup is the group creation payload.
type NewGroup struct {
	Name string `json:"name" validate:"required"`
	Code string `json:"code" validate:"required"`
}

// GroupPatch is the group update payload. Nil fields are left unchanged.
type GroupPatch struct {
	Name *string `json:"name"`
	Code *string `json:"code"`
}

type GroupService struct {
	repos    repomanager.RepositoryManager
	metrics  Metrics
	validate *validation.Validator
	schema   *query.Schema
	log      logging.Logger
}

func NewGroupService(repos repomanager.RepositoryManager, metrics Metrics, log logging.Logger) (*GroupService, error) {
	schema, err := query.GroupSchema()
	if err != nil {
		return nil, fmt.Errorf("group schema: %w", err)
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &GroupService{
		repos:    repos,
		metrics:  metrics,
		validate: validation.New(nil),
		schema:   schema,
		log:      log.With("module", "groups"),
	}, nil
}

func codeConflict(code string) error {
	return &common.ConflictError{Field: "code", Value: code}
}

// Create stores a new group without members and returns its id.
func (s *GroupService) Create(ctx context.Context, in NewGroup) (uuid.UUID, error) {
	if err := s.validate.Struct(in); err != nil {
		return uuid.Nil, err
	}

	exists, err := s.repos.Groups().ExistsByCode(ctx, in.Code)
	if err != nil {
		return uuid.Nil, fmt.Errorf("check code: %w", err)
	}
	if exists {
		return uuid.Nil, codeConflict(in.Code)
	}

	id, err := common.NewID()
	if err != nil {
		return uuid.Nil, err
	}
	g := models.Group{
		ID:       id,
		Name:     in.Name,
		Code:     in.Code,
		Accounts: []uuid.UUID{},
		Creation: now(),
	}
	if err := s.repos.Groups().Create(ctx, &g); err != nil {
		if errors.Is(err, common.ErrConflict) {
			return uuid.Nil, codeConflict(in.Code)
		}
		return uuid.Nil, fmt.Errorf("create group: %w", err)
	}

	s.log.Info(ctx, "group created", "group_id", id.String(), "code", in.Code)
	return id, nil
}

// Update renames the group or changes its code.
func (s *GroupService) Update(ctx context.Context, id string, patch GroupPatch) error {
	var errs []error
	if patch.Name != nil {
		errs = append(errs, s.validate.Var("name", *patch.Name, "required"))
	}
	if patch.Code != nil {
		errs = append(errs, s.validate.Var("code", *patch.Code, "required"))
	}
	if err := validation.Merge(errs...); err != nil {
		return err
	}
	uid, err := common.ParseID(id)
	if err != nil {
		return err
	}
	if err := s.repos.Groups().Update(ctx, uid, patch.Name, patch.Code, now()); err != nil {
		if errors.Is(err, common.ErrConflict) && patch.Code != nil {
			return codeConflict(*patch.Code)
		}
		return err
	}
	s.log.Debug(ctx, "group updated", "group_id", id)
	return nil
}

// Read returns the group with its members as public accounts, ordered by
// login key then id.
func (s *GroupService) Read(ctx context.Context, id string) (*models.GroupDetails, error) {
	uid, err := common.ParseID(id)
	if err != nil {
		return nil, err
	}
	g, err := s.repos.Groups().GetByID(ctx, uid)
	if err != nil {
		return nil, err
	}

	members := []models.Account{}
	if len(g.Accounts) > 0 {
		members, err = s.repos.Accounts().GetByIDs(ctx, g.Accounts)
		if err != nil {
			return nil, fmt.Errorf("load members: %w", err)
		}
	}
	slices.SortFunc(members, func(a, b models.Account) int {
		if c := cmp.Compare(a.LoginKey, b.LoginKey); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})

	return &models.GroupDetails{
		ID:         g.ID,
		Name:       g.Name,
		Code:       g.Code,
		Accounts:   members,
		Creation:   g.Creation,
		LastUpdate: g.LastUpdate,
	}, nil
}

// Remove deletes the group and drops it from every member account. It
// returns the code the group had.
func (s *GroupService) Remove(ctx context.Context, id string) (string, error) {
	uid, err := common.ParseID(id)
	if err != nil {
		return "", err
	}

	var (
		code    string
		cleaned int64
	)
	err = s.repos.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		var err error
		if code, err = r.Groups.Delete(ctx, uid); err != nil {
			return err
		}
		cleaned, err = r.Accounts.RemoveGroupEverywhere(ctx, uid, now())
		return err
	})
	if err != nil {
		return "", err
	}

	s.log.Info(ctx, "group removed", "group_id", id, "code", code, "accounts", cleaned)
	s.metrics.GroupRemoved(cleaned)
	return code, nil
}

// Query returns one page of group listings.
func (s *GroupService) Query(ctx context.Context, q Query) ([]models.GroupListing, error) {
	c, err := s.schema.Compile(q.Filter, q.OrderBy)
	if err != nil {
		return nil, err
	}
	return s.repos.Groups().Query(ctx, c, query.PageSize, query.Offset(q.Page))
}
