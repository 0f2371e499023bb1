package services

import (
	"context"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/okaeri/internal/common"
	"github.com/dmitrijs2005/okaeri/internal/logging"
	"github.com/dmitrijs2005/okaeri/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// MembershipService keeps the two sides of a membership in step: the group's
// account list and the account's group list are always written together.
type MembershipService struct {
	repos   repomanager.RepositoryManager
	metrics Metrics
	log     logging.Logger
}

func NewMembershipService(repos repomanager.RepositoryManager, metrics Metrics, log logging.Logger) *MembershipService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &MembershipService{
		repos:   repos,
		metrics: metrics,
		log:     log.With("module", "membership"),
	}
}

func parsePair(accountID, groupID string) (uuid.UUID, uuid.UUID, error) {
	aid, err := common.ParseID(accountID)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	gid, err := common.ParseID(groupID)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return aid, gid, nil
}

// AddAccountToGroup makes the account a member of the group. Adding an
// existing member is a no-op apart from last_update.
func (s *MembershipService) AddAccountToGroup(ctx context.Context, accountID, groupID string) error {
	aid, gid, err := parsePair(accountID, groupID)
	if err != nil {
		return err
	}
	err = s.repos.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		ts := now()
		if err := r.Groups.AddAccount(ctx, gid, aid, ts); err != nil {
			return err
		}
		return r.Accounts.AddGroup(ctx, aid, gid, ts)
	})
	if err != nil {
		return err
	}
	s.log.Info(ctx, "membership added", "account_id", accountID, "group_id", groupID)
	s.metrics.MembershipChanged("add")
	return nil
}

// RemoveAccountFromGroup ends the membership. Removing a non-member is a
// no-op apart from last_update.
func (s *MembershipService) RemoveAccountFromGroup(ctx context.Context, accountID, groupID string) error {
	aid, gid, err := parsePair(accountID, groupID)
	if err != nil {
		return err
	}
	err = s.repos.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		ts := now()
		if err := r.Groups.RemoveAccount(ctx, gid, aid, ts); err != nil {
			return err
		}
		return r.Accounts.RemoveGroup(ctx, aid, gid, ts)
	})
	if err != nil {
		return err
	}
	s.log.Info(ctx, "membership removed", "account_id", accountID, "group_id", groupID)
	s.metrics.MembershipChanged("remove")
	return nil
}

// IsAccountInAnyGroup reports whether the account belongs to at least one
// group whose code is in codes. No codes means false.
func (s *MembershipService) IsAccountInAnyGroup(ctx context.Context, accountID string, codes []string) (bool, error) {
	aid, err := common.ParseID(accountID)
	if err != nil {
		return false, err
	}
	if len(codes) == 0 {
		return false, nil
	}
	return s.repos.Groups().HasMember(ctx, codes, aid)
}

// ReconcileReport summarises what a Reconcile pass changed.
type ReconcileReport struct {
	// GroupsFixed counts groups that referenced accounts which no longer exist.
	GroupsFixed int `json:"groups_fixed"`
	// AccountsFixed counts accounts whose group list disagreed with the groups.
	AccountsFixed int `json:"accounts_fixed"`
	// DanglingRefs counts the references dropped on the group side.
	DanglingRefs int `json:"dangling_refs"`
}

// Reconcile repairs memberships left inconsistent by writes made outside the
// coordinator. Group membership is authoritative: dangling account ids are
// dropped from groups, then every account's group list is rebuilt from the
// groups that name it. Everything runs in one transaction.
func (s *MembershipService) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var rep ReconcileReport
	err := s.repos.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		rep = ReconcileReport{}

		groupRefs, err := r.Groups.AccountRefs(ctx)
		if err != nil {
			return fmt.Errorf("load groups: %w", err)
		}
		accountRefs, err := r.Accounts.GroupRefs(ctx)
		if err != nil {
			return fmt.Errorf("load accounts: %w", err)
		}

		ts := now()
		want := make(map[uuid.UUID][]uuid.UUID, len(accountRefs))
		for _, gid := range sortedKeys(groupRefs) {
			members := groupRefs[gid]
			kept := make([]uuid.UUID, 0, len(members))
			for _, aid := range members {
				if _, ok := accountRefs[aid]; !ok || slices.Contains(kept, aid) {
					continue
				}
				kept = append(kept, aid)
				want[aid] = append(want[aid], gid)
			}
			if len(kept) != len(members) {
				rep.GroupsFixed++
				rep.DanglingRefs += len(members) - len(kept)
				if err := r.Groups.SetAccounts(ctx, gid, kept, ts); err != nil {
					return err
				}
			}
		}

		for _, aid := range sortedKeys(accountRefs) {
			if sameSet(accountRefs[aid], want[aid]) {
				continue
			}
			rep.AccountsFixed++
			groups := want[aid]
			if groups == nil {
				groups = []uuid.UUID{}
			}
			if err := r.Accounts.SetGroups(ctx, aid, groups, ts); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ReconcileReport{}, err
	}
	s.log.Info(ctx, "memberships reconciled",
		"groups_fixed", rep.GroupsFixed,
		"accounts_fixed", rep.AccountsFixed,
		"dangling_refs", rep.DanglingRefs)
	return rep, nil
}

func sortedKeys(m map[uuid.UUID][]uuid.UUID) []uuid.UUID {
	keys := make([]uuid.UUID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })
	return keys
}

func sameSet(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	for _, x := range a {
		if !slices.Contains(b, x) {
			return false
		}
	}
	for _, x := range b {
		if !slices.Contains(a, x) {
			return false
		}
	}
	return true
}
