package services

import (
	"context"
	"sync"
	"testing"

	"github.com/dmitrijs2005/okaeri/internal/cryptox"
	"github.com/dmitrijs2005/okaeri/internal/logging"
	"github.com/dmitrijs2005/okaeri/internal/server/models"
	"github.com/dmitrijs2005/okaeri/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu      sync.Mutex
	created []models.Account
}

func (f *fakeNotifier) AccountCreated(_ context.Context, a models.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, a)
}

type fakeMetrics struct {
	mu          sync.Mutex
	created     int
	checksOK    int
	checksFail  int
	memberships map[string]int
	cleaned     []int64
}

func (f *fakeMetrics) AccountCreated() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
}

func (f *fakeMetrics) CredentialCheck(ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ok {
		f.checksOK++
	} else {
		f.checksFail++
	}
}

func (f *fakeMetrics) MembershipChanged(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.memberships == nil {
		f.memberships = map[string]int{}
	}
	f.memberships[op]++
}

func (f *fakeMetrics) GroupRemoved(n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, n)
}

type harness struct {
	repos      *repomanager.InMemoryRepositoryManager
	accounts   *AccountService
	groups     *GroupService
	membership *MembershipService
	notifier   *fakeNotifier
	metrics    *fakeMetrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repos:    repomanager.NewInMemoryRepositoryManager(),
		notifier: &fakeNotifier{},
		metrics:  &fakeMetrics{},
	}
	hasher, err := cryptox.NewHasher(cryptox.MinIterations, 4)
	require.NoError(t, err)

	h.accounts, err = NewAccountService(h.repos, hasher, AccountOptions{
		LoginKeyField: "name",
		ProfileFields: []string{"email", "nickname"},
		Notifier:      h.notifier,
		Metrics:       h.metrics,
	}, logging.Nop())
	require.NoError(t, err)

	h.groups, err = NewGroupService(h.repos, h.metrics, logging.Nop())
	require.NoError(t, err)

	h.membership = NewMembershipService(h.repos, h.metrics, logging.Nop())
	return h
}

func (h *harness) account(t *testing.T, name string) string {
	t.Helper()
	id, err := h.accounts.Create(context.Background(), NewAccount{LoginKey: name, Password: "password1"})
	require.NoError(t, err)
	return id.String()
}

func (h *harness) group(t *testing.T, code string) string {
	t.Helper()
	id, err := h.groups.Create(context.Background(), NewGroup{Name: "Group " + code, Code: code})
	require.NoError(t, err)
	return id.String()
}
