package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/okaeri/internal/logging"
	"github.com/dmitrijs2005/okaeri/internal/server/config"
	"github.com/dmitrijs2005/okaeri/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/okaeri/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeTracker struct {
	*repomanager.InMemoryRepositoryManager
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.EndpointAddrGRPC = "127.0.0.1:0"
	c.EndpointAddrHTTP = "127.0.0.1:0"
	c.LogLevel = "error"
	return c
}

func withRepos(t *testing.T, repos repomanager.RepositoryManager, err error) {
	t.Helper()
	orig := openRepositories
	t.Cleanup(func() { openRepositories = orig })
	openRepositories = func(context.Context, string) (repomanager.RepositoryManager, error) {
		return repos, err
	}
}

func TestApp_RunStopsOnCancelAndCloses(t *testing.T) {
	repos := &closeTracker{InMemoryRepositoryManager: repomanager.NewInMemoryRepositoryManager()}
	withRepos(t, repos, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := NewApp(ctx, testConfig())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("app exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.True(t, repos.closed)
}

func TestApp_RunFailsWhenAListenerFails(t *testing.T) {
	repos := &closeTracker{InMemoryRepositoryManager: repomanager.NewInMemoryRepositoryManager()}
	withRepos(t, repos, nil)

	cfg := testConfig()
	cfg.EndpointAddrHTTP = "127.0.0.1:99999"

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.True(t, repos.closed)
}

func TestNewApp_DatabaseError(t *testing.T) {
	withRepos(t, nil, errors.New("no route to host"))

	_, err := NewApp(context.Background(), testConfig())
	assert.ErrorContains(t, err, "db init error")
}

func TestNewApp_BadWebhookClosesRepos(t *testing.T) {
	repos := &closeTracker{InMemoryRepositoryManager: repomanager.NewInMemoryRepositoryManager()}
	withRepos(t, repos, nil)

	cfg := testConfig()
	cfg.WebhookOnCreateAccount = "ftp://hooks.example.com"

	_, err := NewApp(context.Background(), cfg)
	assert.ErrorContains(t, err, "unsupported scheme")
	assert.True(t, repos.closed)
}

func TestServices(t *testing.T) {
	cfg := testConfig()
	accounts, groups, membership, err := Services(cfg, repomanager.NewInMemoryRepositoryManager(), nil, nil, logging.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	aid, err := accounts.Create(ctx, services.NewAccount{LoginKey: "test-a", Password: "password1"})
	require.NoError(t, err)
	gid, err := groups.Create(ctx, services.NewGroup{Name: "Admins", Code: "admins"})
	require.NoError(t, err)
	require.NoError(t, membership.AddAccountToGroup(ctx, aid.String(), gid.String()))

	ok, err := membership.IsAccountInAnyGroup(ctx, aid.String(), []string{"admins"})
	require.NoError(t, err)
	assert.True(t, ok)

	cfg.PasswordIterations = 1
	_, _, _, err = Services(cfg, repomanager.NewInMemoryRepositoryManager(), nil, nil, logging.Nop())
	assert.Error(t, err)
}
