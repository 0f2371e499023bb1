package services

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/okaeri/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestGroupService_CreateAndRead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	gid := h.group(t, "admins")
	b := h.account(t, "test-b")
	a := h.account(t, "test-a")
	require.NoError(t, h.membership.AddAccountToGroup(ctx, b, gid))
	require.NoError(t, h.membership.AddAccountToGroup(ctx, a, gid))

	g, err := h.groups.Read(ctx, gid)
	require.NoError(t, err)
	assert.Equal(t, "admins", g.Code)
	assert.Equal(t, "Group admins", g.Name)
	require.Len(t, g.Accounts, 2)
	assert.Equal(t, "test-a", g.Accounts[0].LoginKey)
	assert.Equal(t, "test-b", g.Accounts[1].LoginKey)
	assert.Empty(t, g.Accounts[0].Hash)
}

func TestGroupService_Create_Errors(t *testing.T) {
	h := newHarness(t)
	h.group(t, "admins")

	_, err := h.groups.Create(context.Background(), NewGroup{Name: "Again", Code: "admins"})
	var ce *common.ConflictError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, "code", ce.Field)

	_, err = h.groups.Create(context.Background(), NewGroup{Code: "x"})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestGroupService_Update(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	gid := h.group(t, "admins")
	h.group(t, "users")

	require.NoError(t, h.groups.Update(ctx, gid, GroupPatch{Name: ptr("Operators")}))
	g, err := h.groups.Read(ctx, gid)
	require.NoError(t, err)
	assert.Equal(t, "Operators", g.Name)
	assert.Equal(t, "admins", g.Code)
	assert.NotNil(t, g.LastUpdate)

	err = h.groups.Update(ctx, gid, GroupPatch{Code: ptr("users")})
	assert.ErrorIs(t, err, common.ErrConflict)

	err = h.groups.Update(ctx, gid, GroupPatch{Name: ptr("")})
	assert.ErrorIs(t, err, common.ErrValidation)

	err = h.groups.Update(ctx, "0190f1a4-0000-7000-8000-000000000000", GroupPatch{Name: ptr("x")})
	assert.ErrorIs(t, err, common.ErrUnknown)
}

func TestGroupService_Remove_CleansMembers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	gid := h.group(t, "admins")
	keep := h.group(t, "users")
	a := h.account(t, "test-a")
	require.NoError(t, h.membership.AddAccountToGroup(ctx, a, gid))
	require.NoError(t, h.membership.AddAccountToGroup(ctx, a, keep))

	code, err := h.groups.Remove(ctx, gid)
	require.NoError(t, err)
	assert.Equal(t, "admins", code)

	_, err = h.groups.Read(ctx, gid)
	assert.ErrorIs(t, err, common.ErrUnknown)

	acc, err := h.accounts.Read(ctx, a)
	require.NoError(t, err)
	require.Len(t, acc.Groups, 1)
	assert.Equal(t, keep, acc.Groups[0].String())
	assert.Equal(t, []int64{1}, h.metrics.cleaned)

	_, err = h.groups.Remove(ctx, gid)
	assert.ErrorIs(t, err, common.ErrUnknown)
}

func TestGroupService_Query(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	gid := h.group(t, "b-team")
	h.group(t, "a-team")
	h.group(t, "other")
	require.NoError(t, h.membership.AddAccountToGroup(ctx, h.account(t, "test-a"), gid))

	list, err := h.groups.Query(ctx, Query{Filter: `code = "*-team"`, OrderBy: "code"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b-team", list[0].Code, "created first, so its id sorts first")
	assert.Equal(t, 1, list[0].Members)
	assert.Equal(t, "a-team", list[1].Code)
	assert.Equal(t, 0, list[1].Members)
}
