package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rentwise/portal/internal/invalidation"
	"github.com/rentwise/portal/internal/models"
	"github.com/rentwise/portal/internal/subscriptions"
	"github.com/rentwise/portal/internal/users"
	"github.com/stretchr/testify/require"
)

type harness struct {
	app     *app
	channel *invalidation.LocalChannel
	out     *bytes.Buffer
}

func newHarness() *harness {
	ch := invalidation.NewLocalChannel()
	return &harness{
		app: &app{
			subs:  subscriptions.NewService(subscriptions.NewMemoryRepository(), ch),
			users: users.NewService(users.NewMemoryUserRepository()),
		},
		channel: ch,
		out:     &bytes.Buffer{},
	}
}

func (h *harness) run(t *testing.T, args ...string) error {
	t.Helper()
	h.out.Reset()
	cmd := newRootCmd(func(context.Context) (*app, error) { return h.app, nil }, h.out)
	cmd.SetArgs(args)
	cmd.SetErr(&bytes.Buffer{})
	return cmd.Execute()
}

func TestGrantAnnouncesChange(t *testing.T) {
	h := newHarness()
	var notified []string
	sub, err := h.channel.Subscribe(context.Background(), "u1", func(id string) { notified = append(notified, id) })
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, h.run(t, "subscription", "grant", "u1", "--plan", "enterprise", "--json"))

	var list []*models.Subscription
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &list))
	require.Len(t, list, 1)
	require.Equal(t, models.PlanEnterprise, list[0].PlanType)
	require.True(t, list[0].HasAccessPermission)
	require.Equal(t, []string{"u1"}, notified)

	require.NoError(t, h.run(t, "sub", "revoke", "u1"))
	require.Contains(t, h.out.String(), "u1")
	require.Len(t, notified, 2)

	s, err := h.app.subs.GetByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, s.HasAccessPermission)
	require.Equal(t, models.StatusActive, s.Status)
}

func TestGrantRejectsUnknownPlan(t *testing.T) {
	h := newHarness()
	require.Error(t, h.run(t, "subscription", "grant", "u1", "--plan", "gold"))
}

func TestShowMissingSubscription(t *testing.T) {
	h := newHarness()
	require.Error(t, h.run(t, "subscription", "show", "nobody"))
}

func TestListAndDelete(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.run(t, "subscription", "grant", "u1"))
	require.NoError(t, h.run(t, "subscription", "grant", "u2", "--status", "trialing"))
	require.NoError(t, h.run(t, "subscription", "list"))
	require.Contains(t, h.out.String(), "u1")
	require.Contains(t, h.out.String(), "trialing")

	require.NoError(t, h.run(t, "subscription", "delete", "u1"))
	list, err := h.app.subs.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestAdminSet(t *testing.T) {
	h := newHarness()
	require.Error(t, h.run(t, "admin", "set", "u1"))

	_, err := h.app.users.UpsertFromClaims(context.Background(), map[string]interface{}{"sub": "u1"})
	require.NoError(t, err)
	require.NoError(t, h.run(t, "admin", "set", "u1"))
	u, err := h.app.users.GetBySub(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, u.MetadataAdmin())

	require.NoError(t, h.run(t, "admin", "set", "u1", "--revoke"))
	u, err = h.app.users.GetBySub(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, u.MetadataAdmin())
}

func TestPlans(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.run(t, "plans"))
	require.Contains(t, h.out.String(), "Enterprise")
}
