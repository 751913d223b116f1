// Command portalctl manages subscriptions and administrator flags directly
// against the portal stores. Every subscription write is announced on the
// invalidation channel so open views re-check membership.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/redis/go-redis/v9"
	"github.com/rentwise/portal/internal/config"
	"github.com/rentwise/portal/internal/database"
	"github.com/rentwise/portal/internal/entitlements"
	"github.com/rentwise/portal/internal/invalidation"
	"github.com/rentwise/portal/internal/models"
	"github.com/rentwise/portal/internal/subscriptions"
	"github.com/rentwise/portal/internal/users"
	"github.com/rentwise/portal/pkg/logger"
	"github.com/spf13/cobra"
)

// app is what the commands operate on.
type app struct {
	subs  *subscriptions.Service
	users *users.Service
	close func()
}

type opener func(ctx context.Context) (*app, error)

// openStores connects to MongoDB (required) and Redis (optional, for
// invalidation announcements).
func openStores(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.MongoDB.URI == "" {
		return nil, fmt.Errorf("MONGODB_URI is required")
	}
	client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
	if err != nil {
		return nil, err
	}
	closers := []func(){func() { _ = client.Disconnect(context.Background()) }}
	db := client.Database(cfg.MongoDB.Database)

	subRepo, err := subscriptions.NewMongoRepository(ctx, db.Collection("subscriptions"))
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	var ch invalidation.Channel = invalidation.NewLocalChannel()
	if cfg.Redis.Host != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("redis unreachable, open views will only refresh after the cache TTL: %v", err)
			_ = rdb.Close()
		} else {
			ch = invalidation.NewRedisChannel(rdb, "")
			closers = append(closers, func() { _ = rdb.Close() })
		}
	} else {
		logger.Warn("REDIS_HOST not set; changes are not announced to running portals")
	}

	return &app{
		subs:  subscriptions.NewService(subRepo, ch),
		users: users.NewService(users.NewMongoUserRepository(db.Collection("users"))),
		close: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}

func main() {
	logger.Init(envOr("LOG_LEVEL", "warn"))
	if err := newRootCmd(openStores, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(open opener, out io.Writer) *cobra.Command {
	var asJSON bool
	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Operator CLI for portal subscriptions and administrators",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON instead of text")

	p := &printer{out: out, json: &asJSON}

	// with opens the stores for one command run.
	with := func(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := open(ctx)
			if err != nil {
				return err
			}
			if a.close != nil {
				defer a.close()
			}
			return fn(ctx, a, args)
		}
	}

	root.AddCommand(subscriptionCmd(with, p), adminCmd(with, p), plansCmd(p))
	return root
}

type runner func(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error

func subscriptionCmd(with runner, p *printer) *cobra.Command {
	cmd := &cobra.Command{Use: "subscription", Aliases: []string{"sub"}, Short: "Inspect and change subscriptions"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every subscription",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, a *app, _ []string) error {
			list, err := a.subs.List(ctx)
			if err != nil {
				return err
			}
			return p.subscriptions(list)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <user-id>",
		Short: "Show one user's subscription",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(ctx context.Context, a *app, args []string) error {
			s, err := a.subs.GetByUser(ctx, args[0])
			if err != nil {
				return err
			}
			if s == nil {
				return fmt.Errorf("no subscription for %s", args[0])
			}
			return p.subscriptions([]*models.Subscription{s})
		}),
	})

	var plan, status string
	grant := &cobra.Command{
		Use:   "grant <user-id>",
		Short: "Create or update a subscription and grant access",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(ctx context.Context, a *app, args []string) error {
			pt, st, on := models.PlanType(plan), models.SubscriptionStatus(status), true
			s, err := a.subs.Apply(ctx, args[0], subscriptions.Change{PlanType: &pt, Status: &st, HasAccessPermission: &on})
			if err != nil {
				return err
			}
			return p.subscriptions([]*models.Subscription{s})
		}),
	}
	grant.Flags().StringVar(&plan, "plan", string(models.PlanClient), "plan type (client|discount|enterprise)")
	grant.Flags().StringVar(&status, "status", string(models.StatusActive), "subscription status (active|trialing)")
	cmd.AddCommand(grant)

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <user-id>",
		Short: "Clear the access permission, keeping the billing status",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(ctx context.Context, a *app, args []string) error {
			s, err := a.subs.Revoke(ctx, args[0])
			if err != nil {
				return err
			}
			return p.subscriptions([]*models.Subscription{s})
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete the subscription row",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(ctx context.Context, a *app, args []string) error {
			if err := a.subs.Delete(ctx, args[0]); err != nil {
				return err
			}
			return p.line("deleted subscription of %s", args[0])
		}),
	})
	return cmd
}

func adminCmd(with runner, p *printer) *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Manage the stored administrator flag"}
	var off bool
	set := &cobra.Command{
		Use:   "set <sub>",
		Short: "Mark a user as administrator (or clear it with --revoke)",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(ctx context.Context, a *app, args []string) error {
			if err := a.users.SetAdminFlag(ctx, args[0], !off); err != nil {
				return err
			}
			return p.line("%s is_admin=%t", args[0], !off)
		}),
	}
	set.Flags().BoolVar(&off, "revoke", false, "clear the flag instead of setting it")
	cmd.AddCommand(set)
	return cmd
}

func plansCmd(p *printer) *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "Print the plan summaries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			plans := entitlements.Plans()
			if *p.json {
				return p.encode(plans)
			}
			for _, pl := range plans {
				if err := p.line("%-10s %-10s %s", pl.Type, pl.Name, strings.Join(pl.Features, "; ")); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

type printer struct {
	out  io.Writer
	json *bool
}

func (p *printer) encode(v interface{}) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) line(format string, args ...interface{}) error {
	_, err := fmt.Fprintf(p.out, format+"\n", args...)
	return err
}

func (p *printer) subscriptions(list []*models.Subscription) error {
	if *p.json {
		return p.encode(list)
	}
	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tPLAN\tSTATUS\tACCESS\tHAS_PERMISSION")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%t\n", s.UserID, s.PlanType, s.Status, entitlements.HasAccess(s), s.HasAccessPermission)
	}
	return tw.Flush()
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
