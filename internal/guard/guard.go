// Package guard computes access decisions for protected views.
//
// Evaluation is a pure read of the session source, the per-view override
// and the entitlement resolver. The result is a Decision value; turning it
// into an HTTP response is the job of the middleware.
package guard

import (
	"context"
	"net/url"
	"time"

	"github.com/rentwise/portal/internal/identity"
	"github.com/rentwise/portal/internal/models"
	"github.com/rentwise/portal/internal/roles"
	"github.com/rentwise/portal/pkg/logger"
)

type Kind string

const (
	Render           Kind = "render"
	Wait             Kind = "wait"
	RedirectLogin    Kind = "redirect_login"
	RedirectUpgrade  Kind = "redirect_upgrade"
	RedirectRoleHome Kind = "redirect_role_home"
)

type State string

const (
	StateLoading       State = "loading"
	StateAnonymous     State = "unauthenticated"
	StateNoEntitlement State = "authenticated_no_entitlement"
	StateEntitled      State = "authenticated_entitled"
	StateAdmin         State = "authenticated_admin"
	// StateAuthenticated is a pass through a policy without entitlement checks.
	StateAuthenticated State = "authenticated"
)

// Policy selects which optional steps of the evaluation run.
type Policy struct {
	Name               string
	RequireEntitlement bool
	RedirectAdmins     bool
}

var (
	Basic      = Policy{Name: "basic"}
	Membership = Policy{Name: "membership", RequireEntitlement: true}
	EndUser    = Policy{Name: "end_user", RedirectAdmins: true}
	// Elevated has no checks of its own yet; admin routes add theirs.
	Elevated = Policy{Name: "elevated"}
)

// Subject is who the decision was made for.
type Subject struct {
	UserID    string
	Role      roles.Role
	Synthetic bool
	User      *models.User
}

type Decision struct {
	Kind     Kind
	State    State
	Target   string
	ReturnTo string
	Subject  *Subject
}

func (d Decision) Allowed() bool { return d.Kind == Render }

type SessionSource interface {
	CurrentSession(ctx context.Context) (identity.Session, error)
}

type RoleResolver interface {
	Resolve(ctx context.Context, u *models.User) (roles.Role, error)
}

type Entitlements interface {
	HasAccessPermission(ctx context.Context, userID string) (bool, error)
}

// Override is the per-view developer override.
type Override interface {
	IsEnabled() bool
	CurrentRole() roles.Role
}

type Input struct {
	// Path is the originating path carried to the login page.
	Path     string
	Override Override
}

type Config struct {
	Production     bool
	OverrideUserID string
	FetchTimeout   time.Duration
	LoginPath      string
	UpgradePath    string
	AdminHome      string
}

type Evaluator struct {
	sessions SessionSource
	roles    RoleResolver
	ents     Entitlements
	cfg      Config
}

func NewEvaluator(s SessionSource, r RoleResolver, e Entitlements, cfg Config) *Evaluator {
	if cfg.OverrideUserID == "" {
		cfg.OverrideUserID = "override-user"
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.UpgradePath == "" {
		cfg.UpgradePath = "/pricing"
	}
	if cfg.AdminHome == "" {
		cfg.AdminHome = "/admin"
	}
	return &Evaluator{sessions: s, roles: r, ents: e, cfg: cfg}
}

// OverrideUserID is the user id of the synthetic override subject.
func (e *Evaluator) OverrideUserID() string { return e.cfg.OverrideUserID }

// Evaluate runs the shared evaluation for policy p. Identity is always
// resolved before the override is consulted, and the override is only
// consulted when there is no identity.
func (e *Evaluator) Evaluate(ctx context.Context, p Policy, in Input) Decision {
	if e.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.FetchTimeout)
		defer cancel()
	}
	log := logger.With("guard").With().Str("policy", p.Name).Str("path", in.Path).Logger()

	sess, err := e.sessions.CurrentSession(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("session lookup failed")
		return e.login(in)
	}
	if sess.Loading {
		return Decision{Kind: Wait, State: StateLoading}
	}

	var subj Subject
	if sess.User == nil {
		if e.cfg.Production || in.Override == nil || !in.Override.IsEnabled() {
			return e.login(in)
		}
		subj = Subject{UserID: e.cfg.OverrideUserID, Role: in.Override.CurrentRole(), Synthetic: true}
	} else {
		role, err := e.roles.Resolve(ctx, sess.User)
		if err != nil {
			log.Warn().Err(err).Str("sub", sess.User.Sub).Msg("role check failed")
			return e.login(in)
		}
		subj = Subject{UserID: sess.User.Sub, Role: role, User: sess.User}
	}

	state := StateAuthenticated
	if p.RequireEntitlement {
		ok, err := e.ents.HasAccessPermission(ctx, subj.UserID)
		if err != nil {
			log.Warn().Err(err).Str("user", subj.UserID).Msg("entitlement lookup failed")
			ok = false
		}
		if !ok {
			return Decision{Kind: RedirectUpgrade, State: StateNoEntitlement, Target: e.cfg.UpgradePath, Subject: &subj}
		}
		state = StateEntitled
	}

	if p.RedirectAdmins && subj.Role == roles.Administrator {
		return Decision{Kind: RedirectRoleHome, State: StateAdmin, Target: e.cfg.AdminHome, Subject: &subj}
	}
	return Decision{Kind: Render, State: state, Subject: &subj}
}

func (e *Evaluator) login(in Input) Decision {
	target := e.cfg.LoginPath
	if in.Path != "" {
		target += "?redirect=" + url.QueryEscape(in.Path)
	}
	return Decision{Kind: RedirectLogin, State: StateAnonymous, Target: target, ReturnTo: in.Path}
}
