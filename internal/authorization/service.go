package authorization

import (
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrForbidden   = errors.New("forbidden")
	ErrMissingRole = errors.New("missing_role")
)

type Authorizer interface {
	Authorize(role, object, action string) error
}

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	enforcer *casbin.SyncedEnforcer
	log      *zap.Logger
}

// NewService loads policies from the casbin_rule table through the gorm
// adapter and seeds the default role set on first start.
func NewService(p ServiceParam) (*Service, error) {
	adapter, err := gormadapter.NewAdapterByDB(p.DB)
	if err != nil {
		return nil, fmt.Errorf("authorization adapter: %w", err)
	}
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("authorization model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("authorization enforcer: %w", err)
	}

	svc := &Service{enforcer: enforcer, log: p.Log.Named("authorization")}
	if err := svc.seedDefaults(); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Service) seedDefaults() error {
	policies, err := s.enforcer.GetPolicy()
	if err != nil {
		return err
	}
	if len(policies) > 0 {
		return nil
	}

	if _, err := s.enforcer.AddPolicies(defaultPolicies); err != nil {
		return fmt.Errorf("seed policies: %w", err)
	}
	if _, err := s.enforcer.AddGroupingPolicies(defaultGroupings); err != nil {
		return fmt.Errorf("seed role groupings: %w", err)
	}
	s.log.Info("seeded default authorization policies", zap.Int("policies", len(defaultPolicies)))
	return nil
}

func (s *Service) Authorize(role, object, action string) error {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return ErrMissingRole
	}
	ok, err := s.enforcer.Enforce(role, object, action)
	if err != nil {
		return fmt.Errorf("authorize %s %s/%s: %w", role, object, action, err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// Grant adds a policy for role, persisting it through the adapter.
func (s *Service) Grant(role, object, action string) error {
	_, err := s.enforcer.AddPolicy(strings.ToLower(role), object, action)
	return err
}
