// Package settings resolves the payment integration switches and the single
// active gateway credential for one operation.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/orders"
)

var (
	ErrSettingsUnavailable = errors.New("gateway settings unavailable")
	ErrIntegrationDisabled = errors.New("payment integration disabled")
	ErrMethodDisabled      = errors.New("payment method disabled")
)

type Environment string

const (
	Sandbox    Environment = "sandbox"
	Production Environment = "production"
)

// Row is the gateway_settings table; edited by the admin back-office only.
type Row struct {
	ID                 uint      `gorm:"primaryKey"`
	IntegrationEnabled bool      `gorm:"not null;default:false"`
	PixEnabled         bool      `gorm:"not null;default:false"`
	CardEnabled        bool      `gorm:"not null;default:false"`
	Sandbox            bool      `gorm:"not null;default:true"`
	APIKeyProduction   string    `gorm:"type:varchar(255)"`
	APIKeySandbox      string    `gorm:"type:varchar(255)"`
	UpdatedAt          time.Time `gorm:"precision:3"`
}

func (Row) TableName() string { return "gateway_settings" }

// Credential is the one environment the gateway client talks to.
type Credential struct {
	Environment Environment
	BaseURL     string
	APIKey      string
}

func (c Credential) String() string {
	return fmt.Sprintf("%s(%s key=%s)", c.Environment, c.BaseURL, mask(c.APIKey))
}

// MaskedKey keeps only the last four characters of the API key.
func (c Credential) MaskedKey() string { return mask(c.APIKey) }

func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("environment", string(c.Environment)),
		slog.String("base_url", c.BaseURL),
		slog.String("api_key", mask(c.APIKey)),
	)
}

type Settings struct {
	IntegrationEnabled bool
	PixEnabled         bool
	CardEnabled        bool
	Credential         Credential
}

// Require is the precondition every gateway-bound operation checks first.
func (s Settings) Require(m orders.Method) error {
	if !s.IntegrationEnabled {
		return ErrIntegrationDisabled
	}
	switch m {
	case orders.MethodPix:
		if !s.PixEnabled {
			return fmt.Errorf("%w: pix", ErrMethodDisabled)
		}
	case orders.MethodCard:
		if !s.CardEnabled {
			return fmt.Errorf("%w: card", ErrMethodDisabled)
		}
	default:
		return fmt.Errorf("%w: %s", ErrMethodDisabled, m)
	}
	return nil
}

// Methods lists the methods a buyer can pick right now.
func (s Settings) Methods() []orders.Method {
	if !s.IntegrationEnabled {
		return nil
	}
	var out []orders.Method
	if s.PixEnabled {
		out = append(out, orders.MethodPix)
	}
	if s.CardEnabled {
		out = append(out, orders.MethodCard)
	}
	return out
}

type Endpoints struct {
	Production string
	Sandbox    string
}

type Provider struct {
	db        *gorm.DB
	endpoints Endpoints
}

func NewProvider(db *gorm.DB, ep Endpoints) *Provider {
	return &Provider{db: db, endpoints: ep}
}

// Load reads the settings row. A disabled integration is returned as data,
// not as an error; callers gate on Require.
func (p *Provider) Load(ctx context.Context) (Settings, error) {
	var row Row
	err := p.db.WithContext(ctx).Order("id ASC").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Settings{}, fmt.Errorf("%w: no settings row", ErrSettingsUnavailable)
		}
		return Settings{}, fmt.Errorf("%w: %v", ErrSettingsUnavailable, err)
	}
	return p.resolve(row)
}

func (p *Provider) resolve(row Row) (Settings, error) {
	s := Settings{
		IntegrationEnabled: row.IntegrationEnabled,
		PixEnabled:         row.PixEnabled,
		CardEnabled:        row.CardEnabled,
	}
	if !row.IntegrationEnabled {
		return s, nil
	}

	cred := Credential{Environment: Production, BaseURL: p.endpoints.Production, APIKey: row.APIKeyProduction}
	if row.Sandbox {
		cred = Credential{Environment: Sandbox, BaseURL: p.endpoints.Sandbox, APIKey: row.APIKeySandbox}
	}
	cred.APIKey = strings.TrimSpace(cred.APIKey)
	if cred.APIKey == "" || cred.BaseURL == "" {
		return Settings{}, fmt.Errorf("%w: missing %s credential", ErrSettingsUnavailable, cred.Environment)
	}
	s.Credential = cred
	return s, nil
}

func mask(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
