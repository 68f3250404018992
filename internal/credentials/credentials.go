// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package credentials supplies secrets to query backends: bearer tokens per
// cluster and API keys per Application Insights app. How the secrets were
// obtained is outside its concern; `kqlnb login` stores them in the keychain.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	kerrors "kqlnb/cli/internal/errors"
	"kqlnb/cli/internal/keychain"
)

// EnvAccessToken overrides every stored cluster token when set.
const EnvAccessToken = "KQLNB_ACCESS_TOKEN"

// Secrets is a key/value secret store such as *keychain.Manager.
type Secrets interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// AppInsightsSecrets are the credentials of one Application Insights app.
type AppInsightsSecrets struct {
	AppID  string `json:"appId"`
	AppKey string `json:"appKey"`
}

// Provider reads and writes backend credentials.
type Provider struct {
	secrets Secrets
	getenv  func(string) string
}

// New creates a Provider over secrets.
func New(secrets Secrets) *Provider {
	return &Provider{secrets: secrets, getenv: os.Getenv}
}

func tokenKey(cluster string) string {
	return "token:" + strings.ToLower(strings.TrimRight(cluster, "/"))
}

func appInsightsKey(appID string) string {
	return "appinsights:" + appID
}

// Token returns the bearer token for cluster.
func (p *Provider) Token(_ context.Context, cluster string) (string, error) {
	if v := p.getenv(EnvAccessToken); v != "" {
		return v, nil
	}
	v, err := p.secrets.Get(tokenKey(cluster))
	if errors.Is(err, keychain.ErrNotFound) {
		return "", kerrors.New(kerrors.CredentialsMissing, fmt.Sprintf("no token for %s (run: kqlnb login %s)", cluster, cluster))
	}
	if err != nil {
		return "", fmt.Errorf("read token for %s: %w", cluster, err)
	}
	return v, nil
}

// OptionalToken is Token that reports a missing token as "" without error.
func (p *Provider) OptionalToken(ctx context.Context, cluster string) (string, error) {
	v, err := p.Token(ctx, cluster)
	if kerrors.Has(err, kerrors.CredentialsMissing) {
		return "", nil
	}
	return v, err
}

// SaveToken stores token for cluster.
func (p *Provider) SaveToken(cluster, token string) error {
	return p.secrets.Set(tokenKey(cluster), token)
}

// DeleteToken forgets the token for cluster.
func (p *Provider) DeleteToken(cluster string) error {
	return p.secrets.Delete(tokenKey(cluster))
}

// AppInsights returns the stored secrets for appID.
func (p *Provider) AppInsights(appID string) (AppInsightsSecrets, error) {
	raw, err := p.secrets.Get(appInsightsKey(appID))
	if errors.Is(err, keychain.ErrNotFound) {
		return AppInsightsSecrets{}, kerrors.New(kerrors.CredentialsMissing, "no API key for app "+appID)
	}
	if err != nil {
		return AppInsightsSecrets{}, fmt.Errorf("read app insights secrets: %w", err)
	}
	var s AppInsightsSecrets
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return AppInsightsSecrets{}, fmt.Errorf("decode app insights secrets: %w", err)
	}
	return s, nil
}

// SaveAppInsights stores the secrets for an app.
func (p *Provider) SaveAppInsights(s AppInsightsSecrets) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return p.secrets.Set(appInsightsKey(s.AppID), string(b))
}

// DeleteAppInsights forgets the secrets for appID.
func (p *Provider) DeleteAppInsights(appID string) error {
	return p.secrets.Delete(appInsightsKey(appID))
}
