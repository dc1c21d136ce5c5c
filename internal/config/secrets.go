package config

import (
	"context"
	"fmt"

	"floorbot/internal/paramstore"
)

func (c *Config) secretFields() map[string]*string {
	return map[string]*string{
		"whatsapp.appSecret":        &c.WhatsApp.AppSecret,
		"whatsapp.accessToken":      &c.WhatsApp.AccessToken,
		"whatsapp.verifyToken":      &c.WhatsApp.VerifyToken,
		"notify.telegram.token":     &c.Notify.Telegram.Token,
		"server.admin.passwordHash": &c.Server.Admin.PasswordHash,
	}
}

// HasSecretReferences reports whether any secret is an "ssm:" reference.
func HasSecretReferences(cfg *Config) bool {
	for _, p := range cfg.secretFields() {
		if paramstore.IsReference(*p) {
			return true
		}
	}
	return false
}

// ResolveSecrets replaces every "ssm:<name>" secret with the parameter's value.
func ResolveSecrets(ctx context.Context, cfg *Config, g paramstore.Getter) error {
	for path, p := range cfg.secretFields() {
		v, err := paramstore.Resolve(ctx, g, *p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", path, err)
		}
		*p = v
	}
	return nil
}
