package secretmanager

import (
	"fmt"

	"pagewatch/pkg/config"

	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

// ProvideVault builds a client from the standard VAULT_* environment, with
// VAULT.ADDR / VAULT.TOKEN from config taking precedence when set.
func ProvideVault(cfg *config.Config) (*vault.Client, error) {
	opts := []vault.ClientOption{vault.WithEnvironment()}
	if cfg.Vault.Addr != "" {
		opts = append(opts, vault.WithAddress(cfg.Vault.Addr))
	}

	client, err := vault.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}

	if cfg.Vault.Token != "" {
		if err := client.SetToken(cfg.Vault.Token); err != nil {
			return nil, fmt.Errorf("set vault token: %w", err)
		}
	}

	zap.L().Info("[Vault] client initialized", zap.String("addr", cfg.Vault.Addr))
	return client, nil
}
