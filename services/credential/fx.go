package credential

import (
	"fmt"

	"pagewatch/pkg/config"

	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("credential",
	fx.Provide(NewProvider),
)

type providerParams struct {
	fx.In

	Config *config.Config
	DB     *gorm.DB
	Vault  *vault.Client `optional:"true"`
}

func NewProvider(p providerParams) (Provider, error) {
	switch p.Config.Credentials.Backend {
	case "vault":
		if p.Vault == nil {
			return nil, fmt.Errorf("credential backend vault needs a vault client")
		}
		return NewVaultProvider(p.Vault, p.Config.Credentials.VaultMount, p.Config.Credentials.VaultPath), nil
	default:
		return NewGormProvider(p.DB, p.Config.SecretKey), nil
	}
}
