package credential

import (
	"context"
	"net/http"
	"path"

	"pagewatch/pkg/errutil"

	vault "github.com/hashicorp/vault-client-go"
	"github.com/hashicorp/vault-client-go/schema"
)

const vaultKeyField = "api_key"

type vaultProvider struct {
	client *vault.Client
	mount  string
	prefix string
}

// NewVaultProvider stores keys in a KV v2 engine at <mount>/<prefix>/<provider>.
func NewVaultProvider(client *vault.Client, mount, prefix string) Provider {
	return &vaultProvider{client: client, mount: mount, prefix: prefix}
}

func (p *vaultProvider) secretPath(provider string) string {
	return path.Join(p.prefix, provider)
}

func (p *vaultProvider) Get(ctx context.Context, provider string) (string, error) {
	resp, err := p.client.Secrets.KvV2Read(ctx, p.secretPath(provider), vault.WithMountPath(p.mount))
	if err != nil {
		if vault.IsErrorStatus(err, http.StatusNotFound) {
			return "", ErrMissingCredential
		}
		return "", errutil.Configuration("read credential from vault", err)
	}

	key, _ := resp.Data.Data[vaultKeyField].(string)
	if key == "" {
		return "", ErrMissingCredential
	}
	return key, nil
}

func (p *vaultProvider) Set(ctx context.Context, provider, key string) error {
	if err := ValidateKey(provider, key); err != nil {
		return err
	}

	_, err := p.client.Secrets.KvV2Write(ctx, p.secretPath(provider), schema.KvV2WriteRequest{
		Data: map[string]any{vaultKeyField: key},
	}, vault.WithMountPath(p.mount))
	if err != nil {
		return errutil.Persistence("write credential to vault", err)
	}
	return nil
}

func (p *vaultProvider) Clear(ctx context.Context, provider string) error {
	_, err := p.client.Secrets.KvV2DeleteMetadataAndAllVersions(ctx, p.secretPath(provider), vault.WithMountPath(p.mount))
	if err != nil && !vault.IsErrorStatus(err, http.StatusNotFound) {
		return errutil.Persistence("delete credential from vault", err)
	}
	return nil
}
