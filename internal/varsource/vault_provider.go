package varsource

import (
	"context"
	"fmt"
	"strings"
	"sync"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig configures the optional Vault-backed provider. Variables
// are read as fields of a single KV secret: ${DB_PASSWORD} resolves to
// the "DB_PASSWORD" field of the secret at Path under Mount.
type VaultConfig struct {
	Address   string `yaml:"address"`
	Token     string `yaml:"token,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`
	Mount     string `yaml:"mount,omitempty"`
	Path      string `yaml:"path"`
	KVVersion int    `yaml:"kv_version,omitempty"`
}

// VaultProvider resolves variables from one Vault KV secret. The
// secret is fetched once, on the first lookup.
type VaultProvider struct {
	client    *vault.Client
	mount     string
	path      string
	kvVersion int

	once   sync.Once
	values map[string]string
	err    error
}

// NewVaultProvider builds a Vault provider from config.
func NewVaultProvider(cfg VaultConfig) (*VaultProvider, error) {
	address := strings.TrimSpace(cfg.Address)
	if address == "" {
		return nil, fmt.Errorf("vault address is required")
	}
	path := strings.Trim(strings.TrimSpace(cfg.Path), "/")
	if path == "" {
		return nil, fmt.Errorf("vault secret path is required")
	}
	apiCfg := vault.DefaultConfig()
	apiCfg.Address = address
	client, err := vault.NewClient(apiCfg)
	if err != nil {
		return nil, err
	}
	if ns := strings.TrimSpace(cfg.Namespace); ns != "" {
		client.SetNamespace(ns)
	}
	if token := strings.TrimSpace(cfg.Token); token != "" {
		client.SetToken(token)
	}
	mount := strings.Trim(strings.TrimSpace(cfg.Mount), "/")
	if mount == "" {
		mount = "secret"
	}
	kvVersion := cfg.KVVersion
	if kvVersion == 0 {
		kvVersion = 2
	}
	if kvVersion != 1 && kvVersion != 2 {
		return nil, fmt.Errorf("vault kv_version must be 1 or 2")
	}
	return &VaultProvider{client: client, mount: mount, path: path, kvVersion: kvVersion}, nil
}

func (p *VaultProvider) Name() string { return "vault" }

func (p *VaultProvider) Get(ctx context.Context, name string) (string, bool, error) {
	p.once.Do(func() { p.load(ctx) })
	if p.err != nil {
		return "", false, p.err
	}
	v, ok := p.values[name]
	return v, ok, nil
}

func (p *VaultProvider) load(ctx context.Context) {
	readPath := fmt.Sprintf("%s/%s", p.mount, p.path)
	if p.kvVersion == 2 {
		readPath = fmt.Sprintf("%s/data/%s", p.mount, p.path)
	}
	secret, err := p.client.Logical().ReadWithContext(ctx, readPath)
	if err != nil {
		p.err = fmt.Errorf("vault read %s: %w", readPath, err)
		return
	}
	if secret == nil || secret.Data == nil {
		p.err = fmt.Errorf("vault secret %q not found", p.path)
		return
	}
	data := secret.Data
	if p.kvVersion == 2 {
		inner, ok := secret.Data["data"].(map[string]interface{})
		if !ok {
			p.err = fmt.Errorf("vault secret %q has no data (is it KV v2?)", p.path)
			return
		}
		data = inner
	}
	values := make(map[string]string, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			values[k] = s
		}
	}
	p.values = values
}
