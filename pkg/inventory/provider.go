package inventory

import "context"

// Provider is the inventory backend. Variable inheritance through the group
// hierarchy and limit pattern syntax are its responsibility.
type Provider interface {
	ListHosts(ctx context.Context) ([]string, error)
	ResolvedVars(ctx context.Context, host string) (map[string]any, error)
	GroupNames(ctx context.Context, host string) ([]string, error)
	ResolveLimit(ctx context.Context, expression string) ([]string, error)
}

// SecretProvider is implemented by providers able to decrypt protected
// variable files.
type SecretProvider interface {
	SetVaultSecret(id string, secret []byte)
}
