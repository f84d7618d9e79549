package app

import (
	"context"
	"errors"
	"fmt"

	"leadline/internal/config"
	"leadline/internal/repo"
)

// ResolveConfig returns the workspace configuration. A leadline.yml in the
// workspace wins and is synced into the DB; otherwise the stored config is
// used; otherwise the default for variant is seeded.
func ResolveConfig(ctx context.Context, workspace, variant string, r repo.Repo) (*config.Config, error) {
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if fileCfg != nil {
		if err := r.UpsertConfig(ctx, fileCfg); err != nil {
			return nil, fmt.Errorf("sync config: %w", err)
		}
		return fileCfg, nil
	}
	cfg, err := r.GetConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if variant == "" {
		variant = config.VariantContacts
	}
	seed := config.Default(variant)
	if err := r.UpsertConfig(ctx, seed); err != nil {
		return nil, fmt.Errorf("seed config: %w", err)
	}
	return seed, nil
}
