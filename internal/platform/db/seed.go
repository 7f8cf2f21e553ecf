package db

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"permitflow/internal/domain/directory"
	"permitflow/internal/domain/policy"
	"permitflow/internal/platform/config"
	"permitflow/internal/platform/querier"
)

// Seed stores the reference permission types that are missing from the
// database and, when configured, an HR user to approve with.
func Seed(ctx context.Context, db querier.Querier, cfg config.Config) error {
	if err := ensureRules(ctx, policy.NewStore(db)); err != nil {
		return err
	}
	return ensureHRUser(ctx, directory.NewStore(db), cfg.SeedHRUserID)
}

func ensureRules(ctx context.Context, store *policy.Store) error {
	existing, err := store.ListRules(ctx)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	for _, rule := range existing {
		seen[rule.Code] = true
	}
	for _, rule := range policy.DefaultRules() {
		if seen[rule.Code] {
			continue
		}
		if err := store.UpsertRule(ctx, rule); err != nil {
			return err
		}
		slog.Info("seeded permission type", "code", rule.Code)
	}
	return nil
}

func ensureHRUser(ctx context.Context, store *directory.Store, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}
	_, err := store.GetUser(ctx, userID)
	if !errors.Is(err, directory.ErrUserNotFound) {
		return err
	}
	return store.UpsertUser(ctx, directory.User{ID: userID, Name: "HR", Role: directory.RoleHR, Active: true})
}
