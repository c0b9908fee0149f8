package main

import (
	"context"
	"fmt"
	"mediabridge/internal/admission"
	"mediabridge/internal/allowlist"
	"mediabridge/internal/media"
	"mediabridge/internal/session"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// SettingsService owns the allow-list: the in-memory filter, its stored copy,
// and the refresh that applies a replacement.
type SettingsService struct {
	repo     *allowlist.Repository
	allow    *admission.AllowList
	commands *session.Inlet
}

func NewSettingsService(repo *allowlist.Repository, allow *admission.AllowList, commands *session.Inlet) *SettingsService {
	return &SettingsService{repo: repo, allow: allow, commands: commands}
}

func (s *SettingsService) AllowList() []string {
	return s.allow.List()
}

// SetAllowList replaces the whole allow-list and refreshes tracked players so
// newly disallowed ones stop and newly allowed ones start.
func (s *SettingsService) SetAllowList(ctx context.Context, appIDs []string) error {
	ids := normalizeAppIDs(appIDs)

	if s.repo != nil {
		if err := s.repo.Replace(ctx, ids); err != nil {
			return fmt.Errorf("store allow list: %w", err)
		}
	}

	changed := s.allow.Replace(ids)
	log.Info().Int("entries", len(ids)).Bool("changed", changed).Msg("settings: allow list replaced")

	return s.commands.Send(ctx, session.Command{Kind: session.CommandRefreshSessions})
}

func normalizeAppIDs(appIDs []string) []string {
	ids := lo.FilterMap(appIDs, func(id string, _ int) (string, bool) {
		id = strings.TrimSpace(id)
		return media.NormalizeIdentity(id), id != ""
	})
	return lo.Uniq(ids)
}
