// Package discord adapts the chat platform: the role/nickname directory used
// by provisioning, and the bot command surface that hands out links.
package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"campusverify/internal/platform/metrics"
	"campusverify/internal/provision"
	"campusverify/pkg/platform/sentinel"
)

// Role colors, matching the server's convention: blue for cohorts, green for
// programme tracks.
const (
	cohortColor = 0x3498db
	trackColor  = 0x2ecc71
)

// RoleDirectory implements provision.RoleDirectory over the Discord REST API
// for one guild. Discord has no create-if-absent primitive and also no
// duplicate-name signal, so lookups always go to the live role list and are
// never cached.
type RoleDirectory struct {
	session *discordgo.Session
	guildID string
	metrics *metrics.Metrics
}

var _ provision.RoleDirectory = (*RoleDirectory)(nil)

// NewRoleDirectory wires the directory for the configured guild.
func NewRoleDirectory(session *discordgo.Session, guildID string, m *metrics.Metrics) *RoleDirectory {
	return &RoleDirectory{session: session, guildID: guildID, metrics: m}
}

func (d *RoleDirectory) FindRoleByName(ctx context.Context, name string) (provision.RoleRef, error) {
	roles, err := d.session.GuildRoles(d.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return provision.RoleRef{}, fmt.Errorf("list guild roles: %w", err)
	}
	for _, role := range roles {
		if role.Name == name {
			return provision.RoleRef{ID: role.ID, Name: role.Name}, nil
		}
	}
	return provision.RoleRef{}, fmt.Errorf("role %q: %w", name, sentinel.ErrNotFound)
}

func (d *RoleDirectory) CreateRole(ctx context.Context, name string) (provision.RoleRef, error) {
	color := trackColor
	if isCohortName(name) {
		color = cohortColor
	}

	role, err := d.session.GuildRoleCreate(d.guildID, &discordgo.RoleParams{
		Name:  name,
		Color: &color,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return provision.RoleRef{}, fmt.Errorf("create role %q: %w", name, err)
	}

	d.metrics.RolesCreated.Inc()
	return provision.RoleRef{ID: role.ID, Name: role.Name}, nil
}

func (d *RoleDirectory) AddMemberRole(ctx context.Context, subjectID string, role provision.RoleRef) error {
	if err := d.session.GuildMemberRoleAdd(d.guildID, subjectID, role.ID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("grant role %q to %s: %w", role.Name, subjectID, err)
	}
	return nil
}

func (d *RoleDirectory) SetNickname(ctx context.Context, subjectID, nickname string) error {
	if err := d.session.GuildMemberNickname(d.guildID, subjectID, nickname, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("set nickname for %s: %w", subjectID, err)
	}
	return nil
}

// isCohortName reports whether the role name is an admission-batch code
// (all digits), as opposed to a programme label.
func isCohortName(name string) bool {
	if name == "" {
		return false
	}
	return strings.IndexFunc(name, func(r rune) bool { return r < '0' || r > '9' }) == -1
}
