// Package inline implements the InlineResponseEngine (§4.8): mention-gated,
// per-channel queued LLM replies with ephemeral (non-persisted-until-sent)
// context building.
//
// Grounded on original_source/cogs/inline_response.py (InlineResponseCog)
// and original_source/utils/inline_response.py (InlineResponseManager),
// adapted into the teacher's queue-worker-per-resource idiom.
package inline

import "github.com/nextlevelbuilder/discordctx/internal/model"

// IsAdmitted implements §4.8's permission resolution: blacklist (member id
// or any role id) always denies, regardless of whitelist; otherwise the
// member must be individually whitelisted, hold a whitelisted role, or the
// whitelist must include the guild's "everyone" role id (everyoneRoleID,
// which Discord always sets equal to the guild id itself).
func IsAdmitted(cfg model.InlineResponseConfig, everyoneRoleID, memberID string, roleIDs []string) bool {
	if !cfg.Enabled {
		return false
	}
	if containsString(cfg.MemberBlacklist, memberID) || intersects(cfg.RoleBlacklist, roleIDs) {
		return false
	}

	everyoneWhitelisted := containsString(cfg.RoleWhitelist, everyoneRoleID)
	if everyoneWhitelisted {
		return true
	}
	return containsString(cfg.MemberWhitelist, memberID) || intersects(cfg.RoleWhitelist, roleIDs)
}

// IsMentionTriggered reports whether a message should be considered for the
// inline response queue: the bot must be @mentioned, and if
// trigger_on_start_only is set the mention must be the first token (§4.8).
func IsMentionTriggered(content, botUserID string, mentionedUserIDs []string, triggerOnStartOnly bool) bool {
	if !containsString(mentionedUserIDs, botUserID) {
		return false
	}
	if !triggerOnStartOnly {
		return true
	}
	return startsWithMention(content, botUserID)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

func startsWithMention(content, botUserID string) bool {
	for _, form := range []string{"<@" + botUserID + ">", "<@!" + botUserID + ">"} {
		if len(content) >= len(form) && content[:len(form)] == form {
			return true
		}
	}
	return false
}
