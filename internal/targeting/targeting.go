// Package targeting decides whether a user belongs to a campaign's audience.
package targeting

import (
	"slices"

	"github.com/ignite/studio-automation/internal/domain"
)

// ShouldTarget reports whether the user qualifies for the campaign.
// It performs no I/O; callers resolve the user's tier and list memberships.
func ShouldTarget(c *domain.Campaign, userID, tierName string, listIDs []string) bool {
	if c == nil || !c.Active || userID == "" {
		return false
	}
	aud := c.Audience
	if aud.TargetType == domain.AudienceAll || aud.IncludeAll {
		return true
	}
	switch aud.TargetType {
	case domain.AudienceMemberships, domain.AudienceLegacy:
		return matchesTier(aud.MembershipTiers, tierName)
	case domain.AudienceLists:
		for _, id := range aud.ListIDs {
			if slices.Contains(listIDs, id) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func matchesTier(tiers []string, tier string) bool {
	if slices.Contains(tiers, domain.AllTiers) {
		return true
	}
	return tier != "" && slices.Contains(tiers, tier)
}
