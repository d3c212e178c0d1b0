// Package stats serves per-campaign engagement analytics and keeps the
// running campaign counters honest by recomputing them from delivery
// records.
package stats

import (
	"context"
	"fmt"
	"math"

	"github.com/ignite/studio-automation/internal/domain"
)

// Defaults for analytics list sizes.
const (
	DefaultTopLinks = 10
	DefaultRecent   = 20
)

// CampaignReader loads a campaign with its running counters.
type CampaignReader interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
}

// EngagementReader aggregates engagement from delivery records.
type EngagementReader interface {
	TopLinks(ctx context.Context, campaignID string, limit int) ([]domain.LinkCount, error)
	RecentEngagement(ctx context.Context, campaignID string, kind domain.EngagementKind, limit int) ([]domain.EngagementEntry, error)
}

// Analytics is the engagement summary of one campaign. Rates are
// percentages rounded to two decimals; a zero denominator yields 0.
type Analytics struct {
	CampaignID      string                   `json:"campaign_id"`
	Stats           domain.CampaignStats     `json:"stats"`
	OpenRate        float64                  `json:"open_rate"`
	ClickRate       float64                  `json:"click_rate"`
	ClickToOpenRate float64                  `json:"click_to_open_rate"`
	TopLinks        []domain.LinkCount       `json:"top_links"`
	RecentOpens     []domain.EngagementEntry `json:"recent_opens"`
	RecentClicks    []domain.EngagementEntry `json:"recent_clicks"`
}

// Service computes analytics.
type Service struct {
	campaigns CampaignReader
	records   EngagementReader
}

// NewService creates a Service.
func NewService(campaigns CampaignReader, records EngagementReader) *Service {
	return &Service{campaigns: campaigns, records: records}
}

// Analytics returns the summary for campaignID. topN and recentN fall back
// to the package defaults when not positive.
func (s *Service) Analytics(ctx context.Context, campaignID string, topN, recentN int) (*Analytics, error) {
	if topN <= 0 {
		topN = DefaultTopLinks
	}
	if recentN <= 0 {
		recentN = DefaultRecent
	}
	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	links, err := s.records.TopLinks(ctx, campaignID, topN)
	if err != nil {
		return nil, fmt.Errorf("top links: %w", err)
	}
	opens, err := s.records.RecentEngagement(ctx, campaignID, domain.EngagementOpen, recentN)
	if err != nil {
		return nil, fmt.Errorf("recent opens: %w", err)
	}
	clicks, err := s.records.RecentEngagement(ctx, campaignID, domain.EngagementClick, recentN)
	if err != nil {
		return nil, fmt.Errorf("recent clicks: %w", err)
	}

	st := c.Stats
	return &Analytics{
		CampaignID:      c.ID,
		Stats:           st,
		OpenRate:        Percent(st.TotalOpened, st.TotalSent),
		ClickRate:       Percent(st.TotalClicked, st.TotalSent),
		ClickToOpenRate: Percent(st.TotalClicked, st.TotalOpened),
		TopLinks:        nonNil(links),
		RecentOpens:     nonNil(opens),
		RecentClicks:    nonNil(clicks),
	}, nil
}

// Percent returns part/whole as a percentage rounded to two decimals.
func Percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*10000) / 100
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
