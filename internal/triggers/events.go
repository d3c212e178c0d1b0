package triggers

import (
	"context"
	"strconv"
	"time"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/render"
)

// OnRegistration enrolls a newly registered user into active
// new_registration campaigns.
func (e *Engine) OnRegistration(ctx context.Context, userID string) (Result, error) {
	u, err := e.dir.Recipient(ctx, userID)
	if err != nil {
		return Result{Kind: domain.TriggerNewRegistration}, err
	}
	cand := e.registrationCandidate(*u)
	return e.evaluate(ctx, domain.TriggerNewRegistration, func(*domain.Campaign) ([]Candidate, error) {
		return []Candidate{cand}, nil
	})
}

// ClassCompletion describes an attended class.
type ClassCompletion struct {
	UserID     string    `json:"user_id" validate:"required"`
	EventTitle string    `json:"event_title"`
	EventStart time.Time `json:"event_start"`
	ClassCount int       `json:"class_count" validate:"gte=0"`
}

// OnClassCompleted enrolls the attendee into active post_class campaigns.
func (e *Engine) OnClassCompleted(ctx context.Context, cc ClassCompletion) (Result, error) {
	cand := Candidate{
		UserID: cc.UserID,
		Vars: map[string]string{
			render.KeyEventTitle: cc.EventTitle,
			render.KeyEventDate:  e.date(cc.EventStart),
			render.KeyClassCount: strconv.Itoa(cc.ClassCount),
		},
	}
	return e.evaluate(ctx, domain.TriggerPostClass, func(*domain.Campaign) ([]Candidate, error) {
		return []Candidate{cand}, nil
	})
}

// OnAttendanceRecorded enrolls the user into milestone campaigns whose
// configured milestones include the new attendance count.
func (e *Engine) OnAttendanceRecorded(ctx context.Context, userID string, count int) (Result, error) {
	if userID == "" {
		return Result{Kind: domain.TriggerMilestoneAchieved}, ErrMissingUser
	}
	return e.evaluate(ctx, domain.TriggerMilestoneAchieved, func(c *domain.Campaign) ([]Candidate, error) {
		m, ok := milestoneFor(c.TriggerConfig.Milestones, count)
		if !ok {
			return nil, nil
		}
		return []Candidate{{
			UserID: userID,
			Vars: map[string]string{
				render.KeyMilestone:  strconv.Itoa(m.Count),
				render.KeyReward:     m.Reward,
				render.KeyClassCount: strconv.Itoa(count),
			},
		}}, nil
	})
}

func milestoneFor(configured []domain.Milestone, count int) (domain.Milestone, bool) {
	if len(configured) == 0 {
		configured = DefaultMilestones
	}
	for _, m := range configured {
		if m.Count == count {
			return m, true
		}
	}
	return domain.Milestone{}, false
}
