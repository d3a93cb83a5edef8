package scoring

import (
	"sort"
	"time"

	"github.com/partsgrid/parts-exchange/internal/config"
	"github.com/partsgrid/parts-exchange/internal/model"
)

// Proximity sub-scores by locality match, best first.
const (
	proximitySameCity  = 1.0
	proximitySameMetro = 0.7
	proximitySameHub   = 0.4
	proximityOther     = 0.0
)

// AuditScoreScale is the maximum raw audit score; trust normalizes
// against it.
const AuditScoreScale = 5.0

// CompositeScale lifts the weighted sum of normalized sub-scores onto the
// 0-5 scale that tier thresholds and audit scores use.
const CompositeScale = 5.0

// RankAdvisors scores the pool against the request origin and returns the
// advisors at or above minScore, best first. Disabled advisors are
// skipped. Ties break on most recent activity, then advisor id, so the
// ordering is reproducible.
func RankAdvisors(pool []model.Advisor, origin model.Location, minScore float64, w config.AdvisorWeights, now time.Time) ([]model.RankedAdvisor, error) {
	if err := validateSum("advisor", w.Sum(), w.Proximity, w.Activity, w.Performance, w.Trust); err != nil {
		return nil, err
	}

	type scored struct {
		advisor model.Advisor
		scores  model.AdvisorSubScores
		total   float64
	}
	eligible := make([]scored, 0, len(pool))
	for _, a := range pool {
		if !a.Enabled {
			continue
		}
		sub := model.AdvisorSubScores{
			Proximity:   proximityScore(a.Location, origin),
			Activity:    clamp01(a.ResponseRate),
			Performance: clamp01(a.PerformanceScore),
			Trust:       trustScore(a, now),
		}
		total := CompositeScale * (w.Proximity*sub.Proximity +
			w.Activity*sub.Activity +
			w.Performance*sub.Performance +
			w.Trust*sub.Trust)
		if total < minScore {
			continue
		}
		eligible = append(eligible, scored{advisor: a, scores: sub, total: total})
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].total != eligible[j].total {
			return eligible[i].total > eligible[j].total
		}
		ai, aj := lastActive(eligible[i].advisor), lastActive(eligible[j].advisor)
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return eligible[i].advisor.ID < eligible[j].advisor.ID
	})

	ranked := make([]model.RankedAdvisor, 0, len(eligible))
	for i, s := range eligible {
		ranked = append(ranked, model.RankedAdvisor{
			Rank:       i + 1,
			AdvisorID:  s.advisor.ID,
			TotalScore: s.total,
			Scores:     s.scores,
		})
	}
	return ranked, nil
}

func proximityScore(advisor, origin model.Location) float64 {
	switch {
	case advisor.City != "" && advisor.City == origin.City:
		return proximitySameCity
	case advisor.Metro != "" && advisor.Metro == origin.Metro:
		return proximitySameMetro
	case advisor.Hub != "" && advisor.Hub == origin.Hub:
		return proximitySameHub
	}
	return proximityOther
}

// trustScore normalizes the latest audit score to [0,1]. An audit that
// has expired at now decays the score to zero.
func trustScore(a model.Advisor, now time.Time) float64 {
	if a.AuditExpiresAt == nil || !a.AuditExpiresAt.After(now) {
		return 0.0
	}
	return clamp01(a.AuditScore / AuditScoreScale)
}

func lastActive(a model.Advisor) time.Time {
	if a.LastActiveAt == nil {
		return time.Time{}
	}
	return *a.LastActiveAt
}
