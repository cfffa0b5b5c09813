package domain

import "time"

// CachePolicy decides whether a cached suggestion may be served without generation.
type CachePolicy struct {
	MinUseCount    int
	MinSuccessRate float64
	MaxAge         time.Duration
}

// DefaultCachePolicy returns the thresholds used when config leaves them unset.
func DefaultCachePolicy() CachePolicy {
	return CachePolicy{
		MinUseCount:    DefaultMinUseCount,
		MinSuccessRate: DefaultMinSuccessRate,
		MaxAge:         time.Duration(DefaultCacheMaxAgeDays) * 24 * time.Hour,
	}
}

// CreatedAfter is the earliest creation time still inside the age window.
func (p CachePolicy) CreatedAfter(now time.Time) time.Time {
	return now.Add(-p.MaxAge)
}

// Eligible requires enough uses, a success rate strictly above the threshold,
// and a creation time inside the age window. Age is measured from creation.
func (p CachePolicy) Eligible(s Suggestion, now time.Time) bool {
	if s.UseCount < p.MinUseCount {
		return false
	}
	if s.SuccessRate() <= p.MinSuccessRate {
		return false
	}
	return s.CreatedAt.After(p.CreatedAfter(now))
}

// Score ranks eligible suggestions.
func Score(s Suggestion) float64 {
	return s.SuccessRate()*ScoreSuccessWeight + s.Confidence*ScoreConfidenceWeight
}

// SelectBest returns the highest scoring eligible suggestion. Equal scores are
// broken by the most recent LastUsed.
func (p CachePolicy) SelectBest(candidates []Suggestion, now time.Time) (Suggestion, bool) {
	var (
		best  Suggestion
		found bool
	)
	for _, s := range candidates {
		if !p.Eligible(s, now) {
			continue
		}
		if !found || better(s, best) {
			best = s
			found = true
		}
	}
	return best, found
}

func better(a, b Suggestion) bool {
	sa, sb := Score(a), Score(b)
	if sa != sb {
		return sa > sb
	}
	return a.LastUsed.After(b.LastUsed)
}
