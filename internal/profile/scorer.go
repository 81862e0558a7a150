package profile

import (
	"sort"
	"time"
)

// Scoring constants. The base score is eroded by penalties; anything
// that drives the score to zero or below is considered unusable even
// as a fallback.
const (
	baseScore = 100.0

	// Unauthenticated accounts are effectively disqualified.
	unauthenticatedPenalty = 1000.0

	// A weekly limit is worse than a session limit: its reset window
	// is much longer.
	sessionLimitPenalty = 40.0
	weeklyLimitPenalty  = 60.0

	// Rate-limited accounts earn back up to resetBonusMax points the
	// closer their limit is to resetting, over a resetBonusHorizon.
	resetBonusMax     = 10.0
	resetBonusHorizon = 24 * time.Hour

	// Usage below the threshold still costs points so that, among
	// equally-available accounts, the least-used one ranks first.
	// Weekly usage weighs roughly 3x session usage.
	sessionUsageWeight = 0.1
	weeklyUsageWeight  = 0.3
)

// candidate pairs an account with its normalized view and score for
// one selection pass.
type candidate struct {
	account Account
	unified UnifiedAccount
	score   float64
	// priority is the index into the caller's priority order, or
	// len(order) for accounts not listed there.
	priority int
}

// Normalize builds the UnifiedAccount view for one account using the
// supplied settings and rate-limit state.
func Normalize(acc Account, settings Settings, rl RateLimitStatus) UnifiedAccount {
	u := UnifiedAccount{
		ID:   acc.AccountID(),
		Kind: acc.AccountKind(),
	}

	switch p := acc.(type) {
	case *APIProfile:
		u.Authenticated = p.Authenticated()
		// API accounts have no usage ceiling: available iff authenticated.
		u.Available = u.Authenticated
	case *OAuthProfile:
		u.Authenticated = p.Authenticated
		u.SessionPercent = p.SessionUsagePercent
		u.WeeklyPercent = p.WeeklyUsagePercent
		u.RateLimited = rl.Limited
		u.RateLimitKind = rl.Kind
		u.RateLimitReset = rl.ResetAt

		u.Available = u.Authenticated && !u.RateLimited
		if u.Available && settings.Enabled {
			// Strict comparison: a reading equal to the threshold is
			// already unavailable, so the switch happens before the
			// provider-side limit is hit.
			u.Available = p.SessionUsagePercent < settings.SessionThreshold &&
				p.WeeklyUsagePercent < settings.WeeklyThreshold
		}
	}

	return u
}

// score computes the ranking score for a normalized account at the
// given reference time.
func score(u UnifiedAccount, now time.Time) float64 {
	s := baseScore

	if !u.Authenticated {
		s -= unauthenticatedPenalty
	}

	if u.RateLimited {
		switch u.RateLimitKind {
		case LimitWeekly:
			s -= weeklyLimitPenalty
		default:
			s -= sessionLimitPenalty
		}
		s += resetBonus(u.RateLimitReset, now)
	}

	s -= u.SessionPercent * sessionUsageWeight
	s -= u.WeeklyPercent * weeklyUsageWeight

	return s
}

// resetBonus returns a bonus in [0, resetBonusMax] that grows the
// sooner the rate limit resets. Unknown or already-passed reset times
// earn the full bonus.
func resetBonus(resetAt time.Time, now time.Time) float64 {
	if resetAt.IsZero() {
		return 0
	}
	until := resetAt.Sub(now)
	if until <= 0 {
		return resetBonusMax
	}
	if until >= resetBonusHorizon {
		return 0
	}
	return resetBonusMax * (1 - float64(until)/float64(resetBonusHorizon))
}

// SelectBestAccount picks the next account to use from the pool.
//
// Accounts are partitioned into available and unavailable per the
// threshold rules. Available accounts are ordered by their position in
// priorityOrder (unlisted accounts sort after all listed ones), ties
// broken by descending score. If nothing is available, the unavailable
// account with the highest positive score is returned as a degraded
// "least bad" choice; otherwise nil.
//
// The function performs no I/O and is deterministic for identical
// inputs.
func SelectBestAccount(pool []Account, settings Settings, oracle Oracle, excludeID string, priorityOrder []string) Account {
	return selectBestAccountAt(pool, settings, oracle, excludeID, priorityOrder, time.Now())
}

func selectBestAccountAt(pool []Account, settings Settings, oracle Oracle, excludeID string, priorityOrder []string, now time.Time) Account {
	prioIndex := make(map[string]int, len(priorityOrder))
	for i, id := range priorityOrder {
		prioIndex[id] = i
	}

	var available, unavailable []candidate
	for _, acc := range pool {
		if acc == nil || acc.AccountID() == excludeID {
			continue
		}

		var rl RateLimitStatus
		if oracle != nil {
			rl = oracle.Status(acc.AccountID())
		}

		u := Normalize(acc, settings, rl)
		prio, ok := prioIndex[u.ID]
		if !ok {
			prio = len(priorityOrder)
		}
		c := candidate{account: acc, unified: u, score: score(u, now), priority: prio}

		if u.Available {
			available = append(available, c)
		} else {
			unavailable = append(unavailable, c)
		}
	}

	// Stable sorts keep pool order as the final tie-breaker so
	// repeated calls with identical inputs agree.
	sort.SliceStable(available, func(i, j int) bool {
		if available[i].priority != available[j].priority {
			return available[i].priority < available[j].priority
		}
		return available[i].score > available[j].score
	})
	sort.SliceStable(unavailable, func(i, j int) bool {
		return unavailable[i].score > unavailable[j].score
	})

	if len(available) > 0 {
		return available[0].account
	}
	if len(unavailable) > 0 && unavailable[0].score > 0 {
		return unavailable[0].account
	}
	return nil
}
