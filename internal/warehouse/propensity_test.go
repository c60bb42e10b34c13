package warehouse

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicScorePerfectClinic(t *testing.T) {
	score := HeuristicScore(ClinicFeatures{
		AffluenceScore: 10,
		Rating:         5,
		ReviewCount:    200,
		ServiceCount:   4,
		EmailVerified:  true,
	})

	assert.InDelta(t, 1.00, score, 1e-9)
	assert.Equal(t, "hot", TierFor(score))
}

func TestHeuristicScoreComponentWeights(t *testing.T) {
	// Affluence alone: 10/10 * 0.35
	assert.InDelta(t, 0.35, HeuristicScore(ClinicFeatures{AffluenceScore: 10}), 1e-9)
	// Rating alone: 5/5 * 0.25
	assert.InDelta(t, 0.25, HeuristicScore(ClinicFeatures{Rating: 5}), 1e-9)
	// Half the review ceiling: 100/200 * 0.20
	assert.InDelta(t, 0.10, HeuristicScore(ClinicFeatures{ReviewCount: 100}), 1e-9)
	// Review count is capped at the ceiling.
	assert.InDelta(t, 0.20, HeuristicScore(ClinicFeatures{ReviewCount: 5000}), 1e-9)
}

func TestHeuristicScoreServiceTiers(t *testing.T) {
	base := ClinicFeatures{}
	assert.InDelta(t, 0.00, HeuristicScore(base), 1e-9)

	base.ServiceCount = 1
	assert.InDelta(t, 0.05, HeuristicScore(base), 1e-9)
	base.ServiceCount = 2
	assert.InDelta(t, 0.05, HeuristicScore(base), 1e-9)
	base.ServiceCount = 3
	assert.InDelta(t, 0.10, HeuristicScore(base), 1e-9)
	base.ServiceCount = 4
	assert.InDelta(t, 0.15, HeuristicScore(base), 1e-9)
	base.ServiceCount = 9
	assert.InDelta(t, 0.15, HeuristicScore(base), 1e-9)
}

func TestHeuristicScoreClampsToUnitInterval(t *testing.T) {
	score := HeuristicScore(ClinicFeatures{
		AffluenceScore: 50, // out-of-range input
		Rating:         5,
		ReviewCount:    200,
		ServiceCount:   4,
		EmailVerified:  true,
	})
	assert.Equal(t, 1.0, score)

	assert.Equal(t, 0.0, HeuristicScore(ClinicFeatures{AffluenceScore: -10}))
}

func TestTierThresholds(t *testing.T) {
	assert.Equal(t, "hot", TierFor(0.70))
	assert.Equal(t, "warm", TierFor(0.69))
	assert.Equal(t, "warm", TierFor(0.40))
	assert.Equal(t, "cold", TierFor(0.39))
	assert.Equal(t, "cold", TierFor(0))
}

func TestScoreSelectsHeuristicBelowTrainingFloor(t *testing.T) {
	recent := time.Now().Add(-24 * time.Hour)
	conn := &fakeConn{
		rowFn: func(query string) *fakeRow {
			if strings.Contains(query, "WHERE converted") {
				return &fakeRow{values: []any{uint64(9)}}
			}
			return &fakeRow{}
		},
		rowsFn: func(query string) *fakeRows {
			if strings.Contains(query, "NOT converted AND email_verified") {
				return &fakeRows{rows: [][]any{
					// clinic_id, name, city, state, phone, email,
					// affluence, rating, reviews, services, verified, last_outreach
					{"cl-1", "Radiance", "Austin", "TX", "", "a@x.com",
						10.0, 5.0, uint32(200), uint32(4), true, (*time.Time)(nil)},
					{"cl-2", "Glow", "Waco", "TX", "", "b@x.com",
						5.0, 3.0, uint32(40), uint32(1), true, (*time.Time)(nil)},
					{"cl-3", "Contacted Recently", "Dallas", "TX", "", "c@x.com",
						10.0, 5.0, uint32(200), uint32(4), true, &recent},
				}}
			}
			return &fakeRows{}
		},
	}

	result, err := NewScorer(conn).Score(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "heuristic", result.Mode)
	assert.Equal(t, 3, result.ScoredClinics)
	assert.Equal(t, 2, result.Distribution["hot"])
	assert.Equal(t, 1, result.Distribution["warm"])
	assert.Equal(t, 0, result.Distribution["cold"])

	// The recently contacted clinic is excluded from the report even
	// though it scored hot.
	require.Len(t, result.Verification, 2)
	assert.Equal(t, "cl-1", result.Verification[0].ClinicID)
	assert.InDelta(t, 1.00, result.Verification[0].Score, 1e-9)
	assert.Equal(t, "cl-2", result.Verification[1].ClinicID)

	// Scores were persisted.
	batch := conn.batchFor("INSERT INTO clinic_scores")
	require.NotNil(t, batch)
	assert.Len(t, batch.appended, 3)
	assert.True(t, batch.sent)
	assert.Len(t, conn.execsMatching("TRUNCATE TABLE clinic_scores"), 1)
}

func TestScoreSelectsMLAtTrainingFloor(t *testing.T) {
	conn := &fakeConn{
		rowFn: func(query string) *fakeRow {
			switch {
			case strings.Contains(query, "WHERE converted"):
				return &fakeRow{values: []any{uint64(10)}}
			case strings.Contains(query, "arrayAUC"):
				return &fakeRow{values: []any{0.9, 0.8, 0.6, 0.85}}
			case strings.Contains(query, "count() FROM clinic_scores"):
				return &fakeRow{values: []any{uint64(12)}}
			}
			return &fakeRow{}
		},
		rowsFn: func(query string) *fakeRows {
			switch {
			case strings.Contains(query, "GROUP BY propensity_tier"):
				return &fakeRows{rows: [][]any{
					{"hot", uint64(2)},
					{"warm", uint64(4)},
					{"cold", uint64(6)},
				}}
			case strings.Contains(query, "ORDER BY s.propensity_score DESC"):
				return &fakeRows{rows: [][]any{
					{"cl-9", "Summit Aesthetics", "Denver", "CO", "", "", 0.91, "hot"},
				}}
			}
			return &fakeRows{}
		},
	}

	result, err := NewScorer(conn).Score(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "ml", result.Mode)
	assert.InDelta(t, 0.9, result.Accuracy, 1e-9)
	assert.InDelta(t, 0.8, result.Precision, 1e-9)
	assert.InDelta(t, 0.6, result.Recall, 1e-9)
	assert.InDelta(t, 0.85, result.RocAuc, 1e-9)
	// f1 = 2pr/(p+r)
	assert.InDelta(t, 2*0.8*0.6/(0.8+0.6), result.F1Score, 1e-9)
	assert.Equal(t, 12, result.ScoredClinics)
	assert.Equal(t, 4, result.Distribution["warm"])
	require.Len(t, result.Verification, 1)
	assert.Equal(t, "cl-9", result.Verification[0].ClinicID)

	assert.Len(t, conn.execsMatching("stochasticLogisticRegressionState"), 1)
	assert.Len(t, conn.execsMatching("INSERT INTO clinic_scores"), 1)
}

func TestScorePropagatesCountError(t *testing.T) {
	conn := &fakeConn{
		rowFn: func(string) *fakeRow { return &fakeRow{err: assert.AnError} },
	}

	_, err := NewScorer(conn).Score(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestTopProspectsSortsAndLimits(t *testing.T) {
	var eligible []Prospect
	for i := 0; i < topProspectLimit+10; i++ {
		eligible = append(eligible, Prospect{
			ClinicID: string(rune('a'+i%26)) + "-clinic",
			Score:    float64(i%7) / 10,
		})
	}

	top := topProspects(eligible)
	require.Len(t, top, topProspectLimit)
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[i-1].Score, top[i].Score)
	}
}

func TestPastCooldown(t *testing.T) {
	now := time.Now()
	old := now.Add(-31 * 24 * time.Hour)
	recent := now.Add(-29 * 24 * time.Hour)

	assert.True(t, pastCooldown(nil, now))
	assert.True(t, pastCooldown(&old, now))
	assert.False(t, pastCooldown(&recent, now))
}
