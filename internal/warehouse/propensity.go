package warehouse

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/novalyte/vantage/internal/logging"
)

// Scoring thresholds and the training floor below which the job falls
// back to the deterministic heuristic.
const (
	MinTrainingRows = 10
	TierHot         = 0.7
	TierWarm        = 0.4

	topProspectLimit   = 50
	outreachCooldown   = 30 * 24 * time.Hour
	predictionCutoff   = 0.5
	reviewCountCeiling = 200
)

// featureColumns is the model input, in training order. evalMLMethod
// consumes them positionally, so prediction queries must list the same
// expressions in the same order.
const featureColumns = `
	rating,
	toFloat64(review_count),
	affluence_score,
	toFloat64(median_income),
	toFloat64(market_population),
	toFloat64(service_count),
	toFloat64(outreach_count),
	toFloat64(response_count),
	toFloat64(calls_count),
	toFloat64(emails_sent),
	toFloat64(emails_opened),
	email_open_rate,
	response_rate`

// ClinicFeatures is the per-clinic input to the heuristic path.
type ClinicFeatures struct {
	ClinicID         string
	Name             string
	City             string
	State            string
	Phone            string
	Email            string
	AffluenceScore   float64
	Rating           float64
	ReviewCount      int
	ServiceCount     int
	EmailVerified    bool
	LastOutreachDate *time.Time
}

// Prospect is one scored outreach candidate.
type Prospect struct {
	ClinicID string  `json:"clinic_id"`
	Name     string  `json:"name"`
	City     string  `json:"city,omitempty"`
	State    string  `json:"state,omitempty"`
	Phone    string  `json:"phone,omitempty"`
	Email    string  `json:"email,omitempty"`
	Score    float64 `json:"propensity_score"`
	Tier     string  `json:"propensity_tier"`
}

// Result is the scoring job report. In heuristic mode the model metrics
// stay zero; distribution and verification describe what was written.
type Result struct {
	Success       bool           `json:"success"`
	Mode          string         `json:"mode"`
	Accuracy      float64        `json:"accuracy"`
	Precision     float64        `json:"precision"`
	Recall        float64        `json:"recall"`
	F1Score       float64        `json:"f1Score"`
	RocAuc        float64        `json:"rocAuc"`
	ScoredClinics int            `json:"scoredClinics,omitempty"`
	Distribution  map[string]int `json:"distribution,omitempty"`
	Verification  []Prospect     `json:"verification,omitempty"`
}

// Scorer runs the propensity job against an already-synced warehouse.
type Scorer struct {
	conn    Conn
	nowFunc func() time.Time
}

// NewScorer builds a scorer over the warehouse connection.
func NewScorer(conn Conn) *Scorer {
	return &Scorer{conn: conn, nowFunc: time.Now}
}

// Score picks the mode from the labeled-row count and runs it. Fewer
// than MinTrainingRows conversions is not an error; it selects the
// heuristic path.
func (s *Scorer) Score(ctx context.Context) (Result, error) {
	var labeled uint64
	if err := s.conn.QueryRow(ctx,
		"SELECT count() FROM clinics WHERE converted").Scan(&labeled); err != nil {
		return Result{}, fmt.Errorf("count training rows: %w", err)
	}

	if labeled < MinTrainingRows {
		logging.L().Info("scoring in heuristic mode", "labeled_rows", labeled)
		return s.scoreHeuristic(ctx)
	}

	logging.L().Info("scoring in ml mode", "labeled_rows", labeled)
	return s.scoreML(ctx)
}

// HeuristicScore is the deterministic fallback: a weighted sum of
// market affluence (35%), rating (25%), review volume capped at 200
// (20%), a service-count tier (up to 15%) and a verified-email bonus
// (5%), clamped to [0,1].
func HeuristicScore(f ClinicFeatures) float64 {
	score := f.AffluenceScore/10*0.35 +
		f.Rating/5*0.25 +
		math.Min(float64(f.ReviewCount), reviewCountCeiling)/reviewCountCeiling*0.20

	switch {
	case f.ServiceCount >= 4:
		score += 0.15
	case f.ServiceCount == 3:
		score += 0.10
	case f.ServiceCount >= 1:
		score += 0.05
	}
	if f.EmailVerified {
		score += 0.05
	}

	return math.Max(0, math.Min(1, score))
}

// TierFor buckets a score into its outreach tier.
func TierFor(score float64) string {
	switch {
	case score >= TierHot:
		return "hot"
	case score >= TierWarm:
		return "warm"
	default:
		return "cold"
	}
}

func (s *Scorer) scoreHeuristic(ctx context.Context) (Result, error) {
	candidates, err := s.heuristicCandidates(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read scoring candidates: %w", err)
	}

	now := s.nowFunc()
	distribution := map[string]int{"hot": 0, "warm": 0, "cold": 0}
	scored := make([]Prospect, 0, len(candidates))
	var eligible []Prospect

	for _, f := range candidates {
		score := HeuristicScore(f)
		tier := TierFor(score)
		distribution[tier]++
		p := Prospect{
			ClinicID: f.ClinicID,
			Name:     f.Name,
			City:     f.City,
			State:    f.State,
			Phone:    f.Phone,
			Email:    f.Email,
			Score:    score,
			Tier:     tier,
		}
		scored = append(scored, p)
		if tier != "cold" && pastCooldown(f.LastOutreachDate, now) {
			eligible = append(eligible, p)
		}
	}

	if err := s.writeScores(ctx, scored, "heuristic", now); err != nil {
		return Result{}, fmt.Errorf("write scores: %w", err)
	}

	verification := topProspects(eligible)
	for i, p := range verification {
		logging.L().Info("top prospect",
			"rank", i+1, "name", p.Name, "city", p.City, "state", p.State,
			"score", p.Score, "tier", p.Tier)
	}

	return Result{
		Success:       true,
		Mode:          "heuristic",
		ScoredClinics: len(scored),
		Distribution:  distribution,
		Verification:  verification,
	}, nil
}

func (s *Scorer) heuristicCandidates(ctx context.Context) ([]ClinicFeatures, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT clinic_id, name, city, state, phone, email,
		       affluence_score, rating, review_count, service_count,
		       email_verified, last_outreach_date
		FROM clinics
		WHERE NOT converted AND email_verified
		ORDER BY clinic_id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var candidates []ClinicFeatures
	for rows.Next() {
		var (
			f                         ClinicFeatures
			reviewCount, serviceCount uint32
			lastOutreach              *time.Time
		)
		if err := rows.Scan(&f.ClinicID, &f.Name, &f.City, &f.State, &f.Phone, &f.Email,
			&f.AffluenceScore, &f.Rating, &reviewCount, &serviceCount,
			&f.EmailVerified, &lastOutreach); err != nil {
			return nil, err
		}
		f.ReviewCount = int(reviewCount)
		f.ServiceCount = int(serviceCount)
		f.LastOutreachDate = lastOutreach
		candidates = append(candidates, f)
	}
	return candidates, rows.Err()
}

func (s *Scorer) scoreML(ctx context.Context) (Result, error) {
	if err := s.trainModel(ctx); err != nil {
		return Result{}, fmt.Errorf("train model: %w", err)
	}

	result, err := s.evaluateModel(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate model: %w", err)
	}

	if err := s.conn.Exec(ctx, "TRUNCATE TABLE clinic_scores"); err != nil {
		return Result{}, fmt.Errorf("reset scores: %w", err)
	}
	if err := s.conn.Exec(ctx, fmt.Sprintf(`
		INSERT INTO clinic_scores (clinic_id, propensity_score, propensity_tier, mode, scored_at)
		SELECT
			clinic_id,
			prob,
			multiIf(prob >= %f, 'hot', prob >= %f, 'warm', 'cold'),
			'ml',
			now()
		FROM (
			SELECT clinic_id, evalMLMethod(state, %s) AS prob
			FROM clinics CROSS JOIN propensity_model
			WHERE NOT converted
		)
	`, TierHot, TierWarm, featureColumns)); err != nil {
		return Result{}, fmt.Errorf("write scores: %w", err)
	}

	var scoredClinics uint64
	if err := s.conn.QueryRow(ctx, "SELECT count() FROM clinic_scores").Scan(&scoredClinics); err != nil {
		return Result{}, fmt.Errorf("count scores: %w", err)
	}

	distribution, err := s.tierDistribution(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read distribution: %w", err)
	}

	verification, err := s.warehouseTopProspects(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read top prospects: %w", err)
	}

	result.Success = true
	result.Mode = "ml"
	result.ScoredClinics = int(scoredClinics)
	result.Distribution = distribution
	result.Verification = verification
	return result, nil
}

func (s *Scorer) trainModel(ctx context.Context) error {
	return s.conn.Exec(ctx, fmt.Sprintf(`
		CREATE OR REPLACE TABLE propensity_model ENGINE = Memory AS
		SELECT stochasticLogisticRegressionState(0.05, 0.1, 15, 'SGD')(
			toUInt8(converted), %s
		) AS state
		FROM clinics
	`, featureColumns))
}

// evaluateModel reports training-set metrics at the 0.5 threshold.
// precision and recall guard their denominators, so a degenerate model
// reports zeros instead of failing the job.
func (s *Scorer) evaluateModel(ctx context.Context) (Result, error) {
	var result Result
	err := s.conn.QueryRow(ctx, fmt.Sprintf(`
		SELECT
			countIf((prob >= %[1]f) = (label = 1)) / count() AS accuracy,
			countIf(prob >= %[1]f AND label = 1) / greatest(countIf(prob >= %[1]f), 1) AS precision,
			countIf(prob >= %[1]f AND label = 1) / greatest(countIf(label = 1), 1) AS recall,
			arrayAUC(groupArray(prob), groupArray(label)) AS roc_auc
		FROM (
			SELECT toUInt8(converted) AS label, evalMLMethod(state, %[2]s) AS prob
			FROM clinics CROSS JOIN propensity_model
		)
	`, predictionCutoff, featureColumns)).Scan(
		&result.Accuracy, &result.Precision, &result.Recall, &result.RocAuc)
	if err != nil {
		return Result{}, err
	}

	if result.Precision+result.Recall > 0 {
		result.F1Score = 2 * result.Precision * result.Recall / (result.Precision + result.Recall)
	}
	return result, nil
}

func (s *Scorer) tierDistribution(ctx context.Context) (map[string]int, error) {
	rows, err := s.conn.Query(ctx,
		"SELECT propensity_tier, count() FROM clinic_scores GROUP BY propensity_tier")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	distribution := map[string]int{"hot": 0, "warm": 0, "cold": 0}
	for rows.Next() {
		var (
			tier  string
			count uint64
		)
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, err
		}
		distribution[tier] = int(count)
	}
	return distribution, rows.Err()
}

func (s *Scorer) warehouseTopProspects(ctx context.Context) ([]Prospect, error) {
	rows, err := s.conn.Query(ctx, fmt.Sprintf(`
		SELECT c.clinic_id, c.name, c.city, c.state, c.phone, c.email,
		       s.propensity_score, s.propensity_tier
		FROM clinic_scores AS s
		INNER JOIN clinics AS c ON c.clinic_id = s.clinic_id
		WHERE s.propensity_tier IN ('hot', 'warm')
		  AND NOT c.converted
		  AND (c.last_outreach_date IS NULL OR c.last_outreach_date < now() - INTERVAL 30 DAY)
		ORDER BY s.propensity_score DESC
		LIMIT %d
	`, topProspectLimit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var prospects []Prospect
	for rows.Next() {
		var p Prospect
		if err := rows.Scan(&p.ClinicID, &p.Name, &p.City, &p.State, &p.Phone, &p.Email,
			&p.Score, &p.Tier); err != nil {
			return nil, err
		}
		prospects = append(prospects, p)
	}
	return prospects, rows.Err()
}

func (s *Scorer) writeScores(ctx context.Context, scored []Prospect, mode string, now time.Time) error {
	if err := s.conn.Exec(ctx, "TRUNCATE TABLE clinic_scores"); err != nil {
		return err
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO clinic_scores (clinic_id, propensity_score, propensity_tier, mode, scored_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	for _, p := range scored {
		if err := batch.Append(p.ClinicID, p.Score, p.Tier, mode, now); err != nil {
			return err
		}
	}
	return batch.Send()
}

// topProspects sorts eligible candidates score-descending with a stable
// id tie-break and applies the report limit.
func topProspects(eligible []Prospect) []Prospect {
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Score != eligible[j].Score {
			return eligible[i].Score > eligible[j].Score
		}
		return eligible[i].ClinicID < eligible[j].ClinicID
	})
	if len(eligible) > topProspectLimit {
		eligible = eligible[:topProspectLimit]
	}
	return eligible
}

func pastCooldown(lastOutreach *time.Time, now time.Time) bool {
	return lastOutreach == nil || now.Sub(*lastOutreach) > outreachCooldown
}
