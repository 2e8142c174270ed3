package ledger

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DayTotal is one day's entry in a Report.
type DayTotal struct {
	Date    string  `json:"date"`
	SpendUSD float64 `json:"spend_usd"`
}

// reportClaims is the JWT payload backing budget.report(days) (SPEC_FULL.md
// §4.3 expansion): a tamper-evident digest a downstream cost dashboard can
// verify came from this process unedited.
type reportClaims struct {
	jwt.RegisteredClaims
	Days  []DayTotal `json:"days"`
	Total float64    `json:"total_usd"`
}

// Report returns an HS256-signed JWT whose claims carry the daily spend
// totals for the trailing `days` days, keyed by signingSecret.
func (l *Ledger) Report(ctx context.Context, days int, signingSecret []byte) (string, error) {
	totals, total, err := l.dailyTotals(ctx, days)
	if err != nil {
		return "", err
	}

	claims := reportClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
			Issuer:   "llmgate-ledger",
		},
		Days:  totals,
		Total: total,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(signingSecret)
}

// VerifyReport validates a token produced by Report and returns its claims.
func VerifyReport(token string, signingSecret []byte) (*reportClaims, error) {
	claims := &reportClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return signingSecret, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (l *Ledger) dailyTotals(ctx context.Context, days int) ([]DayTotal, float64, error) {
	now := time.Now()
	out := make([]DayTotal, 0, days)
	var grand float64

	for i := days - 1; i >= 0; i-- {
		day := localMidnight(now.AddDate(0, 0, -i))
		next := day.Add(24 * time.Hour)

		var sum float64
		err := l.store.db.WithContext(ctx).Raw(`
			SELECT COALESCE(SUM(cost_actual_usd), 0) FROM events
			WHERE event_type IN ('commit', 'adjust') AND timestamp >= ? AND timestamp < ?
		`, float64(day.Unix()), float64(next.Unix())).Scan(&sum).Error
		if err != nil {
			return nil, 0, err
		}

		out = append(out, DayTotal{Date: day.Format("2006-01-02"), SpendUSD: sum})
		grand += sum
	}

	return out, grand, nil
}

// Top implements budget.top(by) (spec §6): the highest-spend models or
// providers over the full ledger history, grouped by the requested key.
func (l *Ledger) Top(ctx context.Context, by string, limit int) ([]TopEntry, error) {
	col := "model"
	if by == "provider" {
		col = "provider"
	}

	var rows []TopEntry
	err := l.store.db.WithContext(ctx).Raw(`
		SELECT `+col+` AS key, COALESCE(SUM(cost_actual_usd), 0) AS spend_usd
		FROM events
		WHERE event_type IN ('commit', 'adjust')
		GROUP BY `+col+`
		ORDER BY spend_usd DESC
		LIMIT ?
	`, limit).Scan(&rows).Error
	return rows, err
}

// TopEntry is one row of budget.top(by)'s result.
type TopEntry struct {
	Key      string  `json:"key"`
	SpendUSD float64 `json:"spend_usd"`
}
