package marketdata

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/raksha-rane/stratify/internal/apperrors"
	"github.com/raksha-rane/stratify/internal/utils"
	"github.com/raksha-rane/stratify/pkg/formulas"
)

// ValidatorConfig holds the quality check thresholds
type ValidatorConfig struct {
	MaxPriceChangePct float64
	MaxDateGapDays    int
	OutlierDetection  bool
}

// DefaultValidatorConfig returns 50% max daily move, 5 day gaps and outlier detection on
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxPriceChangePct: 50,
		MaxDateGapDays:    5,
		OutlierDetection:  true,
	}
}

// Date range limits
const (
	MaxRangeDays = 365 * 20
)

var (
	tickerPattern = regexp.MustCompile(`^[A-Z0-9.\-^]{1,10}$`)
	earliestDate  = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
)

// ValidateTicker normalises and checks a ticker symbol
func ValidateTicker(raw string) (string, error) {
	ticker := utils.NormalizeTicker(raw)
	if ticker == "" {
		return "", apperrors.Validation("ticker is required")
	}
	if !tickerPattern.MatchString(ticker) {
		return "", apperrors.Validation("Invalid ticker symbol format").WithDetail("ticker", raw)
	}
	return ticker, nil
}

// ValidateDateRange parses YYYY-MM-DD bounds and checks order, future end,
// maximum span and the 1970 floor.
func ValidateDateRange(start, end string, now time.Time) (time.Time, time.Time, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.Validation("Invalid start_date format, expected YYYY-MM-DD").WithDetail("start_date", start)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.Validation("Invalid end_date format, expected YYYY-MM-DD").WithDetail("end_date", end)
	}

	switch {
	case s.After(e):
		return s, e, apperrors.Validation("Start date must be before end date")
	case e.After(now):
		return s, e, apperrors.Validation("End date cannot be in the future")
	case s.Before(earliestDate):
		return s, e, apperrors.Validation("Start date too old (before 1970-01-01)")
	}

	if days := int(e.Sub(s).Hours() / 24); days > MaxRangeDays {
		return s, e, apperrors.Validation("Date range too large: %d days (max: %d)", days, MaxRangeDays)
	}
	return s, e, nil
}

// ValidateOHLCV runs the quality checks over bars in order: missing values,
// high/low ordering, open/close inside the range, negative and zero prices,
// duplicate dates, date gaps, outliers and volume.
func ValidateOHLCV(ticker string, bars []Bar, cfg ValidatorConfig) *QualityReport {
	report := &QualityReport{
		Ticker:         ticker,
		ValidatedAt:    time.Now(),
		Valid:          true,
		RecordCount:    len(bars),
		CriticalIssues: []string{},
		Warnings:       []string{},
	}

	if len(bars) == 0 {
		report.critical("No records returned")
		return report
	}

	clean := checkMissing(report, bars)
	if len(clean) == 0 {
		report.critical("No valid records after removing missing values")
		return report
	}

	checkPriceRelationships(report, clean)
	checkPriceSigns(report, clean)
	checkDates(report, bars, clean, cfg.MaxDateGapDays)
	if cfg.OutlierDetection && len(clean) > 1 {
		checkOutliers(report, clean, cfg.MaxPriceChangePct)
	}
	checkVolume(report, clean)

	report.Stats.PriceStatistics = priceStatistics(clean)
	report.QualityScore = qualityScore(report)
	return report
}

func isMissing(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// CleanBars returns the bars whose OHLC fields are all finite. These are the
// rows ValidateOHLCV checks and the only rows that can be stored.
func CleanBars(bars []Bar) []Bar {
	clean := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if !isMissing(b.Open) && !isMissing(b.High) && !isMissing(b.Low) && !isMissing(b.Close) {
			clean = append(clean, b)
		}
	}
	return clean
}

func checkMissing(report *QualityReport, bars []Bar) []Bar {
	columns := []struct {
		name string
		get  func(Bar) float64
	}{
		{"open", func(b Bar) float64 { return b.Open }},
		{"high", func(b Bar) float64 { return b.High }},
		{"low", func(b Bar) float64 { return b.Low }},
		{"close", func(b Bar) float64 { return b.Close }},
	}

	total := 0
	for _, col := range columns {
		count := 0
		for _, b := range bars {
			if isMissing(col.get(b)) {
				count++
			}
		}
		if count == 0 {
			continue
		}
		total += count
		pct := float64(count) / float64(len(bars)) * 100
		msg := fmt.Sprintf("Column '%s' has %d null values (%.1f%%)", col.name, count, pct)
		if pct > 10 {
			report.critical(msg)
		} else {
			report.warn(msg)
		}
	}
	report.Stats.MissingValues = total

	clean := CleanBars(bars)
	report.Stats.ValidRecords = len(clean)
	report.Stats.DroppedRecords = len(bars) - len(clean)
	return clean
}

func checkPriceRelationships(report *QualityReport, bars []Bar) {
	var highLow, badOpen, badClose int
	for _, b := range bars {
		if b.High < b.Low {
			highLow++
		}
		if b.Open > b.High || b.Open < b.Low {
			badOpen++
		}
		if b.Close > b.High || b.Close < b.Low {
			badClose++
		}
	}

	if highLow > 0 {
		report.critical(fmt.Sprintf("Found %d records where High < Low", highLow))
		report.Stats.HighLowViolations = highLow
	}

	for _, c := range []struct {
		field string
		count int
	}{{"Open", badOpen}, {"Close", badClose}} {
		if c.count == 0 {
			continue
		}
		pct := float64(c.count) / float64(len(bars)) * 100
		msg := fmt.Sprintf("Found %d records where %s is outside High-Low range (%.1f%%)", c.count, c.field, pct)
		if pct > 5 {
			report.critical(msg)
		} else {
			report.warn(msg)
		}
	}
}

func checkPriceSigns(report *QualityReport, bars []Bar) {
	names := []string{"open", "high", "low", "close"}
	negative := make([]int, 4)
	zero := make([]int, 4)

	for _, b := range bars {
		for i, v := range []float64{b.Open, b.High, b.Low, b.Close} {
			switch {
			case v < 0:
				negative[i]++
			case v == 0:
				zero[i]++
			}
		}
	}

	for i, name := range names {
		if negative[i] > 0 {
			report.critical(fmt.Sprintf("Found %d negative prices in '%s' column", negative[i], name))
		}
	}
	for i, name := range names {
		if zero[i] > 0 {
			report.warn(fmt.Sprintf("Found %d zero prices in '%s' column", zero[i], name))
		}
	}
}

func checkDates(report *QualityReport, all, clean []Bar, maxGapDays int) {
	seen := make(map[string]bool, len(all))
	duplicates := 0
	for _, b := range all {
		if seen[b.Date] {
			duplicates++
		}
		seen[b.Date] = true
	}
	if duplicates > 0 {
		report.critical(fmt.Sprintf("Found %d duplicate dates", duplicates))
		report.Stats.DuplicateDates = duplicates
	}

	dates := make([]time.Time, 0, len(clean))
	for _, b := range clean {
		d, err := time.Parse(DateLayout, b.Date)
		if err != nil {
			report.warn(fmt.Sprintf("Could not analyze date gaps: unparseable date %q", b.Date))
			return
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	gaps, maxGap := 0, 0
	for i := 1; i < len(dates); i++ {
		days := int(dates[i].Sub(dates[i-1]).Hours() / 24)
		maxGap = max(maxGap, days)
		if days > maxGapDays {
			gaps++
		}
	}
	report.Stats.DateGaps = gaps
	report.Stats.MaxGapDays = maxGap
	if gaps > 0 {
		report.warn(fmt.Sprintf("Found %d date gaps > %d days (max gap: %d days)", gaps, maxGapDays, maxGap))
	}
}

func checkOutliers(report *QualityReport, bars []Bar, maxChangePct float64) {
	closes := Closes(bars)

	extreme, maxChange := 0, 0.0
	for _, r := range formulas.CalculateReturns(closes) {
		change := math.Abs(r * 100)
		maxChange = math.Max(maxChange, change)
		if change > maxChangePct {
			extreme++
		}
	}
	if extreme > 0 {
		report.warn(fmt.Sprintf("Found %d price changes > %.0f%% (max change: %.1f%%)", extreme, maxChangePct, maxChange))
		report.Stats.PriceOutliers = extreme
		report.Stats.MaxChangePct = maxChange
	}

	outliers := 0
	for _, z := range formulas.ZScores(closes) {
		if math.Abs(z) > 3 {
			outliers++
		}
	}
	if outliers > 0 {
		report.warn(fmt.Sprintf("Found %d statistical price outliers (Z-score > 3)", outliers))
		report.Stats.StatisticalOutliers = outliers
	}
}

func checkVolume(report *QualityReport, bars []Bar) {
	var negative, zero int
	for _, b := range bars {
		switch {
		case b.Volume < 0:
			negative++
		case b.Volume == 0:
			zero++
		}
	}

	if negative > 0 {
		report.critical(fmt.Sprintf("Found %d records with negative volume", negative))
		report.Stats.NegativeVolume = negative
	}
	if zero > 0 {
		pct := float64(zero) / float64(len(bars)) * 100
		if pct > 10 {
			report.warn(fmt.Sprintf("Found %d records with zero volume (%.1f%%)", zero, pct))
		}
		report.Stats.ZeroVolume = zero
	}
}

func priceStatistics(bars []Bar) PriceStatistics {
	closes := Closes(bars)
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		volumes[i] = float64(b.Volume)
	}

	lo, hi := formulas.MinMax(closes)
	return PriceStatistics{
		CloseMin:   lo,
		CloseMax:   hi,
		CloseMean:  formulas.Mean(closes),
		CloseStd:   formulas.StdDev(closes),
		VolumeMean: formulas.Mean(volumes),
		VolumeStd:  formulas.StdDev(volumes),
	}
}

// qualityScore deducts 20 points per critical issue and 5 per warning, floored at 0
func qualityScore(r *QualityReport) float64 {
	score := 100 - 20*len(r.CriticalIssues) - 5*len(r.Warnings)
	return float64(max(0, score))
}
