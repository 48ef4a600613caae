// Package decision holds the pure watering decision engine. It performs no
// I/O: callers sum the ledger's maps and the water log into inches and the
// engine compares the total against the weekly target for the lawn profile.
package decision

import (
	"lawncast/internal/types"
)

// Verdict is the outcome of a weekly watering decision.
type Verdict string

const (
	VerdictWater   Verdict = "water"
	VerdictNoWater Verdict = "no_water"
)

// forecastProbabilityFloor is the minimum probability for a forecast date's
// amount to count toward the projected total.
const forecastProbabilityFloor = 0.6

// weeklyTargets maps climate zone and sun exposure to the weekly water
// requirement in inches.
var weeklyTargets = map[types.ClimateZone]map[types.SunExposure]float64{
	types.ZoneCool: {
		types.SunFull:    1.0,
		types.SunPartial: 0.75,
		types.SunShade:   0.5,
	},
	types.ZoneWarm: {
		types.SunFull:    0.75,
		types.SunPartial: 0.5,
		types.SunShade:   0.4,
	},
	types.ZoneTransition: {
		types.SunFull:    0.85,
		types.SunPartial: 0.65,
		types.SunShade:   0.45,
	},
}

// WeeklyTarget returns the weekly water requirement in inches for the given
// climate zone and sun exposure. Unknown combinations fall back to the
// cool-season full-sun requirement, the most conservative entry in the table.
func WeeklyTarget(zone types.ClimateZone, sun types.SunExposure) float64 {
	if bySun, ok := weeklyTargets[zone]; ok {
		if target, ok := bySun[sun]; ok {
			return target
		}
	}
	return weeklyTargets[types.ZoneCool][types.SunFull]
}

// Input carries the pre-summed water contributions for the current week.
type Input struct {
	// RainPast is observed rainfall so far this week, inches.
	RainPast float64
	// RainForecast is the probability-gated forecast total for the rest of
	// the week, inches.
	RainForecast float64
	// LoggedWater is manual watering converted to inches.
	LoggedWater float64

	Zone        types.ClimateZone
	SunExposure types.SunExposure
}

// Result is the weekly watering recommendation.
type Result struct {
	Decision       Verdict `json:"decision"`
	TotalProjected float64 `json:"totalProjected"`
	WeeklyTarget   float64 `json:"weeklyTarget"`
	// Progress is TotalProjected / WeeklyTarget capped at 1.
	Progress float64 `json:"progress"`
}

// Decide compares the projected weekly water total against the target.
// Meeting the target exactly counts as met.
func Decide(in Input) Result {
	target := WeeklyTarget(in.Zone, in.SunExposure)
	total := in.RainPast + in.RainForecast + in.LoggedWater

	verdict := VerdictNoWater
	if total < target {
		verdict = VerdictWater
	}

	progress := 0.0
	if target > 0 {
		progress = total / target
		if progress > 1 {
			progress = 1
		}
	}

	return Result{
		Decision:       verdict,
		TotalProjected: total,
		WeeklyTarget:   target,
		Progress:       progress,
	}
}

// SumObserved totals the observed map's amounts.
func SumObserved(observed types.PrecipMap) float64 {
	var total float64
	for _, v := range observed {
		total += v.Amount
	}
	return total
}

// SumForecast totals the forecast map's amounts, counting a date only when
// its probability clears the confidence floor.
func SumForecast(forecast types.PrecipMap) float64 {
	var total float64
	for _, v := range forecast {
		if v.Probability >= forecastProbabilityFloor {
			total += v.Amount
		}
	}
	return total
}

// MinutesToInches converts sprinkler run time to applied water depth.
func MinutesToInches(minutes int, ratePerHour float64) float64 {
	return float64(minutes) / 60 * ratePerHour
}

// SumLoggedWater converts the week's manual watering log to inches.
func SumLoggedWater(entries []types.WaterLogEntry, ratePerHour float64) float64 {
	var total float64
	for _, e := range entries {
		total += MinutesToInches(e.Minutes, ratePerHour)
	}
	return total
}
