package risk

// TimeRisk buckets the hour of day.
type TimeRisk string

const (
	TimeRiskHighNight    TimeRisk = "HIGH_NIGHT_RISK"
	TimeRiskEarlyMorning TimeRisk = "EARLY_MORNING_RISK"
	TimeRiskLateNight    TimeRisk = "LATE_NIGHT_RISK"
	TimeRiskNormal       TimeRisk = "NORMAL_TIME_RISK"
)

// LocationRisk buckets a location by exact membership.
type LocationRisk string

const (
	LocationRiskHigh   LocationRisk = "HIGH"
	LocationRiskMedium LocationRisk = "MEDIUM"
	LocationRiskLow    LocationRisk = "LOW"
)

var (
	highRiskLocations   = map[string]struct{}{"HighRisk": {}}
	mediumRiskLocations = map[string]struct{}{"MediumRisk": {}}
)

// ClassifyHour partitions 0-23: [0,4] high night, [5,7] early morning,
// [22,23] late night, everything else normal.
func ClassifyHour(hour int) TimeRisk {
	switch {
	case hour >= 0 && hour <= 4:
		return TimeRiskHighNight
	case hour >= 5 && hour <= 7:
		return TimeRiskEarlyMorning
	case hour >= 22 && hour <= 23:
		return TimeRiskLateNight
	default:
		return TimeRiskNormal
	}
}

// ClassifyLocation uses exact, case-sensitive matching, unlike the
// substring match the heuristic engine applies.
func ClassifyLocation(location string) LocationRisk {
	if _, ok := highRiskLocations[location]; ok {
		return LocationRiskHigh
	}
	if _, ok := mediumRiskLocations[location]; ok {
		return LocationRiskMedium
	}
	return LocationRiskLow
}

// Context holds both annotations for a transaction.
type Context struct {
	TimeRisk     TimeRisk     `json:"time_risk_factor"`
	LocationRisk LocationRisk `json:"location_risk_factor"`
}

// Annotate computes both context annotations.
func Annotate(hour int, location string) Context {
	return Context{
		TimeRisk:     ClassifyHour(hour),
		LocationRisk: ClassifyLocation(location),
	}
}
