package series

// Periods of the day, by clock hour
const (
	Night     = "night"     // 0-6
	Morning   = "morning"   // 7-10
	Midday    = "midday"    // 11-13
	Afternoon = "afternoon" // 14-17
	Evening   = "evening"   // 18-23
)

// Daytime returns the period of the day containing hour (0-23)
func Daytime(hour int) string {
	switch {
	case hour <= 6:
		return Night
	case hour < 11:
		return Morning
	case hour < 14:
		return Midday
	case hour < 18:
		return Afternoon
	default:
		return Evening
	}
}

// Price converts a consumption in Wh to its cost at tariff per kWh
func Price(consumption, tariff float64) float64 {
	return consumption * tariff / 1000
}
