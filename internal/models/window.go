package models

import "time"

// Window is one lookback horizon in the fixed delta window set.
type Window struct {
	Key      string
	Lookback time.Duration
}

// windowSet is the canonical ordered window set shared by the delta engine,
// classifier, alerter, and read API. Order matters: shortest first.
var windowSet = []Window{
	{Key: "1m", Lookback: time.Minute},
	{Key: "5m", Lookback: 5 * time.Minute},
	{Key: "10m", Lookback: 10 * time.Minute},
	{Key: "30m", Lookback: 30 * time.Minute},
	{Key: "1h", Lookback: time.Hour},
	{Key: "6h", Lookback: 6 * time.Hour},
	{Key: "12h", Lookback: 12 * time.Hour},
	{Key: "24h", Lookback: 24 * time.Hour},
}

func Windows() []Window {
	out := make([]Window, len(windowSet))
	copy(out, windowSet)
	return out
}

func WindowKeys() []string {
	keys := make([]string, 0, len(windowSet))
	for _, w := range windowSet {
		keys = append(keys, w.Key)
	}
	return keys
}

func WindowByKey(key string) (Window, bool) {
	for _, w := range windowSet {
		if w.Key == key {
			return w, true
		}
	}
	return Window{}, false
}

// DeltaColumn maps a window key to its deltas table column.
func DeltaColumn(key string) string {
	return "delta_" + key
}

// TruncateMinute floors a timestamp to its UTC minute boundary. Every tick in
// the pipeline is quantized through this so temporal joins line up exactly.
func TruncateMinute(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}
