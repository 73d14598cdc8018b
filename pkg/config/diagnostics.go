package config

import "mercator-hq/relay/pkg/diagnostics"

// Thresholds converts the hanging-request settings. Zero fields keep the
// registry defaults.
func (d DiagnosticsConfig) Thresholds() diagnostics.Thresholds {
	return diagnostics.Thresholds{
		MaxAge:           d.Hanging.MaxAge,
		MaxInactivity:    d.Hanging.MaxInactivity,
		MaxTimeoutEvents: d.Hanging.MaxTimeoutEvents,
		MaxResources:     d.Hanging.MaxResources,
	}
}

// AlertThresholds converts the sweep alert rates, falling back to the
// defaults for unset rates.
func (d DiagnosticsConfig) AlertThresholds() diagnostics.AlertThresholds {
	a := diagnostics.DefaultAlertThresholds()
	if d.Alerts.HangingRate > 0 {
		a.HangingRate = d.Alerts.HangingRate
	}
	if d.Alerts.LeakRate > 0 {
		a.LeakRate = d.Alerts.LeakRate
	}
	if d.Alerts.RaceRate > 0 {
		a.RaceRate = d.Alerts.RaceRate
	}
	if d.Alerts.TimeoutConflictRate > 0 {
		a.TimeoutConflictRate = d.Alerts.TimeoutConflictRate
	}
	return a
}
