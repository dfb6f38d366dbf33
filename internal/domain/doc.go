// Package domain models the station, period, and artifact vocabulary shared by
// the air-quality / weather acquisition pipeline.
//
// # Data Sources
//
// Air-quality readings and station metadata come from the Polish air-quality
// monitoring dataset published on Kaggle
// (wisekinder/poland-air-quality-monitoring-dataset-2017-2023). Hourly weather
// history comes from the Open-Meteo archive API at
// https://archive-api.open-meteo.com/v1/archive.
//
// # Station Identifiers
//
// Pollutant reading files carry one column per station. Column headers look
// like "DsWrocAlWisn-PM10-1g": the part before the first dash is the raw
// station id as used by the reading file. The metadata file keys stations by
// "StationID" (e.g. "DsWrocAlWisn"). Reconciliation maps the raw id to the
// first metadata StationID containing the leading letters of the raw id.
//
// Roster format (CSV, comma separated):
//
//	OriginalID,MatchedStationID,Latitude,Longitude,Number,InternationalStationID
//
// Latitude and Longitude stay decimal strings end to end; they are copied into
// archive requests verbatim so a station's request is byte-for-byte stable.
//
// # Artifacts
//
// One artifact per (station, period):
//
//	<base>/<year>/openmeteo_<OriginalID>_<year>.csv
//
// The file's presence is the only completion marker. Writes go through a
// temporary file prefixed with [TempPrefix] and are renamed into place, so a
// killed process never leaves a truncated artifact under its final name.
//
// # Outcomes
//
// A fetch pass reports one of [OutcomeComplete], [OutcomeBudgetExhausted],
// [OutcomeFailed], or [OutcomeCancelled]. Only Complete ends the retry loop for
// a period.
package domain
