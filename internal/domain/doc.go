// Package domain models stations, products, and observation series retrieved
// from three public monitoring services.
//
// # Data Sources
//
// USGS National Water Information System (NWIS):
//
//	Site inventory:        https://nwis.waterdata.usgs.gov/nwis/inventory (rdb)
//	Instantaneous values:  https://nwis.waterservices.usgs.gov/nwis/iv/   (rdb, 15-minute)
//	Daily values:          https://waterservices.usgs.gov/nwis/dv/       (rdb, daily mean)
//
// NOAA CO-OPS data getter:
//
//	https://api.tidesandcurrents.noaa.gov/api/prod/datagetter (csv)
//
// EPA Water Quality Portal (WQP):
//
//	Station search: https://www.waterqualitydata.us/data/Station/search (zipped csv)
//	Result search:  https://www.waterqualitydata.us/data/Result/search  (zipped csv)
//
// # rdb Format
//
// USGS rdb bodies are tab-delimited. A preamble of lines beginning with "#"
// precedes the header. The header line for the inventory begins with
// "agency_cd". The line immediately after the header is a column format row
// such as "5s\t15s\t20d" and carries no data.
//
// # Date Encodings
//
// Each service spells dates differently:
//
//	USGS  2024-01-31          (YYYY-MM-DD)
//	NOAA  20240131 23:59      (YYYYMMDD HH:mm)
//	WQP   01-31-2024          (MM-DD-YYYY)
//
// # Sentinel Rows
//
// NOAA answers a query for a product a station does not carry with a CSV whose
// only row reads "Error: No data was found. This product may not be offered at
// this station at the requested time." in the date/time column. Such rows are
// never data and are dropped before numeric coercion.
//
// # Quality Flags
//
// USGS instantaneous values carry a qualification code next to each value:
// "A" (approved for publication), "P" (provisional, subject to revision), and
// compound forms such as "A:e" (approved, estimated). Classification into
// [QualityApproved], [QualityProvisional], and [QualityOther] only affects how
// series are grouped for display.
package domain
