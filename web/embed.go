// Package web holds the embedded capture script served to tenant pages.
package web

import _ "embed"

// TrackingScript is the raw capture script. The script handler prepends a
// per-tenant configuration prelude before serving it.
//
//go:embed tracking.js
var TrackingScript []byte
