// Package migrations holds the tracking store schema. The SQL files are
// compiled into the binary so cmd/migrate works without a checkout.
package migrations

import "embed"

// FS contains every *.sql migration in golang-migrate naming.
//
//go:embed *.sql
var FS embed.FS
