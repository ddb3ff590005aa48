//go:build !cgo
// +build !cgo

package state

import (
	_ "modernc.org/sqlite"
)

const sqliteDriver = "sqlite"
