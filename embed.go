package clengine

import _ "embed"

// SchemaSQL is the full database schema, applied once on a fresh database.
//
//go:embed schema.sql
var SchemaSQL []byte
