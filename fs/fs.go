package appfs

import "embed"

// FS holds all static files the app needs at runtime:
// goose migrations and bundled assets (common password list).
//
//go:embed migrations assets
var FS embed.FS
