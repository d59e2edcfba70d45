// Package app composes the hub: it turns a loaded config into the session
// gateway, the material store, the board workspaces and the HTTP API, and
// runs the HTTP server until its context ends.
//
// Dependency direction:
//
//	cmd/hub
//	   │
//	   ▼
//	internal/app ──► internal/httpapi ──► internal/dashboard ──► internal/ordering
//	   │                                        │
//	   ├──► internal/session                    └──► internal/material (+ postgres)
//	   └──► supabase/client
package app
