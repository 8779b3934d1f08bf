// Package form implements per-node configuration forms with cascading
// dependent fields. There is no separate "Engine" type: Spec is the
// declarative schema (built once via Build), and Instance is the
// per-node mutable state (bound via Bind) — together they are the
// engine's public surface.
package form
