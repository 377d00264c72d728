/*
Package tui renders the live probe table.

# Architecture

The dashboard follows the Bubble Tea Model-Update-View pattern:
  - model.go: Dashboard model, tick scheduling and quit handling
  - keys.go: Key bindings and help
  - render.go: Styles and the top-level view
  - table.go: Fixed-width table layout shared with headless output

Every tick the model copies the probe sequence and the relaunch report; the
view is built from those copies only. Probes are owned by their fetch
goroutines and are never mutated here.
*/
package tui
