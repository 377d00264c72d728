// Package probe issues timed HTTP probes against the backend under test and
// tracks each probe's lifecycle.
//
// A Probe starts Waiting and moves exactly once to Success or Error. Probes
// are collected in an append-only Sequence read concurrently by the
// dashboard. The Sequencer creates one probe per interval, fetches each one
// in its own goroutine, and asks a Relauncher to restart the backends once
// the trigger index is reached.
package probe
