// Package schedule computes delivery and generation-start instants from a
// project's cadence configuration.
//
// The calculator is pure: "now" is always an explicit parameter and the
// functions hold no state, which keeps the surrounding state machine
// deterministic under test. Timezone math is DST-safe by construction.
package schedule
