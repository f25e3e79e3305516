// Package viz renders a solver run in the terminal.
//
// [Tracker] is a Bubble Tea model that draws a side view of the arm on a
// braille [Canvas]: the path projected onto the arm's vertical plane, the
// target, any announced obstacle and the arm posed at the newest path
// sample. A side panel shows run status and a fitness chart.
//
// # Key Bindings
//
//	N - Submit a random target
//	R - Resubmit the current target
//	Q - Quit
package viz
