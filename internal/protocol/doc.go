// Package protocol implements the line-oriented text stream spoken by path
// solvers.
//
// A solver writes one record per line:
//
//	START_PATH                               begin a path frame
//	<x> <y> <z>                              one path sample inside a frame
//	END_PATH                                 close the frame
//	STATS <gen> <best> <avg> <steps>         progress record
//	OBSTACLE <x> <y> <z> <radius>            obstacle announced by the solver
//
// Every other line is diagnostic noise and is ignored. The [Decoder] consumes
// lines incrementally and never fails: malformed records are dropped and
// incomplete frames are discarded. The [Encoder] produces the same format.
package protocol
