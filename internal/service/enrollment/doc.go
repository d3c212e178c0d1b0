// Package enrollment turns a trigger firing for one recipient into the full
// set of scheduled delivery records for a campaign's sequence.
//
// Every step's send time is computed from the trigger time, not from the
// previous step: a sequence of delays 0d, 2d, 5d sends on day 0, 2 and 5.
package enrollment
