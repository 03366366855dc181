// Package report assembles the final deliverable of a terminal task: the
// stage reports, the corrected artifact, diff stats, and the quality score.
package report
