// Package generator produces the source sequence of the pipeline and fans
// it out round-robin to the worker stages of every family.
//
// For each index i in [0, N) the generator encodes i as a digest.Item and,
// for every family, pushes one copy into the channel selected by that
// family's cursor, then advances the cursor modulo the family's width.
// Families are partitioned, not broadcast within a family: each item reaches
// exactly one worker per family. After N items Run returns; no end-of-stream
// marker is sent.
package generator
