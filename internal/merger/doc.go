// Package merger drains the worker outputs of every family and counts
// completions; it is the only termination condition of the pipeline.
//
// The merger visits each family's output channels in the same round-robin
// order the generator used to fan the items out. Combined with per-channel
// FIFO this means the k-th digest drained for a family is the digest of
// item k, which lets Run verify every digest against the family function
// when Family.Verify is set. Run returns after exactly N digests per family.
package merger
