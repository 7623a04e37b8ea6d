/*Package dedup marks or removes PCR duplicate reads in coordinate-sorted
  BAM files, optionally feeding the surviving reads into a base quality
  recalibration model.

  Two reads are duplicate candidates when their reference, unclipped 5'
  position, strand, and library are all identical. Two pairs are
  duplicates of each other when both of their reads are pairwise
  duplicate candidates. Among competing candidates exactly one survivor
  is kept: the one with the highest sum of base qualities at or above a
  phred floor, with ties broken toward the record that appears earlier in
  the input. Pairs are given priority over unpaired reads at the same
  key.

  The input is streamed twice. Pass 1 runs every mapped record through a
  decision engine that keeps the currently open candidates in three
  position-ordered maps (single-read loci, pair loci, and reads waiting
  for a mate further down the stream). Because the input is coordinate
  sorted, everything behind the current position is final: whenever the
  coordinate advances, entries strictly before it are flushed, their
  records released, and unmatched waiting reads counted as missing
  mates. Pass 1 produces a sorted list of duplicate record indices. Pass
  2 re-reads the input, co-iterates that list, sets (or, with Force,
  clears) the duplicate flag, and writes the output in the original
  record order.

  Memory is bounded by the number of simultaneously open loci, not by
  file size: records are recycled through the hts free pool and a
  capacity limit makes pathological inputs fail fast instead of
  swallowing all memory.
*/
package dedup
