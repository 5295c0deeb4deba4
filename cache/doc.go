/*
	Package cache materializes operator outputs as a grid of fixed-shape blocks.

	A Store computes whole blocks on demand through an upstream compute function and
	serves any region of interest by copying from the blocks that overlap it.  Blocks are
	invalidated lazily by SetDirty and recomputed on the next request, except while the
	store is fixed, when stale content is served instead.  At most one computation per
	block runs at a time and concurrent requesters of the same block share its outcome.

	Resident block data may be bounded by a byte budget.  Least recently used blocks that
	are neither being computed nor read are evicted first, optionally into a compressed
	in-memory tier from which they can be restored without recomputation.
*/
package cache
