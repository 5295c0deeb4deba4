/*
	Package dvid provides types, constants, and functions that have no other dependencies
	and can be used by all packages within voxflow.  This includes regions of interest,
	halo computation, dense n-d arrays, block indexing, serialization, the error taxonomy
	and the package-level logger.  Since these elements are used at multiple layers, we
	separate them here and allow reuse in layer-specific types through embedding.
*/
package dvid
