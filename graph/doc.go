/*
	Package graph wires operators into a directed acyclic dataflow graph.

	Operators own input and output slots.  An input is either connected to exactly one
	upstream output, set to a parameter value, or, inside a composite operator, made to
	follow an input of the enclosing operator.  Outputs fan out to any number of inputs
	and may forward to an output of an inner operator.

	Whenever every required input of an operator is ready, its SetupOutputs is called
	and its consumers are set up in turn.  Pulling a region from an output calls the
	operator's Execute with a buffer of exactly that region's size.  Marking a region of
	an output dirty calls PropagateDirty on every consumer, which marks the affected
	regions of its own outputs dirty, and so on downstream.

	Topology and parameter changes must not run concurrently with each other or with
	data requests.  Graph.Mutate serializes writers.
*/
package graph
