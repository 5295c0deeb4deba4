/*
	Package request schedules lazy pulls of array regions on a bounded set of workers.

	A Request wraps one computation.  Requests run once they acquire a worker token from
	their Scheduler.  Code running inside a request may submit further requests and wait
	on them; while it waits, its token is returned to the scheduler so that the children
	can run even when every worker is busy.  A request does not resolve until every child
	it submitted has reached a terminal state.

	A Pool groups sibling requests so a caller can wait for all of them and get a single
	aggregated error.  Failure of one member never cancels the others.
*/
package request
