// Package pagination walks paged Ghost Admin API collections to exhaustion.
//
// Ghost browse responses carry a meta.pagination block whose next field is
// the page number to request after the current one, or null on the last
// page. The paginator requests page 1, appends its items, then follows next
// until it is null. Pages are requested strictly in sequence because each
// request depends on the cursor returned by the previous one.
//
// Example usage:
//
//	q, _ := query.Build(query.Tags, query.Args{})
//	p := pagination.New[client.Entity](ghost.Resource(query.Tags), pagination.DefaultConfig())
//	tags, err := p.Discover(ctx, q)
//
// A paginator:
//   - Returns every item exactly once, in page-concatenation order
//   - Fails the whole discovery on the first page error (no partial result)
//   - Rejects a next cursor that does not advance (ErrNonMonotonicCursor)
//   - Reports progress to an optional Progress observer
//   - Answers count-only questions with a single request (Count)
package pagination
