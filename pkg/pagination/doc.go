// Package pagination pages through Pure API collections.
//
// Pure collection endpoints take size and offset and report count, the total
// number of records matching the query. A Paginator first probes with size=0
// to read count, then requests ceil(count/size) contiguous windows:
//
//	window i covers offsets [i*size, (i+1)*size)
//
// The sequences returned by Paginator are lazy. Nothing is requested until
// the caller ranges over them, exactly one request is in flight at a time,
// and breaking out of the loop stops all further requests.
//
// Example usage:
//
//	p := pagination.New(pureClient, pagination.DefaultConfig())
//	for page, err := range p.All(ctx, "research-outputs", url.Values{"size": {"100"}}) {
//	    if err != nil {
//	        return err
//	    }
//	    process(page.Items)
//	}
//
// BatchFetcher is the eager alternative: it fetches every window of a query
// with a bounded worker pool and returns the pages in window order. It is
// opt-in; nothing else in the module runs requests concurrently.
package pagination
