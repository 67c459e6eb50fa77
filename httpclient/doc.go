// Package httpclient is a REST client whose calls pass through a pipeline
// of stages before reaching the transport:
//
//	throttle -> connectivity -> auth -> cache -> retry -> transport
//
// Each stage sees the request on the way out (OnRequest), successful and
// 304 responses on the way back (OnResponse) and failures (OnError). A
// stage can short-circuit the call, fail it, or replay it from the first
// stage with the same Call, which keeps headers, the retry counter and the
// auth replay marker.
//
// Whatever error survives the pipeline is mapped into a *Failure with one
// of a closed set of kinds; no other error type leaves the client.
//
//	c, err := httpclient.NewBuilder(log).
//		WithBaseURL("https://api.example.com").
//		WithAuth(tokens, httpclient.AuthOptions{}).
//		WithCache(store, httpclient.CacheOptions{DefaultTTL: time.Minute}).
//		WithRetry(httpclient.DefaultRetryPolicy()).
//		Build()
//
//	resp, err := c.Get(ctx, &httpclient.Request{Path: "/rides"})
//	if httpclient.IsKind(err, httpclient.KindNotFound) { ... }
package httpclient
