// Package waystone provides a Go client SDK for the Waystone REST API.
//
// The client handles OAuth2 client-credentials authentication with proactive
// token refresh, sliding-window rate limiting recalibrated from server
// headers, bounded exponential-backoff retries, and a cap on simultaneously
// in-flight requests. Resource payloads are transported as opaque JSON.
//
// Basic usage:
//
//	client, err := waystone.New(clientID, clientSecret)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	tickets := client.Resource("Tickets")
//
//	page, err := tickets.List(ctx,
//	    waystone.WithFilter(waystone.Eq("status", 1).And(waystone.Contains("title", "outage"))),
//	    waystone.WithPageSize(50),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, item := range page.Items {
//	    var meta waystone.Meta
//	    _ = json.Unmarshal(item, &meta)
//	    fmt.Println(meta.ID)
//	}
//
// Errors are classified by kind and match package sentinels with errors.Is:
//
//	if errors.Is(err, waystone.ErrRateLimited) {
//	    // retries were already exhausted by the client
//	}
package waystone
