package agentpool

import "time"

// epochSeconds renders n as an RFC 3339 / ISO-8601 UTC timestamp, treating n
// as a Unix epoch second count.
func epochSeconds(n int64) string {
	return time.Unix(n, 0).UTC().Format(time.RFC3339)
}
