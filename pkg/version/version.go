// Package version records the client version reported to the remote
// endpoint in the X-CLIENT-VERSION header.
package version

// Version is the uplink-go client version. Fixed per build.
const Version = "0.3.0"

// String returns the full client identification string.
func String() string {
	return "uplink-go/" + Version
}
