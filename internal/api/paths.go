package api

import "strings"

// unauthenticatedPaths never carry the bearer token. Matching is by substring
// on the resolved path, so "/tickets/" also covers every ticket detail and
// action endpoint and "/users/" covers user administration. That is wider
// than the backend's public surface; set Config.StrictAuth to send the token
// everywhere until the backend's authorization policy is confirmed.
var unauthenticatedPaths = []string{
	"/auth/login/",
	"/auth/token/refresh/",
	"/tickets/",
	"/categories/",
	"/priorities/",
	"/statuses/",
	"/channels/",
	"/users/",
	"/responses/",
	"/logs/",
}

func IsUnauthenticatedPath(path string) bool {
	for _, p := range unauthenticatedPaths {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}
