// Package testutil holds helpers shared by package tests.
package testutil

import "strings"

// WSURL turns an httptest server URL into a websocket URL for path.
//
//	srv := httptest.NewServer(hub.Handler())
//	url := testutil.WSURL(srv.URL, "")
func WSURL(httpURL, path string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://") + path
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://") + path
	}
	return httpURL + path
}
