// SPDX-License-Identifier: MIT

package cachemgr

import (
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/ManuGH/offlinekit/internal/manifest"
)

// Class selects the fetch policy for a request.
type Class string

const (
	ClassNavigation  Class = "navigation"
	ClassPrecache    Class = "precache"
	ClassRuntime     Class = "runtime"
	ClassPassthrough Class = "passthrough"
)

// Classify resolves the policy for r against the active manifest.
func (m *Manager) Classify(r *http.Request) Class {
	m.mu.RLock()
	var man *manifest.Manifest
	if m.active != nil {
		man = m.active.manifest
	}
	m.mu.RUnlock()
	return classify(r, m.origin, man)
}

func classify(r *http.Request, origin *url.URL, man *manifest.Manifest) Class {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return ClassPassthrough
	}
	if r.URL.IsAbs() && !strings.EqualFold(r.URL.Host, origin.Host) {
		return ClassPassthrough
	}
	if isNavigation(r) {
		return ClassNavigation
	}
	if man != nil && man.Contains(requestKey(r.URL)) {
		return ClassPrecache
	}
	return ClassRuntime
}

// isNavigation matches page loads: Sec-Fetch-Mode navigate, or an Accept
// header whose first preference is HTML.
func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	accept := r.Header.Get("Accept")
	if accept == "" {
		return false
	}
	first, _, _ := strings.Cut(accept, ",")
	mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(first))
	return err == nil && mediaType == "text/html"
}

// requestKey is the cache key: path plus query when present.
func requestKey(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		return path + "?" + u.RawQuery
	}
	return path
}
