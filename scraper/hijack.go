package scraper

import (
	"strings"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// configToProto maps resource type names accepted in configuration to
// protocol resource types.
var configToProto = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
	"XHR":        proto.NetworkResourceTypeXHR,
	"Fetch":      proto.NetworkResourceTypeFetch,
	"Ping":       proto.NetworkResourceTypePing,
}

// adDomains lists ad and tracking hosts dropped when BlockAds is set.
var adDomains = map[string]struct{}{
	"doubleclick.net":        {},
	"googlesyndication.com":  {},
	"googleadservices.com":   {},
	"google-analytics.com":   {},
	"googletagmanager.com":   {},
	"googletagservices.com":  {},
	"facebook.net":           {},
	"connect.facebook.net":   {},
	"facebook.com":           {},
	"fbcdn.net":              {},
	"adnxs.com":              {},
	"adsrvr.org":             {},
	"amazon-adsystem.com":    {},
	"criteo.com":             {},
	"criteo.net":             {},
	"outbrain.com":           {},
	"taboola.com":            {},
	"moatads.com":            {},
	"pubmatic.com":           {},
	"rubiconproject.com":     {},
	"scorecardresearch.com":  {},
	"quantserve.com":         {},
	"hotjar.com":             {},
	"mixpanel.com":           {},
	"segment.io":             {},
	"segment.com":            {},
	"analytics.twitter.com":  {},
	"ads-twitter.com":        {},
	"static.ads-twitter.com": {},
	"chartbeat.com":          {},
	"chartbeat.net":          {},
	"optimizely.com":         {},
	"zedo.com":               {},
	"media.net":              {},
	"contextweb.com":         {},
	"bidswitch.net":          {},
	"openx.net":              {},
	"casalemedia.com":        {},
	"demdex.net":             {},
	"krxd.net":               {},
	"bluekai.com":            {},
	"exelator.com":           {},
	"turn.com":               {},
	"mathtag.com":            {},
	"serving-sys.com":        {},
	"eyeota.net":             {},
	"agkn.com":               {},
	"rlcdn.com":              {},
	"sharethis.com":          {},
	"addthis.com":            {},
	"consensu.org":           {},
}

// isAdDomain reports whether host or any parent domain is in adDomains.
func isAdDomain(host string) bool {
	host = strings.ToLower(host)
	if _, ok := adDomains[host]; ok {
		return true
	}
	// pagead2.googlesyndication.com → googlesyndication.com
	for {
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			break
		}
		host = host[idx+1:]
		if _, ok := adDomains[host]; ok {
			return true
		}
	}
	return false
}

// setupHijack installs a request interceptor on the page that fails
// requests for the blocked resource types and, when blockAds is set,
// requests to known ad and tracking hosts. Every dropped request is
// counted in blocked.
//
// Returns the running HijackRouter so the session can stop it on Close.
// Returns nil if there is nothing to block.
func setupHijack(page *rod.Page, blockedTypes []string, blockAds bool, blocked *atomic.Int64) *rod.HijackRouter {
	types := resourceTypeSet(blockedTypes)
	if len(types) == 0 && !blockAds {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if shouldBlock(h.Request.Type(), h.Request.URL().Hostname(), types, blockAds) {
			blocked.Add(1)
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// Run blocks until Stop is called.
	go router.Run()

	return router
}

// resourceTypeSet maps configured names to protocol resource types,
// skipping unknown names.
func resourceTypeSet(names []string) map[proto.NetworkResourceType]struct{} {
	set := make(map[proto.NetworkResourceType]struct{}, len(names))
	for _, name := range names {
		if rt, ok := configToProto[name]; ok {
			set[rt] = struct{}{}
		}
	}
	return set
}

// shouldBlock decides the fate of one intercepted request. Document
// requests are never blocked so the results page itself always loads.
func shouldBlock(rt proto.NetworkResourceType, host string, types map[proto.NetworkResourceType]struct{}, blockAds bool) bool {
	if rt == proto.NetworkResourceTypeDocument {
		return false
	}
	if _, ok := types[rt]; ok {
		return true
	}
	return blockAds && isAdDomain(host)
}
