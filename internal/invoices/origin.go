package invoices

import (
	"net/http"
	"strings"
)

// PublicOrigin returns the scheme://host that links handed to payers should
// use. A configured override wins. Otherwise the first x-forwarded-host value
// is used with the first x-forwarded-proto value, defaulting to https, and
// the request's own host is the last resort.
func PublicOrigin(r *http.Request, override string) string {
	if override != "" {
		return strings.TrimRight(override, "/")
	}

	proto := firstHeaderValue(r.Header.Get("X-Forwarded-Proto"))
	host := firstHeaderValue(r.Header.Get("X-Forwarded-Host"))
	if host != "" {
		scheme := "https"
		if proto == "http" {
			scheme = "http"
		}
		return scheme + "://" + host
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// PayURL is where a payer settles inv.
func PayURL(origin, invoiceID string) string {
	return origin + "/pay/" + invoiceID
}

func firstHeaderValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}
