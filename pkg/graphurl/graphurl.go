// Package graphurl builds Microsoft Graph request URLs.
package graphurl

import (
	"fmt"
	"net/url"
	"strconv"
)

// Version selects the Graph API version segment of a request URL.
type Version string

const (
	// VersionBeta targets the beta Graph API.
	VersionBeta Version = "beta"

	// VersionV1 targets the v1.0 Graph API.
	VersionV1 Version = "v1.0"
)

// Valid reports whether v is a known Graph API version.
func (v Version) Valid() bool {
	return v == VersionBeta || v == VersionV1
}

// DefaultTop is the recommended $top page-size hint for collection
// endpoints. Graph caps most collections at 999 per page.
const DefaultTop = 500

// QueryOptions holds the optional OData query hints for a collection
// request. Zero values are omitted from the built URL.
type QueryOptions struct {
	// Top is the $top page-size hint.
	Top int

	// OrderBy is the $orderby sort expression.
	OrderBy string

	// Filter is the $filter expression.
	Filter string
}

// Values returns the non-zero hints as url-encodable query parameters.
func (o QueryOptions) Values() url.Values {
	params := url.Values{}
	if o.Top > 0 {
		params.Set("$top", strconv.Itoa(o.Top))
	}
	if o.OrderBy != "" {
		params.Set("$orderby", o.OrderBy)
	}
	if o.Filter != "" {
		params.Set("$filter", o.Filter)
	}
	return params
}

// Build composes an absolute request URL from a base host, a version
// segment, a resource path, and query parameters:
//
//	Build("https://graph.microsoft.com", VersionV1, "users", ...$top=10)
//	  -> "https://graph.microsoft.com/v1.0/users?%24top=10"
//
// Build is pure: no network or state access.
func Build(base string, version Version, path string, params url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base URL %q: %w", base, err)
	}
	u.Path = string(version) + "/" + path
	u.RawQuery = params.Encode()
	return u.String(), nil
}
