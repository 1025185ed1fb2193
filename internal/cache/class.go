// Package cache implements the Network Cache Layer: a request interceptor
// for read (GET) traffic that serves cached responses with per-class
// staleness policies and degrades to deliberately stale data when the
// network is down. It runs in its own goroutine and talks to the rest of
// the daemon only through an explicit message protocol (see worker.go).
package cache

import (
	"strings"
	"time"

	"github.com/tbourn/go-pos-offline/internal/domain"
)

// Class names, aliased from the persistence model so the values written to
// cache_entries.class stay in one place. "main" is the default bucket for
// whitelisted paths that match no known substring; it shares the products
// TTL.
const (
	ClassProducts  = domain.CacheClassProducts
	ClassEmployees = domain.CacheClassEmployees
	ClassStatic    = domain.CacheClassStatic
	ClassMain      = domain.CacheClassMain
)

// Class couples a cache bucket with its freshness TTL and the network
// timeout used when fetching upstream for that bucket.
type Class struct {
	Name    string
	TTL     time.Duration
	Timeout time.Duration
}

// Classifier maps canonical request paths onto cache classes by substring
// matching, mirroring how the path whitelist is expressed.
type Classifier struct {
	Products  Class
	Employees Class
	Static    Class
	Main      Class
}

// NewClassifier builds the class table from configured TTLs/timeouts.
// The default bucket reuses the products TTL, per policy.
func NewClassifier(productsTTL, employeesTTL, staticTTL, apiTimeout, staticTimeout time.Duration) Classifier {
	return Classifier{
		Products:  Class{Name: ClassProducts, TTL: productsTTL, Timeout: apiTimeout},
		Employees: Class{Name: ClassEmployees, TTL: employeesTTL, Timeout: apiTimeout},
		Static:    Class{Name: ClassStatic, TTL: staticTTL, Timeout: staticTimeout},
		Main:      Class{Name: ClassMain, TTL: productsTTL, Timeout: apiTimeout},
	}
}

// Classify picks the class for a canonical path.
func (c Classifier) Classify(path string) Class {
	switch {
	case strings.Contains(path, "products"):
		return c.Products
	case strings.Contains(path, "employees"):
		return c.Employees
	case strings.Contains(path, "/static/") || strings.HasPrefix(path, "/static"):
		return c.Static
	default:
		return c.Main
	}
}

// ByName returns the class with the given name, defaulting to Main.
func (c Classifier) ByName(name string) Class {
	switch name {
	case ClassProducts:
		return c.Products
	case ClassEmployees:
		return c.Employees
	case ClassStatic:
		return c.Static
	default:
		return c.Main
	}
}

// CanonicalPath normalizes a request path into the cache key: the query
// string and fragment are dropped and a trailing slash is trimmed, so
// "/api/v1/products/" and "/api/v1/products?page=2" share one entry.
func CanonicalPath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		path = "/"
	}
	return path
}
