// Package cache — the interception worker.
//
// The worker owns all cache state and runs on its own goroutine, the
// daemon's analog of a request-interception worker context. The HTTP layer
// never touches cache internals: GET traffic enters through HandleGet and
// control operations are exchanged as request/reply messages over a
// channel (Post), postMessage-style. Entries are persisted in SQLite so a
// restart keeps the device usable offline.
//
// Per-path state machine:
//
//	MISS → FETCHING → FRESH → (age exceeds TTL) → STALE
//	     STALE → (background revalidate) → FRESH
//	     any state → OFFLINE_FALLBACK on network failure
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-pos-offline/internal/domain"
)

// maxCachedBody caps how much of an upstream response is retained. Bodies
// over the cap are refused outright, never truncated: a clipped payload
// stored as a 200 would be served as-is for up to the class TTL.
const maxCachedBody = 10 << 20 // 10 MiB

// EntryRepo defines the persistence contract for cached responses.
type EntryRepo interface {
	Get(ctx context.Context, db *gorm.DB, path string) (*domain.CacheEntry, error)
	Put(ctx context.Context, db *gorm.DB, e *domain.CacheEntry) error
	Clear(ctx context.Context, db *gorm.DB) error
	Counts(ctx context.Context, db *gorm.DB) (map[string]int64, error)
}

// Response is what the interceptor hands back to the HTTP layer.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
	// FromCache marks responses served out of the local cache.
	FromCache bool
	// Offline marks responses produced by the offline fallback path
	// (deliberately stale data or the structured offline envelope).
	Offline bool
}

// OfflineEnvelope is the structured payload returned when the network is
// down and no cached entry exists. It is always HTTP 503.
type OfflineEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Offline bool   `json:"offline"`
	Data    []any  `json:"data"`
}

// Control message types, mirroring the UI-facing protocol.
type MsgType string

const (
	MsgGetCacheStatus MsgType = "GET_CACHE_STATUS"
	MsgClearCache     MsgType = "CLEAR_CACHE"
	MsgPrefetchData   MsgType = "PREFETCH_DATA"
	MsgSkipWaiting    MsgType = "SKIP_WAITING"
)

// CacheStatus is the reply payload for MsgGetCacheStatus.
type CacheStatus struct {
	API    int `json:"api"`
	Static int `json:"static"`
	Main   int `json:"main"`
	Total  int `json:"total"`
}

// Reply is the worker's answer to a control message. Fields are populated
// per message type; Err carries internal failures (the HTTP layer maps
// them, they are never fatal).
type Reply struct {
	Status  *CacheStatus
	Success bool
	Err     error
}

// message pairs a control request with its reply channel.
type message struct {
	typ   MsgType
	reply chan Reply
}

// Worker implements the cache layer. Construct with NewWorker, then run
// Run on its own goroutine.
type Worker struct {
	// DB is the GORM handle backing the entry store.
	DB *gorm.DB
	// Repo persists cache entries.
	Repo EntryRepo
	// BaseURL is the backend root, without trailing slash.
	BaseURL string
	// Client performs upstream fetches. Per-request deadlines come from
	// the class timeout, not from Client.Timeout.
	Client *http.Client
	// Classes is the class table (TTLs, timeouts).
	Classes Classifier
	// Critical lists the endpoints warmed by MsgPrefetchData.
	Critical []string
	// MaxBody caps the upstream body size; fetches exceeding it fail.
	MaxBody int64

	// Now returns the current time; overridable in tests.
	Now func() time.Time
	// Log is the component logger.
	Log zerolog.Logger

	msgs chan message

	mu           sync.Mutex
	revalidating map[string]struct{}
}

// NewWorker constructs a cache worker. critical may be nil; a default set
// of reference-data endpoints is used.
func NewWorker(db *gorm.DB, repo EntryRepo, baseURL string, classes Classifier, critical []string, log zerolog.Logger) *Worker {
	if critical == nil {
		critical = []string{"/api/v1/products", "/api/v1/employees", "/api/v1/config"}
	}
	return &Worker{
		DB:           db,
		Repo:         repo,
		BaseURL:      baseURL,
		Client:       &http.Client{},
		Classes:      classes,
		Critical:     critical,
		MaxBody:      maxCachedBody,
		Now:          func() time.Time { return time.Now().UTC() },
		Log:          log.With().Str("component", "cache_worker").Logger(),
		msgs:         make(chan message),
		revalidating: make(map[string]struct{}),
	}
}

// HandleGet intercepts one GET request.
//
// Algorithm:
//  1. A fresh entry (age < class TTL) is served immediately and a
//     non-blocking background re-fetch refreshes it (stale-while-revalidate).
//  2. Otherwise the network is tried, bounded by the class timeout; a
//     success is stored and returned.
//  3. On any network failure the most recent entry is served regardless of
//     TTL, marked offline; with no entry at all, the structured offline
//     envelope is returned with status 503. Failures never escape.
func (w *Worker) HandleGet(ctx context.Context, rawPath string) Response {
	path := CanonicalPath(rawPath)
	class := w.Classes.Classify(path)

	entry, err := w.Repo.Get(ctx, w.DB, path)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		w.Log.Warn().Err(err).Str("path", path).Msg("cache read failed; treating as miss")
		entry = nil
	}

	if entry != nil && entry.Age(w.Now()) < class.TTL {
		cacheRequests.WithLabelValues(class.Name, outcomeFresh).Inc()
		w.revalidateAsync(path, class)
		return Response{
			Status:      entry.Status,
			ContentType: entry.ContentType,
			Body:        entry.Body,
			FromCache:   true,
		}
	}

	fetched, err := w.fetch(ctx, path, class)
	if err == nil {
		if fetched.cacheable {
			if perr := w.Repo.Put(ctx, w.DB, fetched.entry); perr != nil {
				w.Log.Warn().Err(perr).Str("path", path).Msg("failed to store cache entry")
			}
			cacheRequests.WithLabelValues(class.Name, outcomeMiss).Inc()
		} else {
			cacheRequests.WithLabelValues(class.Name, outcomePassthrough).Inc()
		}
		return Response{
			Status:      fetched.entry.Status,
			ContentType: fetched.entry.ContentType,
			Body:        fetched.entry.Body,
		}
	}

	if entry != nil {
		cacheRequests.WithLabelValues(class.Name, outcomeOfflineFallback).Inc()
		w.Log.Info().Str("path", path).Err(err).Msg("network failed; serving stale cache entry")
		return Response{
			Status:      entry.Status,
			ContentType: entry.ContentType,
			Body:        entry.Body,
			FromCache:   true,
			Offline:     true,
		}
	}

	cacheRequests.WithLabelValues(class.Name, outcomeOfflineError).Inc()
	body, _ := json.Marshal(OfflineEnvelope{
		Success: false,
		Error:   "offline and no cached data available",
		Offline: true,
		Data:    []any{},
	})
	return Response{
		Status:      http.StatusServiceUnavailable,
		ContentType: "application/json",
		Body:        body,
		Offline:     true,
	}
}

// fetchResult wraps an upstream response; only 2xx responses are cacheable,
// other statuses pass through untouched.
type fetchResult struct {
	entry     *domain.CacheEntry
	cacheable bool
}

// fetch performs the bounded upstream GET for path.
func (w *Worker) fetch(ctx context.Context, path string, class Class) (fetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, class.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.BaseURL+path, nil)
	if err != nil {
		return fetchResult{}, err
	}
	resp, err := w.Client.Do(req)
	if err != nil {
		return fetchResult{}, err
	}
	defer resp.Body.Close()

	// Read one byte past the cap so an over-limit body is detected rather
	// than silently clipped.
	body, err := io.ReadAll(io.LimitReader(resp.Body, w.MaxBody+1))
	if err != nil {
		return fetchResult{}, err
	}
	if int64(len(body)) > w.MaxBody {
		return fetchResult{}, errors.New("upstream body exceeds the cache size cap")
	}

	entry := &domain.CacheEntry{
		Path:        path,
		Class:       class.Name,
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		CachedAt:    w.Now(),
	}
	return fetchResult{
		entry:     entry,
		cacheable: resp.StatusCode >= 200 && resp.StatusCode < 300,
	}, nil
}

// revalidateAsync refreshes path in the background without blocking the
// caller. At most one revalidation per path runs at a time; failures are
// swallowed (staleness resolves on the next natural request cycle).
func (w *Worker) revalidateAsync(path string, class Class) {
	w.mu.Lock()
	if _, busy := w.revalidating[path]; busy {
		w.mu.Unlock()
		return
	}
	w.revalidating[path] = struct{}{}
	w.mu.Unlock()

	go func() {
		defer func() {
			w.mu.Lock()
			delete(w.revalidating, path)
			w.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), class.Timeout)
		defer cancel()

		fetched, err := w.fetch(ctx, path, class)
		if err != nil || !fetched.cacheable {
			cacheRevalidations.WithLabelValues(class.Name, "failed").Inc()
			return
		}
		if err := w.Repo.Put(ctx, w.DB, fetched.entry); err != nil {
			cacheRevalidations.WithLabelValues(class.Name, "failed").Inc()
			return
		}
		cacheRevalidations.WithLabelValues(class.Name, "refreshed").Inc()
	}()
}

// Run processes control messages until ctx is canceled. Run it on a
// dedicated goroutine; Post is the only way in.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-w.msgs:
			msg.reply <- w.handleControl(ctx, msg.typ)
		}
	}
}

// Post sends a control message to the worker and waits for its reply,
// honoring ctx so a stuck worker can never wedge the caller.
func (w *Worker) Post(ctx context.Context, typ MsgType) (Reply, error) {
	msg := message{typ: typ, reply: make(chan Reply, 1)}
	select {
	case w.msgs <- msg:
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
	select {
	case r := <-msg.reply:
		return r, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// handleControl dispatches one control message on the worker goroutine.
func (w *Worker) handleControl(ctx context.Context, typ MsgType) Reply {
	switch typ {
	case MsgGetCacheStatus:
		counts, err := w.Repo.Counts(ctx, w.DB)
		if err != nil {
			return Reply{Err: err}
		}
		st := &CacheStatus{
			API:    int(counts[ClassProducts] + counts[ClassEmployees]),
			Static: int(counts[ClassStatic]),
			Main:   int(counts[ClassMain]),
		}
		st.Total = st.API + st.Static + st.Main
		return Reply{Status: st, Success: true}

	case MsgClearCache:
		if err := w.Repo.Clear(ctx, w.DB); err != nil {
			w.Log.Error().Err(err).Msg("cache clear failed")
			return Reply{Success: false, Err: err}
		}
		w.Log.Info().Msg("cache cleared")
		return Reply{Success: true}

	case MsgPrefetchData:
		// Fire-and-forget: the reply does not wait for the warm-up.
		go w.prefetch(context.Background())
		return Reply{Success: true}

	case MsgSkipWaiting:
		// Lifecycle control: nothing to do in the daemon, ack only.
		return Reply{Success: true}

	default:
		return Reply{Err: errors.New("unknown control message: " + string(typ))}
	}
}

// prefetch warms the critical endpoints sequentially. List payloads are
// sanity-checked with the ordered decoder so a shape regression upstream
// is visible in logs rather than silently cached.
func (w *Worker) prefetch(ctx context.Context) {
	for _, path := range w.Critical {
		canonical := CanonicalPath(path)
		class := w.Classes.Classify(canonical)

		fetched, err := w.fetch(ctx, canonical, class)
		if err != nil || !fetched.cacheable {
			w.Log.Info().Str("path", canonical).Err(err).Msg("prefetch skipped endpoint")
			continue
		}
		if err := w.Repo.Put(ctx, w.DB, fetched.entry); err != nil {
			w.Log.Warn().Err(err).Str("path", canonical).Msg("prefetch could not store entry")
			continue
		}
		if dec, err := DecodeItems(fetched.entry.Body); err == nil {
			w.Log.Debug().
				Str("path", canonical).
				Str("shape", dec.Shape).
				Int("items", len(dec.Items)).
				Msg("prefetched endpoint")
		} else {
			w.Log.Warn().Str("path", canonical).Msg("prefetched payload has unrecognized shape")
		}
	}
}
