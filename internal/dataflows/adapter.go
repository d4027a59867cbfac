package dataflows

import (
	"context"
	"encoding/json"
	"time"

	"minerva/internal/cache"
	"minerva/internal/metrics"
	"minerva/pkg/errors"
	"minerva/pkg/logger"
)

// Source tags where a fetch result came from.
type Source string

const (
	SourceNetwork  Source = "network"
	SourceCacheTTL Source = "cache_ttl"
	SourceCache304 Source = "cache_304"
	SourceStale    Source = "cache_stale"
)

// Result is one adapter fetch outcome.
type Result struct {
	Data        json.RawMessage
	Source      Source
	Fingerprint string
	FetchedAt   time.Time
}

// FetchOption customizes a single fetch.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	staleServe bool
}

// WithStaleServe allows serving an expired cache entry when the upstream fails.
func WithStaleServe() FetchOption {
	return func(o *fetchOptions) { o.staleServe = true }
}

// Adapter is the vendor-agnostic cached fetcher. Vendors are registered per
// data type at bootstrap; every request goes through the fingerprinted HTTP
// cache with TTL and conditional-request revalidation.
type Adapter struct {
	store   *cache.Store
	vendors map[DataType]Vendor
	policy  cache.Policy
	now     func() time.Time
	log     *logger.Logger
}

// NewAdapter creates an adapter over the given cache store and policy.
func NewAdapter(store *cache.Store, policy cache.Policy) *Adapter {
	return &Adapter{
		store:   store,
		vendors: make(map[DataType]Vendor),
		policy:  policy,
		now:     time.Now,
		log:     logger.Get().With("component", "data_adapter"),
	}
}

// RegisterVendor binds a vendor to the data types it serves.
func (a *Adapter) RegisterVendor(v Vendor, types ...DataType) {
	for _, t := range types {
		a.vendors[t] = v
	}
}

// Fetch resolves one request through the cache:
//
//  1. Fresh entry (schema match, not expired) — served as cache_ttl.
//  2. Otherwise a conditional GET: 304 refreshes expiry and serves cache_304;
//     2xx replaces the entry and serves network.
//  3. Upstream failure serves a stale entry only when WithStaleServe is set.
func (a *Adapter) Fetch(ctx context.Context, req Request, opts ...FetchOption) (*Result, error) {
	var options fetchOptions
	for _, opt := range opts {
		opt(&options)
	}

	vendor, ok := a.vendors[req.Type]
	if !ok {
		return nil, errors.Wrapf(errors.ErrInternal, "no vendor registered for data type %s", req.Type)
	}

	now := a.now()
	key := cache.Key(vendor.Name(), string(req.Type), req.Symbol, req.Qualifier)

	prior, err := a.store.Get(ctx, key)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		a.log.Warnf("cache read failed for %s: %v", key, err)
		prior = nil
	}

	if prior != nil && prior.Fresh(now) {
		metrics.CacheFetches.WithLabelValues(string(req.Type), string(SourceCacheTTL)).Inc()
		return &Result{
			Data:        prior.Data,
			Source:      SourceCacheTTL,
			Fingerprint: prior.DataFingerprint,
			FetchedAt:   prior.FetchedAt,
		}, nil
	}

	var cond Conditional
	if prior != nil {
		cond = Conditional{ETag: prior.ETag, LastModified: prior.LastModified}
	}

	resp, err := vendor.Fetch(ctx, req, cond)
	if err != nil {
		return a.failOrStale(ctx, key, prior, options, now, req, err)
	}

	switch {
	case resp.Status == 304 && prior != nil:
		// Payload unchanged upstream: advance expiry, keep data
		fingerprint, fpErr := cache.FingerprintRaw(prior.Data, cache.SchemaVersion)
		if fpErr != nil {
			fingerprint = prior.DataFingerprint
		}

		refreshed := *prior
		refreshed.DataFingerprint = fingerprint
		refreshed.FetchedAt = now
		refreshed.ExpiresAt = now.Add(a.policy.TTLFor(string(req.Type)))
		refreshed.SchemaVersion = cache.SchemaVersion
		if resp.ETag != "" {
			refreshed.ETag = resp.ETag
		}

		if putErr := a.store.Put(ctx, &refreshed); putErr != nil {
			a.log.Warnf("cache refresh failed for %s: %v", key, putErr)
		}

		metrics.CacheFetches.WithLabelValues(string(req.Type), string(SourceCache304)).Inc()
		return &Result{
			Data:        refreshed.Data,
			Source:      SourceCache304,
			Fingerprint: fingerprint,
			FetchedAt:   now,
		}, nil

	case resp.Status >= 200 && resp.Status < 300:
		fingerprint, fpErr := cache.FingerprintRaw(resp.Body, cache.SchemaVersion)
		if fpErr != nil {
			return nil, errors.Wrapf(errors.ErrUpstream, "unparseable %s payload: %v", req.Type, fpErr)
		}

		entry := &cache.Entry{
			Key:             key,
			Data:            resp.Body,
			DataFingerprint: fingerprint,
			ETag:            resp.ETag,
			LastModified:    resp.LastModified,
			FetchedAt:       now,
			ExpiresAt:       now.Add(a.policy.TTLFor(string(req.Type))),
			SchemaVersion:   cache.SchemaVersion,
		}

		if putErr := a.store.Put(ctx, entry); putErr != nil {
			a.log.Warnf("cache write failed for %s: %v", key, putErr)
		}

		metrics.CacheFetches.WithLabelValues(string(req.Type), string(SourceNetwork)).Inc()
		return &Result{
			Data:        resp.Body,
			Source:      SourceNetwork,
			Fingerprint: fingerprint,
			FetchedAt:   now,
		}, nil

	default:
		upstreamErr := &errors.UpstreamError{Vendor: vendor.Name(), Status: resp.Status}
		return a.failOrStale(ctx, key, prior, options, now, req, upstreamErr)
	}
}

func (a *Adapter) failOrStale(_ context.Context, key string, prior *cache.Entry, options fetchOptions, now time.Time, req Request, cause error) (*Result, error) {
	metrics.CacheFetches.WithLabelValues(string(req.Type), "error").Inc()
	a.log.Warnf("upstream fetch failed for %s: %v", key, cause)

	if options.staleServe && prior != nil {
		a.log.Infof("serving stale entry for %s", key)
		return &Result{
			Data:        prior.Data,
			Source:      SourceStale,
			Fingerprint: prior.DataFingerprint,
			FetchedAt:   prior.FetchedAt,
		}, nil
	}

	if errors.Is(cause, errors.ErrUpstream) {
		return nil, cause
	}
	return nil, errors.Wrapf(errors.ErrUpstream, "%s %s: %v", req.Type, req.Symbol, cause)
}
