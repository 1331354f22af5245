package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/phpup/pkg/cache"
)

const (
	// DefaultRankTTL is how long a stored ranking stays valid.
	DefaultRankTTL = 24 * time.Hour

	// DefaultProbeTimeout bounds each liveness probe.
	DefaultProbeTimeout = 3 * time.Second

	maxParallelProbes = 8
)

// RankerOptions configures [NewRanker].
type RankerOptions struct {
	TTL          time.Duration
	ProbeTimeout time.Duration
	Logger       *log.Logger
}

// Ranker reorders a mirror set by measured probe latency. The final URL of
// the set is the official one and is never moved.
type Ranker struct {
	client       *http.Client
	cache        cache.Cache
	ttl          time.Duration
	probeTimeout time.Duration
	logger       *log.Logger
	now          func() time.Time
}

// NewRanker creates a ranker. Rankings are stored in c under the
// "ranking:" namespace; a nil c disables persistence.
func NewRanker(client *http.Client, c cache.Cache, opts RankerOptions) *Ranker {
	if client == nil {
		client = http.DefaultClient
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultRankTTL
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Ranker{
		client:       client,
		cache:        cache.Namespace(c, "ranking:"),
		ttl:          opts.TTL,
		probeTimeout: opts.ProbeTimeout,
		logger:       opts.Logger,
		now:          time.Now,
	}
}

// ranking is the persisted form of one probe round.
type ranking struct {
	Set       []string  `json:"set"`
	Ranked    []string  `json:"ranked"`
	CreatedAt time.Time `json:"created_at"`
}

// Probe is the outcome of one liveness request.
type Probe struct {
	URL     string
	Latency time.Duration
	Err     error
}

// Rank returns urls with every element except the last reordered by
// responsiveness. Mirrors whose probe failed keep their relative order
// after the responsive ones. Rank never fails; when probing is impossible
// the input order is returned.
func (r *Ranker) Rank(ctx context.Context, urls []string) []string {
	if len(urls) <= 2 {
		return slices.Clone(urls)
	}
	mirrors, official := urls[:len(urls)-1], urls[len(urls)-1]

	set := slices.Clone(mirrors)
	sort.Strings(set)
	key := cache.HashKey(set...)

	if ranked, ok := r.cached(ctx, key, set); ok {
		return append(ranked, official)
	}

	probes := r.ProbeAll(ctx, mirrors)
	if ctx.Err() != nil {
		return slices.Clone(urls)
	}
	sort.SliceStable(probes, func(i, j int) bool {
		a, b := probes[i], probes[j]
		if (a.Err == nil) != (b.Err == nil) {
			return a.Err == nil
		}
		if a.Err != nil {
			return false
		}
		return a.Latency < b.Latency
	})

	ranked := make([]string, 0, len(urls))
	for _, p := range probes {
		ranked = append(ranked, p.URL)
		if p.Err != nil {
			r.logger.Debug("mirror probe failed", "url", p.URL, "error", p.Err)
		} else {
			r.logger.Debug("mirror probed", "url", p.URL, "latency", p.Latency)
		}
	}
	r.store(ctx, key, set, ranked)
	return append(ranked, official)
}

// ProbeAll probes every URL concurrently and returns the results in input
// order once all probes have finished or timed out.
func (r *Ranker) ProbeAll(ctx context.Context, urls []string) []Probe {
	probes := make([]Probe, len(urls))
	var g errgroup.Group
	g.SetLimit(maxParallelProbes)
	for i, u := range urls {
		g.Go(func() error {
			probes[i] = r.probe(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return probes
}

func (r *Ranker) probe(ctx context.Context, url string) Probe {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	p := Probe{URL: url}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		p.Err = err
		return p
	}
	start := time.Now()
	resp, err := r.client.Do(req)
	p.Latency = time.Since(start)
	if err != nil {
		p.Err = err
		return p
	}
	resp.Body.Close()
	// Some mirrors refuse HEAD but serve GET fine.
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusMethodNotAllowed {
		p.Err = &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return p
}

func (r *Ranker) cached(ctx context.Context, key string, set []string) ([]string, bool) {
	data, ok, err := r.cache.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var stored ranking
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, false
	}
	if !slices.Equal(stored.Set, set) || r.now().Sub(stored.CreatedAt) >= r.ttl {
		return nil, false
	}
	// The stored order must still be a permutation of the set.
	check := slices.Clone(stored.Ranked)
	sort.Strings(check)
	if !slices.Equal(check, set) {
		return nil, false
	}
	return slices.Clone(stored.Ranked), true
}

func (r *Ranker) store(ctx context.Context, key string, set, ranked []string) {
	data, err := json.Marshal(ranking{Set: set, Ranked: ranked, CreatedAt: r.now()})
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
		r.logger.Debug("storing mirror ranking failed", "error", err)
	}
}

// StatusError is a non-success HTTP status from a mirror.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", e.URL, e.StatusCode)
}
