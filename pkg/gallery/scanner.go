package gallery

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/metroboards/galleryscan/internal/cache"
	"github.com/metroboards/galleryscan/internal/dedup"
	"github.com/metroboards/galleryscan/internal/errors"
	"github.com/metroboards/galleryscan/internal/fetch"
	"github.com/metroboards/galleryscan/internal/fingerprint"
	"github.com/metroboards/galleryscan/internal/listing"
	"github.com/metroboards/galleryscan/internal/logger"
	"github.com/metroboards/galleryscan/internal/manifest"
	"github.com/metroboards/galleryscan/internal/ratelimit"
	"github.com/metroboards/galleryscan/internal/token"
	"github.com/metroboards/galleryscan/internal/validate"
)

// manifestVersion is recorded in every written manifest.
const manifestVersion = "1.0"

// URLChecker vets externally supplied URLs before any fetch.
// *validate.Validator is the production implementation.
type URLChecker interface {
	IsAllowed(rawURL string) bool
	Reason(rawURL string) string
}

// Scanner crawls a remote gallery and exposes the discovered tree,
// staleness checks, and signed URL issuance.
type Scanner struct {
	config    *Config
	log       *logger.Logger
	fetcher   *fetch.Client
	validator URLChecker
	issuer    *token.Issuer
	cache     *cache.Client
	store     manifest.Store
	limiter   *ratelimit.Limiter

	origin string // scheme://host of the root, for absolute href rewriting

	mu    sync.Mutex
	stats ScanStats
}

// New creates a Scanner from options. At minimum a root URL must be
// configured.
func New(opts ...Option) (*Scanner, error) {
	s := &Scanner{config: DefaultConfig()}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	s.config.fillDerived()

	root, err := url.Parse(s.config.RootURL)
	if err != nil {
		return nil, errors.NewValidationError(s.config.RootURL, "root URL does not parse")
	}
	s.origin = root.Scheme + "://" + root.Host

	if s.log == nil {
		s.log = logger.Global()
	}
	s.log = s.log.WithComponent("scanner")

	if s.validator == nil {
		s.validator = validate.New(validate.Rules{
			AllowedHost: s.config.AllowedHost,
			PathPrefix:  s.config.PathPrefix,
		})
	}
	if s.fetcher == nil {
		fc := fetch.DefaultConfig()
		fc.ListingTimeout = s.config.ListingTimeout
		fc.ProbeTimeout = s.config.ProbeTimeout
		if s.config.UserAgent != "" {
			fc.UserAgent = s.config.UserAgent
		}
		s.fetcher = fetch.NewClient(fc)
	}
	if s.issuer == nil {
		s.issuer = token.New(token.Config{
			Secret:    s.config.Token.Secret,
			Endpoint:  s.config.Token.Endpoint,
			TTL:       s.config.Token.TTL,
			Protected: s.config.Token.Protected,
		}, s.log)
	}
	if s.cache == nil {
		s.cache = cache.New(cache.Config{
			Addr:        s.config.Cache.Addr,
			Password:    s.config.Cache.Password,
			DB:          s.config.Cache.DB,
			KeyPrefix:   s.config.Cache.KeyPrefix,
			CallTimeout: s.config.Cache.CallTimeout,
			TTL:         s.config.Cache.TTL,
		}, s.log)
	}
	if s.store == nil {
		store, err := openStore(s.config.Manifest)
		if err != nil {
			return nil, err
		}
		s.store = store
	}
	if s.limiter == nil {
		s.limiter = ratelimit.New(s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.Burst)
		s.limiter.SetMinDelay(s.config.RateLimit.DelayBetween)
	}

	return s, nil
}

func openStore(cfg ManifestConfig) (manifest.Store, error) {
	switch cfg.Backend {
	case "bolt":
		return manifest.NewBoltStore(cfg.Path)
	case "memory":
		return manifest.NewMemoryStore(), nil
	default:
		return manifest.NewFileStore(cfg.Path), nil
	}
}

// Close releases the scanner's resources.
func (s *Scanner) Close() error {
	s.fetcher.Close()
	return s.store.Close()
}

// Issuer returns the signed URL issuer bound to this scanner's secret.
func (s *Scanner) Issuer() *token.Issuer {
	return s.issuer
}

// Stats returns the statistics of the most recent Scan.
func (s *Scanner) Stats() ScanStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Scan discovers the gallery tree under the configured root. The cached
// tree is served when present; otherwise the gallery is crawled and the
// result written back to the cache. Failures inside single folders are
// absorbed; only a rejected root URL or an unreachable root listing fail
// the scan.
func (s *Scanner) Scan(ctx context.Context) ([]Node, error) {
	start := time.Now()

	if !s.validator.IsAllowed(s.config.RootURL) {
		return nil, errors.NewValidationError(s.config.RootURL, s.validator.Reason(s.config.RootURL))
	}

	if cached := s.cache.Get(ctx, "", s.config.GroupID); cached != "" {
		var nodes []Node
		if err := json.Unmarshal([]byte(cached), &nodes); err == nil {
			folders, images := countTree(nodes)
			s.setStats(ScanStats{
				Folders:   folders,
				Images:    images,
				Duration:  time.Since(start),
				FromCache: true,
			})
			return nodes, nil
		}
		// Unparseable entry: drop it and fall through to a live crawl.
		s.cache.Clear(ctx, "", s.config.GroupID)
	}

	crawl := &crawlState{visited: dedup.NewVisited(1024)}
	nodes, err := s.crawlRoot(ctx, crawl)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(nodes); err == nil {
		s.cache.Set(ctx, "", s.config.GroupID, string(data))
	}

	folders, images := countTree(nodes)
	stats := ScanStats{
		Folders:       folders,
		Images:        images,
		Requests:      crawl.requests(),
		FailedFolders: crawl.failures(),
		Duration:      time.Since(start),
	}
	s.setStats(stats)
	s.log.Event(logger.InfoLevel).
		Int("folders", stats.Folders).
		Int("images", stats.Images).
		Int("requests", stats.Requests).
		Int("failed_folders", stats.FailedFolders).
		Dur("duration", stats.Duration).
		Msg("scan complete")

	return nodes, nil
}

// crawlState carries per-scan bookkeeping across the recursion.
type crawlState struct {
	visited *dedup.Visited

	mu     sync.Mutex
	reqs   int
	failed int
}

func (c *crawlState) countRequest() {
	c.mu.Lock()
	c.reqs++
	c.mu.Unlock()
}

func (c *crawlState) countFailure() {
	c.mu.Lock()
	c.failed++
	c.mu.Unlock()
}

func (c *crawlState) requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reqs
}

func (c *crawlState) failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

// crawlRoot fetches the root listing and builds the top-level nodes. A
// root fetch failure is the one remote error that propagates.
func (s *Scanner) crawlRoot(ctx context.Context, crawl *crawlState) ([]Node, error) {
	crawl.visited.Visit(s.config.RootURL)

	links, err := s.fetchLinks(ctx, s.config.RootURL, crawl)
	if err != nil {
		return nil, err
	}

	return s.buildChildren(ctx, s.config.RootURL, links, 0, crawl)
}

// fetchLinks fetches one folder listing and extracts its links.
func (s *Scanner) fetchLinks(ctx context.Context, folderURL string, crawl *crawlState) ([]listing.Link, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, errors.Categorize(err, folderURL)
	}

	crawl.countRequest()
	res, err := s.fetcher.GetListing(ctx, folderURL)
	if err != nil {
		return nil, err
	}
	s.log.FetchEvent(folderURL, res.StatusCode, res.Duration)

	links, err := listing.ExtractLinks(res.HTML)
	if err != nil {
		return nil, errors.NewParseError(folderURL, "extract links", err)
	}
	return links, nil
}

// buildChildren classifies a folder's links and builds a node for every
// folder candidate, recursing while the depth bound allows. Candidates
// whose build fails contribute nothing; siblings are unaffected.
func (s *Scanner) buildChildren(ctx context.Context, baseURL string, links []listing.Link, level int, crawl *crawlState) ([]Node, error) {
	type candidate struct {
		name string
		url  string
	}

	var candidates []candidate
	for _, l := range links {
		if listing.Classify(l) != listing.Folder {
			continue
		}
		childURL, ok := s.resolveHref(baseURL, l.Href)
		if !ok {
			continue
		}
		if !crawl.visited.Visit(childURL) {
			continue
		}
		candidates = append(candidates, candidate{name: listing.FolderName(l), url: childURL})
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	nodes := make([]*Node, len(candidates))
	build := func(i int) {
		c := candidates[i]
		node, err := s.buildNode(ctx, c.url, c.name, level, crawl)
		if err != nil {
			crawl.countFailure()
			s.log.WithURL(c.url).WithError(err).Warnf("folder skipped: %s", c.name)
			return
		}
		nodes[i] = node
	}

	if s.config.ProbeConcurrency > 1 && level == 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.config.ProbeConcurrency)
		for i := range candidates {
			i := i
			g.Go(func() error {
				build(i)
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return nil, errors.Categorize(err, baseURL)
		}
	} else {
		for i := range candidates {
			if err := ctx.Err(); err != nil {
				return nil, errors.Categorize(err, baseURL)
			}
			build(i)
		}
	}

	var out []Node
	for _, n := range nodes {
		if n != nil {
			out = append(out, *n)
		}
	}
	return out, nil
}

// buildNode fetches one folder and assembles its node. It returns nil
// without error when the folder holds neither images nor nonempty
// subfolders.
func (s *Scanner) buildNode(ctx context.Context, folderURL, name string, level int, crawl *crawlState) (*Node, error) {
	links, err := s.fetchLinks(ctx, folderURL, crawl)
	if err != nil {
		return nil, err
	}

	var images []ImageRef
	for _, l := range links {
		if listing.Classify(l) != listing.Image {
			continue
		}
		imgURL, ok := s.resolveHref(folderURL, l.Href)
		if !ok {
			continue
		}
		images = append(images, ImageRef{
			Name: listing.ImageName(l),
			Path: l.Href,
			URL:  imgURL,
		})
	}

	var subfolders []Node
	if level < s.config.MaxDepth-1 {
		subfolders, err = s.buildChildren(ctx, folderURL, links, level+1, crawl)
		if err != nil {
			return nil, err
		}
	}

	if len(images) == 0 && len(subfolders) == 0 {
		return nil, nil
	}
	if images == nil {
		// Category nodes serialize an empty array, not null.
		images = []ImageRef{}
	}
	s.log.FolderEvent(logger.DebugLevel, folderURL, level, len(images)).Msg("folder scanned")

	return &Node{
		Name:       name,
		Path:       folderURL,
		Images:     images,
		Subfolders: subfolders,
		IsCategory: len(subfolders) > 0 && len(images) == 0,
		Level:      level,
	}, nil
}

// resolveHref turns a discovered href into an absolute URL inside the
// crawl origin. Hrefs that do not parse or leave the origin are dropped.
func (s *Scanner) resolveHref(baseURL, href string) (string, bool) {
	if strings.HasPrefix(href, "/") {
		abs := s.origin + href
		if !strings.HasPrefix(abs, s.origin+s.config.PathPrefix) {
			return "", false
		}
		return abs, true
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme+"://"+abs.Host != s.origin {
		return "", false
	}
	if !strings.HasPrefix(abs.EscapedPath(), s.config.PathPrefix) {
		return "", false
	}
	return abs.String(), true
}

// Refresh bypasses and repopulates the cache with a live crawl.
func (s *Scanner) Refresh(ctx context.Context) ([]Node, error) {
	s.cache.Clear(ctx, "", s.config.GroupID)
	return s.Scan(ctx)
}

// CheckStaleness compares the persisted manifest against the live gallery
// and reports whether a refresh is due. The folder tree is re-walked with
// lightweight probe requests that count image links without assembling
// image records.
func (s *Scanner) CheckStaleness(ctx context.Context) (*StalenessReport, error) {
	if !s.validator.IsAllowed(s.config.RootURL) {
		return nil, errors.NewValidationError(s.config.RootURL, s.validator.Reason(s.config.RootURL))
	}

	m, loadErr := s.store.Load()

	fresh, err := s.probeCounts(ctx)
	if err != nil {
		return nil, err
	}

	verdict := fingerprint.IsStale(m, loadErr, fresh, s.config.MaxCacheAge)
	s.log.StalenessEvent(verdict.Stale, verdict.Reason)

	total := 0
	for _, f := range fresh {
		total += f.ImageCount
	}
	report := &StalenessReport{
		NeedsRefresh: verdict.Stale,
		Reason:       verdict.Reason,
		CurrentGallery: &Summary{
			Folders:     fresh,
			TotalImages: total,
			Hash:        fingerprint.Compute(fresh),
		},
	}
	if loadErr == nil {
		report.CurrentManifest = m
	}
	return report, nil
}

// probeCounts walks the listing tree with probe requests and returns
// the flat folder/count list a full scan of the same gallery would
// record. Folders whose probe fails contribute nothing rather than
// failing the whole check.
func (s *Scanner) probeCounts(ctx context.Context) ([]manifest.FolderCount, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, errors.Categorize(err, s.config.RootURL)
	}
	res, err := s.fetcher.GetListing(ctx, s.config.RootURL)
	if err != nil {
		return nil, err
	}
	links, err := listing.ExtractLinks(res.HTML)
	if err != nil {
		return nil, errors.NewParseError(s.config.RootURL, "extract links", err)
	}

	visited := dedup.NewVisited(256)
	visited.Visit(s.config.RootURL)
	return s.probeChildren(ctx, s.config.RootURL, links, 0, visited)
}

// probeChildren mirrors buildChildren for staleness checks. It applies
// the same folder classification and depth bound, but each folder only
// yields a name and an image link count.
func (s *Scanner) probeChildren(ctx context.Context, baseURL string, links []listing.Link, level int, visited *dedup.Visited) ([]manifest.FolderCount, error) {
	type candidate struct {
		name string
		url  string
	}

	var candidates []candidate
	for _, l := range links {
		if listing.Classify(l) != listing.Folder {
			continue
		}
		childURL, ok := s.resolveHref(baseURL, l.Href)
		if !ok {
			continue
		}
		if !visited.Visit(childURL) {
			continue
		}
		candidates = append(candidates, candidate{name: listing.FolderName(l), url: childURL})
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	results := make([][]manifest.FolderCount, len(candidates))
	probe := func(ctx context.Context, i int) {
		c := candidates[i]
		counts, err := s.probeFolder(ctx, c.url, c.name, level, visited)
		if err != nil {
			s.log.WithURL(c.url).WithError(err).Warnf("probe skipped: %s", c.name)
			return
		}
		results[i] = counts
	}

	if s.config.ProbeConcurrency > 1 && level == 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.config.ProbeConcurrency)
		for i := range candidates {
			i := i
			g.Go(func() error {
				probe(gctx, i)
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return nil, errors.Categorize(err, baseURL)
		}
	} else {
		for i := range candidates {
			if err := ctx.Err(); err != nil {
				return nil, errors.Categorize(err, baseURL)
			}
			probe(ctx, i)
		}
	}

	var out []manifest.FolderCount
	for _, counts := range results {
		out = append(out, counts...)
	}
	return out, nil
}

// probeFolder probes one folder and returns its count followed by the
// counts of its nonempty subfolders. Empty folders yield nothing, the
// same way a full scan drops them.
func (s *Scanner) probeFolder(ctx context.Context, folderURL, name string, level int, visited *dedup.Visited) ([]manifest.FolderCount, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, errors.Categorize(err, folderURL)
	}
	res, err := s.fetcher.GetProbe(ctx, folderURL)
	if err != nil {
		return nil, err
	}
	// Count with the same filter a full scan applies, so probe counts can
	// only diverge from the manifest when the gallery itself changed.
	images := fetch.CountAnchors(res.HTML, func(href string) bool {
		href = strings.TrimSpace(href)
		if !listing.IsImageLink(href) {
			return false
		}
		_, ok := s.resolveHref(folderURL, href)
		return ok
	})

	var sub []manifest.FolderCount
	if level < s.config.MaxDepth-1 {
		links, err := listing.ExtractLinks(res.HTML)
		if err != nil {
			return nil, errors.NewParseError(folderURL, "extract links", err)
		}
		sub, err = s.probeChildren(ctx, folderURL, links, level+1, visited)
		if err != nil {
			return nil, err
		}
	}

	if images == 0 && len(sub) == 0 {
		return nil, nil
	}
	counts := make([]manifest.FolderCount, 0, len(sub)+1)
	counts = append(counts, manifest.FolderCount{Name: name, ImageCount: images})
	return append(counts, sub...), nil
}

// WriteManifest persists a manifest snapshot of a scanned tree. Every
// folder in the tree contributes its name and direct image count, so a
// rename or count change anywhere moves the hash.
func (s *Scanner) WriteManifest(nodes []Node) (*manifest.Manifest, error) {
	counts := flattenCounts(nodes)
	total := 0
	for _, c := range counts {
		total += c.ImageCount
	}

	m := &manifest.Manifest{
		Generated:   time.Now().UTC(),
		Version:     manifestVersion,
		Folders:     counts,
		TotalImages: total,
		Hash:        fingerprint.Compute(counts),
	}
	if err := s.store.Save(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ClearCache drops the cached tree for this scanner's group.
func (s *Scanner) ClearCache(ctx context.Context) {
	s.cache.Clear(ctx, "", s.config.GroupID)
}

// ClearCacheFolder drops the cache entry of a single folder key.
func (s *Scanner) ClearCacheFolder(ctx context.Context, folder string) {
	s.cache.Clear(ctx, folder, s.config.GroupID)
}

func (s *Scanner) setStats(stats ScanStats) {
	s.mu.Lock()
	s.stats = stats
	s.mu.Unlock()
}
