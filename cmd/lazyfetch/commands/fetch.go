package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/azargarov/lazyload"
	"github.com/azargarov/lazyload/config"
	"github.com/azargarov/lazyload/eviction"
	promm "github.com/azargarov/lazyload/metrics/prometheus"
	"github.com/azargarov/lazyload/remote"
	"github.com/azargarov/lazyload/uiloop"
	"github.com/azargarov/lazyload/workerpool"
)

var (
	fetchTag     string
	fetchFull    bool
	fetchTimeout time.Duration
)

var fetchCmd = &cobra.Command{
	Use:   "fetch URL...",
	Short: "Load images and report their state",
	Long: `Load every URL through the lazyload pools of one tag. GIFs run on the
heavy pool and are promoted to all frames; still images stop at the
preview unless --full is given.`,
	Example: `  lazyfetch fetch https://example.com/a.png https://example.com/b.gif
  LAZYLOAD_CACHE_ENABLED=true LAZYLOAD_CACHE_DIR=/tmp/lazy lazyfetch fetch --full https://example.com/a.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchTag, "tag", "lazyfetch", "pool tag shared by all images")
	fetchCmd.Flags().BoolVar(&fetchFull, "full", false, "promote still images to full resolution")
	fetchCmd.Flags().DurationVar(&fetchTimeout, "timeout", 30*time.Second, "overall deadline")
}

// session holds everything one fetch run builds.
type session struct {
	cfg     *config.Config
	metrics *prometheus.Registry
	reg     *workerpool.Registry
	evict   *eviction.Pool
	loop    *uiloop.Loop
	fetcher remote.Fetcher
}

func newSession(ctx context.Context, cfg *config.Config) (*session, error) {
	opts, err := cfg.RegistryOptions()
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, metrics: prometheus.NewRegistry()}
	evOpts := eviction.Options{Capacity: cfg.Eviction.Capacity}
	if cfg.Metrics.Enabled {
		opts.NewMetrics = promm.NewPoolMetrics(s.metrics).For
		evOpts.OnEvict = promm.NewEvictionMetrics(s.metrics).OnEvict
	}
	s.reg = workerpool.NewRegistry(ctx, opts)
	s.evict = eviction.New(evOpts)

	s.fetcher = &remote.HTTPFetcher{Client: &http.Client{}}
	if cfg.Cache.Enabled {
		s.fetcher = remote.NewCachingFetcher(afero.NewOsFs(), cfg.Cache.Dir, s.fetcher)
	}

	s.loop, err = uiloop.New(ctx)
	if err != nil {
		return nil, multierr.Append(err, s.reg.Shutdown(ctx))
	}
	return s, nil
}

func (s *session) close(ctx context.Context) error {
	return multierr.Combine(s.loop.Close(ctx), s.reg.Shutdown(ctx))
}

func (s *session) writeMetrics(w io.Writer) error {
	families, err := s.metrics.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

type item struct {
	img      *remote.Image
	wantFull bool
	promoted bool

	mu        sync.Mutex
	fullError error
}

func (it *item) setFullError(err error) {
	it.mu.Lock()
	it.fullError = err
	it.mu.Unlock()
}

func (it *item) fullErr() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.fullError
}

// settled reports whether the item reached its final state. Still images
// that should be full are promoted here once their preview is ready.
func (it *item) settled() bool {
	res := it.img.Resource()
	switch res.State() {
	case lazyload.Error:
		return true
	case lazyload.Ready:
	default:
		return false
	}
	if !it.wantFull || res.IsFull() {
		return true
	}
	if !it.promoted {
		it.promoted = true
		res.PromoteToFull()
		return false
	}
	return !res.IsPromoting()
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	s, err := newSession(ctx, cfg)
	if err != nil {
		return err
	}

	logger := lg.FromContext(ctx)
	changed := make(chan struct{}, 1)
	notify := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	items := make([]*item, 0, len(args))
	for i, url := range args {
		it := &item{}
		img, err := remote.NewImage(ctx, s.reg, remote.Source{URL: url}, s.fetcher, remote.ImageOptions{
			Tag:        fetchTag,
			Priority:   i,
			Retry:      cfg.RetryPolicy(),
			Eviction:   s.evict,
			Dispatcher: s.loop,
			OnChange:   notify,
			OnError: func(err error) {
				logger.Warn("Image failed", lg.String("url", url), lg.Any("error", err))
				notify()
			},
			OnFullError: func(err error) {
				it.setFullError(err)
				notify()
			},
		})
		if err != nil {
			return multierr.Append(err, s.close(context.Background()))
		}
		it.img = img
		it.wantFull = fetchFull || img.Animated()
		items = append(items, it)

		img.OnVisibilityChanged(true)
		img.Start()
	}

	waitErr := wait(ctx, items, changed)

	out := cmd.OutOrStdout()
	for _, it := range items {
		report(out, it)
	}
	if cfg.Metrics.Enabled {
		if err := s.writeMetrics(cmd.ErrOrStderr()); err != nil {
			logger.Warn("Metrics dump failed", lg.Any("error", err))
		}
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	var errs error
	for _, it := range items {
		errs = multierr.Append(errs, it.img.Close())
	}
	errs = multierr.Append(errs, s.close(shutdownCtx))
	return multierr.Append(waitErr, errs)
}

func wait(ctx context.Context, items []*item, changed <-chan struct{}) error {
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		all := true
		for _, it := range items {
			if !it.settled() {
				all = false
			}
		}
		if all {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for images: %w", ctx.Err())
		case <-changed:
		case <-tick.C:
		}
	}
}

func report(w io.Writer, it *item) {
	res := it.img.Resource()
	url := it.img.Source().URL
	if err := res.Base().Err(); err != nil {
		fmt.Fprintf(w, "%s\t%s\t%v\n", url, res.State(), err)
		return
	}
	pic, ok := res.Peek()
	if !ok {
		fmt.Fprintf(w, "%s\t%s\n", url, res.State())
		return
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%dx%d\tframes=%d\n", url, res.State(), res.Tier(), pic.Width, pic.Height, len(pic.Frames()))
	if err := it.fullErr(); err != nil {
		fmt.Fprintf(w, "%s\tfull\t%v\n", url, err)
	}
}
