// Package export downloads generated images and bundles them into a zip.
package export

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"adgenerator/internal/domain"
	"adgenerator/pkg/zip"
)

const (
	Folder             = "ADGenerator2.0-images"
	ArchiveName        = "ADGenerator2.0-images.zip"
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 6
	defaultExt         = "jpg"
)

// ErrPrivateAddress is returned for URLs that resolve to a loopback, private,
// link-local or otherwise non-public address.
var ErrPrivateAddress = errors.New("export: non-public address")

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

type Options struct {
	Client       *resty.Client
	Timeout      time.Duration
	Concurrency  int
	AllowedHosts []string
	Logger       zerolog.Logger
}

// Report counts what happened to the requested URLs.
type Report struct {
	Requested int `json:"requested"`
	Included  int `json:"included"`
	Skipped   int `json:"skipped"`
}

// Exporter fetches images concurrently. Failed or disallowed URLs are skipped
// so one bad link never fails the archive.
type Exporter struct {
	client      *resty.Client
	concurrency int
	allowed     []string
	logger      zerolog.Logger
}

func New(opts Options) *Exporter {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = resty.New().SetTimeout(timeout)
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	allowed := make([]string, 0, len(opts.AllowedHosts))
	for _, h := range opts.AllowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			allowed = append(allowed, h)
		}
	}
	if len(allowed) == 0 {
		// without an allowlist only public addresses may be fetched; the check
		// runs on the dialed address so redirects and rebinding are covered too
		client.SetTransport(publicOnlyTransport())
	}
	return &Exporter{client: client, concurrency: concurrency, allowed: allowed, logger: opts.Logger}
}

// Archive downloads urls and returns the zip bytes. Entry n is named after the
// position of its URL in the request.
func (e *Exporter) Archive(ctx context.Context, urls []string) ([]byte, Report, error) {
	report := Report{Requested: len(urls)}
	if len(urls) == 0 {
		return nil, report, domain.ErrNoURLs
	}

	assets := make([]*zip.Asset, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, raw := range urls {
		g.Go(func() error {
			asset, err := e.fetch(gctx, i, raw)
			if err != nil {
				e.logger.Warn().Err(err).Str("url", raw).Int("index", i+1).Msg("export download skipped")
				return nil
			}
			assets[i] = asset
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, report, err
	}

	entries := make([]zip.Asset, 0, len(assets))
	for _, a := range assets {
		if a != nil {
			entries = append(entries, *a)
		}
	}
	report.Included = len(entries)
	report.Skipped = report.Requested - report.Included

	data, err := zip.ArchiveAssets(Folder, entries)
	if err != nil {
		return nil, report, fmt.Errorf("build archive: %w", err)
	}
	e.logger.Info().
		Int("requested", report.Requested).
		Int("included", report.Included).
		Int("bytes", len(data)).
		Msg("export archive built")
	return data, report, nil
}

func (e *Exporter) fetch(ctx context.Context, idx int, raw string) (*zip.Asset, error) {
	u, err := e.validate(raw)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.R().SetContext(ctx).Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("download: status %d", resp.StatusCode())
	}
	return &zip.Asset{
		Filename: fmt.Sprintf("image_%d.%s", idx+1, Extension(u)),
		Data:     resp.Body(),
		Modified: time.Now(),
	}, nil
}

func (e *Exporter) validate(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host")
	}
	if !e.hostAllowed(u.Hostname()) {
		return nil, fmt.Errorf("host %s is not allowed", u.Hostname())
	}
	if len(e.allowed) == 0 {
		if addr, err := netip.ParseAddr(u.Hostname()); err == nil && !publicAddr(addr) {
			return nil, fmt.Errorf("%w: %s", ErrPrivateAddress, addr)
		}
		if strings.EqualFold(u.Hostname(), "localhost") {
			return nil, fmt.Errorf("%w: localhost", ErrPrivateAddress)
		}
	}
	return u, nil
}

func (e *Exporter) hostAllowed(host string) bool {
	if len(e.allowed) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, a := range e.allowed {
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

// Extension returns the file extension of the URL path or jpg.
func Extension(u *url.URL) string {
	ext := strings.TrimPrefix(path.Ext(u.Path), ".")
	if ext == "" || len(ext) > 5 {
		return defaultExt
	}
	for _, r := range ext {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return defaultExt
		}
	}
	return strings.ToLower(ext)
}

func publicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsValid() &&
		!addr.IsLoopback() &&
		!addr.IsPrivate() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsLinkLocalMulticast() &&
		!addr.IsInterfaceLocalMulticast() &&
		!addr.IsMulticast() &&
		!addr.IsUnspecified() &&
		!sharedAddressSpace.Contains(addr)
}

func dialControl(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPrivateAddress, address)
	}
	if !publicAddr(ap.Addr()) {
		return fmt.Errorf("%w: %s", ErrPrivateAddress, ap.Addr())
	}
	return nil
}

func publicOnlyTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   dialControl,
	}
	return &http.Transport{
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
