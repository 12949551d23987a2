package export

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adgenerator/internal/domain"
)

func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a.png":
			_, _ = w.Write([]byte("png-bytes"))
		case "/b":
			_, _ = w.Write([]byte("no-ext"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func entryNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestArchiveSkipsFailedDownloads(t *testing.T) {
	srv := newImageServer(t)
	exp := New(Options{AllowedHosts: []string{"127.0.0.1"}, Logger: zerolog.Nop()})

	data, report, err := exp.Archive(context.Background(), []string{
		srv.URL + "/a.png?sig=1",
		srv.URL + "/missing.png",
		"ftp://example.com/c.png",
		srv.URL + "/b",
	})
	require.NoError(t, err)
	assert.Equal(t, Report{Requested: 4, Included: 2, Skipped: 2}, report)
	assert.Equal(t, []string{
		"ADGenerator2.0-images/image_1.png",
		"ADGenerator2.0-images/image_4.jpg",
	}, entryNames(t, data))
}

func TestArchiveHonorsAllowlist(t *testing.T) {
	srv := newImageServer(t)
	exp := New(Options{AllowedHosts: []string{"ideogram.ai"}, Logger: zerolog.Nop()})

	data, report, err := exp.Archive(context.Background(), []string{srv.URL + "/a.png"})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Included)
	assert.Empty(t, entryNames(t, data))

	assert.True(t, exp.hostAllowed("cdn.ideogram.ai"))
	assert.True(t, exp.hostAllowed("IDEOGRAM.AI"))
	assert.False(t, exp.hostAllowed("evilideogram.ai"))
}

func TestArchiveSkipsPrivateAddressesByDefault(t *testing.T) {
	srv := newImageServer(t)
	exp := New(Options{Logger: zerolog.Nop()})

	data, report, err := exp.Archive(context.Background(), []string{
		srv.URL + "/a.png",
		"http://localhost/a.png",
		"http://169.254.169.254/latest/meta-data",
		"http://[::1]/a.png",
	})
	require.NoError(t, err)
	assert.Equal(t, Report{Requested: 4, Included: 0, Skipped: 4}, report)
	assert.Empty(t, entryNames(t, data))

	_, err = exp.validate(srv.URL + "/a.png")
	assert.ErrorIs(t, err, ErrPrivateAddress)
}

func TestDialControlRejectsNonPublicAddresses(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:80":         false,
		"10.1.2.3:443":         false,
		"192.168.0.10:80":      false,
		"169.254.169.254:80":   false,
		"100.64.0.1:80":        false,
		"0.0.0.0:80":           false,
		"[::1]:443":            false,
		"[fe80::1]:443":        false,
		"[::ffff:10.0.0.1]:80": false,
		"8.8.8.8:443":          true,
		"[2606:4700::1]:443":   true,
	}
	for address, public := range cases {
		err := dialControl("tcp", address, nil)
		if public {
			assert.NoError(t, err, address)
		} else {
			assert.ErrorIs(t, err, ErrPrivateAddress, address)
		}
	}
}

func TestArchiveRequiresURLs(t *testing.T) {
	_, _, err := New(Options{}).Archive(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrNoURLs)
}

func TestExtension(t *testing.T) {
	cases := map[string]string{
		"https://x.test/a.PNG":         "png",
		"https://x.test/a.webp?x=1":    "webp",
		"https://x.test/a":             "jpg",
		"https://x.test/a.verylongext": "jpg",
		"https://x.test/dir.v2/file":   "jpg",
		"https://x.test/a.jp%20g":      "jpg",
	}
	for raw, want := range cases {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, want, Extension(u), raw)
	}
}
