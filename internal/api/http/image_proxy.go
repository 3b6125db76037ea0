package apihttp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cinefinder/searchservice/internal/render"
)

const maxProxiedImageBytes = int64(20 * 1024 * 1024) // 20MB

var allowedImageSizes = map[string]struct{}{
	render.SizeProfile:      {},
	render.SizeCardPoster:   {},
	render.SizeDetailPoster: {},
	render.SizeBackdrop:     {},
	"original":              {},
}

// imageProxy fetches images from the configured image host only. Callers pass
// a size and a file path, never a URL.
type imageProxy struct {
	base   *url.URL
	client *http.Client
}

func newImageProxy(imageBaseURL string, client *http.Client) *imageProxy {
	raw := strings.TrimRight(strings.TrimSpace(imageBaseURL), "/")
	if raw == "" {
		raw = render.DefaultImageBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil || base.Host == "" {
		base, _ = url.Parse(render.DefaultImageBaseURL)
	}
	proxy := &imageProxy{base: base, client: client}
	if proxy.client == nil {
		proxy.client = newImageProxyClient(base.Host)
	}
	return proxy
}

func (p *imageProxy) target(size, path string) (string, error) {
	if _, ok := allowedImageSizes[size]; !ok {
		return "", errors.New("unsupported image size")
	}
	if err := validateImagePath(path); err != nil {
		return "", err
	}
	return p.base.String() + "/" + size + path, nil
}

func (s *Server) handleImageProxy(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/image" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	size := strings.TrimSpace(r.URL.Query().Get("size"))
	if size == "" {
		size = render.SizeCardPoster
	}
	target, err := s.images.target(size, strings.TrimSpace(r.URL.Query().Get("path")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid image path")
		return
	}
	req.Header.Set("User-Agent", "cinefinder/1.0")
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := s.images.client.Do(req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to fetch image")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		writeError(w, http.StatusNotFound, "not_found", "image not found")
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Do not forward upstream body to avoid leaking HTML/JS. Keep it generic.
		writeError(w, http.StatusBadGateway, "upstream_error", fmt.Sprintf("upstream returned HTTP %d", resp.StatusCode))
		return
	}

	if resp.ContentLength > maxProxiedImageBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "image too large")
		return
	}

	limited := io.LimitReader(resp.Body, maxProxiedImageBytes)
	head := make([]byte, 512)
	n, readErr := io.ReadFull(limited, head)
	if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF) {
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to read image")
		return
	}
	head = head[:n]

	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(head)
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		writeError(w, http.StatusBadGateway, "upstream_error", "not an image")
		return
	}

	w.Header().Set("Content-Type", contentType)
	// Image paths are content-addressed upstream.
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)

	_, _ = w.Write(head)
	_, _ = io.Copy(w, limited)
}

func newImageProxyClient(allowedHost string) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil

	dialer := &net.Dialer{Timeout: 8 * time.Second, KeepAlive: 30 * time.Second}
	transport.DialContext = dialer.DialContext

	return &http.Client{
		Timeout:   12 * time.Second,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("stopped after 5 redirects")
			}
			if req.URL == nil || !strings.EqualFold(req.URL.Host, allowedHost) {
				return errors.New("redirect left the image host")
			}
			return nil
		},
	}
}

// validateImagePath accepts a single rooted file name such as /abc123.jpg.
func validateImagePath(path string) error {
	if path == "" {
		return errors.New("missing image path")
	}
	if !strings.HasPrefix(path, "/") || strings.Count(path, "/") != 1 {
		return errors.New("invalid image path")
	}
	name := path[1:]
	if name == "" || strings.Contains(name, "..") {
		return errors.New("invalid image path")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '-' || r == '_':
		default:
			return errors.New("invalid image path")
		}
	}
	return nil
}
