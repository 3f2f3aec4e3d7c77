package web

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// proxyClient fetches preview images on behalf of the browser, which cannot
// reach the generation CDN directly from the kiosk network.
var proxyClient = &http.Client{Timeout: 45 * time.Second}

// handleProxyImage fetches the url query parameter and relays the bytes.
// Failures return a neutral placeholder so the UI never shows a broken image.
func (s *Server) handleProxyImage(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		http.Error(w, "invalid url", http.StatusBadRequest)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		s.servePlaceholder(w)
		return
	}
	// The CDN rejects non-browser clients.
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	resp, err := proxyClient.Do(req)
	if err != nil {
		s.log.Warn("image proxy fetch failed", "url", target.String(), "error", err)
		s.servePlaceholder(w)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.log.Warn("image proxy upstream status", "url", target.String(), "status", resp.StatusCode)
		s.servePlaceholder(w)
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, resp.Body)
}

var (
	placeholderOnce sync.Once
	placeholderJPEG []byte
)

// servePlaceholder writes a flat gray JPEG.
func (s *Server) servePlaceholder(w http.ResponseWriter) {
	placeholderOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, 64, 64))
		gray := color.RGBA{90, 90, 90, 255}
		for y := 0; y < 64; y++ {
			for x := 0; x < 64; x++ {
				img.SetRGBA(x, y, gray)
			}
		}
		var buf bytes.Buffer
		_ = jpeg.Encode(&buf, img, nil)
		placeholderJPEG = buf.Bytes()
	})
	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(placeholderJPEG)
}
