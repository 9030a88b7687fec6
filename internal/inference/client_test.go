package inference

import (
	"context"
	"errors"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate-service/internal/domain/anpr"
)

func sidecar(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "image/jpeg" {
			http.Error(w, "want jpeg", http.StatusUnsupportedMediaType)
			return
		}
		img, err := jpeg.Decode(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/detect":
			if img.Bounds().Dx() != 64 {
				http.Error(w, "unexpected size", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`[{"box":[1,2,30,12],"score":0.91,"class":"plate"},{"box":[5,5,9,9],"score":0.5}]`))
		case "/recognize":
			_, _ = w.Write([]byte(`[{"box":[0,0,10,8],"text":"B","score":0.9},{"box":[12,0,40,8],"text":"1234","score":0.8}]`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestClientDetect(t *testing.T) {
	srv := sidecar(t)
	defer srv.Close()
	c := NewClient(srv.URL+"/", time.Second)

	dets, err := c.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 64, 48)))
	require.NoError(t, err)
	require.Len(t, dets, 2)
	assert.Equal(t, anpr.Detection{Box: anpr.Box{X1: 1, Y1: 2, X2: 30, Y2: 12}, Score: 0.91, Class: anpr.ClassPlate}, dets[0])
	assert.Equal(t, anpr.ClassPlate, dets[1].Class)
}

func TestClientRecognize(t *testing.T) {
	srv := sidecar(t)
	defer srv.Close()
	c := NewClient(srv.URL, time.Second)

	frags, err := c.Recognize(context.Background(), image.NewRGBA(image.Rect(0, 0, 40, 10)))
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Equal(t, "1234", frags[1].Text)
	assert.Equal(t, 12.0, frags[1].Box.X1)
}

func TestClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.Equal(t, "/detect", httpErr.Path)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestClientMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Recognize(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	assert.ErrorContains(t, err, "malformed response")
}
