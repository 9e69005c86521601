package imageproxy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Kittens/internal/core/imageproxy"
)

type mockService struct {
	calls  int
	preset string
	uri    string
	data   []byte
	err    error
}

func (m *mockService) GetImage(ctx context.Context, preset, rawURI string) ([]byte, error) {
	m.calls++
	m.preset, m.uri = preset, rawURI
	return m.data, m.err
}

func createTestRequest(preset, uri string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/img/"+preset+"?uri="+url.QueryEscape(uri), nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("preset", preset)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestHandleImage_Success(t *testing.T) {
	svc := &mockService{data: []byte("jpeg-bytes")}
	h := NewHandler(svc)
	rec := httptest.NewRecorder()

	h.HandleImage(rec, createTestRequest("card", "ipfs:/bafyimage/1.png"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=31536000, immutable", rec.Header().Get("Cache-Control"))
	wantETag := `"card-` + imageproxy.CacheKey("ipfs://bafyimage/1.png")[:16] + `"`
	assert.Equal(t, wantETag, rec.Header().Get("ETag"))
	assert.Equal(t, "jpeg-bytes", rec.Body.String())
	assert.Equal(t, "card", svc.preset)
	assert.Equal(t, "ipfs:/bafyimage/1.png", svc.uri)
}

func TestHandleImage_HTTPSourceGetsShortCache(t *testing.T) {
	h := NewHandler(&mockService{data: []byte("x")})
	rec := httptest.NewRecorder()

	h.HandleImage(rec, createTestRequest("thumb", "https://cdn.example/kitten.png"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
}

func TestHandleImage_NotModified(t *testing.T) {
	svc := &mockService{data: []byte("x")}
	h := NewHandler(svc)

	req := createTestRequest("card", "ipfs://bafyimage/1.png")
	req.Header.Set("If-None-Match", `"card-`+imageproxy.CacheKey("ipfs://bafyimage/1.png")[:16]+`"`)
	rec := httptest.NewRecorder()
	h.HandleImage(rec, req)

	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Zero(t, svc.calls)
}

func TestHandleImage_BadRequest(t *testing.T) {
	svc := &mockService{}
	h := NewHandler(svc)

	for _, tc := range []struct{ preset, uri string }{
		{"card", ""},
		{"card", "   "},
		{"", "ipfs://bafyimage"},
		{"poster", "ipfs://bafyimage"},
	} {
		rec := httptest.NewRecorder()
		h.HandleImage(rec, createTestRequest(tc.preset, tc.uri))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "%+v", tc)
		assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	}
	assert.Zero(t, svc.calls)
}

func TestHandleImage_ServiceErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{imageproxy.ErrEmptySource, http.StatusBadRequest},
		{imageproxy.ErrUnsupportedSource, http.StatusUnprocessableEntity},
		{imageproxy.ErrSourceNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: deadline", imageproxy.ErrSourceTimeout), http.StatusGatewayTimeout},
		{fmt.Errorf("%w: 502", imageproxy.ErrSourceFetchFailed), http.StatusBadGateway},
		{imageproxy.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
		{imageproxy.ErrImageTooLarge, http.StatusRequestEntityTooLarge},
		{imageproxy.ErrProcessingFailed, http.StatusInternalServerError},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := NewHandler(&mockService{err: tt.err})
			rec := httptest.NewRecorder()
			h.HandleImage(rec, createTestRequest("card", "ipfs://bafyimage/1.png"))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
