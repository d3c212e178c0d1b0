package tracking

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	opens  []string
	clicks [][2]string
	err    error
}

func (f *fakeRecorder) RecordOpen(_ context.Context, id string) error {
	f.opens = append(f.opens, id)
	return f.err
}

func (f *fakeRecorder) RecordClick(_ context.Context, id, url string) error {
	f.clicks = append(f.clicks, [2]string{id, url})
	return f.err
}

func serve(h *Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestOpenServesPixel(t *testing.T) {
	fr := &fakeRecorder{}
	rec := serve(NewHandler(fr), "/track/open/tok-1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Equal(t, pixelGIF, rec.Body.Bytes())
	assert.Equal(t, []string{"tok-1"}, fr.opens)
}

func TestOpenServesPixelWhenRecordingFails(t *testing.T) {
	fr := &fakeRecorder{err: errors.New("db down")}
	rec := serve(NewHandler(fr), "/track/open/unknown")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pixelGIF, rec.Body.Bytes())
}

func TestClickRedirects(t *testing.T) {
	fr := &fakeRecorder{err: errors.New("db down")}
	rec := serve(NewHandler(fr), "/track/click/tok-1?url=https%3A%2F%2Fstudio.test%2Fbook%3Fclass%3D1")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://studio.test/book?class=1", rec.Header().Get("Location"))
	require.Len(t, fr.clicks, 1)
	assert.Equal(t, [2]string{"tok-1", "https://studio.test/book?class=1"}, fr.clicks[0])
}

func TestClickWithoutURLIsBadRequest(t *testing.T) {
	fr := &fakeRecorder{}
	rec := serve(NewHandler(fr), "/track/click/tok-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, fr.clicks)
}

func TestInjectTracking(t *testing.T) {
	in := NewInjector("https://t.studio.test/")
	html := `<html><body><a href="https://studio.test/book">Book</a> <a href='http://x.test/a?b=c'>x</a> <a href="mailto:hi@studio.test">mail</a></body></html>`

	out := in.InjectTracking(html, "tok-1")

	assert.Contains(t, out, `href="https://t.studio.test/track/click/tok-1?url=https%3A%2F%2Fstudio.test%2Fbook"`)
	assert.Contains(t, out, `href="https://t.studio.test/track/click/tok-1?url=http%3A%2F%2Fx.test%2Fa%3Fb%3Dc"`)
	assert.Contains(t, out, `href="mailto:hi@studio.test"`)
	assert.Contains(t, out, `<img src="https://t.studio.test/track/open/tok-1" width="1" height="1" alt="" style="display:none;width:1px;height:1px" /></body>`)

	// already tracked links are left alone
	assert.Equal(t, 1, countOf(in.InjectTracking(`<a href="https://t.studio.test/track/click/x?url=y">`, "tok-2"), "/track/click/"))
	assert.Equal(t, "plain", in.InjectTracking("plain", ""))
}

func countOf(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}
