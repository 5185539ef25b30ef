package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"image/color"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxysheet/internal/cache"
	"proxysheet/internal/domain"
	"proxysheet/internal/fetch"
	"proxysheet/internal/printer"
	"proxysheet/internal/render"
	"proxysheet/internal/testsupport"
	u "proxysheet/internal/utils"
)

const (
	idA = "e01a59e7-bde1-4150-bb4f-a19d769764f2"
	idB = "0000579f-7b35-4ed3-b44c-db2a538066fe"
)

func newTestService(t *testing.T) (*PrintService, *testsupport.FakeSource) {
	t.Helper()
	cfg := u.DefaultConfig()
	cfg.Limits.MaxCards = 10
	cfg.Render.JobTimeout = 10 * time.Second
	cfg.Layout.Rows, cfg.Layout.Cols = 1, 1

	src := testsupport.NewFakeSource(map[domain.CardKey][]byte{
		{ID: idA, Face: domain.FaceFront}: testsupport.SolidPNG(t, color.RGBA{R: 0xff, A: 0xff}),
		{ID: idA, Face: domain.FaceBack}:  testsupport.SolidPNG(t, color.RGBA{G: 0xff, A: 0xff}),
		{ID: idB, Face: domain.FaceFront}: testsupport.SolidPNG(t, color.RGBA{B: 0xff, A: 0xff}),
	})
	store := cache.New()
	pool := render.NewPool(2)
	t.Cleanup(pool.Close)
	f := fetch.New(store, src, fetch.Options{})
	return NewPrintService(cfg, printer.New(store, f, pool, 1), pool, store), src
}

func newTestApp(svc *PrintService) *fiber.App {
	app := fiber.New()
	app.Get("/v1/ping", HandlePing)
	app.Post("/v1/print", svc.HandlePrint)
	app.Get("/v1/render/stats", svc.HandleStats)
	return app
}

func postJSON(t *testing.T, app *fiber.App, body string) *httpResponse {
	t.Helper()
	req := httptest.NewRequest("POST", "/v1/print", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return &httpResponse{Status: resp.StatusCode, Header: resp.Header.Get, Body: data}
}

type httpResponse struct {
	Status int
	Header func(string) string
	Body   []byte
}

func TestHandlePing(t *testing.T) {
	svc, _ := newTestService(t)
	resp, err := newTestApp(svc).Test(httptest.NewRequest("GET", "/v1/ping", nil), -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong!", string(body))
}

func TestHandlePrint_Success(t *testing.T) {
	svc, src := newTestService(t)
	app := newTestApp(svc)

	resp := postJSON(t, app, `{"cards":[{"id":"`+idA+`","quantity":2},{"id":"`+strings.ToUpper(idA)+`","face":"BACK"},{"id":"`+idB+`"}],"filename":"deck.pdf"}`)
	require.Equal(t, fiber.StatusOK, resp.Status, string(resp.Body))
	assert.Equal(t, "application/pdf", resp.Header("Content-Type"))
	assert.Equal(t, "attachment; filename=deck.pdf", resp.Header("Content-Disposition"))
	assert.Equal(t, "4", resp.Header("X-Sheet-Pages"))
	assert.True(t, bytes.HasPrefix(resp.Body, []byte("%PDF-1.4")))
	assert.Len(t, src.Calls(), 3)
}

func TestHandlePrint_DefaultFilename(t *testing.T) {
	svc, _ := newTestService(t)
	resp := postJSON(t, newTestApp(svc), `{"cards":[{"id":"`+idB+`","quantity":1}]}`)
	require.Equal(t, fiber.StatusOK, resp.Status)
	assert.Equal(t, "attachment; filename=proxies.pdf", resp.Header("Content-Disposition"))
}

func TestHandlePrint_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"not json", `cards=1`, fiber.StatusBadRequest},
		{"empty list", `{"cards":[]}`, fiber.StatusBadRequest},
		{"bad id", `{"cards":[{"id":"lightning-bolt"}]}`, fiber.StatusBadRequest},
		{"bad face", `{"cards":[{"id":"` + idA + `","face":"side"}]}`, fiber.StatusBadRequest},
		{"zero quantity", `{"cards":[{"id":"` + idA + `","quantity":0}]}`, fiber.StatusBadRequest},
		{"too many cards", `{"cards":[{"id":"` + idA + `","quantity":6},{"id":"` + idB + `","quantity":5}]}`, fiber.StatusRequestEntityTooLarge},
		{"filename suffix", `{"cards":[{"id":"` + idA + `"}],"filename":"deck.txt"}`, fiber.StatusBadRequest},
		{"filename chars", `{"cards":[{"id":"` + idA + `"}],"filename":"../deck.pdf"}`, fiber.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, src := newTestService(t)
			resp := postJSON(t, newTestApp(svc), tc.body)
			assert.Equal(t, tc.want, resp.Status, string(resp.Body))
			assert.Empty(t, src.Calls(), "invalid requests must not reach the network")
		})
	}
}

func TestHandlePrint_NetworkFailure(t *testing.T) {
	svc, src := newTestService(t)
	src.Err = errors.New("upstream down")
	resp := postJSON(t, newTestApp(svc), `{"cards":[{"id":"`+idA+`"}]}`)
	assert.Equal(t, fiber.StatusBadGateway, resp.Status)
	assert.NotContains(t, string(resp.Body), "%PDF")
}

func TestHandlePrint_Timeout(t *testing.T) {
	svc, src := newTestService(t)
	src.Delay = time.Second
	svc.Config.Render.JobTimeout = 20 * time.Millisecond
	resp := postJSON(t, newTestApp(svc), `{"cards":[{"id":"`+idA+`"}]}`)
	assert.Equal(t, fiber.StatusRequestTimeout, resp.Status)
}

func TestHandleStats(t *testing.T) {
	svc, _ := newTestService(t)
	app := newTestApp(svc)
	require.Equal(t, fiber.StatusOK, postJSON(t, app, `{"cards":[{"id":"`+idB+`"}]}`).Status)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/render/stats", nil), -1)
	require.NoError(t, err)
	var stats map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))

	assert.Equal(t, true, stats["enabled"])
	assert.Equal(t, float64(2), stats["capacity"])
	assert.Equal(t, float64(1), stats["cache_entries"])
	assert.Equal(t, float64(10), stats["job_timeout_sec"])
	assert.GreaterOrEqual(t, stats["completed"].(float64), float64(2))
}
