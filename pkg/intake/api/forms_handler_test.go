package api

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-intake/pkg/intake"
	memorybackend "github.com/tendant/simple-intake/pkg/intake/backend/memory"
	memorystorage "github.com/tendant/simple-intake/pkg/intake/storage/memory"
)

type testApp struct {
	handler http.Handler
	backend *memorybackend.Backend
	store   *memorystorage.Backend
}

func newTestApp(t *testing.T, configure ...func(*RouterConfig)) *testApp {
	t.Helper()
	backend := memorybackend.New()
	store := memorystorage.New()
	pipeline, err := intake.New(intake.WithBackend(backend), intake.WithBlobStore(store))
	require.NoError(t, err)

	config := RouterConfig{
		Pipeline: pipeline,
		Forms:    intake.DefaultForms(),
		Store:    backend,
	}
	for _, fn := range configure {
		fn(&config)
	}
	handler, err := NewRouter(config)
	require.NoError(t, err)
	return &testApp{handler: handler, backend: backend, store: store}
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

type multipartFile struct {
	field    string
	filename string
	data     []byte
}

func multipartRequest(t *testing.T, path string, values map[string]string, files ...multipartFile) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range values {
		require.NoError(t, writer.WriteField(k, v))
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func videoValues(token string) map[string]string {
	values := map[string]string{
		"whatsapp": "84999990000",
		"cidade":   "Natal",
		"bairro":   "Lagoa Nova",
		"problema": "Buraco na rua",
	}
	if token != "" {
		values[TokenField] = token
	}
	return values
}

func TestSubmit_RedirectsToThankYou(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(multipartRequest(t, "/videos", videoValues("tok-1"),
		multipartFile{field: "img_path", filename: "foto.jpg", data: []byte("jpeg bytes")}))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, ThankYouPath, rec.Header().Get("Location"))
	assert.Equal(t, 1, app.backend.Creates())
	assert.Equal(t, 1, app.store.Writes())
}

func TestSubmit_DuplicateTokenIsAcceptedOnce(t *testing.T) {
	app := newTestApp(t)
	file := multipartFile{field: "img_path", filename: "foto.jpg", data: []byte("jpeg bytes")}

	first := app.do(multipartRequest(t, "/videos", videoValues("tok-dup"), file))
	second := app.do(multipartRequest(t, "/videos", videoValues("tok-dup"), file))

	assert.Equal(t, http.StatusSeeOther, first.Code)
	assert.Equal(t, http.StatusSeeOther, second.Code)
	assert.Equal(t, ThankYouPath, second.Header().Get("Location"))
	assert.Equal(t, 1, app.backend.Creates())
	assert.Equal(t, 1, app.store.Writes())
}

func TestSubmit_TokenFromHeader(t *testing.T) {
	app := newTestApp(t)

	for i := 0; i < 2; i++ {
		req := multipartRequest(t, "/videos", videoValues(""))
		req.Header.Set(TokenHeader, "header-token")
		rec := app.do(req)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
	}
	assert.Equal(t, 1, app.backend.Creates())
}

func TestSubmit_WithoutTokenAlwaysProcessed(t *testing.T) {
	app := newTestApp(t)

	app.do(multipartRequest(t, "/videos", videoValues("")))
	app.do(multipartRequest(t, "/videos", videoValues("")))

	assert.Equal(t, 2, app.backend.Creates())
}

func TestSubmit_BackendFailureStillRedirects(t *testing.T) {
	app := newTestApp(t)
	app.backend.FailCreates(errors.New("directus down"))

	rec := app.do(multipartRequest(t, "/videos", videoValues("tok-fail"),
		multipartFile{field: "video_path", filename: "clip.mp4", data: []byte("mp4")}))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, ThankYouPath, rec.Header().Get("Location"))
	assert.Equal(t, 0, app.backend.Creates())
	assert.Equal(t, 1, app.store.Writes())
}

func TestSubmit_MissingRequiredField(t *testing.T) {
	app := newTestApp(t)
	values := videoValues("tok-invalid")
	delete(values, "cidade")

	rec := app.do(multipartRequest(t, "/videos", values))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Preencha o campo Cidade")
	assert.Equal(t, 0, app.backend.Creates())

	// The token was not consumed by the rejected post
	rec = app.do(multipartRequest(t, "/videos", videoValues("tok-invalid")))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 1, app.backend.Creates())
}

func TestSubmit_URLEncoded(t *testing.T) {
	app := newTestApp(t)
	form := url.Values{}
	for k, v := range videoValues("tok-urlencoded") {
		form.Set(k, v)
	}

	req := httptest.NewRequest(http.MethodPost, "/videos", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := app.do(req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	records, err := app.backend.List(context.Background(), "videos", intake.ListQuery{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Natal", records[0]["cidade"])
	assert.Nil(t, records[0]["img_path"])
}

func TestSubmit_MultipleFiles(t *testing.T) {
	app := newTestApp(t)
	values := map[string]string{
		"nome_empresa":            "Padaria Sol",
		"nome_responsavel":        "Ana",
		"telefone_contato_equipe": "84911110000",
		"telefone_empresa":        "8432220000",
		"endereco":                "Rua A, 10",
		"tipo_negocio":            "padaria",
		"descricao_oferta":        "Pão quente",
		"formas_pagamento":        "pix",
		"desconto_vista":          "5%",
		"parcelas_cartao":         "3",
	}

	rec := app.do(multipartRequest(t, "/propaganda", values,
		multipartFile{field: "materiais_divulgacao", filename: "a.png", data: []byte("a")},
		multipartFile{field: "materiais_divulgacao", filename: "b.png", data: []byte("b")}))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 2, app.store.Writes())
	records, err := app.backend.List(context.Background(), "propaganda", intake.ListQuery{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Len(t, records[0]["materiais_divulgacao"], 2)
}

func TestSubmit_BodyTooLarge(t *testing.T) {
	app := newTestApp(t, func(c *RouterConfig) { c.MaxUploadBytes = 512 })

	rec := app.do(multipartRequest(t, "/videos", videoValues("tok-big"),
		multipartFile{field: "video_path", filename: "big.mp4", data: bytes.Repeat([]byte("x"), 4096)}))

	assert.Contains(t, []int{http.StatusRequestEntityTooLarge, http.StatusBadRequest}, rec.Code)
	assert.Equal(t, 0, app.backend.Creates())
}

func TestFormPage_CarriesToken(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(httptest.NewRequest(http.MethodGet, "/pet-perdido", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `name="idempotency_token"`)
	assert.Contains(t, body, `enctype="multipart/form-data"`)
	assert.Contains(t, body, `name="nome_pet"`)
}
