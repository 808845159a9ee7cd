package directus

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-intake/pkg/intake"
)

type fakeDirectus struct {
	mu       sync.Mutex
	logins   int
	requests []*http.Request
	bodies   []map[string]interface{}
	token    string
}

func (f *fakeDirectus) handler(t *testing.T, items http.HandlerFunc) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"errors":[{"message":"Invalid user credentials."}]}`))
			return
		}
		f.mu.Lock()
		f.logins++
		f.token = "token-" + string(rune('0'+f.logins))
		token := f.token
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"access_token": token, "expires": 900000},
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r)
		var body map[string]interface{}
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&body)
		}
		f.bodies = append(f.bodies, body)
		f.mu.Unlock()
		items(w, r)
	})
	return mux
}

func newTestClient(t *testing.T, server *httptest.Server, password string) *Client {
	client, err := New(Config{BaseURL: server.URL, Email: "admin@example.com", Password: password})
	require.NoError(t, err)
	return client
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "ftp://example.com"})
	assert.Error(t, err)

	client, err := New(Config{BaseURL: "http://directus:8055/"})
	require.NoError(t, err)
	assert.Equal(t, "http://directus:8055", client.baseURL.String())
}

func TestClient_Create(t *testing.T) {
	fake := &fakeDirectus{}
	server := httptest.NewServer(fake.handler(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/items/videos", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":{"id":42,"cidade":"Natal"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, "secret")
	id, err := client.Create(context.Background(), "videos", intake.Record{"cidade": "Natal", "img_path": nil})
	require.NoError(t, err)
	assert.Equal(t, "42", id)

	require.Len(t, fake.bodies, 1)
	assert.Equal(t, "Natal", fake.bodies[0]["cidade"])
	assert.Contains(t, fake.bodies[0], "img_path")
	assert.Nil(t, fake.bodies[0]["img_path"])

	// Token is cached across calls
	_, err = client.Create(context.Background(), "videos", intake.Record{})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.logins)
}

func TestClient_ReloginOnUnauthorized(t *testing.T) {
	fake := &fakeDirectus{}
	server := httptest.NewServer(fake.handler(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"errors":[{"message":"Token expired."}]}`))
			return
		}
		w.Write([]byte(`{"data":{"id":"abc"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, "secret")
	id, err := client.Create(context.Background(), "videos", intake.Record{})
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
	assert.Equal(t, 2, fake.logins)
}

func TestClient_LoginFailure(t *testing.T) {
	fake := &fakeDirectus{}
	server := httptest.NewServer(fake.handler(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("items endpoint must not be reached")
	}))
	defer server.Close()

	client := newTestClient(t, server, "wrong")
	_, err := client.Create(context.Background(), "videos", intake.Record{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, intake.ErrBackend))

	var be *intake.BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusUnauthorized, be.StatusCode)
	assert.Contains(t, be.Error(), "Invalid user credentials.")
}

func TestClient_StaticToken(t *testing.T) {
	fake := &fakeDirectus{}
	server := httptest.NewServer(fake.handler(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer static", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":{"id":1}}`))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, StaticToken: "static"})
	require.NoError(t, err)
	_, err = client.Create(context.Background(), "videos", intake.Record{})
	require.NoError(t, err)
	assert.Equal(t, 0, fake.logins)
}

func TestClient_List(t *testing.T) {
	fake := &fakeDirectus{}
	server := httptest.NewServer(fake.handler(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/items/videos", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("filter[descricao_ia][_null]"))
		assert.Equal(t, "10", q.Get("limit"))
		assert.Equal(t, "-datetime", q.Get("sort"))
		w.Write([]byte(`{"data":[{"id":1,"problema":"buraco"},{"id":2,"problema":"lixo"}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, "secret")
	records, err := client.List(context.Background(), "videos", intake.ListQuery{NullField: "descricao_ia", Limit: 10, Newest: true})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1", records[0].ID())
	assert.Equal(t, "lixo", records[1].String("problema"))
}

func TestClient_GetNotFound(t *testing.T) {
	fake := &fakeDirectus{}
	server := httptest.NewServer(fake.handler(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errors":[{"message":"Route doesn't exist."}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, "secret")
	_, err := client.Get(context.Background(), "videos", "99")
	require.Error(t, err)
	assert.True(t, errors.Is(err, intake.ErrRecordNotFound))
	assert.True(t, errors.Is(err, intake.ErrBackend))
}

func TestClient_Update(t *testing.T) {
	fake := &fakeDirectus{}
	server := httptest.NewServer(fake.handler(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/items/videos/7", r.URL.Path)
		w.Write([]byte(`{"data":{"id":7}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, "secret")
	err := client.Update(context.Background(), "videos", "7", intake.Record{FieldRewrite: "texto"})
	require.NoError(t, err)
	require.Len(t, fake.bodies, 1)
	assert.Equal(t, "texto", fake.bodies[0][FieldRewrite])
}

func TestClient_EnsureSchema(t *testing.T) {
	fake := &fakeDirectus{}
	server := httptest.NewServer(fake.handler(t, func(w http.ResponseWriter, r *http.Request) {
		// Collections already exist; fields are new
		if r.URL.Path == "/collections" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"errors":[{"message":"Collection already exists"}]}`))
			return
		}
		w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	forms := intake.NewForms(intake.VideosForm)
	schema := SchemaFromForms(forms, "videos")
	require.Len(t, schema, 1)
	schema[0].PublicActions = []string{"create"}

	client := newTestClient(t, server, "secret")
	result, err := client.EnsureSchema(context.Background(), schema)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Collections)
	assert.Equal(t, len(schema[0].Fields), result.Fields)
	assert.Equal(t, 1, result.Permissions)

	var types = map[string]string{}
	for _, f := range schema[0].Fields {
		types[f.Name] = f.Type
	}
	assert.Equal(t, "text", types["problema"])
	assert.Equal(t, "string", types["img_path"])
	assert.Equal(t, "datetime", types["datetime"])
	assert.Equal(t, "text", types[FieldRewrite])
}

func TestClient_EnsureSchemaFailure(t *testing.T) {
	fake := &fakeDirectus{}
	server := httptest.NewServer(fake.handler(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(t, server, "secret")
	_, err := client.EnsureSchema(context.Background(), []Collection{{Name: "videos"}})
	require.Error(t, err)

	var be *intake.BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusForbidden, be.StatusCode)
}

func TestClient_Ping(t *testing.T) {
	fake := &fakeDirectus{}
	server := httptest.NewServer(fake.handler(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/server/ping", r.URL.Path)
		w.Write([]byte("pong"))
	}))
	defer server.Close()

	anonymous, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)
	assert.NoError(t, anonymous.Ping(context.Background()))

	withLogin := newTestClient(t, server, "secret")
	for i := 0; i < 3; i++ {
		assert.NoError(t, withLogin.Ping(context.Background()))
	}
	assert.Equal(t, 1, fake.logins, "cached token is reused across pings")

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.requests, 4)
	assert.Empty(t, fake.requests[0].Header.Get("Authorization"))
	for _, r := range fake.requests[1:] {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
	}
}

func TestClient_PingBadCredentials(t *testing.T) {
	fake := &fakeDirectus{}
	server := httptest.NewServer(fake.handler(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	}))
	defer server.Close()

	client := newTestClient(t, server, "wrong")
	err := client.Ping(context.Background())
	require.Error(t, err)

	var be *intake.BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusUnauthorized, be.StatusCode)
	assert.Empty(t, fake.requests)
}
