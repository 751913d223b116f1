package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rentwise/portal/internal/guard"
	"github.com/rentwise/portal/internal/properties/repository"
	"github.com/rentwise/portal/internal/properties/service"
	"github.com/rentwise/portal/pkg/middleware"
	"github.com/stretchr/testify/require"
)

func newRouter(svc *service.Service) *gin.Engine {
	g := gin.New()
	api := g.Group("/api", func(c *gin.Context) {
		c.Set(middleware.SubjectKey, &guard.Subject{UserID: c.GetHeader("X-Owner")})
		c.Next()
	})
	RegisterPropertyRoutes(api, svc)
	return g
}

func do(g *gin.Engine, method, path, owner, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Owner", owner)
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func TestPropertyHandler_CRUD(t *testing.T) {
	g := newRouter(service.New(repository.NewMemoryRepo(), nil))

	w := do(g, http.MethodPost, "/api/properties", "u1", `{"name":"Maple Court","units":4,"monthlyRent":950}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	id := created["id"].(string)
	require.NotEmpty(t, id)

	require.Equal(t, http.StatusOK, do(g, http.MethodGet, "/api/properties/"+id, "u1", "").Code)
	require.Equal(t, http.StatusNotFound, do(g, http.MethodGet, "/api/properties/"+id, "u2", "").Code)

	w = do(g, http.MethodGet, "/api/properties", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)

	require.Equal(t, http.StatusOK, do(g, http.MethodPut, "/api/properties/"+id, "u1", `{"name":"Maple Court","units":5}`).Code)
	require.Equal(t, http.StatusBadRequest, do(g, http.MethodPut, "/api/properties/"+id, "u1", `{"name":""}`).Code)

	require.Equal(t, http.StatusNoContent, do(g, http.MethodDelete, "/api/properties/"+id, "u1", "").Code)
	require.Equal(t, http.StatusNotFound, do(g, http.MethodDelete, "/api/properties/"+id, "u1", "").Code)
}

func TestPropertyHandler_PhotoWithoutStorage(t *testing.T) {
	g := newRouter(service.New(repository.NewMemoryRepo(), nil))
	w := do(g, http.MethodPost, "/api/properties", "u1", `{"name":"Elm"}`)
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	id := created["id"].(string)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="photo"; filename="front.png"`)
	h.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, _ = part.Write([]byte("png-bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/properties/"+id+"/photo", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Owner", "u1")
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	require.Equal(t, http.StatusServiceUnavailable, rw.Code)

	require.Equal(t, http.StatusBadRequest, do(g, http.MethodPost, "/api/properties/"+id+"/photo", "u1", "").Code)
}
