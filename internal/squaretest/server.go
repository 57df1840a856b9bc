// Package squaretest runs an in-process fake of the Square Catalog API for
// tests.
package squaretest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"catalogsync/internal/services/square"

	"github.com/gin-gonic/gin"
)

const (
	Token      = "test-access-token"
	APIVersion = "2025-10-16"
)

// Page is one page served by /v2/catalog/list.
type Page struct {
	Objects []json.RawMessage
	// Failures is how many times the page answers FailStatus before it
	// succeeds; -1 fails forever.
	Failures   int
	FailStatus int
	// Raw, when set, is written verbatim instead of a generated body.
	Raw string
}

type Server struct {
	*httptest.Server

	mu       sync.Mutex
	pages    []Page
	pageHits map[int]int
	items    map[string][]string

	retrieveFailStatus int
	deleteFailStatus   int
	deleteFailAfter    int
	upsertFailures     int

	listCursors   []string
	retrieveCalls [][]string
	deleteCalls   [][]string
	upsertKeys    []string
	upserts       map[string]square.BatchUpsertRequest
	upsertOrder   []string
	lastHeaders   http.Header
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		pageHits: make(map[int]int),
		items:    make(map[string][]string),
		upserts:  make(map[string]square.BatchUpsertRequest),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.authenticate)

	catalog := router.Group("/v2/catalog")
	{
		catalog.GET("/list", s.list)
		catalog.POST("/batch-retrieve", s.batchRetrieve)
		catalog.POST("/batch-delete", s.batchDelete)
		catalog.POST("/batch-upsert", s.batchUpsert)
	}

	s.Server = httptest.NewServer(router)
	t.Cleanup(s.Close)
	return s
}

// Options returns client options pointed at this server with fast retries.
func (s *Server) Options() square.Options {
	return square.Options{
		BaseURL:        s.URL,
		APIVersion:     APIVersion,
		AccessToken:    Token,
		MaxRetries:     3,
		BackoffInitial: 1,
		BackoffMax:     5,
	}
}

func (s *Server) SetPages(pages ...Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = pages
}

// SetItem registers a parent ITEM and its tax ids for batch-retrieve.
func (s *Server) SetItem(itemID string, taxIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[itemID] = taxIDs
}

func (s *Server) FailRetrieve(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retrieveFailStatus = status
}

// FailDelete makes every batch-delete after the first `after` calls fail.
func (s *Server) FailDelete(status int, after int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteFailStatus = status
	s.deleteFailAfter = after
}

// FailUpserts makes the next n batch-upsert calls answer 503.
func (s *Server) FailUpserts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertFailures = n
}

func (s *Server) ListCursors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.listCursors...)
}

func (s *Server) RetrieveCalls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.retrieveCalls...)
}

func (s *Server) DeleteCalls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.deleteCalls...)
}

// UpsertKeys lists the idempotency key of every upsert request received,
// retries included.
func (s *Server) UpsertKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.upsertKeys...)
}

// AppliedUpserts lists the distinct upsert requests, in arrival order.
func (s *Server) AppliedUpserts() []square.BatchUpsertRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]square.BatchUpsertRequest, 0, len(s.upsertOrder))
	for _, key := range s.upsertOrder {
		out = append(out, s.upserts[key])
	}
	return out
}

func (s *Server) LastHeaders() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeaders.Clone()
}

func (s *Server) authenticate(c *gin.Context) {
	s.mu.Lock()
	s.lastHeaders = c.Request.Header.Clone()
	s.mu.Unlock()

	if c.GetHeader("Authorization") != "Bearer "+Token || c.GetHeader("Square-Version") == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("AUTHENTICATION_ERROR", "UNAUTHORIZED", "bad credentials"))
		return
	}
	c.Next()
}

func (s *Server) list(c *gin.Context) {
	cursor := c.Query("cursor")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCursors = append(s.listCursors, cursor)

	if c.Query("types") != square.ObjectTypeItemVariation {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST_ERROR", "INVALID_VALUE", "unsupported types"))
		return
	}

	index := 0
	if cursor != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(cursor, "cursor-"))
		if err != nil || n <= 0 || n >= len(s.pages) {
			c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST_ERROR", "INVALID_CURSOR", cursor))
			return
		}
		index = n
	}
	if index >= len(s.pages) {
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	page := s.pages[index]
	s.pageHits[index]++
	if page.Failures == -1 || s.pageHits[index] <= page.Failures {
		status := page.FailStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		c.JSON(status, errorBody("API_ERROR", "INTERNAL_SERVER_ERROR", fmt.Sprintf("page %d unavailable", index)))
		return
	}

	if page.Raw != "" {
		c.Data(http.StatusOK, "application/json", []byte(page.Raw))
		return
	}

	body := gin.H{"objects": page.Objects}
	if index+1 < len(s.pages) {
		body["cursor"] = fmt.Sprintf("cursor-%d", index+1)
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) batchRetrieve(c *gin.Context) {
	var req square.BatchRetrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST_ERROR", "BAD_REQUEST", err.Error()))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.retrieveCalls = append(s.retrieveCalls, req.ObjectIDs)

	if s.retrieveFailStatus != 0 {
		c.JSON(s.retrieveFailStatus, errorBody("API_ERROR", "RETRIEVE_FAILED", "batch retrieve failed"))
		return
	}

	objects := make([]square.CatalogObject, 0, len(req.ObjectIDs))
	for _, id := range req.ObjectIDs {
		taxIDs, ok := s.items[id]
		if !ok {
			continue
		}
		objects = append(objects, square.CatalogObject{
			Type:     square.ObjectTypeItem,
			ID:       id,
			Version:  1,
			ItemData: &square.ItemData{Name: "Item " + id, TaxIDs: taxIDs},
		})
	}
	c.JSON(http.StatusOK, square.BatchRetrieveResponse{Objects: objects})
}

func (s *Server) batchDelete(c *gin.Context) {
	var req square.BatchDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST_ERROR", "BAD_REQUEST", err.Error()))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(req.ObjectIDs) > 200 {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST_ERROR", "TOO_MANY_IDS", "at most 200 object ids"))
		return
	}
	if s.deleteFailStatus != 0 && len(s.deleteCalls) >= s.deleteFailAfter {
		c.JSON(s.deleteFailStatus, errorBody("INVALID_REQUEST_ERROR", "DELETE_FAILED", "batch delete failed"))
		return
	}
	s.deleteCalls = append(s.deleteCalls, req.ObjectIDs)
	c.JSON(http.StatusOK, square.BatchDeleteResponse{
		DeletedObjectIDs: req.ObjectIDs,
		DeletedAt:        "2025-10-16T12:00:00Z",
	})
}

func (s *Server) batchUpsert(c *gin.Context) {
	var req square.BatchUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST_ERROR", "BAD_REQUEST", err.Error()))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertKeys = append(s.upsertKeys, req.IdempotencyKey)

	if req.IdempotencyKey == "" {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST_ERROR", "MISSING_REQUIRED_PARAMETER", "idempotency_key"))
		return
	}
	if s.upsertFailures > 0 {
		s.upsertFailures--
		c.JSON(http.StatusServiceUnavailable, errorBody("API_ERROR", "SERVICE_UNAVAILABLE", "try again"))
		return
	}

	if _, seen := s.upserts[req.IdempotencyKey]; !seen {
		s.upserts[req.IdempotencyKey] = req
		s.upsertOrder = append(s.upsertOrder, req.IdempotencyKey)
	}

	var objects []square.CatalogObject
	for _, b := range s.upserts[req.IdempotencyKey].Batches {
		objects = append(objects, b.Objects...)
	}
	c.JSON(http.StatusOK, square.BatchUpsertResponse{
		Objects:   objects,
		UpdatedAt: "2025-10-16T12:00:00Z",
	})
}

func errorBody(category, code, detail string) gin.H {
	return gin.H{"errors": []square.Error{{Category: category, Code: code, Detail: detail}}}
}

// Variation renders an ITEM_VARIATION object. A zero price or cost leaves
// that money field out.
func Variation(id, itemID, upc string, version, price, cost int64) json.RawMessage {
	data := &square.ItemVariationData{
		ItemID:      itemID,
		Name:        "Variation " + id,
		PricingType: "FIXED_PRICING",
	}
	sku := "SKU-" + id
	data.SKU = &sku
	if upc != "" {
		data.UPC = &upc
	}
	if price != 0 {
		data.PriceMoney = &square.Money{Amount: price, Currency: "GBP"}
	}
	if cost != 0 {
		data.DefaultUnitCost = &square.Money{Amount: cost, Currency: "GBP"}
	}

	b, err := json.Marshal(square.CatalogObject{
		Type:              square.ObjectTypeItemVariation,
		ID:                id,
		Version:           version,
		ItemVariationData: data,
	})
	if err != nil {
		panic(err)
	}
	return b
}
