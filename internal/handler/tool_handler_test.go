package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droid-bg/Outlook-MCP-Server/internal/format"
	"github.com/droid-bg/Outlook-MCP-Server/internal/service"
)

// stubMailService records the arguments of the last call and returns
// canned payloads.
type stubMailService struct {
	lastTool            string
	lastText            string
	lastIncludePersonal bool
	lastIncludeShared   bool

	accessResponse   *format.AccessResponse
	searchResponse   *format.SearchResponse
	contactsResponse *format.ContactsResponse
	err              error
}

func (s *stubMailService) CheckMailboxAccess(ctx context.Context) (*format.AccessResponse, error) {
	s.lastTool = "check_mailbox_access"
	return s.accessResponse, s.err
}

func (s *stubMailService) SearchMail(ctx context.Context, searchText string, includePersonal, includeShared bool) (*format.SearchResponse, error) {
	s.lastTool = "search_mail"
	s.lastText = searchText
	s.lastIncludePersonal = includePersonal
	s.lastIncludeShared = includeShared
	if strings.TrimSpace(searchText) == "" {
		return nil, service.ErrSearchTextRequired
	}
	return s.searchResponse, s.err
}

func (s *stubMailService) ListContacts(ctx context.Context, searchText string, includePersonal, includeShared bool) (*format.ContactsResponse, error) {
	s.lastTool = "list_contacts"
	s.lastText = searchText
	s.lastIncludePersonal = includePersonal
	s.lastIncludeShared = includeShared
	if strings.TrimSpace(searchText) == "" {
		return nil, service.ErrSearchTextRequired
	}
	return s.contactsResponse, s.err
}

func callTool(t *testing.T, stub *stubMailService, name, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/tools/"+name, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/tools/:name")
	c.SetParamNames("name")
	c.SetParamValues(name)

	h := NewToolHandler(stub, e.Logger)
	require.NoError(t, h.CallTool(c))
	return rec
}

func TestListTools(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/tools", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NewToolHandler(&stubMailService{}, e.Logger)
	require.NoError(t, h.ListTools(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Tools []toolDescriptor `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Tools, 3)
	assert.Equal(t, "check_mailbox_access", payload.Tools[0].Name)
	assert.Equal(t, "search_mail", payload.Tools[1].Name)
	assert.Contains(t, payload.Tools[1].Required, "search_text")
	assert.Equal(t, "list_contacts", payload.Tools[2].Name)
}

func TestCallToolSearchMail(t *testing.T) {
	stub := &stubMailService{
		searchResponse: &format.SearchResponse{Status: "success", SearchSubject: "order"},
	}
	rec := callTool(t, stub, "search_mail", `{"search_text":"order"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "search_mail", stub.lastTool)
	assert.Equal(t, "order", stub.lastText)
	// Scope flags default to true when omitted.
	assert.True(t, stub.lastIncludePersonal)
	assert.True(t, stub.lastIncludeShared)

	var resp format.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
}

func TestCallToolScopeFlags(t *testing.T) {
	stub := &stubMailService{searchResponse: &format.SearchResponse{Status: "success"}}
	callTool(t, stub, "search_mail", `{"search_text":"order","include_personal":false,"include_shared":true}`)

	assert.False(t, stub.lastIncludePersonal)
	assert.True(t, stub.lastIncludeShared)
}

func TestCallToolMissingSearchText(t *testing.T) {
	stub := &stubMailService{}
	rec := callTool(t, stub, "search_mail", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var payload toolError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "error", payload.Status)
	assert.Equal(t, "search_mail", payload.Tool)
	assert.Contains(t, payload.Message, "search_text")
}

func TestCallToolUnknown(t *testing.T) {
	rec := callTool(t, &stubMailService{}, "delete_everything", `{}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var payload toolError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "error", payload.Status)
	assert.Contains(t, payload.Message, "Unknown tool")
}

func TestCallToolInternalError(t *testing.T) {
	stub := &stubMailService{err: errors.New("session is gone")}
	rec := callTool(t, stub, "list_contacts", `{"search_text":"order"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var payload toolError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "error", payload.Status)
	assert.Equal(t, "list_contacts", payload.Tool)
	assert.Contains(t, payload.Message, "session is gone")
}

func TestCallToolCheckMailboxAccess(t *testing.T) {
	stub := &stubMailService{
		accessResponse: &format.AccessResponse{Status: "success"},
	}
	rec := callTool(t, stub, "check_mailbox_access", `{}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "check_mailbox_access", stub.lastTool)
}

func TestCallToolMalformedBody(t *testing.T) {
	rec := callTool(t, &stubMailService{}, "search_mail", `{"search_text": 12`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var payload toolError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "error", payload.Status)
}
