package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/droid-bg/Outlook-MCP-Server/internal/service"
)

const (
	toolCheckMailboxAccess = "check_mailbox_access"
	toolSearchMail         = "search_mail"
	toolListContacts       = "list_contacts"
)

type ToolHandler struct {
	mailService service.MailService
	logger      echo.Logger
}

func NewToolHandler(mailService service.MailService, logger echo.Logger) *ToolHandler {
	return &ToolHandler{
		mailService: mailService,
		logger:      logger,
	}
}

type toolArgs struct {
	SearchText      string `json:"search_text"`
	IncludePersonal *bool  `json:"include_personal"`
	IncludeShared   *bool  `json:"include_shared"`
}

type toolError struct {
	Status  string `json:"status"`
	Tool    string `json:"tool"`
	Message string `json:"message"`
}

type toolDescriptor struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Required    []string          `json:"required_arguments"`
	Optional    map[string]string `json:"optional_arguments"`
}

var scopeArgs = map[string]string{
	"include_personal": "Search personal mailbox (default: true)",
	"include_shared":   "Search shared mailbox (default: true)",
}

var tools = []toolDescriptor{
	{
		Name:        toolCheckMailboxAccess,
		Description: "Check connection status and access to personal and shared mailboxes with retention policy info",
		Required:    []string{},
		Optional:    map[string]string{},
	},
	{
		Name:        toolSearchMail,
		Description: "Searches for emails containing the specified text in subject and body across the Inbox, all Inbox subfolders, and Sent Items. Returns conversations, participants, and full email content.",
		Required:    []string{"search_text"},
		Optional:    scopeArgs,
	},
	{
		Name:        toolListContacts,
		Description: "Searches emails by keyword and returns a ranked list of every person on those threads with how often they appeared as sender, To, or CC.",
		Required:    []string{"search_text"},
		Optional:    scopeArgs,
	},
}

// ListTools describes the available operations and their arguments.
func (h *ToolHandler) ListTools(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"tools": tools})
}

// CallTool dispatches one operation by name. Whatever goes wrong, the
// caller always gets a structured payload back, never a bare fault.
func (h *ToolHandler) CallTool(c echo.Context) error {
	name := c.Param("name")
	h.logger.Info("Executing tool: ", name)

	var args toolArgs
	if err := c.Bind(&args); err != nil {
		return c.JSON(http.StatusBadRequest, toolError{
			Status:  "error",
			Tool:    name,
			Message: "Invalid request body",
		})
	}

	includePersonal := args.IncludePersonal == nil || *args.IncludePersonal
	includeShared := args.IncludeShared == nil || *args.IncludeShared
	ctx := c.Request().Context()

	switch name {
	case toolCheckMailboxAccess:
		result, err := h.mailService.CheckMailboxAccess(ctx)
		if err != nil {
			return h.toolFailure(c, name, err)
		}
		return c.JSON(http.StatusOK, result)

	case toolSearchMail:
		result, err := h.mailService.SearchMail(ctx, args.SearchText, includePersonal, includeShared)
		if err != nil {
			return h.toolFailure(c, name, err)
		}
		return c.JSON(http.StatusOK, result)

	case toolListContacts:
		result, err := h.mailService.ListContacts(ctx, args.SearchText, includePersonal, includeShared)
		if err != nil {
			return h.toolFailure(c, name, err)
		}
		return c.JSON(http.StatusOK, result)

	default:
		return c.JSON(http.StatusNotFound, toolError{
			Status:  "error",
			Tool:    name,
			Message: "Unknown tool: " + name,
		})
	}
}

func (h *ToolHandler) toolFailure(c echo.Context, name string, err error) error {
	if errors.Is(err, service.ErrSearchTextRequired) {
		return c.JSON(http.StatusBadRequest, toolError{
			Status:  "error",
			Tool:    name,
			Message: err.Error(),
		})
	}
	h.logger.Error("Error in tool ", name, ": ", err)
	return c.JSON(http.StatusInternalServerError, toolError{
		Status:  "error",
		Tool:    name,
		Message: "Failed to execute " + name + ": " + err.Error(),
	})
}
