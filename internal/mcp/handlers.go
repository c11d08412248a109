package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/terminus-industrials/intake/internal/config"
	"github.com/terminus-industrials/intake/internal/errors"
	"github.com/terminus-industrials/intake/internal/form"
	"github.com/terminus-industrials/intake/internal/ops"
	"github.com/terminus-industrials/intake/internal/session"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db         *sql.DB
	cfg        *config.Config
	dispatcher session.Dispatcher
	guard      *session.Guard
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, dispatcher session.Dispatcher) *Handlers {
	return &Handlers{db: db, cfg: cfg, dispatcher: dispatcher, guard: session.NewGuard()}
}

// Request types for each tool

// FieldsRequest represents the arguments for form_fields.
type FieldsRequest struct {
	Form string `json:"form,omitempty"`
}

// ValidateRequest represents the arguments for form_validate.
type ValidateRequest struct {
	Form   string `json:"form,omitempty"`
	Values Values `json:"values,omitempty"`
	Field  string `json:"field,omitempty"`
}

// SaveRequest represents the arguments for draft_save.
type SaveRequest struct {
	Values Values `json:"values"`
}

// FetchRequest represents the arguments for draft_fetch.
type FetchRequest struct {
	ID             string `json:"id"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
	IncludeText    *bool  `json:"include_text,omitempty"`
}

// ListRequest represents the arguments for draft_list.
type ListRequest struct {
	Form           string `json:"form,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// SubmitRequest represents the arguments for draft_submit.
type SubmitRequest struct {
	ID string `json:"id"`
}

// ContactRequest represents the arguments for contact_submit.
type ContactRequest struct {
	Values Values `json:"values"`
}

// Handler implementations

// HandleFields handles the form_fields tool call.
func (h *Handlers) HandleFields(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FieldsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Fields(ops.FieldsInput{Form: input.Form})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleValidate handles the form_validate tool call.
func (h *Handlers) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ValidateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Validate(ops.ValidateInput{
		Form:   input.Form,
		Values: input.Values.raw(),
		Field:  input.Field,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSave handles the draft_save tool call.
func (h *Handlers) HandleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SaveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if len(input.Values) == 0 {
		return errorResult(errors.NewInvalidRequest("values is required")), nil
	}

	result, err := ops.Save(ctx, h.db, ops.SaveInput{Form: form.FormAPI, Values: input.Values.raw()})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFetch handles the draft_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Fetch(ctx, h.db, ops.FetchInput{
		ID:             input.ID,
		IncludeDeleted: input.IncludeDeleted,
		IncludeText:    input.IncludeText,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleList handles the draft_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.List(ctx, h.db, ops.ListInput{
		Form:           input.Form,
		Limit:          input.Limit,
		Offset:         input.Offset,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSubmit handles the draft_submit tool call.
func (h *Handlers) HandleSubmit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SubmitRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SubmitDraft(ctx, h.db, h.dispatcher, h.guard, ops.SubmitDraftInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleContact handles the contact_submit tool call.
func (h *Handlers) HandleContact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ContactRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SubmitForm(ctx, h.db, h.dispatcher, ops.SubmitFormInput{
		Form:   form.FormContact,
		Values: input.Values.raw(),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var iErr *errors.IntakeError
	if stderrors.As(err, &iErr) {
		// Keep any wrapping context in front of the message
		message := strings.TrimSuffix(err.Error(), iErr.Error()) + iErr.Message
		errorObj := map[string]any{
			"code":    iErr.Code,
			"message": message,
			"status":  iErr.Status,
		}
		if iErr.Code == errors.ErrInternal {
			errorObj["message"] = "an internal error occurred"
		} else if iErr.Details != nil {
			errorObj["details"] = iErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
