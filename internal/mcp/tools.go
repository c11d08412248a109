package mcp

import "github.com/mark3labs/mcp-go/mcp"

const valuesDescription = "Field values keyed by field name. Single-value fields take a string; " +
	"multi-choice fields take an array of option values. Use form_fields for names and options."

var fieldsToolDef = mcp.NewTool("form_fields",
	mcp.WithDescription("Describe a form: its numbered sections, fields, options, required flags and validation rules."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("form",
		mcp.Description("Form name: \"api\" (Advance Purchase Indication, default) or \"contact\"."),
		mcp.Enum("api", "contact"),
	),
)

var validateToolDef = mcp.NewTool("form_validate",
	mcp.WithDescription("Validate field values without saving. Reports field errors, per-section completion "+
		"and which conditional fields are disabled. With field set, only that field is validated."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("form", mcp.Description("Form name (default: api)."), mcp.Enum("api", "contact")),
	mcp.WithObject("values", mcp.Description(valuesDescription)),
	mcp.WithString("field", mcp.Description("Validate only this field.")),
)

var saveToolDef = mcp.NewTool("draft_save",
	mcp.WithDescription("Assemble an API submission and store it as a draft for review. Rejected with "+
		"VALIDATION_FAILED or INCOMPLETE when values are invalid or required fields are missing. Nothing is sent."),
	mcp.WithObject("values", mcp.Required(), mcp.Description(valuesDescription)),
)

var fetchToolDef = mcp.NewTool("draft_fetch",
	mcp.WithDescription("Fetch a draft by id with its plain-text rendering and dispatch history."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("id", mcp.Required(), mcp.Description("Draft identifier.")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted drafts.")),
	mcp.WithBoolean("include_text", mcp.Description("Include the rendered text (default: true).")),
)

var listToolDef = mcp.NewTool("draft_list",
	mcp.WithDescription("List draft summaries, newest first."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("form", mcp.Description("Only drafts of this form."), mcp.Enum("api", "contact")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100).")),
	mcp.WithNumber("offset", mcp.Description("Items to skip.")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted drafts.")),
)

var submitToolDef = mcp.NewTool("draft_submit",
	mcp.WithDescription("Confirm a reviewed draft: a copy with a fresh submission time is emailed to the "+
		"requestor and to sales. The stored draft is unchanged. Each call sends again."),
	mcp.WithDestructiveHintAnnotation(false),
	mcp.WithIdempotentHintAnnotation(false),
	mcp.WithString("id", mcp.Required(), mcp.Description("Draft identifier.")),
)

var contactToolDef = mcp.NewTool("contact_submit",
	mcp.WithDescription("Send a contact-us message. All of name, company, email, subject and message are required."),
	mcp.WithDestructiveHintAnnotation(false),
	mcp.WithIdempotentHintAnnotation(false),
	mcp.WithObject("values", mcp.Required(), mcp.Description(valuesDescription)),
)
