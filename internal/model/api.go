package model

import "encoding/json"

// InvocationEvent is the raw tool-invocation payload delivered by the agent
// runtime. The runtime has shipped parameters in several incompatible shapes
// over time, so Parameters is kept raw and decoded by the params package.
type InvocationEvent struct {
	MessageVersion          string            `json:"messageVersion,omitempty"`
	ActionGroup             string            `json:"actionGroup,omitempty"`
	Function                string            `json:"function,omitempty"`
	APIPath                 string            `json:"apiPath,omitempty"`
	HTTPMethod              string            `json:"httpMethod,omitempty"`
	Parameters              json.RawMessage   `json:"parameters,omitempty"`
	RequestBody             *RequestBody      `json:"requestBody,omitempty"`
	SessionAttributes       map[string]string `json:"sessionAttributes,omitempty"`
	PromptSessionAttributes map[string]string `json:"promptSessionAttributes,omitempty"`
	InputText               string            `json:"inputText,omitempty"`
}

// RequestBody is the api-style event body, keyed by media type.
type RequestBody struct {
	Content map[string]ContentBody `json:"content"`
}

// ContentBody is one media-type section of a request body. Depending on the
// runtime version it carries either a properties list or an already-decoded
// parameters object.
type ContentBody struct {
	Properties []NamedProperty `json:"properties,omitempty"`
	Parameters map[string]any  `json:"parameters,omitempty"`
}

// NamedProperty is a name/value entry; some shapes nest a further
// properties list instead of a scalar value.
type NamedProperty struct {
	Name       string          `json:"name"`
	Type       string          `json:"type,omitempty"`
	Value      string          `json:"value,omitempty"`
	Properties []NamedProperty `json:"properties,omitempty"`
}

// ToolResponse is the fixed-shape envelope the agent runtime expects back,
// including on every failure path.
type ToolResponse struct {
	MessageVersion          string            `json:"messageVersion"`
	Response                ToolResponseBody  `json:"response"`
	SessionAttributes       map[string]string `json:"sessionAttributes"`
	PromptSessionAttributes map[string]string `json:"promptSessionAttributes"`
}

// ToolResponseBody echoes the operation identity and carries the outcome.
// Function-style events get FunctionResponse; api-path-style events get
// ResponseBody keyed by media type.
type ToolResponseBody struct {
	ActionGroup      string                     `json:"actionGroup"`
	Function         string                     `json:"function,omitempty"`
	APIPath          string                     `json:"apiPath,omitempty"`
	HTTPMethod       string                     `json:"httpMethod,omitempty"`
	HTTPStatusCode   int                        `json:"httpStatusCode"`
	ResponseBody     map[string]ResponseContent `json:"responseBody,omitempty"`
	FunctionResponse *FunctionResponse          `json:"functionResponse,omitempty"`
}

// FunctionResponse wraps the body for function-style events.
type FunctionResponse struct {
	ResponseBody map[string]ResponseContent `json:"responseBody"`
}

// ResponseContent is a single body payload, always serialized as text.
type ResponseContent struct {
	Body string `json:"body"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
}
