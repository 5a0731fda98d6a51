package apiexec

import "net/http"

const (
	HeaderTenant         = "tenant"
	HeaderAcceptLanguage = "Accept-Language"
	HeaderContentType    = "Content-Type"
	HeaderAuthorization  = "Authorization"
	HeaderAPIKey         = "X-API-Key"
	HeaderFunctionalArea = "X-Funcionalidade-Id"
	HeaderRequestID      = "X-Request-ID"

	// DefaultLocale is sent as Accept-Language and picks user messages.
	DefaultLocale = "pt-BR"
)

// buildHeaders is a pure function of the session and static configuration.
// An empty session yields no Authorization header.
func (e *Executor) buildHeaders(session AuthSession, opts callOptions, requestID string) http.Header {
	h := make(http.Header, 8)

	tenant := e.tenant
	if session.Tenant != "" {
		tenant = session.Tenant
	}
	if tenant != "" {
		h.Set(HeaderTenant, tenant)
	}
	h.Set(HeaderAcceptLanguage, e.locale)
	h.Set(HeaderContentType, "application/json")
	if session.AccessToken != "" {
		h.Set(HeaderAuthorization, "Bearer "+session.AccessToken)
	}
	if e.apiKey != "" {
		h.Set(HeaderAPIKey, e.apiKey)
	}

	area := e.functionalArea
	if opts.functionalArea != "" {
		area = opts.functionalArea
	}
	if area != "" {
		h.Set(HeaderFunctionalArea, area)
	}
	if requestID != "" {
		h.Set(HeaderRequestID, requestID)
	}

	for k, vs := range opts.header {
		h[k] = append([]string(nil), vs...)
	}
	return h
}
