package testutil

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	id "schooladmin/pkg/domain"
	"schooladmin/pkg/requestcontext"
)

// Caller builds an identity with a fresh user id. Pass a nil tenant for a
// tenant-less caller.
func Caller(role id.Role, tenant *id.TenantID) requestcontext.Caller {
	return requestcontext.Caller{
		UserID:   id.UserID(uuid.New()),
		TenantID: tenant,
		Role:     role,
	}
}

// NewTenant returns a pointer to a fresh tenant id.
func NewTenant() *id.TenantID {
	t := id.TenantID(uuid.New())
	return &t
}

// ContextAs returns a context carrying caller, as the auth middleware would
// set it for an authenticated request.
func ContextAs(caller requestcontext.Caller) context.Context {
	return requestcontext.WithIdentity(context.Background(), caller)
}

// WithCaller attaches caller to the request context.
func WithCaller(req *http.Request, caller requestcontext.Caller) *http.Request {
	return req.WithContext(requestcontext.WithIdentity(req.Context(), caller))
}

