// Package services holds the console's domain services. Each one only names
// a path and its DTOs; caching, retries and token handling live in the
// executor.
package services

import (
	"context"
	"net/url"
	"strconv"

	"github.com/devgrupoglobalsoft/apiexec"
)

// Page is the list envelope every collection endpoint answers with.
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
}

// ListOptions are the paging and filter parameters of a collection call.
type ListOptions struct {
	Page     int
	PageSize int
	Filter   string
	// Extra carries entity specific filters.
	Extra url.Values
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	if o.Page > 0 {
		v.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		v.Set("pageSize", strconv.Itoa(o.PageSize))
	}
	if o.Filter != "" {
		v.Set("filter", o.Filter)
	}
	for k, vs := range o.Extra {
		for _, s := range vs {
			v.Add(k, s)
		}
	}
	return v
}

// BulkDelete is the body of a DELETE on a collection.
type BulkDelete struct {
	IDs []string `json:"ids"`
}

// Resource is the CRUD surface of one entity collection. T is the read
// model, In the create/update payload.
type Resource[T any, In any] struct {
	exec        *apiexec.Executor
	path        string
	invalidates []string
}

// NewResource binds a collection at path. Writes also invalidate the listed
// families, for entities whose reads embed data of this one.
func NewResource[T any, In any](exec *apiexec.Executor, path string, invalidates ...string) *Resource[T, In] {
	return &Resource[T, In]{exec: exec, path: path, invalidates: invalidates}
}

// Family is the cache family of the collection.
func (r *Resource[T, In]) Family() string {
	return apiexec.FamilyOf(r.path)
}

func (r *Resource[T, In]) itemPath(id string) string {
	return r.path + "/" + url.PathEscape(id)
}

func (r *Resource[T, In]) writeOptions(opts []apiexec.CallOption) []apiexec.CallOption {
	if len(r.invalidates) == 0 {
		return opts
	}
	return append([]apiexec.CallOption{apiexec.Invalidates(r.invalidates...)}, opts...)
}

func (r *Resource[T, In]) List(ctx context.Context, lo ListOptions, opts ...apiexec.CallOption) (*apiexec.Response[Page[T]], error) {
	return apiexec.Fetch[Page[T]](ctx, r.exec, r.path, append(opts, apiexec.Query(lo.values()))...)
}

func (r *Resource[T, In]) Get(ctx context.Context, id string, opts ...apiexec.CallOption) (*apiexec.Response[T], error) {
	return apiexec.Fetch[T](ctx, r.exec, r.itemPath(id), opts...)
}

// Create returns the id of the new record.
func (r *Resource[T, In]) Create(ctx context.Context, in In, opts ...apiexec.CallOption) (*apiexec.Response[string], error) {
	return apiexec.Create[string](ctx, r.exec, r.path, in, r.writeOptions(opts)...)
}

func (r *Resource[T, In]) Update(ctx context.Context, id string, in In, opts ...apiexec.CallOption) (*apiexec.Response[string], error) {
	return apiexec.Replace[string](ctx, r.exec, r.itemPath(id), in, r.writeOptions(opts)...)
}

func (r *Resource[T, In]) Delete(ctx context.Context, id string, opts ...apiexec.CallOption) (*apiexec.Response[string], error) {
	return apiexec.Delete[string](ctx, r.exec, r.itemPath(id), r.writeOptions(opts)...)
}

// DeleteMany removes several records at once and returns how many went.
func (r *Resource[T, In]) DeleteMany(ctx context.Context, ids []string, opts ...apiexec.CallOption) (*apiexec.Response[int], error) {
	return apiexec.DeleteWithBody[int](ctx, r.exec, r.path, BulkDelete{IDs: ids}, r.writeOptions(opts)...)
}
