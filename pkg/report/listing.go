package report

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nicktill/techboard/pkg/config"
	"github.com/nicktill/techboard/pkg/filter"
	"github.com/nicktill/techboard/pkg/record"
	"github.com/nicktill/techboard/pkg/storage"
)

// ErrInvalidListing is wrapped by ParseList for malformed parameters.
var ErrInvalidListing = errors.New("invalid listing parameters")

// SortColumns are the columns the listing may be ordered by.
var SortColumns = []string{
	ColID, ColTechID, ColNationalID, ColFullName, ColProvider, ColRSM, ColArea,
	ColRegionCode, ColDepotCode, ColWorkType, ColStatus, ColUpdatedAt,
}

// ListRequest is one page of the technician listing.
type ListRequest struct {
	Page     int
	PageSize int
	Sort     string
	Desc     bool
	Filter   filter.Spec
}

// ListResult is the listing response. Total is nil when the head count failed.
type ListResult struct {
	Rows     []record.Row `json:"rows"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	Total    *int         `json:"total"`
}

// ParseList reads page, pageSize, sort and direction plus the technician
// filters from query parameters.
func ParseList(values url.Values) (ListRequest, error) {
	req := ListRequest{
		Page:     1,
		PageSize: config.DefaultListPageSize,
		Sort:     ColID,
		Filter:   filter.CompileValues(values, TechnicianFilters),
	}

	if v := values.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return req, fmt.Errorf("%w: page must be a positive integer", ErrInvalidListing)
		}
		req.Page = n
	}
	if v := values.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > config.MaxListPageSize {
			return req, fmt.Errorf("%w: pageSize must be between 1 and %d", ErrInvalidListing, config.MaxListPageSize)
		}
		req.PageSize = n
	}
	if v := values.Get("sort"); v != "" {
		if !slices.Contains(SortColumns, v) {
			return req, fmt.Errorf("%w: cannot sort by %q", ErrInvalidListing, v)
		}
		req.Sort = v
	}
	if req.Page-1 > config.MaxListOffset/req.PageSize {
		return req, fmt.Errorf("%w: page %d is beyond the last addressable row", ErrInvalidListing, req.Page)
	}
	switch strings.ToLower(values.Get("direction")) {
	case "", "asc":
	case "desc":
		req.Desc = true
	default:
		return req, fmt.Errorf("%w: direction must be asc or desc", ErrInvalidListing)
	}
	return req, nil
}

// Order is the sort of the page. Non-unique sort columns get id as a
// tie-breaker so consecutive pages neither overlap nor skip rows.
func (r ListRequest) Order() []storage.Order {
	order := []storage.Order{{Column: r.Sort, Desc: r.Desc}}
	if r.Sort != ColID {
		order = append(order, storage.Order{Column: ColID, Desc: r.Desc})
	}
	return order
}

// Offset is the number of rows before the page.
func (r ListRequest) Offset() int {
	return (r.Page - 1) * r.PageSize
}

// List returns one page of technicians and the head count of the filter.
func (e *Engine) List(ctx context.Context, req ListRequest) (*ListResult, error) {
	out := &ListResult{Page: req.Page, PageSize: req.PageSize}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := e.store.Query(gctx, storage.QueryRequest{
			Columns: TechnicianColumns,
			Filter:  req.Filter,
			Order:   req.Order(),
			Offset:  req.Offset(),
			Limit:   req.PageSize,
		})
		if err != nil {
			return fmt.Errorf("list technicians: %w", err)
		}
		out.Rows = rows
		return nil
	})
	g.Go(func() error {
		out.Total, _ = e.counter.Count(gctx, "listing", "total", req.Filter)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if out.Rows == nil {
		out.Rows = []record.Row{}
	}
	return out, nil
}
