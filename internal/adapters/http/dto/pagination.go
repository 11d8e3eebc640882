package dto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// Page sizes for list endpoints.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var (
	// ErrInvalidCursor covers undecodable cursors and cursors issued for a
	// different filter.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrNoCursor marks a request for the first page.
	ErrNoCursor = errors.New("no cursor provided")
)

// PaginationRequest is bound from the cursor and limit query parameters.
type PaginationRequest struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit" validate:"omitempty,gte=1,lte=100"`
}

// GetLimit clamps Limit into 1..MaxLimit, using DefaultLimit when unset.
func (p *PaginationRequest) GetLimit() int {
	if p.Limit <= 0 {
		return DefaultLimit
	}

	return min(p.Limit, MaxLimit)
}

func (p *PaginationRequest) DecodeCursor() (*CursorData, error) {
	return DecodeCursor(p.Cursor)
}

// PaginatedResponse is one page of a list. NextCursor is empty on the last page.
type PaginatedResponse[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
	Total      int    `json:"total"`
}

// CursorData is what a cursor encodes. Quotes are identified by position, so
// a cursor is the offset of the next item plus the filter it was issued for.
type CursorData struct {
	Offset int    `json:"o"`
	Filter string `json:"f,omitempty"`
}

// EncodeCursor returns "" for nil data.
func EncodeCursor(data *CursorData) string {
	if data == nil {
		return ""
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}

	return base64.URLEncoding.EncodeToString(raw)
}

// DecodeCursor returns ErrNoCursor for "" and ErrInvalidCursor for anything
// EncodeCursor could not have produced.
func DecodeCursor(encoded string) (*CursorData, error) {
	if encoded == "" {
		return nil, ErrNoCursor
	}

	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var data CursorData
	if json.Unmarshal(raw, &data) != nil || data.Offset < 0 {
		return nil, ErrInvalidCursor
	}

	return &data, nil
}

// Paginate returns the page of items selected by req. filter identifies the
// query the items came from; a cursor issued for another filter is rejected.
func Paginate[T any](items []T, req PaginationRequest, filter string) (*PaginatedResponse[T], error) {
	offset := 0

	cursor, err := req.DecodeCursor()
	switch {
	case errors.Is(err, ErrNoCursor):
	case err != nil:
		return nil, err
	case cursor.Filter != filter:
		return nil, ErrInvalidCursor
	default:
		offset = cursor.Offset
	}

	if offset > len(items) {
		offset = len(items)
	}

	end := min(offset+req.GetLimit(), len(items))

	page := &PaginatedResponse[T]{
		Items:   items[offset:end],
		HasMore: end < len(items),
		Total:   len(items),
	}

	if page.Items == nil {
		page.Items = []T{}
	}

	if page.HasMore {
		page.NextCursor = EncodeCursor(&CursorData{Offset: end, Filter: filter})
	}

	return page, nil
}
