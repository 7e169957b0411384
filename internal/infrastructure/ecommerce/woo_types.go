package ecommerce

import (
	"encoding/json"
	"fmt"
	"time"
)

// wooTimeLayout is the layout of the *_gmt fields (UTC, no zone suffix)
const wooTimeLayout = "2006-01-02T15:04:05"

// wooErrorResponse is the error body returned by the REST API
type wooErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
	} `json:"data"`
}

// wooHeader is the subset of every entity needed to index it
type wooHeader struct {
	ID              int64   `json:"id"`
	DateModifiedGMT *string `json:"date_modified_gmt"`
	DateCreatedGMT  *string `json:"date_created_gmt"`
	Type            string  `json:"type"`
}

// lastModified returns date_modified_gmt, falling back to date_created_gmt
func (h wooHeader) lastModified() (time.Time, error) {
	for _, v := range []*string{h.DateModifiedGMT, h.DateCreatedGMT} {
		if v == nil || *v == "" {
			continue
		}
		t, err := time.ParseInLocation(wooTimeLayout, *v, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q of id %d: %w", *v, h.ID, err)
		}
		return t, nil
	}
	return time.Time{}, nil
}

func decodeHeader(raw json.RawMessage) (wooHeader, error) {
	var h wooHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return h, err
	}
	return h, nil
}
