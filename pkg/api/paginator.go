// The MIT License (MIT)
//
// Copyright (c) 2026 Chemokoren
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package api

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/Chemokoren/trailer/pkg/data"
)

const pageSize = 100

// PageFunc receives one page of raw items. Returning true stops pagination
// early, e.g. when the caller reached data older than its cursor.
type PageFunc func(items []json.RawMessage, lastPage bool) bool

// FinalFunc receives the overall outcome of a paged fetch. A 304 counts as
// success with no data.
type FinalFunc func(success bool, statusCode int, etag string)

// GetPagedData walks a collection endpoint page by page, sequentially, 100
// items per page starting at page 1. The loop ends when either the response
// carries no rel="next" link or perPage asks to stop. An empty path is an
// immediate success with no items; some child-collection links are
// legitimately absent.
func (c *Client) GetPagedData(ctx context.Context, path string, server *data.Server, params, extraHeaders map[string]string, perPage PageFunc, final FinalFunc) {
	if path == "" {
		callFinal(final, true, 0, "")
		return
	}

	for page := 1; ; page++ {
		pageParams := map[string]string{}
		for k, v := range params {
			pageParams[k] = v
		}
		pageParams["page"] = strconv.Itoa(page)
		pageParams["per_page"] = strconv.Itoa(pageSize)

		resp, err := c.Get(ctx, path, server, false, pageParams, extraHeaders)
		if err != nil {
			if IsNotModified(err) {
				callFinal(final, true, StatusOf(err), etagOf(resp))
			} else {
				callFinal(final, false, StatusOf(err), etagOf(resp))
			}
			return
		}

		var items []json.RawMessage
		if err := json.Unmarshal(resp.Body, &items); err != nil {
			callFinal(final, false, resp.StatusCode, resp.Etag)
			return
		}

		isLast := resp.LastPage
		if perPage != nil && perPage(items, resp.LastPage) {
			isLast = true
		}
		if isLast {
			callFinal(final, true, resp.StatusCode, resp.Etag)
			return
		}
	}
}

func callFinal(final FinalFunc, success bool, statusCode int, etag string) {
	if final != nil {
		final(success, statusCode, etag)
	}
}

func etagOf(resp *Response) string {
	if resp == nil {
		return ""
	}
	return resp.Etag
}
