package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// CacheStatusHeader marks responses served from cache.
const CacheStatusHeader = "X-Cache"

// ResponseToEntry reads resp into an Entry that expires after ttl.
// The response body is restored after reading.
func ResponseToEntry(resp *http.Response, ttl time.Duration) (*Entry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	now := time.Now()
	return &Entry{
		Data:       body,
		ETag:       resp.Header.Get("ETag"),
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		CachedAt:   now,
		Expires:    now.Add(ttl),
	}, nil
}

// EntryToResponse rebuilds an HTTP response from a cached entry for req.
func EntryToResponse(entry *Entry, req *http.Request) *http.Response {
	header := entry.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(CacheStatusHeader, "HIT")
	header.Set("Age", strconv.Itoa(int(entry.Age().Seconds())))

	status := entry.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Data)),
		ContentLength: int64(len(entry.Data)),
		Request:       req,
	}
}

// AddConditionalHeaders sets If-None-Match when entry has an ETag.
// It reports whether a header was added.
func AddConditionalHeaders(req *http.Request, entry *Entry) bool {
	if entry == nil || req == nil || entry.ETag == "" {
		return false
	}
	req.Header.Set("If-None-Match", entry.ETag)
	return true
}
