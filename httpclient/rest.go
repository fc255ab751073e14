package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// GetJSON performs a GET and decodes the JSON body into T.
func GetJSON[T any](ctx context.Context, c *Client, path string) (T, error) {
	return doJSON[T](ctx, c, Request{Method: http.MethodGet, Path: path})
}

// PostJSON posts body as JSON and decodes the JSON response into T.
func PostJSON[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	return doJSON[T](ctx, c, Request{Method: http.MethodPost, Path: path, Body: body})
}

func doJSON[T any](ctx context.Context, c *Client, req Request) (T, error) {
	var data T
	resp, err := c.Do(ctx, req)
	if err != nil {
		return data, err
	}
	if len(resp.Body) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return data, fmt.Errorf("httpclient: decode response: %w", err)
	}
	return data, nil
}
