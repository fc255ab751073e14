package router

import (
	"context"
	"net/http"

	apperrors "github.com/kbukum/infermesh/errors"
	"github.com/kbukum/infermesh/httpclient"
	"github.com/kbukum/infermesh/peer"
)

// GeneratePath is where peers accept inference requests.
const GeneratePath = "/generate"

// HTTPForwarder POSTs the body to the target's public HTTP endpoint.
type HTTPForwarder struct {
	client   *httpclient.Client
	httpPort int
}

var _ Forwarder = (*HTTPForwarder)(nil)

// NewHTTPForwarder targets port httpPort on each peer's host.
func NewHTTPForwarder(client *httpclient.Client, httpPort int) *HTTPForwarder {
	return &HTTPForwarder{client: client, httpPort: httpPort}
}

func (f *HTTPForwarder) Forward(ctx context.Context, target peer.Address, body []byte) (*Response, error) {
	url := target.HTTPEndpoint(f.httpPort) + GeneratePath
	resp, err := f.client.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   url,
		Body:   body,
	})
	if resp == nil {
		if err == nil {
			return nil, apperrors.Forwarding(target.String(), 0, nil, nil)
		}
		return nil, apperrors.Forwarding(target.String(), 0, nil, err)
	}

	out := &Response{
		Target:      target,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Headers["Content-Type"],
		Body:        resp.Body,
	}
	if err != nil || !resp.IsSuccess() {
		return out, apperrors.Forwarding(target.String(), resp.StatusCode, resp.Body, err)
	}
	return out, nil
}
