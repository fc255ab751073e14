package endpoint

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/infermesh/errors"
	"github.com/kbukum/infermesh/generator"
	"github.com/kbukum/infermesh/peer"
	"github.com/kbukum/infermesh/router"
	"github.com/kbukum/infermesh/server"
)

// Router forwards a request body to some peer.
type Router interface {
	Route(ctx context.Context, body []byte) (*router.Response, error)
}

// Nodes lists the public HTTP endpoint of every known peer, self included.
func Nodes(registry peer.Registry, httpPort int) gin.HandlerFunc {
	return func(c *gin.Context) {
		peers, err := registry.Snapshot(c.Request.Context())
		if err != nil {
			server.RespondWithError(c, apperrors.Internal(err))
			return
		}
		nodes := make([]string, 0, len(peers))
		for _, p := range peers {
			nodes = append(nodes, p.HTTPEndpoint(httpPort))
		}
		server.RespondOK(c, gin.H{"nodes": nodes})
	}
}

// ProxyInference forwards the request body to a random peer's /generate
// and relays the peer's answer, failures included, with its status.
func ProxyInference(r Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := readBody(c)
		if !ok {
			return
		}
		resp, err := r.Route(c.Request.Context(), body)
		if err != nil {
			if resp != nil && apperrors.IsForwarding(err) {
				server.RespondRaw(c, resp.StatusCode, resp.ContentType, resp.Body)
				return
			}
			server.RespondWithError(c, err)
			return
		}
		server.RespondRaw(c, resp.StatusCode, resp.ContentType, resp.Body)
	}
}

// Generate runs the local generator. models is the allow-list of model
// names; empty accepts any.
func Generate(gen generator.Generator, models []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := readBody(c)
		if !ok {
			return
		}
		req, err := generator.DecodeRequest(body)
		if err != nil {
			server.RespondWithError(c, err)
			return
		}
		if err := req.Validate(models); err != nil {
			server.RespondWithError(c, err)
			return
		}
		res, err := gen.Generate(c.Request.Context(), req)
		if err != nil {
			if !apperrors.IsAppError(err) {
				err = apperrors.ExternalServiceError("generator", err)
			}
			server.RespondWithError(c, err)
			return
		}
		server.RespondOK(c, res)
	}
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := c.GetRawData()
	if err == nil {
		return body, true
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		c.JSON(http.StatusRequestEntityTooLarge, apperrors.InvalidInput("body", "request body too large").ToResponse())
		return nil, false
	}
	server.RespondWithError(c, apperrors.InvalidInput("body", "unreadable request body"))
	return nil, false
}
