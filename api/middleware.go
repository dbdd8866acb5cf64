package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// decodeCommandBody unwraps the Content-Encoding of a command body. Only
// identity and gzip are accepted; anything else is 415.
func decodeCommandBody(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			switch enc := commandEncoding(req.Header.Get(echo.HeaderContentEncoding)); enc {
			case "", "identity":
				return next(c)
			case "gzip":
				gr, err := gzip.NewReader(req.Body)
				if err != nil {
					_ = req.Body.Close()
					logger.WithField("path", req.URL.Path).Debugf("rejecting gzip body: %v", err)
					return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
				}
				req.Body = &inflatedBody{Reader: gr, raw: req.Body}
				req.ContentLength = -1
				req.Header.Del(echo.HeaderContentEncoding)
				req.Header.Del(echo.HeaderContentLength)
				return next(c)
			default:
				return echo.NewHTTPError(http.StatusUnsupportedMediaType, "unsupported content encoding "+enc)
			}
		}
	}
}

// commandEncoding returns the outermost coding, lowercased. Stacked codings
// other than a trailing identity are not supported.
func commandEncoding(header string) string {
	codings := strings.Split(header, ",")
	for i := len(codings) - 1; i >= 0; i-- {
		c := strings.ToLower(strings.TrimSpace(codings[i]))
		if c != "" && (c != "identity" || i == 0) {
			return c
		}
	}
	return ""
}

type inflatedBody struct {
	*gzip.Reader
	raw io.Closer
}

func (b *inflatedBody) Close() error {
	err := b.Reader.Close()
	if cerr := b.raw.Close(); err == nil {
		err = cerr
	}
	return err
}
