package catalog

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-bff/internal/common"
	"github.com/noah-isme/storefront-bff/internal/obs"
	"github.com/noah-isme/storefront-bff/internal/orderclient"
	"github.com/noah-isme/storefront-bff/internal/resilience"
)

// Client reads products from the storefront API through the retrying read
// path. Successful responses are cached by URL.
type Client struct {
	HTTP       resilience.HTTPClient
	BaseURL    string
	ListPath   string
	DetailPath string
	Cache      Cache
}

// List returns the products matching params. Params are forwarded verbatim.
func (c *Client) List(ctx context.Context, params url.Values) ([]Product, error) {
	u := strings.TrimRight(c.BaseURL, "/") + pathOr(c.ListPath, "/api/productos")
	if enc := params.Encode(); enc != "" {
		u += "?" + enc
	}
	body, cached, err := c.fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	items, err := decodeList(body)
	if err != nil {
		return nil, err
	}
	if !cached {
		c.store(ctx, u, body)
	}
	return items, nil
}

// Get returns one product by id.
func (c *Client) Get(ctx context.Context, id string) (Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, common.KindError(common.KindInvalidInput, "product id is required", nil)
	}
	path := strings.ReplaceAll(pathOr(c.DetailPath, "/api/productos/{id}"), "{id}", url.PathEscape(id))
	u := strings.TrimRight(c.BaseURL, "/") + path
	body, cached, err := c.fetch(ctx, u)
	if err != nil {
		return Product{}, err
	}
	p, err := decodeProduct(body)
	if err != nil {
		return Product{}, err
	}
	if !cached {
		c.store(ctx, u, body)
	}
	return p, nil
}

// Invalidate drops every cached catalog response.
func (c *Client) Invalidate(ctx context.Context) error {
	if c.Cache == nil {
		return nil
	}
	if err := c.Cache.Purge(ctx); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Debug().Msg("catalog_cache_invalidated")
	return nil
}

func (c *Client) fetch(ctx context.Context, u string) ([]byte, bool, error) {
	if c.Cache != nil {
		data, ok, err := c.Cache.Get(ctx, u)
		switch {
		case err != nil:
			obs.Inc(obs.CatalogCacheLookups, "error")
			zerolog.Ctx(ctx).Warn().Err(err).Msg("catalog_cache_get_failed")
		case ok:
			obs.Inc(obs.CatalogCacheLookups, "hit")
			return data, true, nil
		default:
			obs.Inc(obs.CatalogCacheLookups, "miss")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, context.Cause(ctx)
		}
		return nil, false, orderclient.NetworkError(err)
	}
	body, err := orderclient.ReadBody(resp)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, context.Cause(ctx)
		}
		return nil, false, orderclient.NetworkError(err)
	}
	if err := orderclient.Rejection(resp.StatusCode, body); err != nil {
		return nil, false, err
	}
	return body, false, nil
}

func (c *Client) store(ctx context.Context, u string, body []byte) {
	if c.Cache == nil {
		return
	}
	if err := c.Cache.Set(ctx, u, body); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("catalog_cache_set_failed")
	}
}

func pathOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
