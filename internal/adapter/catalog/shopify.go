// Package catalog provides CatalogSource implementations.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

const (
	defaultAPIVersion = "2025-07"
	maxResponseBytes  = 4 << 20
)

const productFields = `
  id
  title
  description
  handle
  priceRange {
    minVariantPrice { amount currencyCode }
    maxVariantPrice { amount currencyCode }
  }
  options { name values }
`

const productsQuery = `
query GetProducts($first: Int!, $after: String) {
  products(first: $first, after: $after) {
    pageInfo { hasNextPage endCursor }
    edges {
      node {` + productFields + `
        images(first: 1) { edges { node { url altText } } }
        variants(first: 1) {
          edges { node { id title availableForSale price { amount currencyCode } selectedOptions { name value } } }
        }
      }
    }
  }
}`

const variantFields = `
  pageInfo { hasNextPage endCursor }
  edges { node { id title availableForSale price { amount currencyCode } selectedOptions { name value } } }
`

const productByHandleQuery = `
query GetProductByHandle($handle: String!) {
  productByHandle(handle: $handle) {` + productFields + `
    images(first: 5) { edges { node { url altText } } }
    variants(first: 100) {` + variantFields + `}
  }
}`

const productVariantsQuery = `
query GetProductVariants($handle: String!, $after: String) {
  productByHandle(handle: $handle) {
    variants(first: 100, after: $after) {` + variantFields + `}
  }
}`

// maxVariantPages stops paging well past Shopify's per-product variant limit.
const maxVariantPages = 25

// ShopifySource reads products from the Shopify Storefront GraphQL API.
type ShopifySource struct {
	endpoint string
	token    string
	client   *http.Client
}

type ShopifyConfig struct {
	StoreDomain string
	Token       string
	APIVersion  string
	Timeout     time.Duration
	// Endpoint overrides the URL built from StoreDomain and APIVersion.
	Endpoint string
}

func NewShopifySource(cfg ShopifyConfig) *ShopifySource {
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s/api/%s/graphql.json", strings.TrimSuffix(cfg.StoreDomain, "/"), cfg.APIVersion)
	}
	return &ShopifySource{
		endpoint: endpoint,
		token:    cfg.Token,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []graphQLError `json:"errors,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type edges[T any] struct {
	Edges []struct {
		Node T `json:"node"`
	} `json:"edges"`
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type variantConnection struct {
	PageInfo pageInfo `json:"pageInfo"`
	edges[domain.Variant]
}

type shopifyProduct struct {
	ID          string                    `json:"id"`
	Title       string                    `json:"title"`
	Description string                    `json:"description"`
	Handle      string                    `json:"handle"`
	PriceRange  domain.PriceRange         `json:"priceRange"`
	Options     []domain.OptionDefinition `json:"options"`
	Images      edges[domain.Image]       `json:"images"`
	Variants    variantConnection         `json:"variants"`
}

func (p shopifyProduct) snapshot() domain.CatalogSnapshot {
	snap := domain.CatalogSnapshot{
		ProductID:   p.ID,
		Handle:      p.Handle,
		Title:       p.Title,
		Description: p.Description,
		PriceRange:  p.PriceRange,
		Options:     p.Options,
	}
	for _, e := range p.Images.Edges {
		snap.Images = append(snap.Images, e.Node)
	}
	for _, e := range p.Variants.Edges {
		snap.Variants = append(snap.Variants, e.Node)
	}
	return snap
}

type productByHandleData struct {
	ProductByHandle *shopifyProduct `json:"productByHandle"`
}

type productsData struct {
	Products struct {
		PageInfo pageInfo `json:"pageInfo"`
		edges[shopifyProduct]
	} `json:"products"`
}

func (s *ShopifySource) FetchProduct(ctx context.Context, handle string) (*domain.CatalogSnapshot, error) {
	data, err := query[productByHandleData](ctx, s, productByHandleQuery, map[string]any{"handle": handle})
	if err != nil {
		return nil, err
	}
	if data.ProductByHandle == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, handle)
	}
	snap := data.ProductByHandle.snapshot()

	next := data.ProductByHandle.Variants.PageInfo
	for pages := 1; next.HasNextPage; pages++ {
		if pages >= maxVariantPages {
			return nil, fmt.Errorf("%w: %s has more than %d variant pages", domain.ErrInvalidSnapshot, handle, maxVariantPages)
		}
		more, err := query[productByHandleData](ctx, s, productVariantsQuery, map[string]any{"handle": handle, "after": next.EndCursor})
		if err != nil {
			return nil, err
		}
		if more.ProductByHandle == nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, handle)
		}
		for _, e := range more.ProductByHandle.Variants.Edges {
			snap.Variants = append(snap.Variants, e.Node)
		}
		next = more.ProductByHandle.Variants.PageInfo
	}
	return &snap, nil
}

func (s *ShopifySource) FetchProducts(ctx context.Context, page domain.PageParams) (*domain.ProductPage, error) {
	vars := map[string]any{"first": page.First}
	if page.After != "" {
		vars["after"] = page.After
	}

	data, err := query[productsData](ctx, s, productsQuery, vars)
	if err != nil {
		return nil, err
	}

	products := data.Products
	out := &domain.ProductPage{
		Products:    make([]domain.CatalogSnapshot, 0, len(products.Edges)),
		HasNextPage: products.PageInfo.HasNextPage,
		EndCursor:   products.PageInfo.EndCursor,
	}
	for _, e := range products.Edges {
		out.Products = append(out.Products, e.Node.snapshot())
	}
	return out, nil
}

func query[T any](ctx context.Context, s *ShopifySource, q string, vars map[string]any) (T, error) {
	var resp graphQLResponse[T]

	body, err := json.Marshal(graphQLRequest{Query: q, Variables: vars})
	if err != nil {
		return resp.Data, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return resp.Data, fmt.Errorf("build graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Storefront-Access-Token", s.token)

	httpResp, err := s.client.Do(req)
	if err != nil {
		return resp.Data, fmt.Errorf("%w: storefront request: %w", domain.ErrBackendFailure, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return resp.Data, fmt.Errorf("%w: read storefront response: %w", domain.ErrBackendFailure, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return resp.Data, fmt.Errorf("%w: storefront returned %d: %s", domain.ErrBackendFailure, httpResp.StatusCode, truncate(raw, 200))
	}

	if err := json.Unmarshal(raw, &resp); err != nil {
		return resp.Data, fmt.Errorf("%w: decode storefront response: %w", domain.ErrBackendFailure, err)
	}
	if len(resp.Errors) > 0 {
		return resp.Data, fmt.Errorf("%w: storefront graphql error: %s", domain.ErrBackendFailure, resp.Errors[0].Message)
	}
	return resp.Data, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
