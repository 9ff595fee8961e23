package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/desertthunder/toptally/internal/models"
	"github.com/desertthunder/toptally/internal/shared"
	"github.com/go-resty/resty/v2"
)

const spotifyOEmbedURL = "https://open.spotify.com/oembed"

type oembedResponse struct {
	HTML         string `json:"html"`
	ThumbnailURL string `json:"thumbnail_url"`
	Title        string `json:"title"`
	Type         string `json:"type"`
}

// OEmbedClient fetches embeddable player markup from Spotify's public oEmbed endpoint.
//
// The endpoint requires no authentication.
type OEmbedClient struct {
	client   *resty.Client
	endpoint string
}

// NewOEmbedClient creates a client with a request timeout.
func NewOEmbedClient(timeout time.Duration) *OEmbedClient {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &OEmbedClient{client: client, endpoint: spotifyOEmbedURL}
}

// SetEndpoint overrides the oEmbed endpoint.
func (c *OEmbedClient) SetEndpoint(endpoint string) {
	c.endpoint = endpoint
}

// Embed returns the player HTML, thumbnail and iframe source for a Spotify URI or URL.
func (c *OEmbedClient) Embed(ctx context.Context, uri string) (*models.Embed, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty uri", shared.ErrEmbedLookupFailed)
	}

	var payload oembedResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("url", uri).
		SetResult(&payload).
		Get(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrEmbedLookupFailed, uri, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %s: status %d", shared.ErrEmbedLookupFailed, uri, resp.StatusCode())
	}

	return &models.Embed{
		HTML:         payload.HTML,
		ThumbnailURL: payload.ThumbnailURL,
		IframeURL:    iframeSource(payload.HTML),
	}, nil
}

// iframeSource extracts the src attribute of the first iframe in an HTML fragment.
func iframeSource(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("iframe").First().Attr("src")
	return src
}
