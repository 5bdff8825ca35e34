package earthengine

import (
	"context"
	"fmt"
)

// TileMap is a server-registered map whose tiles can be fetched by any
// slippy-map viewer.
type TileMap struct {
	Name         string // resource name, projects/{project}/maps/{id}
	TileTemplate string // URL template with {z}/{x}/{y} placeholders
}

type createMapRequest struct {
	Expression *Expression `json:"expression"`
}

type mapResource struct {
	Name string `json:"name"`
}

// CreateMap registers a styled expression as a tile map.
func (c *Client) CreateMap(ctx context.Context, expr *Expression) (*TileMap, error) {
	var resp mapResource
	endpoint := fmt.Sprintf("/projects/%s/maps", c.project)
	if err := c.post(ctx, endpoint, createMapRequest{Expression: expr}, &resp); err != nil {
		return nil, err
	}
	if resp.Name == "" {
		return nil, fmt.Errorf("map response carried no resource name")
	}
	return &TileMap{
		Name:         resp.Name,
		TileTemplate: fmt.Sprintf("%s/%s/tiles/{z}/{x}/{y}", c.baseURL, resp.Name),
	}, nil
}

type createThumbnailRequest struct {
	Expression *Expression `json:"expression"`
	FileFormat string      `json:"fileFormat"`
}

// Thumbnail renders a styled expression to PNG bytes. The expression
// decides the pixel dimensions, normally through
// Image.clipToBoundsAndScale.
func (c *Client) Thumbnail(ctx context.Context, expr *Expression) ([]byte, error) {
	var resp mapResource
	endpoint := fmt.Sprintf("/projects/%s/thumbnails", c.project)
	req := createThumbnailRequest{Expression: expr, FileFormat: "PNG"}
	if err := c.post(ctx, endpoint, req, &resp); err != nil {
		return nil, err
	}
	if resp.Name == "" {
		return nil, fmt.Errorf("thumbnail response carried no resource name")
	}
	return c.get(ctx, fmt.Sprintf("/%s:getPixels", resp.Name))
}
