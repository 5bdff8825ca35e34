package earthengine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExportRequest describes a GeoTIFF export of an expression into a
// Cloud Storage bucket.
type ExportRequest struct {
	Expression  *Expression
	Description string
	Bucket      string
	Prefix      string // object name prefix inside the bucket
	MaxPixels   int64
	RequestID   string // idempotency token, generated when empty
}

// Operation tracks a long-running export on the server. The pipeline
// never polls; callers ask for the current state when they want it.
type Operation struct {
	Name     string            `json:"name"`
	Done     bool              `json:"done"`
	Metadata OperationMetadata `json:"metadata"`
	Error    *OperationError   `json:"error,omitempty"`
}

type OperationMetadata struct {
	State       string    `json:"state"`
	Description string    `json:"description"`
	CreateTime  time.Time `json:"createTime"`
	UpdateTime  time.Time `json:"updateTime"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
}

type OperationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ID returns the trailing segment of the operation's resource name.
func (o *Operation) ID() string {
	if i := strings.LastIndex(o.Name, "/"); i >= 0 {
		return o.Name[i+1:]
	}
	return o.Name
}

type exportImageRequest struct {
	Expression        *Expression       `json:"expression"`
	Description       string            `json:"description,omitempty"`
	FileExportOptions fileExportOptions `json:"fileExportOptions"`
	MaxPixels         int64             `json:"maxPixels,string,omitempty"`
	RequestID         string            `json:"requestId,omitempty"`
}

type fileExportOptions struct {
	FileFormat              string                  `json:"fileFormat"`
	CloudStorageDestination cloudStorageDestination `json:"cloudStorageDestination"`
}

type cloudStorageDestination struct {
	Bucket         string `json:"bucket"`
	FilenamePrefix string `json:"filenamePrefix"`
}

// ExportImage starts a GeoTIFF export and returns its operation. The
// export keeps running server-side after this call returns.
func (c *Client) ExportImage(ctx context.Context, req ExportRequest) (*Operation, error) {
	if req.Bucket == "" {
		return nil, fmt.Errorf("export bucket is required")
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	body := exportImageRequest{
		Expression:  req.Expression,
		Description: req.Description,
		FileExportOptions: fileExportOptions{
			FileFormat: "GEO_TIFF",
			CloudStorageDestination: cloudStorageDestination{
				Bucket:         req.Bucket,
				FilenamePrefix: req.Prefix,
			},
		},
		MaxPixels: req.MaxPixels,
		RequestID: req.RequestID,
	}

	var op Operation
	endpoint := fmt.Sprintf("/projects/%s/image:export", c.project)
	if err := c.post(ctx, endpoint, body, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// GetOperation reads the current state of one export. It accepts a
// full resource name or a bare operation id.
func (c *Client) GetOperation(ctx context.Context, name string) (*Operation, error) {
	body, err := c.get(ctx, "/"+c.operationName(name))
	if err != nil {
		return nil, err
	}
	var op Operation
	if err := json.Unmarshal(body, &op); err != nil {
		return nil, fmt.Errorf("failed to parse operation: %v", err)
	}
	return &op, nil
}

// ListOperations returns the project's export operations, newest
// first as the server orders them.
func (c *Client) ListOperations(ctx context.Context) ([]Operation, error) {
	body, err := c.get(ctx, fmt.Sprintf("/projects/%s/operations", c.project))
	if err != nil {
		return nil, err
	}
	var resp struct {
		Operations []Operation `json:"operations"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse operations: %v", err)
	}
	return resp.Operations, nil
}

func (c *Client) operationName(name string) string {
	if strings.Contains(name, "/") {
		return name
	}
	return fmt.Sprintf("projects/%s/operations/%s", c.project, name)
}
