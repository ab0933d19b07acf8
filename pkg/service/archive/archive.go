package archive

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
	"google.golang.org/api/option"
)

// utf8BOM lets spreadsheet applications detect the encoding of Japanese text
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// EncodeCSV renders rows as UTF-8 CSV with a byte order mark. Rows are
// padded to the width of the widest row.
func EncodeCSV(rows [][]string) ([]byte, error) {
	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}

	var buf bytes.Buffer
	buf.Write(utf8BOM)
	w := csv.NewWriter(&buf)
	for _, row := range rows {
		padded := make([]string, width)
		copy(padded, row)
		if err := w.Write(padded); err != nil {
			return nil, goerr.Wrap(err, "failed to encode csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, goerr.Wrap(err, "failed to encode csv")
	}
	return buf.Bytes(), nil
}

// Client writes exports to a Cloud Storage bucket
type Client struct {
	bucket string
	prefix string
	client *storage.Client
}

var _ interfaces.Archive = &Client{}

type Option func(*Client)

// WithPrefix puts every object under prefix
func WithPrefix(prefix string) Option {
	return func(c *Client) {
		c.prefix = strings.Trim(prefix, "/")
	}
}

func New(ctx context.Context, bucket string, clientOpts []option.ClientOption, opts ...Option) (*Client, error) {
	if bucket == "" {
		return nil, goerr.New("bucket is required")
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	c := &Client{bucket: bucket, client: client}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) objectName(object string) string {
	if c.prefix == "" {
		return object
	}
	return c.prefix + "/" + object
}

func (c *Client) WriteCSV(ctx context.Context, object string, rows [][]string) (string, error) {
	data, err := EncodeCSV(rows)
	if err != nil {
		return "", err
	}

	name := c.objectName(object)

	// Cancelling the context aborts the upload instead of committing a
	// partial object
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := c.client.Bucket(c.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "text/csv; charset=utf-8"
	if _, err := w.Write(data); err != nil {
		return "", goerr.Wrap(err, "failed to write object", goerr.V("bucket", c.bucket), goerr.V("object", name))
	}
	if err := w.Close(); err != nil {
		return "", goerr.Wrap(err, "failed to finalize object", goerr.V("bucket", c.bucket), goerr.V("object", name))
	}

	return fmt.Sprintf("gs://%s/%s", c.bucket, name), nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
