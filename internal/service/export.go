package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

const multipartThreshold = 8 * 1024 * 1024

// ExportResult describes a finished order export.
type ExportResult struct {
	Path   string `json:"path"`
	Orders int    `json:"orders"`
	Bytes  int    `json:"bytes"`
}

// Exporter writes order history as JSON lines, one order per line.
type Exporter struct {
	orders OrderLister
	blob   domain.BlobWriter
	reader domain.BlobReader
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewExporter creates an Exporter. blob may be nil when only WriteJSONL is
// used.
func NewExporter(orders OrderLister, blob domain.BlobWriter, prefix string, logger *slog.Logger) *Exporter {
	return &Exporter{
		orders: orders,
		blob:   blob,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
	}
}

// WithReader enables ListExports.
func (e *Exporter) WithReader(r domain.BlobReader) *Exporter {
	e.reader = r
	return e
}

// ListExports returns previous exports, newest first.
func (e *Exporter) ListExports(ctx context.Context) ([]domain.BlobInfo, error) {
	if e.reader == nil {
		return nil, fmt.Errorf("exporter: object storage is not configured")
	}
	infos, err := e.reader.List(ctx, path.Join(e.prefix, "orders")+"/")
	if err != nil {
		return nil, fmt.Errorf("exporter: list exports: %w", err)
	}
	return infos, nil
}

// WriteJSONL pages through every order matching f and writes each as one
// JSON line to w. It returns the number of orders written.
func (e *Exporter) WriteJSONL(ctx context.Context, w io.Writer, f domain.OrderFilter) (int, error) {
	enc := json.NewEncoder(w)
	if f.Page.Page <= 0 {
		f.Page.Page = 1
	}
	if f.Page.PageSize <= 0 {
		f.Page.PageSize = 100
	}

	n := 0
	for {
		res, err := e.orders.ListOrders(ctx, f)
		if err != nil {
			return n, fmt.Errorf("exporter: list page %d: %w", f.Page.Page, err)
		}
		for _, o := range res.Data {
			if err := enc.Encode(o); err != nil {
				return n, fmt.Errorf("exporter: encode order %d: %w", o.ID, err)
			}
			n++
		}
		if !res.Meta.HasNext() || len(res.Data) == 0 {
			return n, nil
		}
		f.Page.Page = res.Meta.NextPage()
	}
}

// Export uploads the order history matching f to object storage under
// <prefix>/orders/YYYY/MM/DD/orders-<unix>.jsonl.
func (e *Exporter) Export(ctx context.Context, f domain.OrderFilter) (ExportResult, error) {
	if e.blob == nil {
		return ExportResult{}, fmt.Errorf("exporter: object storage is not configured")
	}

	var buf bytes.Buffer
	n, err := e.WriteJSONL(ctx, &buf, f)
	if err != nil {
		return ExportResult{}, err
	}

	now := e.now().UTC()
	key := path.Join(e.prefix, "orders", now.Format("2006/01/02"), fmt.Sprintf("orders-%d.jsonl", now.Unix()))
	size := buf.Len()

	if size > multipartThreshold {
		err = e.blob.PutMultipart(ctx, key, &buf, 0)
	} else {
		err = e.blob.Put(ctx, key, &buf, "application/x-ndjson")
	}
	if err != nil {
		return ExportResult{}, fmt.Errorf("exporter: upload %s: %w", key, err)
	}

	e.logger.InfoContext(ctx, "exporter: orders exported",
		slog.String("path", key),
		slog.Int("orders", n),
		slog.Int("bytes", size),
	)
	return ExportResult{Path: key, Orders: n, Bytes: size}, nil
}
