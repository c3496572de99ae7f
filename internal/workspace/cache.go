package workspace

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/freshbasket/forecast/internal/forecast"
	"github.com/freshbasket/forecast/internal/workbook"
)

// CatalogCache memoises normalised catalogs by the digest of the upload bytes
// and the layout they were read with. Entries are immutable, so sessions can
// share them safely.
type CatalogCache struct {
	client  *redis.Client
	ttl     time.Duration
	group   singleflight.Group
	metrics Metrics
}

// NewCatalogCache constructs the cache. A nil client disables caching.
func NewCatalogCache(client *redis.Client, ttl time.Duration, metrics Metrics) *CatalogCache {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &CatalogCache{client: client, ttl: ttl, metrics: metrics}
}

// Key derives the content address of an upload. sheetName is only set for
// formats whose vendor name comes from the file name rather than the bytes.
func Key(data []byte, format workbook.Format, sheetName string, layout forecast.Layout) string {
	h, _ := blake2b.New256(nil)
	_, _ = h.Write([]byte(format))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(sheetName))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(layout.Mode))
	for _, c := range layout.Columns {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(strconv.Itoa(c)))
	}
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.Itoa(layout.DaysPerMonth)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(data)
	return "catalog:" + hex.EncodeToString(h.Sum(nil))
}

// Catalog decodes and normalises the upload, consulting Redis first. The
// boolean reports a cache hit.
func (c *CatalogCache) Catalog(ctx context.Context, data []byte, filename string, layout forecast.Layout) (forecast.Catalog, bool, error) {
	format, err := workbook.DetectFormat(filename)
	if err != nil {
		return forecast.Catalog{}, false, err
	}
	if c == nil || c.client == nil {
		catalog, err := parse(data, filename, layout)
		return catalog, false, err
	}

	var sheetName string
	if format == workbook.FormatCSV {
		sheetName = workbook.CSVSheetName(filename)
	}
	key := Key(data, format, sheetName, layout)
	if catalog, ok, err := c.get(ctx, key); err != nil {
		return forecast.Catalog{}, false, err
	} else if ok {
		c.metrics.CatalogCache(true)
		return catalog, true, nil
	}
	c.metrics.CatalogCache(false)

	result := c.group.DoChan(key, func() (interface{}, error) {
		catalog, err := parse(data, filename, layout)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(catalog)
		if err != nil {
			return nil, err
		}
		// Detached so a cancelled request does not abort the shared write.
		if err := c.client.Set(context.WithoutCancel(ctx), key, raw, c.ttl).Err(); err != nil {
			return nil, fmt.Errorf("workspace: cache catalog: %w", err)
		}
		return catalog, nil
	})
	select {
	case <-ctx.Done():
		return forecast.Catalog{}, false, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return forecast.Catalog{}, false, res.Err
		}
		return res.Val.(forecast.Catalog), false, nil
	}
}

func (c *CatalogCache) get(ctx context.Context, key string) (forecast.Catalog, bool, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return forecast.Catalog{}, false, nil
	}
	if err != nil {
		return forecast.Catalog{}, false, fmt.Errorf("workspace: read cached catalog: %w", err)
	}
	var catalog forecast.Catalog
	if err := json.Unmarshal(payload, &catalog); err != nil {
		return forecast.Catalog{}, false, nil
	}
	return catalog, true, nil
}

func parse(data []byte, filename string, layout forecast.Layout) (forecast.Catalog, error) {
	sheets, err := workbook.Decode(data, filename)
	if err != nil {
		return forecast.Catalog{}, err
	}
	return forecast.Normalize(sheets, layout), nil
}
