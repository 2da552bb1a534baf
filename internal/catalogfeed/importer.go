package catalogfeed

import (
	"context"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	bloomFPR     = 0.001
	minBloomSize = 1024
	copyBatch    = 5000
)

// Store is the catalog storage an import writes to.
type Store interface {
	ProductNames(ctx context.Context) ([]string, error)
	EnsureCategory(ctx context.Context, name string) (int64, error)
	// CopyProducts bulk-inserts products that must not exist yet.
	CopyProducts(ctx context.Context, products []product.Product) (int64, error)
	UpsertProductByName(ctx context.Context, p *product.Product) error
}

// Result counts how records reached the catalog.
type Result struct {
	// Copied records were definitely new and bulk-inserted.
	Copied int
	// Upserted records may have existed and were written one by one.
	Upserted int
	// Categories is the number of distinct categories referenced.
	Categories int
}

// Importer loads deduplicated records into a Store.
type Importer struct {
	store Store
	// Progress, if set, is called after each written batch.
	Progress func(done, total int)
}

// NewImporter creates an Importer.
func NewImporter(store Store) *Importer {
	return &Importer{store: store}
}

// Import writes records to the catalog. Names of existing products go into a
// bloom filter: a record whose name is definitely absent is bulk-copied, any
// other record is upserted by name. A false positive only costs an upsert.
func (im *Importer) Import(ctx context.Context, records []Record) (Result, error) {
	var res Result

	names, err := im.store.ProductNames(ctx)
	if err != nil {
		return res, errors.Wrap(err, "load product names")
	}
	existing := bloom.NewWithEstimates(uint(max(len(names), minBloomSize)), bloomFPR)
	for _, name := range names {
		existing.AddString(name)
	}

	categories := make(map[string]int64)
	var fresh, maybe []product.Product
	for _, r := range Dedupe(records) {
		id, ok := categories[r.Category]
		if !ok {
			if id, err = im.store.EnsureCategory(ctx, r.Category); err != nil {
				return res, errors.Wrapf(err, "ensure category %q", r.Category)
			}
			categories[r.Category] = id
		}
		p := product.Product{
			Name:        r.Name,
			Description: r.Description,
			Price:       r.Price,
			Stock:       r.Stock,
			CategoryID:  id,
		}
		if existing.TestString(r.Name) {
			maybe = append(maybe, p)
		} else {
			fresh = append(fresh, p)
		}
	}
	res.Categories = len(categories)
	total := len(fresh) + len(maybe)

	for start := 0; start < len(fresh); start += copyBatch {
		batch := fresh[start:min(start+copyBatch, len(fresh))]
		n, err := im.store.CopyProducts(ctx, batch)
		switch {
		case errors.Is(err, product.ErrNameTaken):
			// Someone created one of these names since ProductNames ran.
			maybe = append(maybe, batch...)
		case err != nil:
			return res, errors.Wrap(err, "copy products")
		default:
			res.Copied += int(n)
		}
		im.progress(res.Copied+res.Upserted, total)
	}

	for i := range maybe {
		if err := im.store.UpsertProductByName(ctx, &maybe[i]); err != nil {
			return res, errors.Wrapf(err, "upsert product %q", maybe[i].Name)
		}
		res.Upserted++
		if res.Upserted%copyBatch == 0 {
			im.progress(res.Copied+res.Upserted, total)
		}
	}
	im.progress(res.Copied+res.Upserted, total)
	return res, nil
}

func (im *Importer) progress(done, total int) {
	if im.Progress != nil {
		im.Progress(done, total)
	}
}
