// Package catalogfeed reads product feeds and loads them into the catalog.
//
// A feed is JSON lines, optionally gzip-compressed, one product per line:
//
//	{"name":"Desk Lamp","description":"...","price":"24.90","stock":12,"category":"Lighting"}
//
// Products are matched to the catalog by name. Categories are matched by
// name and created on demand.
package catalogfeed

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Record is one product row of a feed.
type Record struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    string
}

// Validate normalizes r and reports the first invalid field.
func (r *Record) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Category = strings.TrimSpace(r.Category)
	switch {
	case r.Name == "":
		return errors.New("name: required")
	case r.Category == "":
		return errors.New("category: required")
	case r.Price.IsNegative():
		return errors.New("price: must not be negative")
	case r.Stock < 0:
		return errors.New("stock: must not be negative")
	}
	r.Price = r.Price.Round(2)
	return nil
}

// DecodeRecord parses and validates one JSON object.
func DecodeRecord(data []byte) (Record, error) {
	return decodeRecord(jx.DecodeBytes(data))
}

// DecodeArray parses and validates a JSON array of records.
func DecodeArray(data []byte) ([]Record, error) {
	var records []Record
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		r, err := decodeRecord(d)
		if err != nil {
			return errors.Wrapf(err, "record %d", len(records))
		}
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func decodeRecord(d *jx.Decoder) (Record, error) {
	var r Record
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			r.Name, err = d.Str()
		case "description":
			r.Description, err = d.Str()
		case "price":
			r.Price, err = decodePrice(d)
		case "stock":
			r.Stock, err = d.Int()
		case "category":
			r.Category, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "%s", key)
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch tt := d.Next(); tt {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = string(n)
	default:
		return decimal.Decimal{}, fmt.Errorf("unexpected %s", tt)
	}
	return decimal.NewFromString(raw)
}
