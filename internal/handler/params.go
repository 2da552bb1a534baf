package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest(name, errors.New("must be a positive integer"))
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, badRequest(name, errors.New("must be a non-negative integer"))
	}
	return v, nil
}

func queryMoney(r *http.Request, name string) (decimal.NullDecimal, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, badRequest(name, err)
	}
	return decimal.NewNullDecimal(d), nil
}

// productFilter reads ?category=1,2&category=3&min_price=&max_price=&q=&offset=&limit=.
func productFilter(r *http.Request) (product.Filter, error) {
	var (
		f   product.Filter
		err error
	)
	for _, v := range r.URL.Query()["category"] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return f, badRequest("category", err)
			}
			f.CategoryIDs = append(f.CategoryIDs, id)
		}
	}
	if f.MinPrice, err = queryMoney(r, "min_price"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = queryMoney(r, "max_price"); err != nil {
		return f, err
	}
	f.Search = r.URL.Query().Get("q")
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}
	return f, nil
}

func pageRequest(r *http.Request) (order.PageRequest, error) {
	var (
		p   order.PageRequest
		err error
	)
	if p.Offset, err = queryInt(r, "offset"); err != nil {
		return p, err
	}
	if p.Limit, err = queryInt(r, "limit"); err != nil {
		return p, err
	}
	return p, nil
}
