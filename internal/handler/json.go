package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

const maxBodyBytes = 1 << 20

// Money is encoded as a string with two decimals so clients never see
// binary float rounding.
func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Str(d.StringFixed(2))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	encodeMoney(e, p.Price)
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("category_id")
	e.Int64(p.CategoryID)
	e.ObjEnd()
}

func encodeProductPage(e *jx.Encoder, page *product.Page) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, p := range page.Items {
		encodeProduct(e, p)
	}
	e.ArrEnd()
	encodePaging(e, page.Total, page.Offset, page.Limit)
	e.ObjEnd()
}

func encodePaging(e *jx.Encoder, total, offset, limit int) {
	e.FieldStart("total")
	e.Int(total)
	e.FieldStart("offset")
	e.Int(offset)
	e.FieldStart("limit")
	e.Int(limit)
}

func encodeCategory(e *jx.Encoder, c product.Category) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(c.ID)
	e.FieldStart("name")
	e.Str(c.Name)
	e.FieldStart("description")
	e.Str(c.Description)
	e.ObjEnd()
}

func encodeCart(e *jx.Encoder, d *cart.Detail) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(d.Cart.ID)
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range d.Lines {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(l.Item.ID)
		e.FieldStart("product_id")
		e.Int64(l.Item.ProductID)
		e.FieldStart("name")
		e.Str(l.Product.Name)
		e.FieldStart("quantity")
		e.Int(l.Item.Quantity)
		e.FieldStart("unit_price")
		encodeMoney(e, l.Product.Price)
		e.FieldStart("line_total")
		encodeMoney(e, l.LineTotal)
		e.FieldStart("in_stock")
		e.Bool(l.Item.Quantity <= l.Product.Stock)
		e.ObjEnd()
	}
	e.ArrEnd()
	if len(d.Missing) > 0 {
		e.FieldStart("unavailable")
		e.ArrStart()
		for _, it := range d.Missing {
			e.ObjStart()
			e.FieldStart("id")
			e.Int64(it.ID)
			e.FieldStart("product_id")
			e.Int64(it.ProductID)
			e.FieldStart("quantity")
			e.Int(it.Quantity)
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.FieldStart("total")
	encodeMoney(e, d.Total)
	e.ObjEnd()
}

func encodeSummary(e *jx.Encoder, s *checkout.Summary) {
	e.ObjStart()
	e.FieldStart("token")
	e.Str(s.Draft.Token)
	e.FieldStart("cart_id")
	e.Int64(s.Draft.CartID)
	e.FieldStart("expires_at")
	encodeTime(e, s.Draft.ExpiresAt)
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range s.Lines {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Int64(l.ProductID)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("unit_price")
		encodeMoney(e, l.UnitPrice)
		e.FieldStart("line_total")
		encodeMoney(e, l.LineTotal)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("total")
	encodeMoney(e, s.Draft.Total)
	e.ObjEnd()
}

func encodeResult(e *jx.Encoder, res *checkout.Result) {
	e.ObjStart()
	e.FieldStart("order_id")
	e.Int64(res.Order.ID)
	e.FieldStart("shipment_id")
	e.Int64(res.Shipment.ID)
	e.FieldStart("total")
	encodeMoney(e, res.Order.Total)
	e.FieldStart("ship_date")
	encodeTime(e, res.Shipment.ShipDate)
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order, s *order.Shipment) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("user_id")
	e.Str(o.UserID)
	e.FieldStart("created_at")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("total")
	encodeMoney(e, o.Total)
	if o.ShipmentID != nil {
		e.FieldStart("shipment_id")
		e.Int64(*o.ShipmentID)
	}
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Int64(it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unit_price")
		encodeMoney(e, it.UnitPrice)
		e.FieldStart("subtotal")
		encodeMoney(e, it.Subtotal())
		e.ObjEnd()
	}
	e.ArrEnd()
	if s != nil {
		e.FieldStart("shipment")
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(s.ID)
		e.FieldStart("ship_date")
		encodeTime(e, s.ShipDate)
		e.FieldStart("address")
		encodeAddress(e, s.Address)
		e.ObjEnd()
	}
	e.ObjEnd()
}

func encodeAddress(e *jx.Encoder, a order.Address) {
	e.ObjStart()
	e.FieldStart("address")
	e.Str(a.Line)
	e.FieldStart("city")
	e.Str(a.City)
	if a.Region != "" {
		e.FieldStart("region")
		e.Str(a.Region)
	}
	e.FieldStart("postal_code")
	e.Str(a.PostalCode)
	e.FieldStart("country")
	e.Str(a.Country)
	e.ObjEnd()
}

func encodeOrderPage(e *jx.Encoder, page *order.Page) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for i := range page.Items {
		encodeOrder(e, &page.Items[i], nil)
	}
	e.ArrEnd()
	encodePaging(e, page.Total, page.Offset, page.Limit)
	e.ObjEnd()
}

func encodeUser(e *jx.Encoder, u *auth.User) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(u.ID)
	e.FieldStart("email")
	e.Str(u.Email)
	e.FieldStart("name")
	e.Str(u.Name)
	e.FieldStart("roles")
	e.ArrStart()
	for _, r := range u.Roles {
		e.Str(string(r))
	}
	e.ArrEnd()
	e.FieldStart("created_at")
	encodeTime(e, u.CreatedAt)
	e.ObjEnd()
}

func encodeUserPage(e *jx.Encoder, page *auth.UserPage) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for i := range page.Items {
		encodeUser(e, &page.Items[i])
	}
	e.ArrEnd()
	encodePaging(e, page.Total, page.Offset, page.Limit)
	e.ObjEnd()
}

func encodeStats(e *jx.Encoder, s *order.Stats) {
	e.ObjStart()
	e.FieldStart("users")
	e.Int(s.Users)
	e.FieldStart("products")
	e.Int(s.Products)
	e.FieldStart("orders")
	e.Int(s.Orders)
	e.FieldStart("revenue")
	encodeMoney(e, s.Revenue)
	e.ObjEnd()
}

// readObject decodes a JSON object body, handing each field to fn.
func readObject(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return badRequest("body", err)
	}
	if len(body) > maxBodyBytes {
		return badRequest("body", errors.New("too large"))
	}
	if len(body) == 0 {
		return badRequest("body", errors.New("empty"))
	}
	if err := jx.DecodeBytes(body).Obj(fn); err != nil {
		return badRequest("body", err)
	}
	return nil
}

// decodeMoney accepts both "12.50" and 12.5.
func decodeMoney(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(string(n))
	default:
		return decimal.Decimal{}, errors.New("price must be a number or numeric string")
	}
}

func decodeProduct(r *http.Request, p *product.Product) error {
	return readObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "price":
			p.Price, err = decodeMoney(d)
		case "stock":
			p.Stock, err = d.Int()
		case "category_id":
			p.CategoryID, err = d.Int64()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
}

func decodeCategory(r *http.Request, c *product.Category) error {
	return readObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			c.Name, err = d.Str()
		case "description":
			c.Description, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
}

type addItemRequest struct {
	ProductID int64
	Quantity  int
}

func decodeAddItem(r *http.Request) (addItemRequest, error) {
	req := addItemRequest{Quantity: 1}
	err := readObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			req.ProductID, err = d.Int64()
		case "quantity":
			req.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	if err == nil && req.ProductID == 0 {
		err = badRequest("product_id", errors.New("required"))
	}
	return req, err
}

func decodeQuantity(r *http.Request) (int, error) {
	qty, seen := 0, false
	err := readObject(r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		seen = true
		var err error
		qty, err = d.Int()
		if err != nil {
			return errors.Wrap(err, "field \"quantity\"")
		}
		return nil
	})
	if err == nil && !seen {
		err = badRequest("quantity", errors.New("required"))
	}
	return qty, err
}

func decodeAddress(r *http.Request) (order.Address, error) {
	var a order.Address
	err := readObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "address":
			a.Line, err = d.Str()
		case "city":
			a.City, err = d.Str()
		case "region":
			a.Region, err = d.Str()
		case "postal_code":
			a.PostalCode, err = d.Str()
		case "country":
			a.Country, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	return a, err
}
