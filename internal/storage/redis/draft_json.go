package redis

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/checkout"
)

func encodeDraft(d *checkout.Draft) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("token")
	e.Str(d.Token)
	e.FieldStart("user_id")
	e.Str(d.UserID)
	e.FieldStart("cart_id")
	e.Int64(d.CartID)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range d.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Int64(it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("total")
	e.Str(d.Total.String())
	e.FieldStart("created_at")
	e.Str(d.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.FieldStart("expires_at")
	e.Str(d.ExpiresAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
	return e.Bytes()
}

func decodeDraft(data []byte) (*checkout.Draft, error) {
	var d checkout.Draft
	err := jx.DecodeBytes(data).Obj(func(dec *jx.Decoder, key string) error {
		var err error
		switch key {
		case "token":
			d.Token, err = dec.Str()
		case "user_id":
			d.UserID, err = dec.Str()
		case "cart_id":
			d.CartID, err = dec.Int64()
		case "items":
			err = dec.Arr(func(dec *jx.Decoder) error {
				it, err := decodeDraftItem(dec)
				if err != nil {
					return err
				}
				d.Items = append(d.Items, it)
				return nil
			})
		case "total":
			var s string
			if s, err = dec.Str(); err == nil {
				d.Total, err = decimal.NewFromString(s)
			}
		case "created_at":
			d.CreatedAt, err = decodeTime(dec)
		case "expires_at":
			d.ExpiresAt, err = decodeTime(dec)
		default:
			err = dec.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if d.Token == "" || d.UserID == "" {
		return nil, errors.New("incomplete draft")
	}
	return &d, nil
}

func decodeDraftItem(dec *jx.Decoder) (checkout.DraftItem, error) {
	var it checkout.DraftItem
	err := dec.Obj(func(dec *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			it.ProductID, err = dec.Int64()
		case "quantity":
			it.Quantity, err = dec.Int()
		default:
			err = dec.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return it, err
}

func decodeTime(dec *jx.Decoder) (time.Time, error) {
	s, err := dec.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}
