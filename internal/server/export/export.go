// Package export streams public account records as newline-delimited JSON,
// either to a writer or to an S3-compatible bucket.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dmitrijs2005/okaeri/internal/server/repositories/accounts"
)

// ContentType is the media type of an export.
const ContentType = "application/x-ndjson"

// Source yields the accounts to export.
type Source interface {
	Iterate(ctx context.Context, filter string) (accounts.Cursor, error)
	LoginKeyField() string
}

// NDJSON writes one JSON document per account matching filter to w and
// returns the number of records written.
func NDJSON(ctx context.Context, src Source, filter string, w io.Writer) (n int, err error) {
	cur, err := src.Iterate(ctx, filter)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := cur.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	lk := src.LoginKeyField()
	enc := json.NewEncoder(w)
	for cur.Next() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		a := cur.Account()
		if err := enc.Encode(a.Document(lk)); err != nil {
			return n, fmt.Errorf("write account %s: %w", a.ID, err)
		}
		n++
	}
	return n, cur.Err()
}
