package catalogfeed

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"
)

const maxLineBytes = 1 << 20

// ReadFile streams the feed at path, calling fn for each record in order.
// Files ending in .gz are decompressed.
func ReadFile(ctx context.Context, path string, fn func(Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		rec, err := DecodeRecord(data)
		if err != nil {
			return errors.Wrapf(err, "%s:%d", path, line)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// ReadAll reads every feed concurrently and merges them. When a name occurs
// more than once the record read last wins, taking files in argument order;
// the merged slice keeps the position of the first occurrence.
func ReadAll(ctx context.Context, paths []string) ([]Record, error) {
	perFile := make([][]Record, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			return ReadFile(ctx, path, func(r Record) error {
				perFile[i] = append(perFile[i], r)
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []Record
	for _, records := range perFile {
		merged = append(merged, records...)
	}
	return Dedupe(merged), nil
}

// Dedupe collapses records with the same name, keeping the last value at the
// first position.
func Dedupe(records []Record) []Record {
	index := make(map[string]int, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if i, ok := index[r.Name]; ok {
			out[i] = r
			continue
		}
		index[r.Name] = len(out)
		out = append(out, r)
	}
	return out
}
