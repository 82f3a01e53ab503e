package engine

import (
	"os"

	"github.com/parquet-go/parquet-go"

	rlerrors "github.com/ratelake/ratelake/internal/errors"
	"github.com/ratelake/ratelake/internal/schema"
	"github.com/ratelake/ratelake/pkg/types"
)

// FactReader streams fact rows from a parquet file in caller-sized
// chunks so the whole table never has to fit in memory.
type FactReader struct {
	file   *os.File
	reader *parquet.GenericReader[types.FactRecord]
}

// OpenFactReader validates the fact table schema and opens it for
// chunked reading.
func OpenFactReader(path string) (*FactReader, error) {
	if err := schema.ValidateFile(path, schema.FactSchema()); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, rlerrors.Wrap(rlerrors.ErrCategorySchema, rlerrors.CodeUnreadableTable,
			"failed to open fact table", err)
	}

	return &FactReader{
		file:   f,
		reader: parquet.NewGenericReader[types.FactRecord](f),
	}, nil
}

// ReadChunk fills buf with the next rows. It returns the number of rows
// read; io.EOF signals the end of the table, possibly alongside a final
// short read.
func (r *FactReader) ReadChunk(buf []types.FactRecord) (int, error) {
	return r.reader.Read(buf)
}

// NumRows returns the total row count from the file metadata.
func (r *FactReader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close releases the underlying file.
func (r *FactReader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}
