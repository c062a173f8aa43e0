// Package output serialises a compiled database, either as the columnar
// binary artifact codegen reads or as a human-readable summary: one named
// Format per output shape, dispatched through NewFormatter.
package output

import (
	"fmt"
	"strings"

	"github.com/edendb/edendb/internal/materialize"
	"github.com/edendb/edendb/internal/schema"
)

// Format is an enum type representing the available output formats.
type Format string

const (
	FormatBinary   Format = "binary"
	FormatDescribe Format = "describe"
)

// Formatter turns a compiled database into its final output bytes.
type Formatter interface {
	Format(sch *schema.Schema, db *materialize.Database) ([]byte, error)
}

type binaryFormatter struct{}

func (binaryFormatter) Format(sch *schema.Schema, db *materialize.Database) ([]byte, error) {
	return Serialize(sch, db)
}

type describeFormatter struct{}

func (describeFormatter) Format(sch *schema.Schema, db *materialize.Database) ([]byte, error) {
	return []byte(Describe(sch, db)), nil
}

// NewFormatter creates a new Formatter instance based on the given name.
// If no format is specified, defaults to the binary artifact.
func NewFormatter(name string) (Formatter, error) {
	format := Format(strings.ToLower(strings.TrimSpace(name)))
	switch format {
	case "", FormatBinary:
		return binaryFormatter{}, nil
	case FormatDescribe:
		return describeFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s; use 'binary' or 'describe'", name)
	}
}
