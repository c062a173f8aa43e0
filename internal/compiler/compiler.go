// Package compiler orchestrates the full pipeline: parse, resolve schema,
// materialise rows from every data source, resolve references, evaluate
// row-local predicates, and run SQL proofs against the frozen database.
// Every phase is a total function of the previous one's output; the first
// structured error aborts compilation, matching the EDL compiler's
// single-threaded, no-partial-database failure model.
package compiler

import (
	"github.com/edendb/edendb/internal/edl"
	"github.com/edendb/edendb/internal/materialize"
	"github.com/edendb/edendb/internal/proofsql"
	"github.com/edendb/edendb/internal/reference"
	"github.com/edendb/edendb/internal/schema"
	"github.com/edendb/edendb/internal/script"
)

// Result is the frozen output of a successful compilation.
type Result struct {
	Schema   *schema.Schema
	Database *materialize.Database
}

// Options toggles the optional validation phases. Skipping a phase skips
// only the validation it performs; every structural phase always runs.
type Options struct {
	SkipChecks bool
	SkipProofs bool
}

// Compile runs every phase against the given input sources in declaration
// order: parse -> schema resolution -> data collection (text, then script)
// -> reference resolution -> row-local predicates -> SQL proofs.
func Compile(sources []edl.InputSource) (*Result, error) {
	return CompileWithOptions(sources, Options{})
}

// CompileWithOptions is Compile with the validation toggles exposed.
func CompileWithOptions(sources []edl.InputSource, opts Options) (*Result, error) {
	f, err := edl.ParseSources(sources)
	if err != nil {
		return nil, err
	}

	sch, err := schema.Resolve(f)
	if err != nil {
		return nil, err
	}

	db := materialize.NewDatabase(sch)
	for _, d := range f.Data {
		if err := materialize.ProcessDataDecl(db, sch, d); err != nil {
			return nil, err
		}
	}

	rt := script.NewRuntime(sch)
	defer rt.Close()
	for _, inc := range f.Includes {
		if inc.Path != nil {
			if err := rt.RunFile(*inc.Path); err != nil {
				return nil, err
			}
			continue
		}
		if inc.SourceDir != "" {
			rt.SetSourceDir(inc.SourceDir)
		}
		if err := rt.RunInline(*inc.Inline); err != nil {
			return nil, err
		}
	}
	if err := rt.Drain(db); err != nil {
		return nil, err
	}

	if err := reference.Resolve(sch, db); err != nil {
		return nil, err
	}

	if !opts.SkipChecks {
		if err := evaluatePredicates(sch, db, rt); err != nil {
			return nil, err
		}
	}

	if !opts.SkipProofs {
		if err := runProofs(sch, db, f.Proofs); err != nil {
			return nil, err
		}
	}

	return &Result{Schema: sch, Database: db}, nil
}

// evaluatePredicates compiles and runs every table's row-local CHECK
// expressions against every one of its materialised rows, in schema
// declaration order, short-circuiting on the first failing row.
func evaluatePredicates(sch *schema.Schema, db *materialize.Database, rt *script.Runtime) error {
	for _, name := range sch.Order {
		tbl := sch.Table(name)
		if len(tbl.Checks) == 0 {
			continue
		}

		// GENERATED columns are never materialised (they only exist inside
		// the proof engine's SQL view), so row-local predicates only ever
		// see the columns a row actually carries a value for.
		var columns []string
		for _, c := range tbl.Columns {
			if c.GeneratedExpr != nil {
				continue
			}
			columns = append(columns, c.Name)
		}

		for _, check := range tbl.Checks {
			fn, err := rt.CompileCheck(tbl.Name, check.Expression)
			if err != nil {
				return err
			}
			for _, row := range db.Tables[tbl.Name].Rows {
				if err := rt.EvaluateCheck(tbl.Name, check.Expression, fn, columns, row.Values); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// runProofs freezes the materialised database into the SQL proof engine and
// executes every PROOF block in source order.
func runProofs(sch *schema.Schema, db *materialize.Database, proofs []*edl.ProofDecl) error {
	if len(proofs) == 0 {
		return nil
	}
	engine, err := proofsql.Load(sch, db)
	if err != nil {
		return err
	}
	defer engine.Close()
	return proofsql.Run(engine, proofs)
}
