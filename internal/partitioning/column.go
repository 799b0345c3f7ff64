package partitioning

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// Column is the simplest KeyExpr: a reference to one input column by
// name. Real query plans would evaluate arbitrary scalar expressions;
// that evaluator is the planner's job and out of scope here - Column
// is the one concrete expression this repository needs to drive the
// hash path end to end.
type Column struct {
	ColumnName string
}

// NewColumn builds a Column key expression.
func NewColumn(name string) Column {
	return Column{ColumnName: name}
}

func (c Column) Name() string { return c.ColumnName }

func (c Column) Evaluate(rec arrow.Record) (arrow.Array, error) {
	idx := rec.Schema().FieldIndices(c.ColumnName)
	if len(idx) == 0 {
		return nil, fmt.Errorf("partitioning: column %q not found in schema", c.ColumnName)
	}
	return rec.Column(idx[0]), nil
}
