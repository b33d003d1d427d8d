package db

import (
	"fmt"
	"strings"
)

// TenantQuery builds parameterized SELECT statements that are always scoped
// to one tenant. The tenant predicate is the first clause and takes $1; there
// is no way to construct a TenantQuery without it.
type TenantQuery struct {
	table   string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

// NewTenantQuery starts a query over table (optionally aliased, e.g.
// "mohs_cases c") selecting cols.
func NewTenantQuery(table, cols, tenantID string) (*TenantQuery, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	tenantCol := "tenant_id"
	if parts := strings.Fields(table); len(parts) == 2 {
		tenantCol = parts[1] + ".tenant_id"
	}
	return &TenantQuery{
		table: table,
		cols:  cols,
		where: tenantCol + " = $1",
		args:  []interface{}{tenantID},
		idx:   2,
	}, nil
}

// Idx returns the next available parameter index.
func (q *TenantQuery) Idx() int { return q.idx }

// Add appends a raw WHERE clause fragment (without leading "AND"). The
// fragment must reference its arguments starting at Idx().
func (q *TenantQuery) Add(clause string, args ...interface{}) {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// Eq appends "column = $n".
func (q *TenantQuery) Eq(column string, value interface{}) {
	q.Add(fmt.Sprintf("%s = $%d", column, q.idx), value)
}

// OrderBy sets the ORDER BY clause (without the "ORDER BY" keyword).
func (q *TenantQuery) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

// CountSQL returns the count query SQL.
func (q *TenantQuery) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", q.table, q.where)
}

// CountArgs returns the arguments for the count query.
func (q *TenantQuery) CountArgs() []interface{} {
	return q.args
}

// SQL returns the unpaginated data query.
func (q *TenantQuery) SQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s", q.cols, q.table, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	return sql
}

// Args returns the arguments for SQL.
func (q *TenantQuery) Args() []interface{} {
	return q.args
}

// DataSQL returns the data query SQL with ORDER BY and LIMIT/OFFSET.
func (q *TenantQuery) DataSQL(limit, offset int) string {
	return q.SQL() + fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
}

// DataArgs returns the arguments for the data query (filter args + limit + offset).
func (q *TenantQuery) DataArgs(limit, offset int) []interface{} {
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}
