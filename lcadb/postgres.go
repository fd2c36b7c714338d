package lcadb

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rickchristie/flowmap"
	"github.com/rickchristie/flowmap/logging"
)

// PostgresConfig configures the PostgreSQL backend.
type PostgresConfig struct {
	DSN string

	// Table holds the flows. Defaults to DefaultTable.
	Table string

	// TextSearchConfig is the regconfig used for to_tsvector. Defaults to "english".
	TextSearchConfig string

	// MinSimilarity is the pg_trgm similarity threshold for SemanticAsk.
	MinSimilarity float64

	MaxConns int32
}

// querier is the subset of *pgxpool.Pool the backend uses.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres is a Database backed by a PostgreSQL flow table. Full-text search
// uses tsvector ranking, SemanticAsk uses pg_trgm similarity.
type Postgres struct {
	db            querier
	pool          *pgxpool.Pool
	table         string
	tsConfig      string
	minSimilarity float64
	log           logging.Logger
}

// NewPostgres opens a connection pool. The connection is established lazily.
func NewPostgres(ctx context.Context, cfg PostgresConfig, log logging.Logger) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", flowmap.ErrInvalidConfig)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres dsn: %v", flowmap.ErrInvalidConfig, err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, wrap("postgres connect", err)
	}
	p := newPostgres(pool, cfg, log)
	p.pool = pool
	return p, nil
}

func newPostgres(db querier, cfg PostgresConfig, log logging.Logger) *Postgres {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.TextSearchConfig == "" {
		cfg.TextSearchConfig = "english"
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = 0.1
	}
	return &Postgres{
		db:            db,
		table:         cfg.Table,
		tsConfig:      cfg.TextSearchConfig,
		minSimilarity: cfg.MinSimilarity,
		log:           logging.OrNop(log),
	}
}

// Close releases the pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// FullTextSearch ranks rows with ts_rank against an OR of the query's words.
func (p *Postgres) FullTextSearch(ctx context.Context, req SearchRequest) ([]Record, error) {
	sql, args, err := p.buildSearch(req)
	if err != nil {
		return nil, wrap("postgres search", err)
	}
	return p.query(ctx, "postgres search", sql, args)
}

// StructuredQuery selects rows matching every filter column exactly, in
// primary key order.
func (p *Postgres) StructuredQuery(ctx context.Context, req QueryRequest) ([]Record, error) {
	sql, args, err := p.buildQuery(req)
	if err != nil {
		return nil, wrap("postgres query", err)
	}
	return p.query(ctx, "postgres query", sql, args)
}

// SemanticAsk ranks rows by trigram similarity to the question.
func (p *Postgres) SemanticAsk(ctx context.Context, req AskRequest) (*Answer, error) {
	sql, args, err := p.buildAsk(req)
	if err != nil {
		return nil, wrap("postgres ask", err)
	}
	records, err := p.query(ctx, "postgres ask", sql, args)
	if err != nil {
		return nil, err
	}
	return &Answer{Records: records}, nil
}

type pgRecord struct {
	ID                           string  `db:"id"`
	BaseName                     string  `db:"base_name"`
	ElementaryFlowCategorization string  `db:"elementary_flow_categorization"`
	CASNumber                    string  `db:"cas_number"`
	UUID                         string  `db:"uuid"`
	Score                        float64 `db:"score"`
}

func (p *Postgres) query(ctx context.Context, op, sql string, args []any) ([]Record, error) {
	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[pgRecord])
	if err != nil {
		return nil, wrap(op, err)
	}

	out := make([]Record, len(found))
	for i, r := range found {
		out[i] = Record{
			FlowRecord: flowmap.FlowRecord{
				BaseName:                     r.BaseName,
				ElementaryFlowCategorization: r.ElementaryFlowCategorization,
				CASNumber:                    r.CASNumber,
				UUID:                         r.UUID,
			},
			ID:    r.ID,
			Score: r.Score,
		}
	}
	p.log.Debug(op, logging.Int("rows", len(out)))
	return out, nil
}

// -----------------------------------------------------------------------------
// SQL builders
// -----------------------------------------------------------------------------

func (p *Postgres) tableName(table string) string {
	if table == "" || table == DefaultTable {
		table = p.table
	}
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

func selectList(score string) string {
	cols := make([]string, 0, len(Columns)+2)
	cols = append(cols, pgx.Identifier{ColumnID}.Sanitize()+"::text AS id")
	for _, c := range Columns {
		cols = append(cols, pgx.Identifier{c}.Sanitize())
	}
	cols = append(cols, score+" AS score")
	return strings.Join(cols, ", ")
}

func concatColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = "coalesce(" + pgx.Identifier{c}.Sanitize() + ", '')"
	}
	return "concat_ws(' ', " + strings.Join(quoted, ", ") + ")"
}

// whereFilters appends equality conditions for filter to conds, numbering
// placeholders after args.
func whereFilters(filter Filter, conds []string, args []any) ([]string, []any) {
	for _, col := range filter.Keys() {
		args = append(args, filter[col])
		conds = append(conds, fmt.Sprintf("%s = $%d", pgx.Identifier{col}.Sanitize(), len(args)))
	}
	return conds, args
}

func (p *Postgres) buildSearch(req SearchRequest) (string, []any, error) {
	tsq := orTSQuery(req.Query)
	if tsq == "" {
		return "", nil, flowmap.ErrEmptyQuery
	}

	args := []any{p.tsConfig, tsq}
	vector := fmt.Sprintf("to_tsvector($1::regconfig, %s)", concatColumns(columnsOr(req.Target)))
	query := "to_tsquery($1::regconfig, $2)"

	conds := []string{vector + " @@ " + query}
	if req.Table != "" {
		conds, args = whereFilters(req.Filter, conds, args)
	}
	args = append(args, limitOr(req.Limit))

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY score DESC LIMIT $%d",
		selectList("ts_rank("+vector+", "+query+")::float8"),
		p.tableName(req.Table),
		strings.Join(conds, " AND "),
		len(args))
	return sql, args, nil
}

func (p *Postgres) buildQuery(req QueryRequest) (string, []any, error) {
	conds, args := whereFilters(req.Filter, nil, nil)
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limitOr(req.Limit))

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT $%d",
		selectList("0::float8"),
		p.tableName(req.Table),
		where,
		pgx.Identifier{ColumnID}.Sanitize(),
		len(args))
	return sql, args, nil
}

func (p *Postgres) buildAsk(req AskRequest) (string, []any, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return "", nil, flowmap.ErrEmptyQuery
	}

	score := fmt.Sprintf("similarity(%s, $1)::float8", concatColumns(columnsOr(req.Columns)))
	args := []any{question, p.minSimilarity, limitOr(req.Limit)}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s >= $2 ORDER BY score DESC LIMIT $3",
		selectList(score),
		p.tableName(req.Table),
		score)
	return sql, args, nil
}

// orTSQuery turns free text into a to_tsquery expression matching any of its
// words. Punctuation is dropped so the result is always valid tsquery syntax.
func orTSQuery(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return strings.Join(out, " | ")
}

var _ Database = (*Postgres)(nil)
