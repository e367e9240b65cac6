package repository

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/foxseedlab/bonfire/internal/dbpool"
	"github.com/foxseedlab/bonfire/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type execCall struct {
	sql  string
	args []any
}

type fakeConn struct {
	execs     []execCall
	queries   []execCall
	execErr   error
	queryErr  error
	rowValues []any
	rowErr    error
	rows      [][]any
}

func (c *fakeConn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, c.execErr
}

func (c *fakeConn) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	c.queries = append(c.queries, execCall{sql: sql, args: args})
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	return &fakeRows{rows: c.rows, idx: -1}, nil
}

func (c *fakeConn) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	c.queries = append(c.queries, execCall{sql: sql, args: args})
	return fakeRow{values: c.rowValues, err: c.rowErr}
}

func (c *fakeConn) Ping(context.Context) error  { return nil }
func (c *fakeConn) Close(context.Context) error { return nil }

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

type fakeRows struct {
	rows [][]any
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	return assign(dest, r.rows[r.idx])
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.idx], nil
}

func assign(dest []any, values []any) error {
	if len(dest) != len(values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(values[i]))
	}
	return nil
}

type fakePool struct {
	conn       *fakeConn
	acquireErr error
	acquired   int
	released   int
}

func (p *fakePool) Acquire(context.Context) (dbpool.Conn, error) {
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	p.acquired++
	return p.conn, nil
}

func (p *fakePool) Release(dbpool.Conn) {
	p.released++
}

func newTestRepository(conn *fakeConn) (*PostgresRepository, *fakePool) {
	p := &fakePool{conn: conn}
	return &PostgresRepository{pool: p}, p
}

func TestCloseOrInsertSession_DiscardsShortSessionWithoutPool(t *testing.T) {
	repo, p := newTestRepository(&fakeConn{})
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	ok := repo.CloseOrInsertSession(context.Background(), repository.SessionRecord{
		UserID: "u1", StartTime: start, EndTime: start.Add(4 * time.Second), DurationSec: 4,
	})
	if ok {
		t.Fatal("expected short session to be discarded")
	}
	if p.acquired != 0 {
		t.Fatalf("expected pool to be untouched, got %d acquisitions", p.acquired)
	}
}

func TestCloseOrInsertSession_InsertsWhenNoExistingRow(t *testing.T) {
	conn := &fakeConn{rowErr: pgx.ErrNoRows}
	repo, p := newTestRepository(conn)
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	ok := repo.CloseOrInsertSession(context.Background(), repository.SessionRecord{
		UserID: "u1", Username: "alice", ChannelID: "c1", ChannelName: "Lounge",
		StartTime: start, EndTime: start.Add(10 * time.Minute), DurationSec: 600,
	})
	if !ok {
		t.Fatal("expected insert to succeed")
	}
	if len(conn.execs) != 1 || !strings.HasPrefix(strings.TrimSpace(conn.execs[0].sql), "INSERT INTO voice_sessions") {
		t.Fatalf("expected a single insert, got %+v", conn.execs)
	}
	if conn.execs[0].args[6] != int64(600) {
		t.Fatalf("expected duration 600, got %v", conn.execs[0].args[6])
	}
	if p.acquired != 1 || p.released != 1 {
		t.Fatalf("expected one acquire and release, got %d/%d", p.acquired, p.released)
	}
}

func TestCloseOrInsertSession_UpdatesExistingRow(t *testing.T) {
	conn := &fakeConn{rowValues: []any{int64(42)}}
	repo, _ := newTestRepository(conn)
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	ok := repo.CloseOrInsertSession(context.Background(), repository.SessionRecord{
		UserID: "u1", StartTime: start, EndTime: end, DurationSec: 3600,
	})
	if !ok {
		t.Fatal("expected update to succeed")
	}
	if len(conn.execs) != 1 || !strings.HasPrefix(conn.execs[0].sql, "UPDATE voice_sessions") {
		t.Fatalf("expected a single update, got %+v", conn.execs)
	}
	args := conn.execs[0].args
	if args[0] != int64(42) || args[1] != end || args[3] != end {
		t.Fatalf("unexpected update args: %v", args)
	}
}

func TestCloseOrInsertSession_ReportsStoreFailure(t *testing.T) {
	conn := &fakeConn{rowErr: pgx.ErrNoRows, execErr: errors.New("connection reset")}
	repo, p := newTestRepository(conn)
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	ok := repo.CloseOrInsertSession(context.Background(), repository.SessionRecord{
		UserID: "u1", StartTime: start, EndTime: start.Add(time.Minute), DurationSec: 60,
	})
	if ok {
		t.Fatal("expected failure to be reported as false")
	}
	if p.released != 1 {
		t.Fatalf("expected connection to be released on failure, got %d", p.released)
	}
}

func TestIsTrackedUser_ReturnsFalseWhenPoolUnavailable(t *testing.T) {
	repo, _ := newTestRepository(&fakeConn{})
	repo.pool.(*fakePool).acquireErr = errors.New("pool closed")

	if repo.IsTrackedUser(context.Background(), "u1") {
		t.Fatal("expected false when no connection is available")
	}
}

func TestIsTrackedChannel_ScansExistsFlag(t *testing.T) {
	conn := &fakeConn{rowValues: []any{true}}
	repo, _ := newTestRepository(conn)

	if !repo.IsTrackedChannel(context.Background(), "c1") {
		t.Fatal("expected tracked channel")
	}
	if !strings.Contains(conn.queries[0].sql, "enabled = TRUE") {
		t.Fatalf("expected enabled filter, got %q", conn.queries[0].sql)
	}
}

func TestFindOpenRecordKey(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	repo, _ := newTestRepository(&fakeConn{rowValues: []any{int64(7)}})
	id, found := repo.FindOpenRecordKey(context.Background(), "u1", start)
	if !found || id != 7 {
		t.Fatalf("expected (7, true), got (%d, %v)", id, found)
	}

	repo, _ = newTestRepository(&fakeConn{rowErr: pgx.ErrNoRows})
	if _, found := repo.FindOpenRecordKey(context.Background(), "u1", start); found {
		t.Fatal("expected not found")
	}
}

func TestDeleteTrackedUser_CascadesInOneStatement(t *testing.T) {
	conn := &fakeConn{}
	repo, _ := newTestRepository(conn)

	if !repo.DeleteTrackedUser(context.Background(), "u1") {
		t.Fatal("expected delete to succeed")
	}
	if len(conn.execs) != 1 {
		t.Fatalf("expected a single statement, got %d", len(conn.execs))
	}
	sql := conn.execs[0].sql
	if !strings.Contains(sql, "DELETE FROM voice_sessions") || !strings.Contains(sql, "DELETE FROM tracked_users") {
		t.Fatalf("expected cascading delete, got %q", sql)
	}
}

func TestUpsertTrackedUser_PassesFields(t *testing.T) {
	conn := &fakeConn{}
	repo, _ := newTestRepository(conn)

	ok := repo.UpsertTrackedUser(context.Background(), repository.TrackedUser{
		UserID: "u1", Username: "alice", Nickname: "ali", RoleName: "Keeper",
	})
	if !ok {
		t.Fatal("expected upsert to succeed")
	}
	want := []any{"u1", "alice", "ali", "Keeper"}
	if !reflect.DeepEqual(conn.execs[0].args, want) {
		t.Fatalf("expected args %v, got %v", want, conn.execs[0].args)
	}
}

func TestBuildRecordQuery(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)

	tests := []struct {
		name     string
		filter   repository.RecordFilter
		wantCond string
		wantArgs int
	}{
		{name: "unfiltered", filter: repository.RecordFilter{}, wantCond: "", wantArgs: 0},
		{name: "by user", filter: repository.RecordFilter{UserID: "u1"}, wantCond: "WHERE user_id = $1", wantArgs: 1},
		{name: "by range", filter: repository.RecordFilter{Since: since, Until: until}, wantCond: "WHERE start_time >= $1 AND start_time <= $2", wantArgs: 2},
		{name: "user and since", filter: repository.RecordFilter{UserID: "u1", Since: since}, wantCond: "WHERE user_id = $1 AND start_time >= $2", wantArgs: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildRecordQuery(tt.filter)
			if tt.wantCond == "" && strings.Contains(query, "WHERE") {
				t.Fatalf("expected no WHERE clause, got %q", query)
			}
			if !strings.Contains(query, tt.wantCond) {
				t.Fatalf("expected %q in %q", tt.wantCond, query)
			}
			if !strings.HasSuffix(query, "ORDER BY username ASC, start_time ASC") {
				t.Fatalf("unexpected ordering in %q", query)
			}
			if len(args) != tt.wantArgs {
				t.Fatalf("expected %d args, got %d", tt.wantArgs, len(args))
			}
		})
	}
}

func TestQueryRecords_ScansRows(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Minute)
	conn := &fakeConn{rows: [][]any{
		{int64(1), "u1", "alice", "c1", "Lounge", start, end, int64(600), end},
		{int64(2), "u2", "bob", "c1", "Lounge", start, end, int64(600), end},
	}}
	repo, _ := newTestRepository(conn)

	records := repo.QueryRecords(context.Background(), repository.RecordFilter{})
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[1].Username != "bob" || records[1].DurationSec != 600 {
		t.Fatalf("unexpected record: %+v", records[1])
	}
}

func TestQueryHeatmapRecords_CarriesNickname(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	conn := &fakeConn{rows: [][]any{
		{int64(1), "u1", "alice", "Ali", start, int64(600)},
		{int64(2), "u2", "bob", "", start, int64(60)},
	}}
	repo, _ := newTestRepository(conn)

	records := repo.QueryHeatmapRecords(context.Background(), start.Add(-time.Hour))
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].DisplayName() != "Ali" || records[1].DisplayName() != "bob" {
		t.Fatalf("unexpected display names: %q %q", records[0].DisplayName(), records[1].DisplayName())
	}
	if !strings.Contains(conn.queries[0].sql, "LEFT JOIN tracked_users") {
		t.Fatalf("expected join on tracked users, got %q", conn.queries[0].sql)
	}
}

func TestListNotes_ReturnsNilOnQueryFailure(t *testing.T) {
	conn := &fakeConn{queryErr: errors.New("relation does not exist")}
	repo, p := newTestRepository(conn)

	if notes := repo.ListNotes(context.Background()); notes != nil {
		t.Fatalf("expected nil notes, got %v", notes)
	}
	if p.released != 1 {
		t.Fatalf("expected connection release, got %d", p.released)
	}
}
