package store

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/venue-enricher/internal/model"
)

// sqliteTimeLayout keeps text timestamps lexically sortable.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

// dialect captures the syntax differences between the three backends.
type dialect struct {
	name      string
	bind      func(n int) string
	quote     func(ident string) string
	text      string
	float     string
	integer   string
	timestamp string
	timeArg   func(t time.Time) any
}

var (
	postgresDialect = dialect{
		name:      "postgres",
		bind:      func(n int) string { return "$" + strconv.Itoa(n) },
		quote:     doubleQuote,
		text:      "TEXT",
		float:     "DOUBLE PRECISION",
		integer:   "BIGINT",
		timestamp: "TIMESTAMPTZ",
		timeArg:   func(t time.Time) any { return t.UTC() },
	}
	sqliteDialect = dialect{
		name:      "sqlite",
		bind:      func(int) string { return "?" },
		quote:     doubleQuote,
		text:      "TEXT",
		float:     "REAL",
		integer:   "INTEGER",
		timestamp: "TEXT",
		timeArg:   func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
	}
	bigqueryDialect = dialect{
		name:      "bigquery",
		bind:      func(n int) string { return "@p" + strconv.Itoa(n) },
		quote:     func(ident string) string { return "`" + strings.ReplaceAll(ident, "`", "") + "`" },
		text:      "STRING",
		float:     "FLOAT64",
		integer:   "INT64",
		timestamp: "TIMESTAMP",
		timeArg:   func(t time.Time) any { return t.UTC() },
	}
)

func doubleQuote(ident string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

// args collects bind values and renders their placeholders.
type args struct {
	d    dialect
	vals []any
}

func (a *args) add(v any) string {
	a.vals = append(a.vals, v)
	return a.d.bind(len(a.vals))
}

// Select-list aliases, in scan order. Target fields follow, aliased by
// their field names.
const (
	aliasKey      = "row_key"
	aliasName     = "venue_name"
	aliasWebsite  = "website"
	aliasCity     = "city"
	aliasCountry  = "country"
	aliasCategory = "category"
	aliasStatus   = "status"
	aliasUpdated  = "updated_at"
)

// builder renders every statement the stores issue. have holds the
// lowercased column names discovered in the table; nil means every
// configured column is assumed to exist.
type builder struct {
	d     dialect
	cols  Columns
	table string
	have  map[string]bool
}

func newBuilder(d dialect, cols Columns, table string) *builder {
	return &builder{d: d, cols: cols.WithDefaults(), table: table}
}

// withSchema returns a copy restricted to the given columns.
func (b *builder) withSchema(columns []string) *builder {
	c := *b
	c.have = make(map[string]bool, len(columns))
	for _, col := range columns {
		c.have[strings.ToLower(col)] = true
	}
	return &c
}

func (b *builder) has(col string) bool {
	if b.have == nil {
		return true
	}
	return b.have[strings.ToLower(col)]
}

func (b *builder) q(col string) string { return b.d.quote(col) }

// check verifies that the columns the selector cannot work without exist.
func (b *builder) check() error {
	for _, col := range []string{b.cols.Key, b.cols.Name} {
		if !b.has(col) {
			return eris.Errorf("%s: table %s has no column %q", b.d.name, b.table, col)
		}
	}
	return nil
}

func (b *builder) keyExpr() string {
	return fmt.Sprintf("CAST(%s AS %s)", b.q(b.cols.Key), b.d.text)
}

func (b *builder) castOrNull(col, typ, alias string) string {
	if col == "" || !b.has(col) {
		return fmt.Sprintf("CAST(NULL AS %s) AS %s", typ, alias)
	}
	return fmt.Sprintf("CAST(%s AS %s) AS %s", b.q(col), typ, alias)
}

func (b *builder) selectList() string {
	items := []string{
		b.keyExpr() + " AS " + aliasKey,
		b.castOrNull(b.cols.Name, b.d.text, aliasName),
		b.castOrNull(b.cols.Website, b.d.text, aliasWebsite),
		b.castOrNull(b.cols.City, b.d.text, aliasCity),
		b.castOrNull(b.cols.Country, b.d.text, aliasCountry),
		b.castOrNull(b.cols.Category, b.d.text, aliasCategory),
		b.castOrNull(b.cols.Status, b.d.text, aliasStatus),
	}
	items = append(items, b.castOrNull(b.cols.UpdatedAt, b.d.timestamp, aliasUpdated))
	for _, f := range model.TargetFields {
		typ := b.d.float
		if f.Kind() == model.KindText {
			typ = b.d.text
		}
		items = append(items, b.castOrNull(b.cols.Field(f), typ, string(f)))
	}
	return strings.Join(items, ", ")
}

// missingExpr is the predicate for an empty target column.
func (b *builder) missingExpr(f model.Field) string {
	col := b.q(b.cols.Field(f))
	if f.Kind() == model.KindText {
		return fmt.Sprintf("(%s IS NULL OR TRIM(%s) = '')", col, col)
	}
	return col + " IS NULL"
}

// pendingWhere selects rows that are not finished or frozen and still miss
// at least one target field.
func (b *builder) pendingWhere() string {
	parts := []string{b.q(b.cols.Key) + " IS NOT NULL"}
	if b.has(b.cols.Status) {
		s := b.q(b.cols.Status)
		parts = append(parts, fmt.Sprintf("(%s IS NULL OR UPPER(%s) NOT IN ('%s', '%s'))",
			s, s, model.StatusDone, model.StatusLocked))
	}
	var missing []string
	for _, f := range model.TargetFields {
		if b.has(b.cols.Field(f)) {
			missing = append(missing, b.missingExpr(f))
		}
	}
	if len(missing) == 0 {
		missing = []string{"1 = 0"}
	}
	parts = append(parts, "("+strings.Join(missing, " OR ")+")")
	return strings.Join(parts, " AND ")
}

func (b *builder) selectPending(q Query) (string, []any) {
	a := &args{d: b.d}
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s WHERE %s", b.selectList(), b.table, b.pendingWhere())
	switch {
	case q.After != "":
		fmt.Fprintf(&sb, " AND %s > %s ORDER BY %s ASC", b.keyExpr(), a.add(q.After), aliasKey)
	case b.has(b.cols.UpdatedAt):
		fmt.Fprintf(&sb, " ORDER BY %s ASC NULLS FIRST, %s ASC", b.q(b.cols.UpdatedAt), aliasKey)
	default:
		fmt.Fprintf(&sb, " ORDER BY %s ASC", aliasKey)
	}
	fmt.Fprintf(&sb, " LIMIT %s", a.add(int64(q.Limit)))
	return sb.String(), a.vals
}

func (b *builder) countPending() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", b.table, b.pendingWhere())
}

// coverage renders the per-field fill counts. The first result column is
// the row total, followed by one count per returned field.
func (b *builder) coverage() (string, []model.Field) {
	items := []string{"COUNT(*)"}
	var fields []model.Field
	for _, f := range model.TargetFields {
		col := b.cols.Field(f)
		if !b.has(col) {
			continue
		}
		if f.Kind() == model.KindText {
			items = append(items, fmt.Sprintf("COUNT(NULLIF(TRIM(%s), ''))", b.q(col)))
		} else {
			items = append(items, fmt.Sprintf("COUNT(%s)", b.q(col)))
		}
		fields = append(fields, f)
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(items, ", "), b.table), fields
}

// statusCounts returns "" when the table has no status column.
func (b *builder) statusCounts() string {
	if !b.has(b.cols.Status) {
		return ""
	}
	s := b.q(b.cols.Status)
	return fmt.Sprintf("SELECT COALESCE(UPPER(%s), '') AS status, COUNT(*) AS n FROM %s GROUP BY 1 ORDER BY 1", s, b.table)
}

// update renders the single UPDATE for a patch. Columns missing from the
// table are dropped; ok is false when nothing remains to write.
func (b *builder) update(p *model.Patch) (query string, vals []any, ok bool) {
	a := &args{d: b.d}
	var sets []string
	set := func(col string, v any) {
		if col == "" || !b.has(col) {
			return
		}
		sets = append(sets, fmt.Sprintf("%s = %s", b.q(col), a.add(v)))
	}

	for _, f := range model.TargetFields {
		v, found := p.Values[f]
		if !found || !b.has(b.cols.Field(f)) {
			continue
		}
		set(b.cols.Field(f), v)
		if src := p.Sources[f]; src != "" {
			set(b.cols.Source(f), src)
		}
	}
	if p.Status != "" {
		set(b.cols.Status, string(p.Status))
	}
	if !p.UpdatedAt.IsZero() {
		set(b.cols.UpdatedAt, b.d.timeArg(p.UpdatedAt))
	}
	if p.Segment != "" {
		set(b.cols.Segment, p.Segment)
	}
	// Notes describe the latest run and replace the previous ones, so a row
	// that keeps failing the same way keeps the same notes.
	if len(p.Notes) > 0 || p.Status != "" {
		set(b.cols.Notes, joinNotes(p.Notes))
	}
	if len(sets) == 0 {
		return "", nil, false
	}
	query = fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		b.table, strings.Join(sets, ", "), b.keyExpr(), a.add(p.Key))
	return query, a.vals, true
}

// maxNotesLen caps the notes column, in bytes.
const maxNotesLen = 1024

// joinNotes joins the distinct non-empty notes in order.
func joinNotes(notes []string) string {
	seen := make(map[string]bool, len(notes))
	var parts []string
	for _, n := range notes {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		parts = append(parts, n)
	}
	out := strings.Join(parts, " | ")
	if len(out) > maxNotesLen {
		out = strings.ToValidUTF8(out[:maxNotesLen], "")
	}
	return out
}

var identCleaner = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// createTable renders the DDL for a fresh venue table.
func (b *builder) createTable(rawTable string) string {
	var defs []string
	seen := make(map[string]bool)
	add := func(col, typ string) {
		if col == "" || seen[strings.ToLower(col)] {
			return
		}
		seen[strings.ToLower(col)] = true
		defs = append(defs, fmt.Sprintf("\t%s %s", b.q(col), typ))
	}

	add(b.cols.Key, b.d.text+" PRIMARY KEY")
	for _, col := range []string{b.cols.Name, b.cols.Website, b.cols.City, b.cols.Country, b.cols.Category, b.cols.Status} {
		add(col, b.d.text)
	}
	add(b.cols.UpdatedAt, b.d.timestamp)
	add(b.cols.Notes, b.d.text)
	add(b.cols.Segment, b.d.text)
	for _, f := range model.TargetFields {
		switch f.Kind() {
		case model.KindFloat:
			add(b.cols.Field(f), b.d.float)
		case model.KindInt:
			add(b.cols.Field(f), b.d.integer)
		default:
			add(b.cols.Field(f), b.d.text)
		}
		add(b.cols.Source(f), b.d.text)
	}

	idx := "idx_" + strings.Trim(identCleaner.ReplaceAllString(strings.ToLower(rawTable), "_"), "_") + "_status"
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n);\n\nCREATE INDEX IF NOT EXISTS %s ON %s (%s);\n",
		b.table, strings.Join(defs, ",\n"), idx, b.table, b.q(b.cols.Status))
}

// rowScanner is satisfied by pgx.Rows and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanVenue reads one row produced by selectList.
func scanVenue(r rowScanner) (*model.Venue, error) {
	var (
		key                                            string
		name, website, city, country, category, status *string
		updated                                        any
	)
	texts := make([]*string, len(model.TargetFields))
	nums := make([]*float64, len(model.TargetFields))

	dest := []any{&key, &name, &website, &city, &country, &category, &status, &updated}
	for i, f := range model.TargetFields {
		if f.Kind() == model.KindText {
			dest = append(dest, &texts[i])
		} else {
			dest = append(dest, &nums[i])
		}
	}
	if err := r.Scan(dest...); err != nil {
		return nil, err
	}

	v := &model.Venue{
		Key:       key,
		Name:      deref(name),
		Website:   deref(website),
		City:      deref(city),
		Country:   deref(country),
		Category:  deref(category),
		Status:    model.Status(strings.ToUpper(deref(status))),
		UpdatedAt: parseTime(updated),
	}
	for i, f := range model.TargetFields {
		setExisting(v, f, nums[i], texts[i])
	}
	return v, nil
}

// setExisting copies a stored value into the venue without validation, so
// that out-of-range legacy values still count as present.
func setExisting(v *model.Venue, f model.Field, num *float64, text *string) {
	switch f {
	case model.FieldAvgTicketPrice:
		v.AvgTicketPrice = num
	case model.FieldCapacity:
		if num != nil {
			c := int64(math.Round(*num))
			v.Capacity = &c
		}
	case model.FieldTicketVendor:
		if text != nil {
			s := strings.TrimSpace(*text)
			v.TicketVendor = &s
		}
	case model.FieldAnnualRevenue:
		v.AnnualRevenue = num
	case model.FieldTicketingRevenue:
		v.TicketingRevenue = num
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

var timeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime accepts driver-native times and the text forms SQLite returns.
func parseTime(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case *time.Time:
		return t
	case []byte:
		return parseTime(string(t))
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return &parsed
			}
		}
	}
	return nil
}
