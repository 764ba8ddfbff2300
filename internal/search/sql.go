package search

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Query is a parameterised PostgreSQL statement.
type Query struct {
	SQL  string
	Args []any
}

type builder struct {
	conds []string
	args  []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// BuildSQL renders the search over the photos table aliased as p. columns is the select list.
// The owner predicate is always present.
func BuildSQL(columns string, ownerID uuid.UUID, f Filter, page Page) Query {
	f = f.Normalize()
	page = page.Normalize()

	b := &builder{}
	b.conds = append(b.conds, "p.user_id = "+b.arg(ownerID))

	if len(f.Tags) > 0 {
		b.conds = append(b.conds, `EXISTS (
    SELECT 1 FROM photo_tags pt
    JOIN tags t ON t.id = pt.tag_id
    WHERE pt.photo_id = p.id AND t.name = ANY(`+b.arg(f.Tags)+`))`)
	}
	if f.AlbumID != nil {
		b.conds = append(b.conds, `EXISTS (
    SELECT 1 FROM photo_albums pa
    WHERE pa.photo_id = p.id AND pa.album_id = `+b.arg(*f.AlbumID)+`)`)
	}
	if f.From != nil {
		b.conds = append(b.conds, "p.upload_date >= "+b.arg(*f.From))
	}
	if f.To != nil {
		b.conds = append(b.conds, "p.upload_date <= "+b.arg(*f.To))
	}
	if f.FilenameSubstring != "" {
		b.conds = append(b.conds, "p.filename ILIKE "+b.arg("%"+escapeLike(f.FilenameSubstring)+"%")+` ESCAPE '\'`)
	}

	sql := fmt.Sprintf(`
SELECT %s
FROM photos p
WHERE %s
ORDER BY p.upload_date DESC, p.id ASC
OFFSET %s LIMIT %s;`, columns, strings.Join(b.conds, "\n  AND "), b.arg(page.Skip), b.arg(page.Limit))

	return Query{SQL: sql, Args: b.args}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
