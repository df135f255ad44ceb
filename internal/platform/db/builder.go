package db

import sq "github.com/Masterminds/squirrel"

// PSQL builds statements with $n placeholders.
var PSQL = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// ILikeAny matches keyword as a case-insensitive substring of any column.
func ILikeAny(keyword string, columns ...string) sq.Or {
	or := sq.Or{}
	pattern := "%" + keyword + "%"
	for _, col := range columns {
		or = append(or, sq.ILike{col: pattern})
	}
	return or
}
