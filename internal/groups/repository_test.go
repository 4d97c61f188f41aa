package groups

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "groups_name_key"}
	assert.True(t, isUniqueViolation(dup))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert group: %w", dup)), "wrapped driver errors must still match")

	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}), "foreign key violations are not conflicts")
	assert.False(t, isUniqueViolation(fmt.Errorf("connection reset")))
	assert.False(t, isUniqueViolation(nil))
}
