package permissions

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "group_permissions_tuple_key"}
	assert.True(t, isUniqueViolation(dup))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert grant: %w", dup)), "wrapped driver errors must still match")

	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "40001"}), "serialization failures are not conflicts")
	assert.False(t, isUniqueViolation(fmt.Errorf("connection reset")))
	assert.False(t, isUniqueViolation(nil))
}
