package permits

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMalformedIDMatchesInvalidTextRepresentation(t *testing.T) {
	assert.True(t, malformedID(fmt.Errorf("get permit: %w", &pgconn.PgError{Code: "22P02"})))
	assert.False(t, malformedID(&pgconn.PgError{Code: "23505"}))
	assert.False(t, malformedID(nil))
}
