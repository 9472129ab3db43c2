package epgsql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommandTag(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		tag      string
		verb     string
		count    int64
		hasCount bool
	}{
		"select":       {"SELECT 5", "SELECT", 5, true},
		"insert":       {"INSERT 0 5", "INSERT", 5, true},
		"update":       {"UPDATE 3", "UPDATE", 3, true},
		"delete none":  {"DELETE 0", "DELETE", 0, true},
		"create table": {"CREATE TABLE", "CREATE TABLE", 0, false},
		"begin":        {"BEGIN", "BEGIN", 0, false},
		"listen":       {"LISTEN", "LISTEN", 0, false},
	}

	for name, test := range tests {
		test := test
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			verb, count, hasCount := parseCommandTag(test.tag)
			assert.Equal(t, test.verb, verb)
			assert.Equal(t, test.count, count)
			assert.Equal(t, test.hasCount, hasCount)
		})
	}
}
