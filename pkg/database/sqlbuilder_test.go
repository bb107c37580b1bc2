package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertBuilder_Conflicts(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *InsertBuilder) *InsertBuilder
		want  string
	}{
		{
			name:  "do nothing on columns",
			build: func(b *InsertBuilder) *InsertBuilder { return b.OnConflictDoNothing("source", "source_native_id") },
			want:  "INSERT INTO listings (id, source) VALUES ($1, $2) ON CONFLICT (source, source_native_id) DO NOTHING",
		},
		{
			name:  "do nothing on any",
			build: func(b *InsertBuilder) *InsertBuilder { return b.OnConflictDoNothing() },
			want:  "INSERT INTO listings (id, source) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		},
		{
			name:  "update",
			build: func(b *InsertBuilder) *InsertBuilder { return b.OnConflictUpdate([]string{"id"}, "source") },
			want:  "INSERT INTO listings (id, source) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET source = EXCLUDED.source",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewInsertBuilder("listings", "id", "source")
			b.Values("l-1", "glovo")
			query, args := tt.build(b).Build()
			assert.Equal(t, tt.want, query)
			assert.Equal(t, []interface{}{"l-1", "glovo"}, args)
		})
	}
}
