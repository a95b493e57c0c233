package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gymbill/internal/core/entity"
	"gymbill/internal/core/id"
)

type mockDocument struct {
	entity.BaseDocument
	Number string `db:"number" json:"number"`
	Status string `db:"status" json:"status"`
	Skip   string `db:"-" json:"skip"`
}

func TestExtractDBColumns_EmbeddedFields(t *testing.T) {
	cols := ExtractDBColumns[mockDocument]()

	expectedCols := []string{
		"id", "deletion_mark", "version", "created_at", "updated_at",
		"created_by", "updated_by", "number", "status",
	}

	for _, expected := range expectedCols {
		assert.Contains(t, cols, expected)
	}
	assert.NotContains(t, cols, "-")
}

func TestStructToMap_EmbeddedFields(t *testing.T) {
	now := time.Now().UTC()
	doc := mockDocument{
		BaseDocument: entity.BaseDocument{
			BaseEntity: entity.BaseEntity{
				ID:           id.New(),
				DeletionMark: true,
				Version:      5,
			},
			CreatedAt: now,
			UpdatedAt: now,
			CreatedBy: "someone",
		},
		Number: "INV-2025-00001",
		Status: "DRAFT",
		Skip:   "should not appear",
	}

	m := StructToMap(doc)

	assert.Equal(t, doc.ID, m["id"])
	assert.Equal(t, true, m["deletion_mark"])
	assert.Equal(t, 5, m["version"])
	assert.Equal(t, now, m["created_at"])
	assert.Equal(t, "someone", m["created_by"])
	assert.Equal(t, "INV-2025-00001", m["number"])
	assert.Equal(t, "DRAFT", m["status"])
	assert.NotContains(t, m, "-")
	assert.NotContains(t, m, "skip")
}

func TestStructToMap_Pointer(t *testing.T) {
	doc := &mockDocument{Number: "INV-2025-00002"}
	m := StructToMap(doc)
	assert.Equal(t, "INV-2025-00002", m["number"])
}
