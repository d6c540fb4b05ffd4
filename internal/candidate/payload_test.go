package candidate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromPayload(t *testing.T) {
	t.Run("full record", func(t *testing.T) {
		p, err := FromPayload("c-1", map[string]any{
			KeyCategory:          "Backend",
			KeyName:              "  Ada Lovelace ",
			KeyEmail:             "ada@example.com",
			KeyCurrentJobTitle:   "Backend Engineer",
			KeySkills:            []any{"Go", " Kubernetes ", ""},
			KeyCompanies:         []any{map[string]any{"company": "Acme", "duration": "2 years"}},
			KeyHasPhoto:          true,
			KeyIsMaster:          true,
			KeyDuplicateGroupID:  "g-7",
			KeyDuplicateCount:    int64(3),
			KeyAssociatedIDs:     []any{"c-2", "c-3"},
			KeyOriginalFilename:  "ada.pdf",
			KeyExperienceSummary: "Ten years of distributed systems",
		})
		require.NoError(t, err)

		assert.Equal(t, "c-1", p.ID)
		assert.Equal(t, "Backend", p.Category)
		assert.Equal(t, "Ada Lovelace", p.Name)
		assert.Equal(t, []string{"Go", "Kubernetes"}, p.Skills)
		assert.Equal(t, []string{"company: Acme, duration: 2 years"}, p.Companies)
		assert.True(t, p.HasPhoto)
		assert.Equal(t, DuplicateGroup{
			GroupID:       "g-7",
			IsMaster:      true,
			Count:         3,
			AssociatedIDs: []string{"c-2", "c-3"},
		}, p.Duplicate)
	})

	t.Run("absent fields are empty", func(t *testing.T) {
		p, err := FromPayload("c-2", map[string]any{KeyName: nil})
		require.NoError(t, err)
		assert.Empty(t, p.Name)
		assert.Nil(t, p.Skills)
		assert.False(t, p.Duplicate.IsMaster)
	})

	t.Run("comma separated skills", func(t *testing.T) {
		p, err := FromPayload("c-3", map[string]any{KeySkills: "Go, SQL ,,Rust"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Go", "SQL", "Rust"}, p.Skills)
	})

	t.Run("nested personal details fill gaps", func(t *testing.T) {
		p, err := FromPayload("c-4", map[string]any{
			KeyEmail: "top@example.com",
			KeyPersonalDetails: map[string]any{
				"name":  "Grace",
				"email": "nested@example.com",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "Grace", p.Name)
		assert.Equal(t, "top@example.com", p.Email)
	})

	t.Run("wrong shape is malformed", func(t *testing.T) {
		_, err := FromPayload("c-5", map[string]any{KeyName: map[string]any{"first": "x"}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformed))
	})

	t.Run("nil payload is malformed", func(t *testing.T) {
		_, err := FromPayload("c-6", nil)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("empty id is malformed", func(t *testing.T) {
		_, err := FromPayload("", map[string]any{})
		assert.ErrorIs(t, err, ErrMalformed)
	})
}
