package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
	"github.com/wyfcoding/fundreporting/internal/reporting/infrastructure/memory"
)

const sample = `
projects:
  - id: 1
    organization_id: 10
    name: Bridge
  - id: 2
    organization_id: 10
    name: Tunnel
    status: SUSPENDED
lines:
  - id: 100
    organization_id: 10
    project_id: 1
    department_id: 3
    sub_project_id: 4
    fund_type_id: 2
    name: steel
    active: true
  - id: 101
    organization_id: 10
    project_id: 2
    active: true
`

func TestParseAndLoad(t *testing.T) {
	c, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, c.Projects, 2)
	assert.Equal(t, domain.ProjectActive, c.Projects[0].Status)
	assert.Equal(t, domain.ProjectSuspended, c.Projects[1].Status)

	store := memory.NewStore()
	ctx := context.Background()
	projects, lines, err := Load(ctx, store, store.Catalog(), c)
	require.NoError(t, err)
	assert.Equal(t, 2, projects)
	assert.Equal(t, 2, lines)

	org := uint64(10)
	loaded, err := store.Catalog().ListLines(ctx, &org)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.True(t, loaded[0].Countable())
	assert.False(t, loaded[1].Countable())
	assert.Equal(t, "steel", loaded[0].Line.Name)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown field", "projects:\n  - id: 1\n    colour: red\n"},
		{"missing project id", "projects:\n  - name: x\n"},
		{"duplicate line", "lines:\n  - {id: 1, organization_id: 1, project_id: 1}\n  - {id: 1, organization_id: 1, project_id: 1}\n"},
		{"line without project", "lines:\n  - {id: 1, organization_id: 1}\n"},
		{"bad status", "projects:\n  - {id: 1, status: PAUSED}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	c, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, c.Lines)
}
