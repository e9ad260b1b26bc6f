package services

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/apperrors"
	"github.com/dataloom-io/loom-engine/pkg/models"
)

func starSchemaRelationships(projectID uuid.UUID) []models.Relationship {
	return []models.Relationship{
		{
			ID:          uuid.New(),
			ProjectID:   projectID,
			SourceTable: "sales", SourceColumn: "customer_id",
			TargetTable: "customers", TargetColumn: "customer_id",
			MatchRate: 1.0,
			Status:    models.RelationshipValid,
			Kind:      models.RelationshipOneToMany,
		},
		{
			ID:          uuid.New(),
			ProjectID:   projectID,
			SourceTable: "sales", SourceColumn: "product_id",
			TargetTable: "products", TargetColumn: "product_id",
			MatchRate: 1.0,
			Status:    models.RelationshipValid,
			Kind:      models.RelationshipOneToMany,
		},
	}
}

func TestGenerateStarSchemaView(t *testing.T) {
	g := NewViewGenerator(zap.NewNop())
	projectID := uuid.New()
	tables := starSchemaTables()

	views, err := g.Generate(projectID, starSchemaRelationships(projectID), tables)
	require.NoError(t, err)
	require.Len(t, views, 1)

	view := views[0]
	assert.Equal(t, "sales", view.FactTable)
	assert.ElementsMatch(t, []string{"customers", "products", "sales"}, view.Tables)
	assert.True(t, view.Active)
	assert.True(t, strings.HasPrefix(view.ViewName, "unified_view_"))

	assert.Equal(t, 2, strings.Count(view.ViewSQL, "LEFT JOIN"))
	assert.Contains(t, view.ViewSQL, `"sales".*`)
	// Dimension columns are prefixed; the dimension's join column is omitted
	// since the fact's foreign key already carries it.
	assert.Contains(t, view.ViewSQL, `"customers"."name" AS "customers_name"`)
	assert.Contains(t, view.ViewSQL, `"products"."title" AS "products_title"`)
	assert.NotContains(t, view.ViewSQL, `"customers_customer_id"`)
	assert.NotContains(t, view.ViewSQL, `"products_product_id"`)
	assert.Contains(t, view.ViewSQL, `ON "sales"."customer_id" = "customers"."customer_id"`)
	assert.Contains(t, view.ViewSQL, `ON "sales"."product_id" = "products"."product_id"`)
}

func TestGenerateRequiresUsableRelationships(t *testing.T) {
	g := NewViewGenerator(zap.NewNop())
	projectID := uuid.New()

	_, err := g.Generate(projectID, nil, starSchemaTables())
	assert.True(t, apperrors.HasTag(err, apperrors.TagNoRelationshipsFound))

	rels := starSchemaRelationships(projectID)
	for i := range rels {
		rels[i].Status = models.RelationshipInvalid
	}
	_, err = g.Generate(projectID, rels, starSchemaTables())
	assert.True(t, apperrors.HasTag(err, apperrors.TagNoRelationshipsFound))
}

func TestGenerateManualRelationshipsAreUsable(t *testing.T) {
	g := NewViewGenerator(zap.NewNop())
	projectID := uuid.New()

	rels := starSchemaRelationships(projectID)
	for i := range rels {
		rels[i].Status = models.RelationshipManual
	}

	views, err := g.Generate(projectID, rels, starSchemaTables())
	require.NoError(t, err)
	assert.Len(t, views, 1)
}

func TestGenerateRejectsDuplicateJoinColumn(t *testing.T) {
	g := NewViewGenerator(zap.NewNop())
	projectID := uuid.New()

	rels := starSchemaRelationships(projectID)
	// Same fact column referencing two targets.
	rels[1].SourceColumn = "customer_id"

	_, err := g.Generate(projectID, rels, starSchemaTables())
	assert.True(t, apperrors.HasTag(err, apperrors.TagConfigError))
}

func TestGenerateOneViewPerComponent(t *testing.T) {
	g := NewViewGenerator(zap.NewNop())
	projectID := uuid.New()

	tables := starSchemaTables()
	tables = append(tables,
		tableOf("shipments", []string{"shipment_id", "carrier_id"},
			map[string]models.Value{"shipment_id": models.String("S1"), "carrier_id": models.String("K1")}),
		tableOf("carriers", []string{"carrier_id", "label"},
			map[string]models.Value{"carrier_id": models.String("K1"), "label": models.String("acme")}),
	)

	rels := append(starSchemaRelationships(projectID), models.Relationship{
		ID:          uuid.New(),
		ProjectID:   projectID,
		SourceTable: "shipments", SourceColumn: "carrier_id",
		TargetTable: "carriers", TargetColumn: "carrier_id",
		MatchRate: 1.0,
		Status:    models.RelationshipValid,
		Kind:      models.RelationshipOneToMany,
	})

	views, err := g.Generate(projectID, rels, tables)
	require.NoError(t, err)
	require.Len(t, views, 2)

	facts := map[string]bool{}
	names := map[string]bool{}
	for _, v := range views {
		facts[v.FactTable] = true
		names[v.ViewName] = true
	}
	assert.True(t, facts["sales"])
	assert.True(t, facts["shipments"])
	// View names stay distinct within one generation call.
	assert.Len(t, names, 2)
}

func TestGenerateMissingTableFails(t *testing.T) {
	g := NewViewGenerator(zap.NewNop())
	projectID := uuid.New()

	tables := starSchemaTables()[:2] // sales missing
	_, err := g.Generate(projectID, starSchemaRelationships(projectID), tables)
	require.Error(t, err)
	assert.True(t, apperrors.HasTag(err, apperrors.TagPreconditionFailed))
}

func TestChooseFactTablePrefersMostForeignKeys(t *testing.T) {
	tables := starSchemaTables()
	byName := map[string]*TableData{}
	for i := range tables {
		byName[tables[i].Name] = &tables[i]
	}

	fact := chooseFactTable(
		[]string{"customers", "products", "sales"},
		starSchemaRelationships(uuid.New()),
		byName)
	assert.Equal(t, "sales", fact)
}

func TestChooseFactTableTieBreaksByRowCount(t *testing.T) {
	big := tableOf("big", []string{"k"},
		map[string]models.Value{"k": models.String("1")},
		map[string]models.Value{"k": models.String("2")})
	small := tableOf("small", []string{"k"},
		map[string]models.Value{"k": models.String("1")})
	byName := map[string]*TableData{"big": &big, "small": &small}

	fact := chooseFactTable([]string{"small", "big"}, nil, byName)
	assert.Equal(t, "big", fact)
}

func TestTableGraphComponents(t *testing.T) {
	g := NewTableGraph()
	g.AddEdge("sales", "customers")
	g.AddEdge("sales", "products")
	g.AddEdge("shipments", "carriers")
	g.AddNode("orphan")

	components := g.ConnectedComponents()
	require.Len(t, components, 3)
	assert.Equal(t, [][]string{
		{"carriers", "shipments"},
		{"customers", "products", "sales"},
		{"orphan"},
	}, components)
}

func TestBuildViewSQLSkipsCycleEdges(t *testing.T) {
	// a->b, b->c, a->c forms a cycle; the second path into c is skipped so c
	// joins exactly once.
	a := tableOf("a", []string{"b_id", "c_id", "x"},
		map[string]models.Value{"b_id": models.String("1"), "c_id": models.String("1"), "x": models.String("v")})
	b := tableOf("b", []string{"b_id", "c_id"},
		map[string]models.Value{"b_id": models.String("1"), "c_id": models.String("1")})
	c := tableOf("c", []string{"c_id", "y"},
		map[string]models.Value{"c_id": models.String("1"), "y": models.String("w")})
	byName := map[string]*TableData{"a": &a, "b": &b, "c": &c}

	rels := []models.Relationship{
		{SourceTable: "a", SourceColumn: "b_id", TargetTable: "b", TargetColumn: "b_id", Status: models.RelationshipValid},
		{SourceTable: "a", SourceColumn: "c_id", TargetTable: "c", TargetColumn: "c_id", Status: models.RelationshipValid},
		{SourceTable: "b", SourceColumn: "c_id", TargetTable: "c", TargetColumn: "c_id", Status: models.RelationshipValid},
	}

	viewSQL, err := buildViewSQL("unified_view_1", "a", rels, byName)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(viewSQL, "LEFT JOIN"))
	assert.Equal(t, 1, strings.Count(viewSQL, `LEFT JOIN "c"`))
}

func TestGenerateViewCreatedAtIsSet(t *testing.T) {
	g := NewViewGenerator(zap.NewNop())
	projectID := uuid.New()

	before := time.Now()
	views, err := g.Generate(projectID, starSchemaRelationships(projectID), starSchemaTables())
	require.NoError(t, err)
	assert.False(t, views[0].CreatedAt.Before(before.Add(-time.Second)))
}
