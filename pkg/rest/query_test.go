package rest

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlrest/sqlrest/pkg/mssql/catalog"
)

func employeesObject() catalog.Object {
	return catalog.Object{
		Schema: "dbo",
		Name:   "Employees",
		Kind:   catalog.KindTable,
		Columns: []catalog.Column{
			{Name: "Id", DataType: "int"},
			{Name: "Name", DataType: "nvarchar", MaxLength: 100},
			{Name: "Active", DataType: "bit"},
		},
		PrimaryKey:     []string{"Id"},
		IdentityColumn: "Id",
	}
}

func auditLogObject() catalog.Object {
	return catalog.Object{
		Schema: "dbo",
		Name:   "AuditLog",
		Kind:   catalog.KindTable,
		Columns: []catalog.Column{
			{Name: "Event", DataType: "nvarchar", MaxLength: 200},
			{Name: "LoggedAt", DataType: "datetime2"},
		},
		HasEnabledTrigger: true,
	}
}

func codesObject() catalog.Object {
	return catalog.Object{
		Schema: "dbo",
		Name:   "Codes",
		Kind:   catalog.KindTable,
		Columns: []catalog.Column{
			{Name: "Code", DataType: "nvarchar", MaxLength: 10},
			{Name: "Label", DataType: "nvarchar", MaxLength: 50},
		},
		PrimaryKey:        []string{"Code"},
		HasEnabledTrigger: true,
	}
}

func TestBuildListQuery(t *testing.T) {
	obj := employeesObject()

	t.Run("no params emits order by only", func(t *testing.T) {
		query, args, err := buildListQuery(&obj, ListParams{Limit: unboundedLimit})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM [dbo].[Employees] ORDER BY [Id] ASC", query)
		assert.Empty(t, args)
	})

	t.Run("equality filters over known columns", func(t *testing.T) {
		query, args, err := buildListQuery(&obj, ListParams{
			Filters: map[string]string{"Name": "Ann", "Active": "true"},
			Limit:   unboundedLimit,
		})
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT * FROM [dbo].[Employees] WHERE [Name] = @p1 AND [Active] = @p2 ORDER BY [Id] ASC",
			query)
		assert.Equal(t, []any{"Ann", true}, args)
	})

	t.Run("unknown filter column is silently dropped", func(t *testing.T) {
		query, args, err := buildListQuery(&obj, ListParams{
			Filters: map[string]string{"Nope": "x"},
			Limit:   unboundedLimit,
		})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM [dbo].[Employees] ORDER BY [Id] ASC", query)
		assert.Empty(t, args)
	})

	t.Run("filter value binds through the column type", func(t *testing.T) {
		query, args, err := buildListQuery(&obj, ListParams{
			Filters: map[string]string{"Id": "7"},
			Limit:   unboundedLimit,
		})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM [dbo].[Employees] WHERE [Id] = @p1 ORDER BY [Id] ASC", query)
		assert.Equal(t, []any{int64(7)}, args)
	})

	t.Run("unbindable filter value errors", func(t *testing.T) {
		_, _, err := buildListQuery(&obj, ListParams{
			Filters: map[string]string{"Id": "seven"},
			Limit:   unboundedLimit,
		})
		assert.Error(t, err)
	})

	t.Run("explicit sort column and direction", func(t *testing.T) {
		query, _, err := buildListQuery(&obj, ListParams{
			OrderBy: "Name", OrderDesc: true, Limit: unboundedLimit,
		})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM [dbo].[Employees] ORDER BY [Name] DESC", query)
	})

	t.Run("unknown sort column falls back to the key", func(t *testing.T) {
		query, _, err := buildListQuery(&obj, ListParams{
			OrderBy: "Nope", OrderDesc: true, Limit: unboundedLimit,
		})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM [dbo].[Employees] ORDER BY [Id] ASC", query)
	})

	t.Run("keyless object orders by first column", func(t *testing.T) {
		keyless := auditLogObject()
		query, _, err := buildListQuery(&keyless, ListParams{Limit: unboundedLimit})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM [dbo].[AuditLog] ORDER BY [Event] ASC", query)
	})

	t.Run("pagination clause only when requested", func(t *testing.T) {
		query, args, err := buildListQuery(&obj, ListParams{Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT * FROM [dbo].[Employees] ORDER BY [Id] ASC OFFSET @p1 ROWS FETCH NEXT @p2 ROWS ONLY",
			query)
		assert.Equal(t, []any{1, 2}, args)
	})

	t.Run("offset without limit omits fetch", func(t *testing.T) {
		query, args, err := buildListQuery(&obj, ListParams{Limit: unboundedLimit, Offset: 3})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM [dbo].[Employees] ORDER BY [Id] ASC OFFSET @p1 ROWS", query)
		assert.Equal(t, []any{3}, args)
	})

	t.Run("limit zero never renders a fetch clause", func(t *testing.T) {
		// FETCH NEXT 0 ROWS ONLY is rejected by the server at runtime.
		query, args, err := buildListQuery(&obj, ListParams{Limit: 0, Offset: 0})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM [dbo].[Employees] ORDER BY [Id] ASC", query)
		assert.Empty(t, args)

		query, args, err = buildListQuery(&obj, ListParams{Limit: 0, Offset: 3})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM [dbo].[Employees] ORDER BY [Id] ASC OFFSET @p1 ROWS", query)
		assert.Equal(t, []any{3}, args)
		assert.NotContains(t, query, "FETCH")
	})
}

func TestBuildGetQuery(t *testing.T) {
	obj := employeesObject()

	query, args, err := buildGetQuery(&obj, "7")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM [dbo].[Employees] WHERE [Id] = @p1", query)
	assert.Equal(t, []any{int64(7)}, args)

	_, _, err = buildGetQuery(&obj, "seven")
	assert.Error(t, err)

	keyless := auditLogObject()
	_, _, err = buildGetQuery(&keyless, "7")
	assert.Error(t, err)
}

func TestBuildInsertQuery(t *testing.T) {
	t.Run("direct uses an output clause", func(t *testing.T) {
		obj := employeesObject()
		query, args, err := buildInsertQuery(&obj, map[string]any{"Name": "Ann", "Active": true}, StrategyDirect)
		require.NoError(t, err)
		assert.Equal(t,
			"INSERT INTO [dbo].[Employees] ([Name], [Active]) OUTPUT INSERTED.* VALUES (@p1, @p2)",
			query)
		assert.Equal(t, []any{"Ann", true}, args)
	})

	t.Run("identity column is never written", func(t *testing.T) {
		obj := employeesObject()
		query, args, err := buildInsertQuery(&obj, map[string]any{"Id": 99, "Name": "Ann"}, StrategyDirect)
		require.NoError(t, err)
		assert.Equal(t, "INSERT INTO [dbo].[Employees] ([Name]) OUTPUT INSERTED.* VALUES (@p1)", query)
		assert.Equal(t, []any{"Ann"}, args)
	})

	t.Run("identity reselect batches a scope identity select", func(t *testing.T) {
		obj := employeesObject()
		obj.HasEnabledTrigger = true
		query, args, err := buildInsertQuery(&obj, map[string]any{"Name": "Ann", "Active": true}, StrategyIdentityReselect)
		require.NoError(t, err)
		assert.Equal(t,
			"INSERT INTO [dbo].[Employees] ([Name], [Active]) VALUES (@p1, @p2); "+
				"SELECT * FROM [dbo].[Employees] WHERE [Id] = SCOPE_IDENTITY();",
			query)
		assert.Equal(t, []any{"Ann", true}, args)
		assert.NotContains(t, query, "OUTPUT")
	})

	t.Run("staging upgrades to key reselect when payload carries the key", func(t *testing.T) {
		obj := codesObject()
		query, args, err := buildInsertQuery(&obj, map[string]any{"Code": "A1", "Label": "alpha"}, StrategyStaging)
		require.NoError(t, err)
		assert.Equal(t,
			"INSERT INTO [dbo].[Codes] ([Code], [Label]) VALUES (@p1, @p2); "+
				"SELECT * FROM [dbo].[Codes] WHERE [Code] = @p3;",
			query)
		assert.Equal(t, []any{"A1", "alpha", "A1"}, args)
	})

	t.Run("staging fallback captures the row in a holder", func(t *testing.T) {
		obj := auditLogObject()
		query, args, err := buildInsertQuery(&obj, map[string]any{"Event": "login"}, StrategyStaging)
		require.NoError(t, err)
		assert.Regexp(t,
			regexp.MustCompile(`^CREATE TABLE #sqlrest_ins_[0-9a-f]{32} \(\[Event\] nvarchar\(200\) NULL, \[LoggedAt\] datetime2 NULL\); `+
				`INSERT INTO \[dbo\]\.\[AuditLog\] \(\[Event\]\) OUTPUT INSERTED\.\* INTO #sqlrest_ins_[0-9a-f]{32} VALUES \(@p1\); `+
				`SELECT \* FROM #sqlrest_ins_[0-9a-f]{32}; DROP TABLE #sqlrest_ins_[0-9a-f]{32};$`),
			query)
		assert.Equal(t, []any{"login"}, args)
	})

	t.Run("staging holders are unique per execution", func(t *testing.T) {
		obj := auditLogObject()
		q1, _, err := buildInsertQuery(&obj, map[string]any{"Event": "a"}, StrategyStaging)
		require.NoError(t, err)
		q2, _, err := buildInsertQuery(&obj, map[string]any{"Event": "a"}, StrategyStaging)
		require.NoError(t, err)
		assert.NotEqual(t, q1, q2)
	})

	t.Run("payload without known columns errors", func(t *testing.T) {
		obj := employeesObject()
		_, _, err := buildInsertQuery(&obj, map[string]any{"Bogus": 1}, StrategyDirect)
		assert.Error(t, err)
	})
}

func TestBuildUpdateQuery(t *testing.T) {
	t.Run("direct updates with an output clause", func(t *testing.T) {
		obj := employeesObject()
		query, args, err := buildUpdateQuery(&obj, "7", map[string]any{"Name": "Bea", "Active": false}, StrategyDirect)
		require.NoError(t, err)
		assert.Equal(t,
			"UPDATE [dbo].[Employees] SET [Name] = @p1, [Active] = @p2 OUTPUT INSERTED.* WHERE [Id] = @p3",
			query)
		assert.Equal(t, []any{"Bea", false, int64(7)}, args)
	})

	t.Run("key and identity columns stay out of the set list", func(t *testing.T) {
		obj := employeesObject()
		query, args, err := buildUpdateQuery(&obj, "7", map[string]any{"Id": 8, "Name": "Bea"}, StrategyDirect)
		require.NoError(t, err)
		assert.Equal(t,
			"UPDATE [dbo].[Employees] SET [Name] = @p1 OUTPUT INSERTED.* WHERE [Id] = @p2",
			query)
		assert.Equal(t, []any{"Bea", int64(7)}, args)
	})

	t.Run("trigger tables write then reselect by the addressed key", func(t *testing.T) {
		obj := codesObject()
		query, args, err := buildUpdateQuery(&obj, "A1", map[string]any{"Label": "beta"}, StrategyKeyReselect)
		require.NoError(t, err)
		assert.Equal(t,
			"UPDATE [dbo].[Codes] SET [Label] = @p1 WHERE [Code] = @p2; "+
				"SELECT * FROM [dbo].[Codes] WHERE [Code] = @p3;",
			query)
		assert.Equal(t, []any{"beta", "A1", "A1"}, args)
		assert.NotContains(t, query, "OUTPUT")
	})

	t.Run("zero updatable fields is rejected before synthesis", func(t *testing.T) {
		obj := employeesObject()
		_, _, err := buildUpdateQuery(&obj, "7", map[string]any{}, StrategyDirect)
		assert.Error(t, err)

		_, _, err = buildUpdateQuery(&obj, "7", map[string]any{"Id": 8}, StrategyDirect)
		assert.Error(t, err)
	})
}

func TestBuildDeleteQuery(t *testing.T) {
	t.Run("direct deletes with an output clause", func(t *testing.T) {
		obj := employeesObject()
		query, args, err := buildDeleteQuery(&obj, "7", StrategyDirect)
		require.NoError(t, err)
		assert.Equal(t, "DELETE FROM [dbo].[Employees] OUTPUT DELETED.* WHERE [Id] = @p1", query)
		assert.Equal(t, []any{int64(7)}, args)
	})

	t.Run("trigger tables stage the deleted row", func(t *testing.T) {
		obj := codesObject()
		query, args, err := buildDeleteQuery(&obj, "A1", StrategyStaging)
		require.NoError(t, err)
		assert.Regexp(t,
			regexp.MustCompile(`^CREATE TABLE #sqlrest_del_[0-9a-f]{32} .*DELETE FROM \[dbo\]\.\[Codes\] OUTPUT DELETED\.\* INTO #sqlrest_del_[0-9a-f]{32} WHERE \[Code\] = @p1; SELECT \* FROM #sqlrest_del_[0-9a-f]{32}; DROP TABLE #sqlrest_del_[0-9a-f]{32};$`),
			query)
		assert.Equal(t, []any{"A1"}, args)
	})
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, "[Name]", quoteIdent("Name"))
	assert.Equal(t, "[we]]ird]", quoteIdent("we]ird"))
}
