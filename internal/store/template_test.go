package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/keyquest/wa-gateway/internal/apperr"
	"github.com/keyquest/wa-gateway/internal/models"
)

func TestTemplateCreateAssignsID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := NewWithDB(db)

	mock.ExpectExec("INSERT INTO message_templates").WillReturnResult(sqlmock.NewResult(1, 1))

	tpl := &models.Template{Name: "Greeting", Category: "outreach", Content: "Hi {{name}}"}
	err = st.Templates.Create(context.Background(), tpl)
	require.NoError(t, err)
	require.NotEmpty(t, tpl.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := NewWithDB(db)

	mock.ExpectQuery("SELECT (.+) FROM message_templates WHERE id").
		WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err = st.Templates.Get(context.Background(), "missing")
	require.ErrorAs(t, err, &apperr.NotFound{})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateListFiltersByCategory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := NewWithDB(db)

	rows := sqlmock.NewRows([]string{"id", "name", "category", "content", "image_url"}).
		AddRow("t1", "Greeting", "outreach", "Hi {{name}}", nil)
	mock.ExpectQuery("SELECT (.+) FROM message_templates WHERE category").
		WithArgs("outreach").WillReturnRows(rows)

	out, err := st.Templates.List(context.Background(), "outreach")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "Greeting", out[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateVariablesExtractsPlaceholdersOnce(t *testing.T) {
	tpl := models.Template{Content: "Hi {{name}}, your {{bank}} rate for {{name}} is ready"}
	require.Equal(t, []string{"name", "bank"}, tpl.Variables())
}

func TestTemplateRenderSubstitutesKnownLeavesUnknown(t *testing.T) {
	tpl := models.Template{Content: "Hi {{name}}, {{missing}}"}
	out := tpl.Render(map[string]string{"name": "Alice"})
	require.Equal(t, "Hi Alice, {{missing}}", out)
}
