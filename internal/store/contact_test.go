package store

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/keyquest/wa-gateway/internal/apperr"
	"github.com/keyquest/wa-gateway/internal/models"
)

func TestAddContactNormalizesAndRejectsEmptyPhone(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := NewWithDB(db)

	c := &models.Contact{ListID: "list-1", Name: "Alice", Phone: ""}
	err = st.ContactLists.AddContact(context.Background(), c)
	require.ErrorAs(t, err, &apperr.Validation{})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddContactNormalizesSingaporePrefix(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := NewWithDB(db)

	mock.ExpectExec("INSERT INTO broadcast_contacts").WillReturnResult(sqlmock.NewResult(1, 1))

	c := &models.Contact{ListID: "list-1", Name: "Alice", Phone: "9123 4567"}
	err = st.ContactLists.AddContact(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, "6591234567", c.Phone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportCSVDropsShortRowsAndEmptyPhones(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := NewWithDB(db)

	mock.ExpectExec("INSERT INTO broadcast_contacts").WillReturnResult(sqlmock.NewResult(1, 1))

	csv := "Alice,91234567\nNoPhoneRow\nBob,\n"
	n, err := st.ContactLists.ImportCSV(context.Background(), "list-1", strings.NewReader(csv))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalizePhoneIsIdempotent(t *testing.T) {
	once := models.NormalizePhone("+65 9123-4567")
	twice := models.NormalizePhone(once)
	require.Equal(t, once, twice)
	require.Equal(t, "6591234567", once)
}

func TestWhatsAppIDAppendsSuffix(t *testing.T) {
	require.Equal(t, "6591234567@c.us", models.WhatsAppID("6591234567"))
}
