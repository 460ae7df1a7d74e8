package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keyquest/wa-gateway/internal/clock"
	"github.com/keyquest/wa-gateway/internal/models"
	"github.com/keyquest/wa-gateway/internal/sendqueue"
	"github.com/keyquest/wa-gateway/internal/store"
	"github.com/keyquest/wa-gateway/pkg/whatsapp"
)

type fakeBus struct {
	published []string
}

func (f *fakeBus) Publish(kind string, payload map[string]any) {
	f.published = append(f.published, kind)
}

func newTestEngine(t *testing.T) (*Engine, sqlmock.Sqlmock, *fakeBus) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := store.NewWithDB(db)
	clk := clock.NewFake(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	sendq := sendqueue.New(func() whatsapp.Client { return nil }, nil, clk, zap.NewNop())
	bus := &fakeBus{}
	return New(st, sendq, clk, zap.NewNop(), bus), mock, bus
}

func TestDispatchUnregisteredKindIsNoOp(t *testing.T) {
	e, mock, _ := newTestEngine(t)
	err := e.Dispatch(context.Background(), models.Classification{Kind: models.KindIgnored})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchInvokesRegisteredHandlerAndRecordsExecution(t *testing.T) {
	e, mock, _ := newTestEngine(t)

	mock.ExpectExec("INSERT INTO workflow_executions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE workflow_executions SET status").WillReturnResult(sqlmock.NewResult(1, 1))

	called := false
	e.Register("valuation_request", func(hc HandlerContext, c models.Classification) error {
		called = true
		require.Equal(t, "wamid.1", c.Message.WAMessageID)
		return nil
	})

	err := e.Dispatch(context.Background(), models.Classification{
		Kind:    models.KindValuationRequest,
		Message: models.Message{WAMessageID: "wamid.1", ChatID: "1-2@g.us"},
	})
	require.NoError(t, err)
	require.True(t, called)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchRecordsFailedExecutionButDoesNotPropagatePastLogging(t *testing.T) {
	e, mock, _ := newTestEngine(t)

	mock.ExpectExec("INSERT INTO workflow_executions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE workflow_executions SET status").WillReturnResult(sqlmock.NewResult(1, 1))

	wantErr := fmt.Errorf("boom")
	e.Register("valuation_request", func(hc HandlerContext, c models.Classification) error {
		return wantErr
	})

	err := e.Dispatch(context.Background(), models.Classification{Kind: models.KindValuationRequest})
	require.ErrorIs(t, err, wantErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateUpdateHandlerIsIdempotentWithinWindow(t *testing.T) {
	e, mock, bus := newTestEngine(t)
	mock.ExpectExec("INSERT INTO workflow_executions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE workflow_executions SET status").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO workflow_executions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE workflow_executions SET status").WillReturnResult(sqlmock.NewResult(1, 1))

	e.Register("interest_rate", RateUpdateHandler("interest_rate"))
	c := models.Classification{Kind: models.KindInterestRate, Message: models.Message{WAMessageID: "wamid.dup"}}

	require.NoError(t, e.Dispatch(context.Background(), c))
	require.NoError(t, e.Dispatch(context.Background(), c))

	require.Len(t, bus.published, 1, "second dispatch within the idempotency window should not re-publish")
	require.NoError(t, mock.ExpectationsWereMet())
}
