package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthService_Check(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		indexErr   error
		wantStatus string
		wantDB     string
		wantIndex  string
	}{
		{name: "all up", wantStatus: StatusHealthy, wantDB: StatusHealthy, wantIndex: StatusHealthy},
		{name: "index down", indexErr: errors.New("unavailable"), wantStatus: StatusDegraded, wantDB: StatusHealthy, wantIndex: StatusUnhealthy},
		{name: "database down", pingErr: errors.New("refused"), wantStatus: StatusUnhealthy, wantDB: StatusUnhealthy, wantIndex: StatusHealthy},
		{name: "both down", pingErr: errors.New("refused"), indexErr: errors.New("unavailable"), wantStatus: StatusUnhealthy, wantDB: StatusUnhealthy, wantIndex: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newSQLMockDB(t)
			defer db.Close()

			ping := mock.ExpectPing()
			if tt.pingErr != nil {
				ping.WillReturnError(tt.pingErr)
			}

			idx := newFakeIndex()
			idx.searchErr = tt.indexErr

			report := NewHealthService(db, idx, time.Second).Check(context.Background())

			assert.Equal(t, tt.wantStatus, report.Status)
			assert.Equal(t, tt.wantDB, report.Services["database"])
			assert.Equal(t, tt.wantIndex, report.Services["vector_index"])
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
