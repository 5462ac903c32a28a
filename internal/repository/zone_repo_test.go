// zone_repo_test.go
package repository

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	hc "heating_controller/internal/models"
)

func newMockZoneRepo(t *testing.T) (*ZoneSQLite, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	repo := NewZoneSQLite(db)
	cleanup := func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet sqlmock expectations: %v", err)
		}
		_ = db.Close()
	}
	return repo, mock, cleanup
}

func zoneRows(t *testing.T, zones ...hc.ZoneState) *sqlmock.Rows {
	t.Helper()
	rows := sqlmock.NewRows([]string{
		"ZoneName", "CurrentState", "ZoneRoomTemp_F", "PipeTemp_F", "TargetSetpoint_F",
		"ControlMode", "SetpointOverrideAt", "SetpointOverrideMode", "SetpointOverrideUntil", "UpdatedAt",
	})
	for _, z := range zones {
		var at, until any
		var mode any
		if z.OverrideAt != nil {
			at = *z.OverrideAt
		}
		if z.OverrideMode != nil {
			mode = *z.OverrideMode
		}
		if z.OverrideUntil != nil {
			until = *z.OverrideUntil
		}
		rows.AddRow(z.ZoneName, string(z.CurrentState), z.RoomTemp, z.PipeTemp,
			z.TargetSetpoint, string(z.ControlMode), at, mode, until, z.UpdatedAt)
	}
	return rows
}

func TestZoneSQLite_Get(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	setpoint := 70.0
	room := 68.5

	tests := []struct {
		name           string
		zone           string
		mockExpect     func(*testing.T, sqlmock.Sqlmock)
		want           *hc.ZoneState
		wantErr        error
		errContainsStr string
	}{
		{
			name: "success",
			zone: "Z3",
			mockExpect: func(t *testing.T, m sqlmock.Sqlmock) {
				m.ExpectQuery(regexp.QuoteMeta("FROM ZoneStatus WHERE ZoneName = ?")).
					WithArgs("Z3").
					WillReturnRows(zoneRows(t, hc.ZoneState{
						ZoneName:       "Z3",
						CurrentState:   hc.StateOn,
						RoomTemp:       &room,
						TargetSetpoint: &setpoint,
						ControlMode:    hc.ModeAuto,
						UpdatedAt:      now,
					}))
			},
			want: &hc.ZoneState{
				ZoneName:       "Z3",
				CurrentState:   hc.StateOn,
				RoomTemp:       &room,
				TargetSetpoint: &setpoint,
				ControlMode:    hc.ModeAuto,
				UpdatedAt:      now,
			},
		},
		{
			name: "missing zone",
			zone: "Z99",
			mockExpect: func(t *testing.T, m sqlmock.Sqlmock) {
				m.ExpectQuery(regexp.QuoteMeta("FROM ZoneStatus WHERE ZoneName = ?")).
					WithArgs("Z99").
					WillReturnRows(zoneRows(t))
			},
			wantErr: ErrNotFound,
		},
		{
			name: "query error",
			zone: "Z1",
			mockExpect: func(t *testing.T, m sqlmock.Sqlmock) {
				m.ExpectQuery(regexp.QuoteMeta("FROM ZoneStatus WHERE ZoneName = ?")).
					WithArgs("Z1").
					WillReturnError(errors.New("db is locked"))
			},
			errContainsStr: "db is locked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, cleanup := newMockZoneRepo(t)
			defer cleanup()

			tt.mockExpect(t, mock)

			got, err := repo.Get(context.Background(), tt.zone)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Get() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if tt.errContainsStr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContainsStr) {
					t.Fatalf("Get() error = %v, want containing %q", err, tt.errContainsStr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Get() unexpected error: %v", err)
			}
			if got.ZoneName != tt.want.ZoneName ||
				got.CurrentState != tt.want.CurrentState ||
				got.ControlMode != tt.want.ControlMode ||
				!got.UpdatedAt.Equal(tt.want.UpdatedAt) {
				t.Errorf("Get() = %+v, want %+v", got, tt.want)
			}
			if got.TargetSetpoint == nil || *got.TargetSetpoint != *tt.want.TargetSetpoint {
				t.Errorf("Get() setpoint = %v, want %v", got.TargetSetpoint, *tt.want.TargetSetpoint)
			}
		})
	}
}

func TestZoneSQLite_List(t *testing.T) {
	now := time.Now().UTC()

	repo, mock, cleanup := newMockZoneRepo(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM ZoneStatus")).
		WillReturnRows(zoneRows(t,
			hc.ZoneState{ZoneName: "Z1", CurrentState: hc.StateOff, ControlMode: hc.ModeAuto, UpdatedAt: now},
			hc.ZoneState{ZoneName: "Z2", CurrentState: hc.StateOn, ControlMode: hc.ModeManual, UpdatedAt: now},
			hc.ZoneState{ZoneName: hc.BoilerZone, CurrentState: hc.StateOn, ControlMode: hc.ModeManual, UpdatedAt: now},
		))

	zones, err := repo.List(context.Background(), true)
	if err != nil {
		t.Fatalf("List() unexpected error: %v", err)
	}
	if len(zones) != 3 {
		t.Fatalf("List() returned %d zones, want 3", len(zones))
	}
	if zones[2].ZoneName != hc.BoilerZone {
		t.Errorf("List() last zone = %s, want %s", zones[2].ZoneName, hc.BoilerZone)
	}
}

func TestZoneSQLite_Update(t *testing.T) {
	stateOn := hc.StateOn
	setpoint := 71.5

	tests := []struct {
		name       string
		patch      ZonePatch
		mockExpect func(sqlmock.Sqlmock)
		wantErr    error
	}{
		{
			name:  "state only",
			patch: ZonePatch{CurrentState: &stateOn},
			mockExpect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta("UPDATE ZoneStatus SET CurrentState = ?, UpdatedAt = ? WHERE ZoneName = ?")).
					WithArgs("ON", sqlmock.AnyArg(), "Z5").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name:  "setpoint and clear override",
			patch: ZonePatch{TargetSetpoint: &setpoint, ClearOverride: true},
			mockExpect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta("TargetSetpoint_F = ?, SetpointOverrideAt = NULL, SetpointOverrideMode = NULL, SetpointOverrideUntil = NULL, UpdatedAt = ?")).
					WithArgs(setpoint, sqlmock.AnyArg(), "Z5").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name:  "missing zone",
			patch: ZonePatch{CurrentState: &stateOn},
			mockExpect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta("UPDATE ZoneStatus SET")).
					WithArgs("ON", sqlmock.AnyArg(), "Z5").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, cleanup := newMockZoneRepo(t)
			defer cleanup()

			tt.mockExpect(mock)

			err := repo.Update(context.Background(), "Z5", tt.patch)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Update() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Update() unexpected error: %v", err)
			}
		})
	}
}

func TestZoneSQLite_UpdateEmptyPatchIsNoop(t *testing.T) {
	repo, _, cleanup := newMockZoneRepo(t)
	defer cleanup()

	if err := repo.Update(context.Background(), "Z1", ZonePatch{}); err != nil {
		t.Fatalf("Update() with empty patch: %v", err)
	}
}
