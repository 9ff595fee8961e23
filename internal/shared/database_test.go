package shared

import (
	"errors"
	"testing"
	"time"
)

func TestDatabase(t *testing.T) {
	t.Run("NewDatabase", func(t *testing.T) {
		t.Run("defaults to sqlite", func(t *testing.T) {
			db, err := NewDatabase("", ":memory:")
			if err != nil {
				t.Fatalf("failed to open database: %v", err)
			}
			defer db.Close()

			if db.Driver != DriverSQLite {
				t.Errorf("expected driver %s, got %s", DriverSQLite, db.Driver)
			}
		})

		t.Run("rejects unknown driver", func(t *testing.T) {
			if _, err := NewDatabase("mysql", "dsn"); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	})

	t.Run("Rebind", func(t *testing.T) {
		tc := []struct {
			name   string
			driver string
			query  string
			want   string
		}{
			{
				name:   "sqlite unchanged",
				driver: DriverSQLite,
				query:  "SELECT * FROM t WHERE a = ? AND b = ?",
				want:   "SELECT * FROM t WHERE a = ? AND b = ?",
			},
			{
				name:   "postgres numbered",
				driver: DriverPostgres,
				query:  "SELECT * FROM t WHERE a = ? AND b = ?",
				want:   "SELECT * FROM t WHERE a = $1 AND b = $2",
			},
			{
				name:   "postgres no placeholders",
				driver: DriverPostgres,
				query:  "SELECT 1",
				want:   "SELECT 1",
			},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				db := &Database{Driver: tt.driver}
				if got := db.Rebind(tt.query); got != tt.want {
					t.Errorf("Rebind() = %q, want %q", got, tt.want)
				}
			})
		}
	})
}

func TestParseDate(t *testing.T) {
	t.Run("date only", func(t *testing.T) {
		got, err := ParseDate("2024-03-01")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected date %v", got)
		}
	})

	t.Run("rfc3339", func(t *testing.T) {
		got, err := ParseDate("2024-03-01T10:00:00+02:00")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Hour() != 8 || got.Location() != time.UTC {
			t.Errorf("expected UTC conversion, got %v", got)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		if _, err := ParseDate("yesterday"); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}
