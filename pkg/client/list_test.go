package client

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"testing"

	"github.com/Sternrassler/cps-audit/internal/testutil"
	"github.com/Sternrassler/cps-audit/pkg/enrollment"
)

func TestListEnrollments(t *testing.T) {
	mock := testutil.NewMockCPS()
	defer mock.Close()

	mock.AddContract("C-1", 10, 11, 12)
	c := newTestClient(t, mock)

	ids, err := c.ListEnrollments(context.Background(), "C-1")
	if err != nil {
		t.Fatalf("ListEnrollments() error = %v", err)
	}
	if want := []enrollment.ID{10, 11, 12}; !slices.Equal(ids, want) {
		t.Errorf("ListEnrollments() = %v, want %v", ids, want)
	}
	if got := mock.LastHeader().Get("Accept"); got != "application/vnd.akamai.cps.enrollments.v11+json" {
		t.Errorf("Accept = %q", got)
	}
	if got := mock.LastRequestQuery().Get("contractId"); got != "C-1" {
		t.Errorf("contractId = %q, want C-1", got)
	}
}

func TestListEnrollments_Errors(t *testing.T) {
	mock := testutil.NewMockCPS()
	defer mock.Close()

	c := newTestClient(t, mock)

	if _, err := c.ListEnrollments(context.Background(), ""); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("empty contract: error = %v, want ErrInvalidConfig", err)
	}

	var cpsErr *CPSError
	_, err := c.ListEnrollments(context.Background(), "C-unknown")
	if !errors.As(err, &cpsErr) || cpsErr.StatusCode != http.StatusNotFound {
		t.Errorf("unknown contract: error = %v, want 404 CPSError", err)
	}

	mock.SetHandler("/cps/v2/enrollments", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"enrollments":[{"location":"/cps/v2/enrollments/abc"}]}`))
	})
	if _, err := c.ListEnrollments(context.Background(), "C-1"); err == nil {
		t.Error("malformed location: expected error")
	}
}

func TestIDFromLocation(t *testing.T) {
	tests := []struct {
		location string
		want     enrollment.ID
		wantErr  bool
	}{
		{"/cps/v2/enrollments/12345", 12345, false},
		{"https://akab-x.luna.akamaiapis.net/cps/v2/enrollments/7", 7, false},
		{"/cps/v2/enrollments/", 0, true},
		{"/cps/v2/enrollments/0", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := idFromLocation(tt.location)
		if (err != nil) != tt.wantErr {
			t.Errorf("idFromLocation(%q) error = %v, wantErr %v", tt.location, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("idFromLocation(%q) = %d, want %d", tt.location, got, tt.want)
		}
	}
}

func TestContracts(t *testing.T) {
	mock := testutil.NewMockCPS()
	defer mock.Close()

	mock.AddContract("C-1", 1, 2)
	mock.AddContract("C-2", 3)
	mock.AddContract("C-3")
	c := newTestClient(t, mock)

	t.Run("all contracts", func(t *testing.T) {
		contracts, err := c.Contracts(context.Background())
		if err != nil {
			t.Fatalf("Contracts() error = %v", err)
		}
		if len(contracts) != 3 {
			t.Fatalf("got %d contracts, want 3", len(contracts))
		}
		if contracts[0].ID != "C-1" || !slices.Equal(contracts[0].IDs, []enrollment.ID{1, 2}) {
			t.Errorf("contracts[0] = %+v", contracts[0])
		}
		if len(contracts[2].IDs) != 0 {
			t.Errorf("contracts[2] = %+v, want no enrollments", contracts[2])
		}
	})

	t.Run("selected contract", func(t *testing.T) {
		contracts, err := c.Contracts(context.Background(), "C-2")
		if err != nil {
			t.Fatalf("Contracts() error = %v", err)
		}
		if len(contracts) != 1 || contracts[0].ID != "C-2" || !slices.Equal(contracts[0].IDs, []enrollment.ID{3}) {
			t.Errorf("Contracts(C-2) = %+v", contracts)
		}
	})
}
