package models

import (
	"testing"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func TestRecordIDString(t *testing.T) {
	tests := []struct {
		name    string
		id      surrealmodels.RecordID
		want    string
		wantErr bool
	}{
		{"string id", surrealmodels.RecordID{Table: "cluster", ID: "a1b2c3d4"}, "a1b2c3d4", false},
		{"empty string id", surrealmodels.RecordID{Table: "cluster", ID: ""}, "", false},
		{"integer id rejected", surrealmodels.RecordID{Table: "cluster", ID: 42}, "", true},
		{"nil id rejected", surrealmodels.RecordID{Table: "cluster"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RecordIDString(tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RecordIDString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("RecordIDString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClusterRefRoundTrip(t *testing.T) {
	ref := ClusterRef("a1b2c3d4")
	if ref.Table != "cluster" {
		t.Errorf("Table = %q, want cluster", ref.Table)
	}
	if got := MustRecordIDString(ref); got != "a1b2c3d4" {
		t.Errorf("MustRecordIDString() = %q, want a1b2c3d4", got)
	}
}

func TestMustRecordIDStringPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for a non-string id")
		}
	}()
	MustRecordIDString(surrealmodels.RecordID{Table: "cluster", ID: 42})
}
