package ml

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleCSV = `Age,SystolicBP,RiskLevel
25,130,low risk
35,140,high risk
25,130.0,low risk
29, 90,mid risk
`

func TestReadCSVAndDedupe(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 4 {
		t.Fatalf("expected 4 records, got %d", table.Len())
	}
	if removed := table.Dedupe(); removed != 1 {
		t.Fatalf("expected 1 duplicate removed, got %d", removed)
	}

	features, err := table.Floats("SystolicBP", "Age")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if features[2][0] != 90 || features[2][1] != 29 {
		t.Fatalf("columns should follow the requested order, got %v", features[2])
	}
	labels, err := table.Strings("RiskLevel")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if labels[1] != "high risk" {
		t.Fatalf("unexpected label %q", labels[1])
	}
	if _, err := table.Floats("Weight"); err == nil {
		t.Fatal("expected error for missing column")
	}
	if _, err := table.Floats("RiskLevel"); err == nil {
		t.Fatal("expected error for non-numeric column")
	}
}

func TestTableInts(t *testing.T) {
	table, err := ReadCSV(strings.NewReader("x,fetal_health\n1,1.0\n2,2.0\n3,2.5\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := table.Ints("fetal_health"); err == nil {
		t.Fatal("expected error for non-integral class")
	}
	table.Records = table.Records[:2]
	classes, err := table.Ints("fetal_health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if classes[0] != 1 || classes[1] != 2 {
		t.Fatalf("unexpected classes %v", classes)
	}
}

func TestLoadCSVMissing(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "absent.csv"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
