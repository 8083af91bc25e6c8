package storage

import "testing"

func TestBuildInvoicePathUsesInvoiceNumber(t *testing.T) {
	path, err := BuildObjectPath(PurposeInvoice, PathParams{
		OrderID:       "order123",
		InvoiceNumber: "PD-20250115-0001",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "invoices/orders/order123/PD-20250115-0001.pdf"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildExportPath(t *testing.T) {
	path, err := BuildObjectPath(PurposeExport, PathParams{
		ExportName: "stock-movements",
		FileName:   "2025-01.csv",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "exports/stock-movements/2025-01.csv"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildObjectPathRejectsInvalidSegment(t *testing.T) {
	_, err := BuildObjectPath(PurposeInvoice, PathParams{
		OrderID:  "../bad",
		FileName: "invoice.pdf",
	})
	if err == nil {
		t.Fatalf("expected error for invalid segment")
	}
}
