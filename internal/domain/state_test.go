package domain

import (
	"encoding/json"
	"testing"
	"time"
)

var (
	testWindow = Window{Year: 2025, Month: time.June}
	testNow    = time.Date(2025, time.July, 25, 20, 15, 37, 0, time.UTC)
)

func TestStateDocument_Record(t *testing.T) {
	doc := StateDocument{}
	key := ServiceKey{Service: "Postgres", Environment: "PROD", PlanID: "pt-X"}

	rec := doc.Record(key)
	if rec == nil {
		t.Fatal("expected record")
	}
	if doc.Record(key) != rec {
		t.Error("Record must return the same instance on repeat lookups")
	}
	if _, ok := doc["Postgres:PROD:pt-X"]; !ok {
		t.Error("record not stored under the ServiceKey string form")
	}
}

func TestStateRecord_SuccessErrorExclusive(t *testing.T) {
	rec := &StateRecord{}

	rec.PutError(testWindow, ErrorEntry{
		ContractID: "contract-b",
		Errors:     []string{"boom"},
		Code:       "API_ERROR",
		RetryCount: 3,
	}, testNow)

	if _, ok := rec.FindError(testWindow, "contract-b"); !ok {
		t.Fatal("expected error entry")
	}
	if rec.HasSucceeded(testWindow, "contract-b") {
		t.Fatal("contract must not be in success while in error")
	}

	// A later successful retry moves the contract to success and drops the entry.
	rec.MarkSuccess(testWindow, "contract-b", testNow)

	if !rec.HasSucceeded(testWindow, "contract-b") {
		t.Error("expected success after MarkSuccess")
	}
	if _, ok := rec.FindError(testWindow, "contract-b"); ok {
		t.Error("error entry must be cleared by MarkSuccess")
	}
	if _, ok := rec.ErrorContracts[testWindow.Key()]; ok {
		t.Error("empty window bucket must be dropped")
	}
}

func TestStateRecord_MarkSuccessIdempotent(t *testing.T) {
	rec := &StateRecord{}
	rec.MarkSuccess(testWindow, "contract-a", testNow)
	rec.MarkSuccess(testWindow, "contract-a", testNow)

	if got := len(rec.SuccessContracts[testWindow.Key()]); got != 1 {
		t.Errorf("success entries = %d, want 1", got)
	}
}

func TestStateRecord_PutErrorMergesHistory(t *testing.T) {
	rec := &StateRecord{}
	rec.PutError(testWindow, ErrorEntry{
		ContractID: "contract-b",
		Errors:     []string{"first"},
		Code:       "NETWORK_ERROR",
		RetryCount: 2,
	}, testNow)
	rec.PutError(testWindow, ErrorEntry{
		ContractID: "contract-b",
		Errors:     []string{"second"},
		Code:       "API_ERROR",
		Message:    "still failing",
		RetryCount: 5,
	}, testNow)

	entry, ok := rec.FindError(testWindow, "contract-b")
	if !ok {
		t.Fatal("expected entry")
	}
	if len(entry.Errors) != 2 || entry.Errors[0] != "first" || entry.Errors[1] != "second" {
		t.Errorf("errors not accumulated: %v", entry.Errors)
	}
	if entry.Code != "API_ERROR" || entry.RetryCount != 5 {
		t.Errorf("entry not updated: %+v", entry)
	}
	if got := len(rec.ErrorContracts[testWindow.Key()]); got != 1 {
		t.Errorf("entries = %d, want 1", got)
	}
}

func TestStateRecord_PutErrorKeepsPayload(t *testing.T) {
	rec := &StateRecord{}
	rec.PutError(testWindow, ErrorEntry{
		ContractID: "contract-b",
		Errors:     []string{"submission failed"},
		Code:       "NETWORK_ERROR",
		RetryCount: 5,
		Payload: &MeteringPayload{Request: []MeteringRecord{{
			ContractID: "contract-b",
			Dimension:  "cpu_core_hours",
			Quantity:   "720",
		}}},
	}, testNow)

	// A later payload-less failure (e.g. a formula error on reprocessing)
	// must not wipe the preserved request.
	rec.PutError(testWindow, ErrorEntry{
		ContractID: "contract-b",
		Errors:     []string{"formula raised"},
		Code:       "FORMULA_ERROR",
	}, testNow)

	entry, _ := rec.FindError(testWindow, "contract-b")
	if entry.Code != "FORMULA_ERROR" {
		t.Errorf("code = %q", entry.Code)
	}
	if entry.Payload == nil || len(entry.Payload.Request) != 1 || entry.Payload.Request[0].Quantity != "720" {
		t.Errorf("preserved payload lost: %+v", entry.Payload)
	}
}

func TestStateRecord_RetryCountNeverDecreases(t *testing.T) {
	rec := &StateRecord{}
	rec.PutError(testWindow, ErrorEntry{ContractID: "c", RetryCount: 4}, testNow)
	rec.PutError(testWindow, ErrorEntry{ContractID: "c", RetryCount: 2}, testNow)

	entry, _ := rec.FindError(testWindow, "c")
	if entry.RetryCount != 4 {
		t.Errorf("RetryCount = %d, want 4", entry.RetryCount)
	}
}

func TestStateRecord_LastWindow(t *testing.T) {
	rec := &StateRecord{}

	if _, ok, err := rec.LastWindow(); ok || err != nil {
		t.Fatalf("empty record: ok=%v err=%v", ok, err)
	}

	rec.SetLastWindow(testWindow, testNow)
	w, ok, err := rec.LastWindow()
	if err != nil || !ok || w != testWindow {
		t.Fatalf("LastWindow() = %v %v %v", w, ok, err)
	}
	if rec.LastProcessedWindow != "2025-06" {
		t.Errorf("LastProcessedWindow = %q", rec.LastProcessedWindow)
	}
	if rec.LastUpdated != "2025-07-25T20:15:37Z" {
		t.Errorf("LastUpdated = %q", rec.LastUpdated)
	}

	rec.LastProcessedWindow = "garbage"
	if _, _, err := rec.LastWindow(); err == nil {
		t.Error("expected parse error for corrupt window")
	}
}

func TestStateDocument_JSONShape(t *testing.T) {
	rec := &StateRecord{}
	rec.MarkSuccess(testWindow, "contract-a", testNow)
	rec.PutError(testWindow, ErrorEntry{
		ContractID: "contract-b",
		Errors:     []string{"dimension not registered"},
		Code:       "ERROR_001",
		RetryCount: 3,
		Payload: &MeteringPayload{Request: []MeteringRecord{{
			Cloud:      "aws",
			ContractID: "contract-b",
			Dimension:  "cpu_core_hours",
			Quantity:   "720",
		}}},
	}, testNow)
	rec.SetLastWindow(testWindow, testNow)

	doc := StateDocument{"Postgres:PROD:pt-X": rec}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}

	var parsed map[string]map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}
	got := parsed["Postgres:PROD:pt-X"]
	if got["last_processed_month"] != "2025-06" {
		t.Errorf("last_processed_month = %v", got["last_processed_month"])
	}
	for _, field := range []string{"last_updated", "success_contracts", "error_contracts"} {
		if _, ok := got[field]; !ok {
			t.Errorf("missing field %q in persisted shape", field)
		}
	}
}
