// Package testutil provides common test utilities and helpers for DASSPipe tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/BTreeMap/DASSPipe/internal/models"
	"github.com/BTreeMap/DASSPipe/internal/store"
)

// TB is the subset of testing.TB the helpers need.
type TB interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONStatus decodes an APIResponse envelope and checks its status field.
func AssertJSONStatus(t TB, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus) models.APIResponse {
	t.Helper()
	var response models.APIResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return response
	}
	if response.Status != string(expectedStatus) {
		t.Errorf("expected status '%s', got '%s' (message %q)", expectedStatus, response.Status, response.Message)
	}
	return response
}

// DecodeResult re-decodes the result field of an APIResponse into target.
func DecodeResult(t TB, response models.APIResponse, target interface{}) {
	t.Helper()
	data, err := json.Marshal(response.Result)
	if err != nil {
		t.Fatalf("failed to re-marshal result: %v", err)
		return
	}
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
}

// CreateJSONRequest creates a request carrying body as JSON.
func CreateJSONRequest(t TB, method, url, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertResponseCount validates the number of responses in store matches expected.
func AssertResponseCount(t TB, st store.Store, expected int, context string) {
	t.Helper()
	responses, err := st.GetResponses()
	if err != nil {
		t.Fatalf("%s: failed to get responses: %v", context, err)
		return
	}
	if len(responses) != expected {
		t.Errorf("%s: expected %d responses, got %d", context, expected, len(responses))
	}
}

// SeedTestData adds sample receipts and responses to the store.
func SeedTestData(t TB, st store.Store) {
	t.Helper()

	testReceipts := []models.Receipt{
		{To: "15551230001", Status: models.MessageStatusSent, Time: 1},
		{To: "15551230002", Status: models.MessageStatusDelivered, Time: 2},
	}
	for _, receipt := range testReceipts {
		if err := st.AddReceipt(receipt); err != nil {
			t.Fatalf("failed to add test receipt: %v", err)
		}
	}

	testResponses := []models.Response{
		{From: "15551230001", Body: "START", Time: 10, MessageID: "seed-1"},
		{From: "15551230002", Body: "2", Time: 20, MessageID: "seed-2"},
	}
	for _, response := range testResponses {
		if err := st.AddResponse(response); err != nil {
			t.Fatalf("failed to add test response: %v", err)
		}
	}
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}
