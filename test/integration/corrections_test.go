package integration

import (
	"net/http"
	"strings"
	"testing"
)

type correctionOutcome struct {
	Message   string `json:"message"`
	Success   bool   `json:"success"`
	Reason    string `json:"reason"`
	Attempts  int    `json:"attempts"`
	FinalCode string `json:"final_code"`
	Diagnoses []any  `json:"diagnoses"`
}

func TestCorrectionRepairsCode(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/v1/corrections", map[string]any{
		"code":     "ech hello",
		"language": "bash",
	})
	expectStatus(t, resp, http.StatusOK)

	var out correctionOutcome
	decodeJSON(t, resp, &out)
	if !out.Success || out.Reason != "success" {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Attempts != 2 || out.FinalCode != "echo fixed" {
		t.Errorf("attempts = %d, final code = %q", out.Attempts, out.FinalCode)
	}
	if !strings.HasPrefix(out.Message, "Execution successful:") || !strings.Contains(out.Message, "fixed") {
		t.Errorf("message = %q", out.Message)
	}
	if len(out.Diagnoses) != 1 {
		t.Errorf("diagnoses = %d, want 1", len(out.Diagnoses))
	}
}

func TestCorrectionWithoutUsableReply(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/v1/corrections", map[string]any{
		"code":     "no_fix",
		"language": "bash",
	})
	expectStatus(t, resp, http.StatusOK)

	var out correctionOutcome
	decodeJSON(t, resp, &out)
	if out.Success || out.Reason != "no_code" || out.Attempts != 1 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestCorrectionFirstRunSucceeds(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/v1/corrections", map[string]any{
		"code":     "echo first try",
		"language": "bash",
	})
	expectStatus(t, resp, http.StatusOK)

	var out correctionOutcome
	decodeJSON(t, resp, &out)
	if !out.Success || out.Attempts != 1 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestCorrectionRecordsHistory(t *testing.T) {
	postJSON(t, testEnv.BaseURL()+"/v1/corrections", map[string]any{
		"code":     "ech recorded",
		"language": "bash",
	}).Body.Close()

	resp := getURL(t, testEnv.BaseURL()+"/v1/history?limit=10")
	expectStatus(t, resp, http.StatusOK)

	var hist struct {
		Executions []struct {
			Code    string `json:"code"`
			Success bool   `json:"success"`
		} `json:"executions"`
	}
	decodeJSON(t, resp, &hist)

	var sawFailure bool
	for _, e := range hist.Executions {
		if e.Code == "ech recorded" && !e.Success {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Errorf("failed attempt not in history: %+v", hist.Executions)
	}
}
