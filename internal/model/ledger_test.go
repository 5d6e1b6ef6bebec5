package model

import "testing"

func TestOutcome_String(t *testing.T) {
	if got := (Outcome{Status: StatusOK, Action: "back()"}).String(); got != "ok:back()" {
		t.Errorf("got %q", got)
	}
	if got := (Outcome{Status: StatusSkip, Action: "fly()"}).String(); got != "skip:fly()" {
		t.Errorf("got %q", got)
	}
	got := (Outcome{Status: StatusError, Action: "tap()", Reason: "boom"}).String()
	if got != "error:tap() reason=boom" {
		t.Errorf("got %q", got)
	}
}

func TestRecentHistory(t *testing.T) {
	lines := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	if got := RecentHistory(lines, 6); got != "8\n7\n6\n5\n4\n3" {
		t.Errorf("got %q", got)
	}
	if got := RecentHistory(lines[:2], 6); got != "2\n1" {
		t.Errorf("got %q", got)
	}
	if got := RecentHistory(nil, 6); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestLedger_Failed(t *testing.T) {
	l := Ledger{{Status: StatusOK}, {Status: StatusSkip}}
	if l.Failed() {
		t.Error("no error records")
	}
	l = append(l, Outcome{Status: StatusError})
	if !l.Failed() {
		t.Error("error record present")
	}
}
