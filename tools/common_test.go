package tools

import (
	"testing"
	"time"

	"PPRealtime/service/natsx"
)

func TestSplitCSV(t *testing.T) {
	got := SplitCSV(" a, b,,c ")
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("got %v", got)
	}
	if SplitCSV("  ") != nil {
		t.Fatal("blank input")
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("RT_T_INT", "12")
	t.Setenv("RT_T_BAD", "x")
	t.Setenv("RT_T_BOOL", "Yes")
	t.Setenv("RT_T_DUR", "3s")
	if GetEnvInt("RT_T_INT", 1) != 12 || GetEnvInt("RT_T_BAD", 1) != 1 {
		t.Fatal("int")
	}
	if !GetEnvBool("RT_T_BOOL", false) || GetEnvBool("RT_T_BAD", true) {
		t.Fatal("bool")
	}
	if GetEnvDuration("RT_T_DUR", 0) != 3*time.Second || GetEnvDuration("RT_T_BAD", time.Second) != time.Second {
		t.Fatal("duration")
	}
	if GetEnv("RT_T_MISSING", "d") != "d" {
		t.Fatal("default")
	}
}

func TestParseMode(t *testing.T) {
	if ParseMode("JS_PUSH") != natsx.JetStreamPush || ParseMode("whatever") != natsx.Core {
		t.Fatal("mode")
	}
}
