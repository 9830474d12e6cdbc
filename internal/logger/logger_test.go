package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestInit(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Init panicked: %v", r)
		}
	}()

	Init("debug", "json")
	Init("info", "json")
	Init("warn", "json")
	Init("error", "json")

	logger := Get()
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Error("Expected JSON formatter to be set after Init")
	}
}

func TestInitTextFormat(t *testing.T) {
	Init("info", "text")
	logger := Get()
	if _, ok := logger.Formatter.(*logrus.TextFormatter); !ok {
		t.Error("Expected text formatter when format is text")
	}
}

func TestInitInvalidLevel(t *testing.T) {
	Init("invalid-level", "json")
	if Get().GetLevel() != logrus.InfoLevel {
		t.Errorf("Expected default log level info, got %v", Get().GetLevel())
	}
}

func TestGetBeforeInit(t *testing.T) {
	log = nil
	logger := Get()
	if logger == nil {
		t.Fatal("Get should lazily initialize the logger")
	}
	if logger.GetLevel() != logrus.InfoLevel {
		t.Errorf("Expected lazy init at info level, got %v", logger.GetLevel())
	}
}

func TestFieldHelpers(t *testing.T) {
	Init("info", "json")

	entry := WithCondition("plex")
	if entry.Data["condition"] != "plex" {
		t.Errorf("Expected condition field, got %v", entry.Data)
	}

	entry = WithSession("abc-123")
	if entry.Data["session"] != "abc-123" {
		t.Errorf("Expected session field, got %v", entry.Data)
	}
}
