package log

import (
	"bytes"
	"log/slog"
	"testing"

	"go.viam.com/test"
)

func TestHandlerFormat(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(NewHandler(&out, false, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.With(slog.String("module", "viewer")).Warn("decode failed", slog.Int("size", 12), slog.String("err", "boom"))

	line := out.String()
	test.That(t, line, test.ShouldContainSubstring, "WARN [viewer] decode failed err=boom size=12\n")
	test.That(t, line, test.ShouldNotContainSubstring, "\033[")
}

func TestHandlerLevel(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(NewHandler(&out, true, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger.Debug("hidden")
	test.That(t, out.Len(), test.ShouldEqual, 0)

	logger.Error("shown")
	test.That(t, out.String(), test.ShouldContainSubstring, "shown")
	test.That(t, out.String(), test.ShouldContainSubstring, "\033[91m")
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, l, test.ShouldEqual, slog.LevelInfo)

	l, err = ParseLevel("debug")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, l, test.ShouldEqual, slog.LevelDebug)

	_, err = ParseLevel("chatty")
	test.That(t, err, test.ShouldNotBeNil)
}
