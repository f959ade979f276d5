package logging

import "testing"

func TestInitAcceptsBothFormats(t *testing.T) {
	Init(Config{Level: "debug", Format: "json"})
	Init(Config{Level: "info", Format: "pretty"})
	Init(Config{Level: "not-a-level", Format: "json"}) // falls back to info, must not panic
}

func TestWithComponentDoesNotPanic(t *testing.T) {
	_ = WithComponent("test")
	_ = WithInstance("test", "a")
}
