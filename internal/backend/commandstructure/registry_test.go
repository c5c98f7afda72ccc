package commandstructure

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func echoFactory(params map[string]any) (Command, error) {
	filename := GetStringParam(params, "filename", "")
	return NewCommandFunc("echo", func(context.Context) (any, error) {
		return filename, nil
	}), nil
}

func TestCommandRegistry_Register(t *testing.T) {
	registry := NewCommandRegistry()

	if err := registry.Register("echo", []string{"filename"}, echoFactory); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := registry.Register("echo", nil, echoFactory); err == nil {
		t.Error("Expected error for duplicate registration")
	}
	if err := registry.Register("", nil, echoFactory); err == nil {
		t.Error("Expected error for empty name")
	}
	if err := registry.Register("nil_factory", nil, nil); err == nil {
		t.Error("Expected error for nil factory")
	}
	if !registry.IsRegistered("echo") || registry.IsRegistered("nil_factory") {
		t.Error("unexpected registration state")
	}
}

func TestCommandRegistry_Execute(t *testing.T) {
	registry := NewCommandRegistry()
	if err := registry.Register("echo", []string{"filename"}, echoFactory); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	result, err := registry.Execute(context.Background(), "echo", map[string]any{"filename": "a.jpg"})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result != "a.jpg" {
		t.Errorf("Expected 'a.jpg', got %v", result)
	}

	_, err = registry.Execute(context.Background(), "echo", map[string]any{})
	if !errors.Is(err, ErrMissingParameter) {
		t.Errorf("Expected ErrMissingParameter, got %v", err)
	}

	_, err = registry.Execute(context.Background(), "unknown", nil)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Expected ErrUnknownCommand, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "available: echo") {
		t.Errorf("Expected available commands in error, got %q", err)
	}
}

func TestCommandRegistry_ErrorsPropagate(t *testing.T) {
	registry := NewCommandRegistry()
	factoryErr := errors.New("bad parameters")
	executeErr := errors.New("camera offline")

	_ = registry.Register("bad_factory", nil, func(map[string]any) (Command, error) {
		return nil, factoryErr
	})
	_ = registry.Register("failing", nil, func(map[string]any) (Command, error) {
		return NewCommandFunc("failing", func(context.Context) (any, error) {
			return nil, executeErr
		}), nil
	})

	if _, err := registry.Execute(context.Background(), "bad_factory", nil); !errors.Is(err, factoryErr) {
		t.Errorf("Expected factory error, got %v", err)
	}
	if _, err := registry.Execute(context.Background(), "failing", nil); !errors.Is(err, executeErr) {
		t.Errorf("Expected execute error, got %v", err)
	}
}

func TestCommandRegistry_Introspection(t *testing.T) {
	registry := NewCommandRegistry()
	_ = registry.Register("take_snapshot", nil, echoFactory)
	_ = registry.Register("delete_snapshot", []string{"filename"}, echoFactory)

	if names := registry.GetRegisteredNames(); !reflect.DeepEqual(names, []string{"delete_snapshot", "take_snapshot"}) {
		t.Errorf("unexpected names %v", names)
	}

	required := registry.RequiredParams()
	if !reflect.DeepEqual(required["delete_snapshot"], []string{"filename"}) {
		t.Errorf("unexpected required params %v", required)
	}
	if len(required["take_snapshot"]) != 0 {
		t.Errorf("expected no required params for take_snapshot, got %v", required["take_snapshot"])
	}
}
