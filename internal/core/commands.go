package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jo-hoe/bedready/internal/backend/commandstructure"
)

// API command names
const (
	CommandTakeSnapshot     = "take_snapshot"
	CommandCheckBed         = "check_bed"
	CommandListSnapshots    = "list_snapshots"
	CommandDeleteSnapshot   = "delete_snapshot"
	CommandImageDimensions  = "get_image_dimensions"
	CommandListDebugImages  = "list_debug_images"
	CommandDeleteDebugImage = "delete_debug_image"

	filenameParam   = "filename"
	similarityParam = "similarity"
)

func newCommandRegistry(service *CoreService) *commandstructure.CommandRegistry {
	registry := commandstructure.NewCommandRegistry()

	register := func(name string, required []string, factory commandstructure.CommandFactory) {
		if err := registry.Register(name, required, factory); err != nil {
			slog.Error("failed to register command", "command", name, "error", err)
			panic(err)
		}
	}

	register(CommandTakeSnapshot, nil, func(params map[string]any) (commandstructure.Command, error) {
		name := commandstructure.GetStringParam(params, "name", "")
		return commandstructure.NewCommandFunc(CommandTakeSnapshot, func(ctx context.Context) (any, error) {
			return service.TakeSnapshot(ctx, name)
		}), nil
	})

	register(CommandCheckBed, nil, func(params map[string]any) (commandstructure.Command, error) {
		reference := commandstructure.GetStringParam(params, "reference", "")
		var threshold *float64
		if raw, present := params[similarityParam]; present {
			value, ok := commandstructure.GetFloatParam(params, similarityParam)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be a number, got %v", commandstructure.ErrInvalidParameter, similarityParam, raw)
			}
			threshold = &value
		}
		return commandstructure.NewCommandFunc(CommandCheckBed, func(ctx context.Context) (any, error) {
			return service.CheckBed(ctx, reference, threshold)
		}), nil
	})

	register(CommandListSnapshots, nil, func(map[string]any) (commandstructure.Command, error) {
		return commandstructure.NewCommandFunc(CommandListSnapshots, func(context.Context) (any, error) {
			return service.ListSnapshots()
		}), nil
	})

	register(CommandDeleteSnapshot, []string{filenameParam}, func(params map[string]any) (commandstructure.Command, error) {
		filename := commandstructure.GetStringParam(params, filenameParam, "")
		return commandstructure.NewCommandFunc(CommandDeleteSnapshot, func(context.Context) (any, error) {
			return service.DeleteSnapshot(filename)
		}), nil
	})

	register(CommandImageDimensions, []string{filenameParam}, func(params map[string]any) (commandstructure.Command, error) {
		filename := commandstructure.GetStringParam(params, filenameParam, "")
		return commandstructure.NewCommandFunc(CommandImageDimensions, func(context.Context) (any, error) {
			return service.ImageDimensions(filename)
		}), nil
	})

	register(CommandListDebugImages, nil, func(map[string]any) (commandstructure.Command, error) {
		return commandstructure.NewCommandFunc(CommandListDebugImages, func(context.Context) (any, error) {
			return service.ListDebugImages()
		}), nil
	})

	register(CommandDeleteDebugImage, []string{filenameParam}, func(params map[string]any) (commandstructure.Command, error) {
		filename := commandstructure.GetStringParam(params, filenameParam, "")
		return commandstructure.NewCommandFunc(CommandDeleteDebugImage, func(context.Context) (any, error) {
			return service.DeleteDebugImage(filename)
		}), nil
	})

	return registry
}
