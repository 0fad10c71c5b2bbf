package tool

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DrawingTool simulates a diagram/drawing integration. Useful for attaching
// technical documentation artifacts to workflow outcomes without a real
// drawing backend.
type DrawingTool struct{}

// NewDrawingTool creates a simulated drawing tool
func NewDrawingTool() *DrawingTool {
	return &DrawingTool{}
}

// Definition returns the tool's schema
func (t *DrawingTool) Definition() Definition {
	return Definition{
		Name:        "create_drawing",
		Description: "Creates drawings and diagrams for technical documentation (simulated).",
		Required:    []string{"title", "elements", "folder_path"},
	}
}

// Execute simulates creating a drawing and returns its URL and ID
func (t *DrawingTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateArgs(t.Definition(), args); err != nil {
		return nil, err
	}
	drawingID := uuid.NewString()
	return map[string]any{
		"status":     "TOOL_SUCCESS",
		"url":        fmt.Sprintf("https://docs.google.com/drawings/%s", drawingID),
		"drawing_id": drawingID,
	}, nil
}
