package archive

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// MakeTextBlob wraps content as a plain-text payload.
func MakeTextBlob(content string) Blob {
	return Blob{Data: []byte(content), MediaType: MediaTypeText}
}

// DeliverText hands content to the sink as <name>.txt and returns the
// filename used.
func (b *Builder) DeliverText(ctx context.Context, content, name string) (string, error) {
	filename := ResolveFilename(name, ".txt")
	if err := b.sink.Deliver(ctx, MakeTextBlob(content), filename); err != nil {
		return filename, fmt.Errorf("deliver %s: %w", filename, err)
	}
	b.log.Info("text delivered", zap.String("filename", filename), zap.Int("size_bytes", len(content)))
	return filename, nil
}
