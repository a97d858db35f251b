package share

import (
	"context"
	"fmt"

	"github.com/Aleks250483/triangels-tg-bridge/internal/deps"
	"github.com/Aleks250483/triangels-tg-bridge/internal/execx"
)

// QR renders connection links as terminal block art through qrencode.
type QR struct {
	Gate *deps.Gate
	Run  execx.Runner
}

func NewQR(gate *deps.Gate) *QR {
	return &QR{Gate: gate, Run: execx.Local{}}
}

func (q *QR) Render(ctx context.Context, link string) (string, error) {
	if err := q.Gate.Require("qrencode"); err != nil {
		return "", err
	}
	out, err := q.Run.Output(ctx, "qrencode", "-t", "ANSIUTF8", "-o", "-", link)
	if err != nil {
		return "", fmt.Errorf("qrencode: %w", err)
	}
	return string(out), nil
}
