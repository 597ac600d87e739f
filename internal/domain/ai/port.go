package ai

import "context"

type Client interface {
	Diagnose(ctx context.Context, fileURL string) (string, error)
}
