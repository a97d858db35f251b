package update

import (
	"context"

	"github.com/Aleks250483/triangels-tg-bridge/internal/config"
	"github.com/Aleks250483/triangels-tg-bridge/internal/dockerx"
)

// Result describes what a refresh changed.
type Result struct {
	Ref     string
	Pulled  bool // the local image changed
	Updated bool // the instance was recreated on the new image
	Note    string
}

// supervisor is the slice of dockerx.Supervisor the updater needs.
type supervisor interface {
	ImageID(ctx context.Context, ref string) (string, error)
	PullImage(ctx context.Context, ref string) error
	Status(ctx context.Context) (dockerx.Report, error)
	Start(ctx context.Context, cfg config.ProxyConfig) error
}

type Updater struct {
	Docker supervisor
}

func NewUpdater(docker supervisor) *Updater {
	return &Updater{Docker: docker}
}

// Refresh pulls the configured image and, when that yields something newer
// than what the instance runs, recreates the instance on it. The proxy
// secret and port come from cfg and survive the swap.
func (u *Updater) Refresh(ctx context.Context, cfg config.ProxyConfig) (Result, error) {
	res := Result{Ref: cfg.Image}

	before, err := u.Docker.ImageID(ctx, cfg.Image)
	if err != nil {
		return res, err
	}
	if err := u.Docker.PullImage(ctx, cfg.Image); err != nil {
		return res, err
	}
	after, err := u.Docker.ImageID(ctx, cfg.Image)
	if err != nil {
		return res, err
	}
	res.Pulled = before != after

	rep, err := u.Docker.Status(ctx)
	if err != nil {
		return res, err
	}
	if !rep.Exists {
		res.Note = "image refreshed; no instance to restart (run install)"
		return res, nil
	}
	if rep.ImageID == after {
		res.Note = "instance already runs the latest image"
		return res, nil
	}

	if err := u.Docker.Start(ctx, cfg); err != nil {
		return res, err
	}
	res.Updated = true
	res.Note = "instance recreated on the new image"
	return res, nil
}
