package service

import (
	"fmt"

	v1 "foundryhost/api/v1"

	"github.com/hashicorp/go-version"
)

func (o *Options) ValidVersion(v string) bool {
	for _, known := range o.Versions {
		if known == v {
			return true
		}
	}
	return false
}

func (o *Options) ImageFor(v string) string {
	return o.Image + ":" + v
}

// ContainerUID 不同大版本的镜像以不同 uid 运行，uid 与 gid 相同
func (o *Options) ContainerUID(v string) (int64, error) {
	ver, err := version.NewVersion(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", v1.ErrInvalidVersion, v)
	}
	c, err := version.NewConstraint(o.ModernConstraint)
	if err != nil {
		return 0, fmt.Errorf("invalid foundry.modern_constraint %q: %w", o.ModernConstraint, err)
	}
	if c.Check(ver) {
		return o.ModernUID, nil
	}
	return o.LegacyUID, nil
}
