package images

import (
	"context"
	"errors"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cuemby/hcluster/pkg/log"
	"github.com/cuemby/hcluster/pkg/provider"
	"github.com/cuemby/hcluster/pkg/types"
)

// ErrImageNotFound is returned when a label resolves to no visible image
var ErrImageNotFound = errors.New("image not found")

const defaultCacheSize = 128

// LabelFor derives the conventional image label for a software version and
// architecture.
func LabelFor(version, arch string) string {
	return fmt.Sprintf("hbase-%s-%s", version, arch)
}

// Resolver maps role image labels to provider image ids. Each orchestrator
// owns its own resolver; the cache is never shared across resolvers.
type Resolver struct {
	gateway provider.Gateway
	ownerID string
	cache   *lru.Cache[string, string]
}

// NewResolver returns a resolver that prefers images owned by ownerID. An
// empty ownerID skips the owned-images pass.
func NewResolver(gateway provider.Gateway, ownerID string) *Resolver {
	cache, err := lru.New[string, string](defaultCacheSize)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &Resolver{gateway: gateway, ownerID: ownerID, cache: cache}
}

// Resolve returns the image a role should boot from. An override image id is
// used as given after checking it exists; otherwise label is looked up among
// the owner's images, then among every image visible to the account.
func (r *Resolver) Resolve(ctx context.Context, role types.Role, label, override string) (types.ImageReference, error) {
	if override != "" {
		imgs, err := r.gateway.DescribeImages(ctx, provider.ImageFilter{ImageIDs: []string{override}})
		if err != nil || len(imgs) == 0 {
			if err == nil || errors.Is(err, provider.ErrNotFound) || errors.Is(err, provider.ErrInvalidRequest) {
				return types.ImageReference{}, fmt.Errorf("%w: %s image id %s", ErrImageNotFound, role, override)
			}
			return types.ImageReference{}, fmt.Errorf("failed to look up %s image %s: %w", role, override, err)
		}
		return types.ImageReference{Label: imgs[0].Name, ImageID: override}, nil
	}

	if label == "" {
		return types.ImageReference{}, fmt.Errorf("%w: no label or image id for %s", ErrImageNotFound, role)
	}
	if id, ok := r.cache.Get(label); ok {
		return types.ImageReference{Label: label, ImageID: id}, nil
	}

	logger := log.WithComponent("images")

	if r.ownerID != "" {
		id, err := r.lookup(ctx, label, []string{r.ownerID})
		if err != nil {
			return types.ImageReference{}, fmt.Errorf("failed to search own images for %s: %w", role, err)
		}
		if id != "" {
			r.cache.Add(label, id)
			return types.ImageReference{Label: label, ImageID: id}, nil
		}
		logger.Info().
			Str("role", string(role)).
			Str("label", label).
			Msg("Image not found among own images, searching all visible images")
	}

	id, err := r.lookup(ctx, label, nil)
	if err != nil {
		return types.ImageReference{}, fmt.Errorf("failed to search images for %s: %w", role, err)
	}
	if id == "" {
		return types.ImageReference{}, fmt.Errorf("%w: %s image label %q", ErrImageNotFound, role, label)
	}
	r.cache.Add(label, id)
	return types.ImageReference{Label: label, ImageID: id}, nil
}

func (r *Resolver) lookup(ctx context.Context, label string, owners []string) (string, error) {
	imgs, err := r.gateway.DescribeImages(ctx, provider.ImageFilter{Owners: owners, Name: label})
	if err != nil {
		return "", err
	}
	for _, img := range imgs {
		if img.Name == label {
			return img.ID, nil
		}
	}
	return "", nil
}

// Search lists images by name. With an empty label it lists the owner's
// images; with a label it searches every visible image.
func (r *Resolver) Search(ctx context.Context, label string) ([]*types.Image, error) {
	filter := provider.ImageFilter{Name: label}
	if label == "" {
		if r.ownerID == "" {
			return nil, fmt.Errorf("%w: listing own images needs an owner id", provider.ErrInvalidRequest)
		}
		filter.Owners = []string{r.ownerID}
	}

	imgs, err := r.gateway.DescribeImages(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search images: %w", err)
	}
	sort.Slice(imgs, func(i, j int) bool { return imgs[i].Name < imgs[j].Name })
	return imgs, nil
}
